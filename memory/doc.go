// Package memory implements the three conversational memory layers:
//
//   - WorkingBuffer: a fixed-capacity FIFO of recent interaction
//     fragments scoped to the process lifetime.
//   - SessionTracker / SessionStore: per-session running summary and
//     topic set, keyed by session id with optional idle eviction.
//   - LongTermStore: durable cross-session semantic and episodic
//     items with capacity-bounded pruning, keyword search and
//     best-effort JSON persistence through a backend.Backend.
//
// The layers never fail the caller: backend I/O problems degrade to
// missing context, reported through logs and metrics.
package memory
