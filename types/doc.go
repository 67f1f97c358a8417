// Package types provides unified type definitions shared across the
// memflow middleware stack: the model request/response shapes carried
// through the interception chain, the mutable per-run state bag, and
// the memory item record persisted by the long-term store.
package types
