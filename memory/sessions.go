package memory

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionStoreConfig configures the session tracker store.
type SessionStoreConfig struct {
	// IdleTTL evicts trackers not touched for this long. Zero disables
	// idle eviction (every session lives for the process lifetime).
	IdleTTL time.Duration `yaml:"idle_ttl" json:"idle_ttl"`

	// MaxSessions caps the number of live trackers; the least recently
	// touched are evicted first. Zero means unbounded.
	MaxSessions int `yaml:"max_sessions" json:"max_sessions"`

	// Now overrides the clock, for tests.
	Now func() time.Time `yaml:"-" json:"-"`
}

type sessionEntry struct {
	tracker  *SessionTracker
	lastSeen time.Time
}

// SessionStore owns the session-id → tracker mapping. Trackers are
// created lazily on first sight of an id; eviction is explicit policy
// (idle TTL, max cap) rather than the unbounded map of earlier
// revisions, so long-running processes do not grow without limit.
type SessionStore struct {
	sessions map[string]*sessionEntry
	config   SessionStoreConfig
	now      func() time.Time
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewSessionStore creates an empty session store.
func NewSessionStore(config SessionStoreConfig, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		config:   config,
		now:      now,
		logger:   logger.With(zap.String("component", "session_store")),
	}
}

// GetOrCreate returns the tracker for id, creating it on first sight.
// Access refreshes the idle timer and triggers eviction sweeps.
func (s *SessionStore) GetOrCreate(id string) *SessionTracker {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictIdleLocked(now)

	entry, ok := s.sessions[id]
	if !ok {
		entry = &sessionEntry{tracker: NewSessionTracker(id, now)}
		s.sessions[id] = entry
		s.evictOverflowLocked(id)
		s.logger.Debug("session tracker created", zap.String("session_id", id))
	}
	entry.lastSeen = now
	return entry.tracker
}

// Get returns the tracker for id without creating one.
func (s *SessionStore) Get(id string) (*SessionTracker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = s.now()
	return entry.tracker, true
}

// Len returns the number of live trackers.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// evictIdleLocked drops trackers idle longer than the TTL.
func (s *SessionStore) evictIdleLocked(now time.Time) {
	if s.config.IdleTTL <= 0 {
		return
	}
	cutoff := now.Add(-s.config.IdleTTL)
	for id, entry := range s.sessions {
		if entry.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			s.logger.Debug("session tracker evicted (idle)", zap.String("session_id", id))
		}
	}
}

// evictOverflowLocked enforces MaxSessions, never evicting keep.
func (s *SessionStore) evictOverflowLocked(keep string) {
	if s.config.MaxSessions <= 0 || len(s.sessions) <= s.config.MaxSessions {
		return
	}

	type aged struct {
		id       string
		lastSeen time.Time
	}
	candidates := make([]aged, 0, len(s.sessions))
	for id, entry := range s.sessions {
		if id == keep {
			continue
		}
		candidates = append(candidates, aged{id: id, lastSeen: entry.lastSeen})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastSeen.Before(candidates[j].lastSeen)
	})

	excess := len(s.sessions) - s.config.MaxSessions
	for i := 0; i < excess && i < len(candidates); i++ {
		delete(s.sessions, candidates[i].id)
		s.logger.Debug("session tracker evicted (overflow)",
			zap.String("session_id", candidates[i].id))
	}
}

// SessionStats summarizes one tracked session.
type SessionStats struct {
	InteractionCount int `json:"interaction_count"`
	KeyTopicsCount   int `json:"key_topics_count"`
	SummaryLength    int `json:"summary_length"`
}

// Stats returns per-session statistics keyed by session id.
func (s *SessionStore) Stats() map[string]SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]SessionStats, len(s.sessions))
	for id, entry := range s.sessions {
		t := entry.tracker
		stats[id] = SessionStats{
			InteractionCount: t.InteractionCount(),
			KeyTopicsCount:   len(t.Topics()),
			SummaryLength:    len(t.Summary()),
		}
	}
	return stats
}
