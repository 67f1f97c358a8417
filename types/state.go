package types

// Well-known state bag keys.
const (
	// StateKeySessionID identifies the conversation session.
	StateKeySessionID = "session_id"
	// StateKeyThreadID is the fallback session identifier used by hosts
	// that track threads rather than sessions.
	StateKeyThreadID = "thread_id"
	// StateKeyAgentMemory carries the flat legacy memory text loaded
	// from the backend's /agent.md.
	StateKeyAgentMemory = "agent_memory"
)

// DefaultSessionID is used when the state bag carries neither a session
// nor a thread identifier. Two unlabeled sessions collapse into one
// tracker under this id; callers should always supply an identifier.
const DefaultSessionID = "default"

// State is the mutable associative state bag the host runtime threads
// through every invocation. It is owned by the host; middlewares read
// and write individual keys only.
type State map[string]any

// GetString returns the string stored under key, or "" when the key is
// absent or holds a non-string value.
func (s State) GetString(key string) string {
	if s == nil {
		return ""
	}
	v, ok := s[key].(string)
	if !ok {
		return ""
	}
	return v
}

// Set stores value under key. A nil State is a no-op so callers never
// need to pre-allocate the bag before delegating.
func (s State) Set(key string, value any) {
	if s == nil {
		return
	}
	s[key] = value
}

// SessionID resolves the session identifier from the bag, falling back
// to thread id and finally to DefaultSessionID.
func (s State) SessionID() string {
	if id := s.GetString(StateKeySessionID); id != "" {
		return id
	}
	if id := s.GetString(StateKeyThreadID); id != "" {
		return id
	}
	return DefaultSessionID
}
