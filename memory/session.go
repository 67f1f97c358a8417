package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
)

const sessionContextHeading = "## 会话上下文（短期记忆）"

// SessionTracker accumulates the running summary and topic set for one
// conversation session. The summary is append-only and newline-joined;
// unbounded growth over very long sessions is a known limitation.
type SessionTracker struct {
	id        string
	startTime time.Time

	summary          strings.Builder
	keyTopics        []string
	topicSet         map[string]struct{}
	userPreferences  map[string]any
	interactionCount int

	mu sync.Mutex
}

// NewSessionTracker creates a tracker for the given session id,
// starting at now.
func NewSessionTracker(id string, now time.Time) *SessionTracker {
	return &SessionTracker{
		id:              id,
		startTime:       now,
		topicSet:        make(map[string]struct{}),
		userPreferences: make(map[string]any),
	}
}

// ID returns the session identifier.
func (s *SessionTracker) ID() string { return s.id }

// StartTime returns when the tracker was created.
func (s *SessionTracker) StartTime() time.Time { return s.startTime }

// UpdateSummary appends text to the running summary and increments the
// interaction count.
func (s *SessionTracker) UpdateSummary(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.summary.Len() > 0 {
		s.summary.WriteByte('\n')
	}
	s.summary.WriteString(text)
	s.interactionCount++
}

// AddTopic records a lower-cased topic token, preserving insertion
// order and skipping duplicates.
func (s *SessionTracker) AddTopic(topic string) {
	topic = strings.ToLower(topic)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topicSet[topic]; ok {
		return
	}
	s.topicSet[topic] = struct{}{}
	s.keyTopics = append(s.keyTopics, topic)
}

// SetPreference records a user preference for the session.
func (s *SessionTracker) SetPreference(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userPreferences[key] = value
}

// InteractionCount returns how many summary updates occurred.
func (s *SessionTracker) InteractionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interactionCount
}

// Topics returns the recorded topics in insertion order.
func (s *SessionTracker) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.keyTopics...)
}

// Summary returns the accumulated newline-joined summary.
func (s *SessionTracker) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary.String()
}

// Context renders the session state as a fixed-heading block.
func (s *SessionTracker) Context() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := []string{
		sessionContextHeading,
		fmt.Sprintf("会话开始时间: %s", s.startTime.Format("Mon Jan 2 15:04:05 2006")),
		fmt.Sprintf("交互次数: %d", s.interactionCount),
	}
	if len(s.keyTopics) > 0 {
		parts = append(parts, fmt.Sprintf("关键话题: %s", strings.Join(s.keyTopics, ", ")))
	}
	if s.summary.Len() > 0 {
		parts = append(parts, fmt.Sprintf("对话摘要: %s", s.summary.String()))
	}
	return strings.Join(parts, "\n")
}

// ExtractTopics pulls candidate topic tokens out of interaction
// content: alphabetic words longer than four characters, lower-cased.
// Deliberately simple; the session layer is not a keyword index.
func ExtractTopics(content string) []string {
	var topics []string
	for _, word := range strings.Fields(content) {
		if len([]rune(word)) <= 4 {
			continue
		}
		alpha := true
		for _, r := range word {
			if !unicode.IsLetter(r) {
				alpha = false
				break
			}
		}
		if alpha {
			topics = append(topics, strings.ToLower(word))
		}
	}
	return topics
}
