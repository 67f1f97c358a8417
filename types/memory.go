package types

import "time"

// MemoryScope distinguishes the two long-term memory sequences.
type MemoryScope string

const (
	// MemorySemantic holds facts, preferences and rules. Pruned by
	// importance so relevant knowledge survives regardless of age.
	MemorySemantic MemoryScope = "semantic"

	// MemoryEpisodic holds concrete events and exchanges. Pruned by
	// recency since newer events supersede older ones.
	MemoryEpisodic MemoryScope = "episodic"

	// MemoryAll selects both scopes in search operations.
	MemoryAll MemoryScope = "all"
)

// Item is a single long-term memory record. The JSON field set is the
// persisted wire format and must stay stable across releases.
//
// Invariant: LastAccessed >= Timestamp. AccessCount increments only
// when a search matches the item; items are bulk-pruned, never deleted
// individually.
type Item struct {
	Content      string   `json:"content"`
	Timestamp    float64  `json:"timestamp"`
	Importance   float64  `json:"importance"`
	Tags         []string `json:"tags"`
	AccessCount  int      `json:"access_count"`
	LastAccessed float64  `json:"last_accessed"`
}

// NewItem creates an item stamped at now with zero accesses.
func NewItem(content string, importance float64, tags []string, now time.Time) Item {
	ts := TimeToUnix(now)
	if tags == nil {
		tags = []string{}
	}
	return Item{
		Content:      content,
		Timestamp:    ts,
		Importance:   importance,
		Tags:         tags,
		AccessCount:  0,
		LastAccessed: ts,
	}
}

// Touch records a successful search match at now.
func (it *Item) Touch(now time.Time) {
	it.AccessCount++
	ts := TimeToUnix(now)
	if ts > it.LastAccessed {
		it.LastAccessed = ts
	}
}

// TimeToUnix converts a time to the float seconds representation used
// by the persisted format.
func TimeToUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
