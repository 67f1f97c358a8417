package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const workingContextHeading = "## 当前对话上下文（工作记忆）"

// DefaultWorkingCapacity is the working buffer size when none is
// configured.
const DefaultWorkingCapacity = 10

// WorkingItem is one raw interaction fragment held in working memory.
// Importance is stored for downstream ranking only; eviction here is
// strictly FIFO.
type WorkingItem struct {
	Content    string
	Timestamp  time.Time
	Importance float64
}

// WorkingBuffer is a bounded recency buffer of conversational fragments
// for the active turn sequence. All operations are total: no inputs
// produce errors.
type WorkingBuffer struct {
	capacity int
	items    []WorkingItem
	now      func() time.Time
	mu       sync.Mutex
}

// NewWorkingBuffer creates a buffer holding at most capacity entries.
// Non-positive capacities fall back to DefaultWorkingCapacity.
func NewWorkingBuffer(capacity int) *WorkingBuffer {
	if capacity <= 0 {
		capacity = DefaultWorkingCapacity
	}
	return &WorkingBuffer{
		capacity: capacity,
		items:    make([]WorkingItem, 0, capacity),
		now:      time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (b *WorkingBuffer) WithNow(now func() time.Time) *WorkingBuffer {
	b.now = now
	return b
}

// Add appends an entry, evicting the oldest when the buffer is full.
func (b *WorkingBuffer) Add(content string, importance float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, WorkingItem{
		Content:    content,
		Timestamp:  b.now(),
		Importance: importance,
	})
	if len(b.items) > b.capacity {
		b.items = b.items[len(b.items)-b.capacity:]
	}
}

// Context renders the most recent maxItems entries as a numbered list
// under a fixed heading, or "" when the buffer is empty.
func (b *WorkingBuffer) Context(maxItems int) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return ""
	}
	start := 0
	if maxItems > 0 && len(b.items) > maxItems {
		start = len(b.items) - maxItems
	}
	recent := b.items[start:]

	parts := make([]string, 0, len(recent)+1)
	parts = append(parts, workingContextHeading)
	for i, item := range recent {
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, item.Content))
	}
	return strings.Join(parts, "\n")
}

// Clear empties the buffer.
func (b *WorkingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = b.items[:0]
}

// Len returns the current entry count.
func (b *WorkingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Capacity returns the configured maximum entry count.
func (b *WorkingBuffer) Capacity() int {
	return b.capacity
}

// Items returns a copy of the buffered entries in insertion order.
func (b *WorkingBuffer) Items() []WorkingItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]WorkingItem{}, b.items...)
}
