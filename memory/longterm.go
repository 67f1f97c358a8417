package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/backend"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/types"
)

// Fixed sub-paths under the memory root.
const (
	semanticMemoryFile = "semantic_memory.json"
	episodicMemoryFile = "episodic_memory.json"
)

const longTermContextHeading = "## 长期记忆（相关上下文）"

// Default importance assigned when callers pass none.
const (
	DefaultSemanticImportance = 1.0
	DefaultEpisodicImportance = 0.8
)

// LongTermConfig configures the long-term store.
type LongTermConfig struct {
	// Path is the virtual memory root on the backend.
	Path string `yaml:"path" json:"path"`

	// SemanticCapacity triggers pruning when exceeded;
	// SemanticRetain items survive a prune, ranked by
	// (importance, access_count) so the least relevant go first.
	SemanticCapacity int `yaml:"semantic_capacity" json:"semantic_capacity"`
	SemanticRetain   int `yaml:"semantic_retain" json:"semantic_retain"`

	// EpisodicCapacity triggers pruning when exceeded;
	// EpisodicRetain most-recent items survive, independent of
	// importance: newer events supersede older ones.
	EpisodicCapacity int `yaml:"episodic_capacity" json:"episodic_capacity"`
	EpisodicRetain   int `yaml:"episodic_retain" json:"episodic_retain"`

	// Now overrides the clock, for tests.
	Now func() time.Time `yaml:"-" json:"-"`
}

// DefaultLongTermConfig returns the stock thresholds.
func DefaultLongTermConfig() LongTermConfig {
	return LongTermConfig{
		Path:             "/memories/",
		SemanticCapacity: 1000,
		SemanticRetain:   800,
		EpisodicCapacity: 500,
		EpisodicRetain:   400,
	}
}

func (c *LongTermConfig) normalize() {
	if c.Path == "" {
		c.Path = "/memories/"
	}
	c.Path = strings.TrimRight(c.Path, "/") + "/"
	if c.SemanticCapacity <= 0 {
		c.SemanticCapacity = 1000
	}
	if c.SemanticRetain <= 0 || c.SemanticRetain > c.SemanticCapacity {
		c.SemanticRetain = c.SemanticCapacity * 4 / 5
	}
	if c.EpisodicCapacity <= 0 {
		c.EpisodicCapacity = 500
	}
	if c.EpisodicRetain <= 0 || c.EpisodicRetain > c.EpisodicCapacity {
		c.EpisodicRetain = c.EpisodicCapacity * 4 / 5
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// SearchResult is one matched item together with the scope it came from.
type SearchResult struct {
	types.Item
	Scope types.MemoryScope `json:"type"`
}

// LongTermStore is the durable, cross-session memory store, split into
// semantic items (facts, preferences, rules) and episodic items
// (events, exchanges). One middleware instance owns the store; the
// backend is shared and accessed without locking guarantees.
type LongTermStore struct {
	backend backend.Backend
	config  LongTermConfig

	semantic []types.Item
	episodic []types.Item

	logger    *zap.Logger
	collector *metrics.Collector
	now       func() time.Time
	mu        sync.Mutex
}

// NewLongTermStore creates a store over b. Call Load to hydrate it.
func NewLongTermStore(b backend.Backend, config LongTermConfig, logger *zap.Logger) *LongTermStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.normalize()
	return &LongTermStore{
		backend: b,
		config:  config,
		logger:  logger.With(zap.String("component", "longterm_memory")),
		now:     config.Now,
	}
}

// WithCollector attaches a metrics collector.
func (s *LongTermStore) WithCollector(c *metrics.Collector) *LongTermStore {
	s.collector = c
	return s
}

func (s *LongTermStore) filePath(name string) string {
	return s.config.Path + name
}

// Load reads both sequences from the backend. A missing or corrupt file
// initializes that sequence empty: availability wins over strict
// durability reporting, so Load never fails.
func (s *LongTermStore) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.semantic = s.loadScope(ctx, semanticMemoryFile, types.MemorySemantic)
	s.episodic = s.loadScope(ctx, episodicMemoryFile, types.MemoryEpisodic)
	s.reportSizesLocked()
}

func (s *LongTermStore) loadScope(ctx context.Context, file string, scope types.MemoryScope) []types.Item {
	data, err := s.backend.Read(ctx, s.filePath(file))
	if err != nil {
		if !backend.IsNotFound(err) {
			s.logger.Warn("failed to read memory file, starting empty",
				zap.String("scope", string(scope)), zap.Error(err))
		}
		return nil
	}
	var items []types.Item
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		s.logger.Warn("corrupt memory file, starting empty",
			zap.String("scope", string(scope)), zap.Error(err))
		return nil
	}
	return items
}

// Save serializes both sequences to the backend. Each write is
// attempted independently; a failure on one never blocks the other.
// Failures are reported through the returned error and metrics but are
// not retried.
func (s *LongTermStore) Save(ctx context.Context) error {
	s.mu.Lock()
	semantic := append([]types.Item{}, s.semantic...)
	episodic := append([]types.Item{}, s.episodic...)
	s.mu.Unlock()

	semErr := s.saveScope(ctx, semanticMemoryFile, types.MemorySemantic, semantic)
	epiErr := s.saveScope(ctx, episodicMemoryFile, types.MemoryEpisodic, episodic)
	return errors.Join(semErr, epiErr)
}

func (s *LongTermStore) saveScope(ctx context.Context, file string, scope types.MemoryScope, items []types.Item) error {
	if items == nil {
		items = []types.Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err == nil {
		err = s.backend.Write(ctx, s.filePath(file), string(data))
	}
	s.collector.RecordSave(string(scope), err == nil)
	if err != nil {
		s.logger.Warn("failed to save memory file",
			zap.String("scope", string(scope)), zap.Error(err))
		return fmt.Errorf("save %s memory: %w", scope, err)
	}
	return nil
}

// AddSemantic appends a semantic item and enforces the capacity bound.
func (s *LongTermStore) AddSemantic(content string, importance float64, tags []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.semantic = append(s.semantic, types.NewItem(content, importance, tags, s.now()))
	if len(s.semantic) > s.config.SemanticCapacity {
		s.pruneSemanticLocked()
	}
	s.reportSizesLocked()
}

// pruneSemanticLocked keeps the top SemanticRetain items ranked by
// (importance, access_count): the least important, least accessed
// knowledge is discarded first.
func (s *LongTermStore) pruneSemanticLocked() {
	sort.SliceStable(s.semantic, func(i, j int) bool {
		a, b := s.semantic[i], s.semantic[j]
		if a.Importance != b.Importance {
			return a.Importance < b.Importance
		}
		return a.AccessCount < b.AccessCount
	})
	dropped := len(s.semantic) - s.config.SemanticRetain
	s.semantic = append([]types.Item{}, s.semantic[dropped:]...)
	s.logger.Debug("semantic memory pruned", zap.Int("dropped", dropped))
}

// AddEpisodic appends an episodic item and enforces the capacity bound.
func (s *LongTermStore) AddEpisodic(content string, importance float64, tags []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.episodic = append(s.episodic, types.NewItem(content, importance, tags, s.now()))
	if len(s.episodic) > s.config.EpisodicCapacity {
		s.pruneEpisodicLocked()
	}
	s.reportSizesLocked()
}

// pruneEpisodicLocked keeps the EpisodicRetain most recent items by
// timestamp, independent of importance.
func (s *LongTermStore) pruneEpisodicLocked() {
	sort.SliceStable(s.episodic, func(i, j int) bool {
		return s.episodic[i].Timestamp < s.episodic[j].Timestamp
	})
	dropped := len(s.episodic) - s.config.EpisodicRetain
	s.episodic = append([]types.Item{}, s.episodic[dropped:]...)
	s.logger.Debug("episodic memory pruned", zap.Int("dropped", dropped))
}

// Search returns up to limit items whose content contains query
// (case-insensitive), ordered by (importance, last_accessed)
// descending. Searching is not read-only: every matched item has its
// access count incremented and last-accessed time refreshed.
func (s *LongTermStore) Search(query string, scope types.MemoryScope, limit int) []SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 5
	}
	needle := strings.ToLower(query)
	now := s.now()

	var results []SearchResult
	if scope == types.MemorySemantic || scope == types.MemoryAll {
		results = s.matchLocked(s.semantic, types.MemorySemantic, needle, now, results)
	}
	if scope == types.MemoryEpisodic || scope == types.MemoryAll {
		results = s.matchLocked(s.episodic, types.MemoryEpisodic, needle, now, results)
	}
	s.collector.RecordSearchHits(len(results))

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		return a.LastAccessed > b.LastAccessed
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (s *LongTermStore) matchLocked(items []types.Item, scope types.MemoryScope, needle string, now time.Time, results []SearchResult) []SearchResult {
	for i := range items {
		if strings.Contains(strings.ToLower(items[i].Content), needle) {
			items[i].Touch(now)
			results = append(results, SearchResult{Item: items[i], Scope: scope})
		}
	}
	return results
}

// Context renders up to maxItems/2 top-ranked semantic items and up to
// maxItems/2 most recent episodic items under separate fixed headings,
// or "" when both sequences are empty.
func (s *LongTermStore) Context(maxItems int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.semantic) == 0 && len(s.episodic) == 0 {
		return ""
	}
	if maxItems <= 0 {
		maxItems = 10
	}
	half := maxItems / 2

	parts := []string{longTermContextHeading}

	semantic := append([]types.Item{}, s.semantic...)
	sort.SliceStable(semantic, func(i, j int) bool {
		a, b := semantic[i], semantic[j]
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		return a.AccessCount > b.AccessCount
	})
	if len(semantic) > half {
		semantic = semantic[:half]
	}
	if len(semantic) > 0 {
		parts = append(parts, "### 语义记忆（概念、规则、偏好）:")
		for _, item := range semantic {
			parts = append(parts, "- "+item.Content)
		}
	}

	episodic := append([]types.Item{}, s.episodic...)
	sort.SliceStable(episodic, func(i, j int) bool {
		return episodic[i].Timestamp > episodic[j].Timestamp
	})
	if len(episodic) > half {
		episodic = episodic[:half]
	}
	if len(episodic) > 0 {
		parts = append(parts, "### 情节记忆（重要事件、对话）:")
		for _, item := range episodic {
			parts = append(parts, "- "+item.Content)
		}
	}

	return strings.Join(parts, "\n")
}

// Path returns the normalized memory root.
func (s *LongTermStore) Path() string { return s.config.Path }

// SemanticLen returns the semantic sequence length.
func (s *LongTermStore) SemanticLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.semantic)
}

// EpisodicLen returns the episodic sequence length.
func (s *LongTermStore) EpisodicLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.episodic)
}

// SemanticItems returns a copy of the semantic sequence.
func (s *LongTermStore) SemanticItems() []types.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Item{}, s.semantic...)
}

// EpisodicItems returns a copy of the episodic sequence.
func (s *LongTermStore) EpisodicItems() []types.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Item{}, s.episodic...)
}

func (s *LongTermStore) reportSizesLocked() {
	s.collector.SetItemCount(string(types.MemorySemantic), len(s.semantic))
	s.collector.SetItemCount(string(types.MemoryEpisodic), len(s.episodic))
}
