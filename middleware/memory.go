package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/memflow/backend"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

// memorySystemPromptTemplate is the fixed trailer appended after the
// injected context. It tells the model where durable memories live so
// tool-driven writes land on the conventional paths.
const memorySystemPromptTemplate = `<memory_system>
你拥有一个分层记忆系统：工作记忆（当前对话）、短期记忆（本次会话）和长期记忆（跨会话）。
长期记忆持久化在 %s 目录下（semantic_memory.json 保存事实、规则与偏好，
episodic_memory.json 保存重要事件与对话）。引用上方记忆上下文时请与其保持一致；
当用户要求"记住"某件事时，请在回答中明确确认。
</memory_system>`

// Importance assigned to harvested content at each stage.
const (
	inboundImportance      = 1.0
	outboundImportance     = 0.8
	longTermBaseImportance = 0.7
)

// DefaultAutoSaveInterval is the throttle on long-term persistence.
const DefaultAutoSaveInterval = 300 * time.Second

// MemoryConfig configures the layered memory middleware.
type MemoryConfig struct {
	// MemoryPath is the virtual root for persisted memory files.
	MemoryPath string `yaml:"memory_path" json:"memory_path"`

	// WorkingSize is the working buffer capacity.
	WorkingSize int `yaml:"working_size" json:"working_size"`

	// EnableSemantic / EnableEpisodic toggle the long-term scopes.
	EnableSemantic bool `yaml:"enable_semantic" json:"enable_semantic"`
	EnableEpisodic bool `yaml:"enable_episodic" json:"enable_episodic"`

	// AutoSaveInterval throttles persistence; at most one save per
	// interval. Zero selects DefaultAutoSaveInterval; negative
	// disables throttling (save after every call).
	AutoSaveInterval time.Duration `yaml:"auto_save_interval" json:"auto_save_interval"`

	// LegacyMode merges the flat agent_memory state field into the
	// assembled context (hybrid configurations).
	LegacyMode bool `yaml:"legacy_mode" json:"legacy_mode"`

	// MaxContextTokens bounds the injected context; zero disables
	// clipping.
	MaxContextTokens int `yaml:"max_context_tokens" json:"max_context_tokens"`

	// LongTerm and Sessions tune the owned stores.
	LongTerm memory.LongTermConfig     `yaml:"long_term" json:"long_term"`
	Sessions memory.SessionStoreConfig `yaml:"sessions" json:"sessions"`
}

// DefaultMemoryConfig returns the stock middleware configuration.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MemoryPath:       "/memories/",
		WorkingSize:      memory.DefaultWorkingCapacity,
		EnableSemantic:   true,
		EnableEpisodic:   true,
		AutoSaveInterval: DefaultAutoSaveInterval,
		LongTerm:         memory.DefaultLongTermConfig(),
	}
}

// MemoryMiddleware is the request interceptor orchestrating the three
// memory layers around every model invocation. One instance exclusively
// owns its working buffer, session store and long-term store.
//
// No lock is held across delegation: two concurrent invocations for the
// same session id may interleave their updates (last write wins).
// Callers needing strict per-session ordering must serialize calls for
// a session themselves.
type MemoryMiddleware struct {
	config     MemoryConfig
	working    *memory.WorkingBuffer
	sessions   *memory.SessionStore
	longTerm   *memory.LongTermStore
	classifier memory.Classifier

	saveLimiter *rate.Limiter
	counter     TokenCounter
	collector   *metrics.Collector
	logger      *zap.Logger
}

// NewMemoryMiddleware builds the interceptor over b and hydrates the
// long-term store. Construction never fails on backend problems: a
// missing or unreadable store starts empty.
func NewMemoryMiddleware(b backend.Backend, config MemoryConfig, logger *zap.Logger) *MemoryMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "memory_middleware"))

	if config.MemoryPath == "" {
		config.MemoryPath = "/memories/"
	}
	config.LongTerm.Path = config.MemoryPath
	if config.AutoSaveInterval == 0 {
		config.AutoSaveInterval = DefaultAutoSaveInterval
	}

	m := &MemoryMiddleware{
		config:     config,
		working:    memory.NewWorkingBuffer(config.WorkingSize),
		sessions:   memory.NewSessionStore(config.Sessions, logger),
		longTerm:   memory.NewLongTermStore(b, config.LongTerm, logger),
		classifier: memory.NewKeywordClassifier(),
		counter:    EstimatorCounter{},
		logger:     logger,
	}

	if config.AutoSaveInterval > 0 {
		m.saveLimiter = rate.NewLimiter(rate.Every(config.AutoSaveInterval), 1)
		// Drain the initial token so the first save happens one full
		// interval after construction, not on the first call.
		m.saveLimiter.Allow()
	}

	if config.EnableSemantic || config.EnableEpisodic {
		m.longTerm.Load(context.Background())
	}
	return m
}

// WithClassifier swaps the content classification strategy.
func (m *MemoryMiddleware) WithClassifier(c memory.Classifier) *MemoryMiddleware {
	if c != nil {
		m.classifier = c
	}
	return m
}

// WithCollector attaches the observability collaborator.
func (m *MemoryMiddleware) WithCollector(c *metrics.Collector) *MemoryMiddleware {
	m.collector = c
	m.longTerm.WithCollector(c)
	return m
}

// WithTokenCounter swaps the token counter used for context clipping.
func (m *MemoryMiddleware) WithTokenCounter(c TokenCounter) *MemoryMiddleware {
	if c != nil {
		m.counter = c
	}
	return m
}

// Middleware returns the chain adapter performing, per invocation:
// session resolution, pre-call context injection, delegation, post-call
// harvesting and classification, and throttled persistence.
//
// If the delegate fails, the error propagates unchanged and no
// post-call memory update is recorded.
func (m *MemoryMiddleware) Middleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
			sessionID := req.State.SessionID()

			if inbound := req.LatestUserContent(); inbound != "" {
				m.working.Add("用户: "+inbound, inboundImportance)
				m.updateSession(sessionID, "用户: "+inbound)
			}

			m.inject(req, sessionID)

			resp, err := next(ctx, req)
			if err != nil {
				m.collector.RecordIntercept("error")
				return nil, err
			}
			m.collector.RecordIntercept("ok")

			if outbound := resp.LatestAssistantContent(); outbound != "" {
				m.working.Add("助手: "+outbound, outboundImportance)
				m.updateSession(sessionID, "助手: "+outbound)
				m.updateLongTerm("助手: " + outbound)
			}

			m.autoSave(ctx)
			return resp, nil
		}
	}
}

// inject assembles the context and prepends it to the request's system
// instructions, followed by the fixed storage-path trailer. Requests
// with no assembled context pass through untouched.
func (m *MemoryMiddleware) inject(req *types.ModelRequest, sessionID string) {
	start := time.Now()
	memoryContext := m.buildContext(sessionID, req.State)
	m.collector.ObserveContextBuild(time.Since(start))

	if memoryContext == "" {
		return
	}
	if req.System != "" {
		req.System = memoryContext + "\n\n" + req.System
	} else {
		req.System = memoryContext
	}
	req.System += "\n\n" + fmt.Sprintf(memorySystemPromptTemplate, m.config.MemoryPath)
}

// buildContext concatenates the layer contexts in fixed order: working,
// session, long-term, then the legacy flat memory in compatibility
// mode. Empty sections are omitted and the result is clipped to the
// token budget.
func (m *MemoryMiddleware) buildContext(sessionID string, state types.State) string {
	var sections []string

	if wc := m.working.Context(5); wc != "" {
		sections = append(sections, wc)
	}
	if tracker, ok := m.sessions.Get(sessionID); ok {
		if sc := tracker.Context(); sc != "" {
			sections = append(sections, sc)
		}
	}
	if m.config.EnableSemantic || m.config.EnableEpisodic {
		if lc := m.longTerm.Context(10); lc != "" {
			sections = append(sections, lc)
		}
	}
	if m.config.LegacyMode {
		if agentMemory := state.GetString(types.StateKeyAgentMemory); agentMemory != "" {
			sections = append(sections, "## 原始记忆\n"+agentMemory)
		}
	}

	sections = clipSections(sections, m.config.MaxContextTokens, m.counter)
	return strings.Join(sections, "\n\n")
}

func (m *MemoryMiddleware) updateSession(sessionID, content string) {
	tracker := m.sessions.GetOrCreate(sessionID)
	tracker.UpdateSummary(content)
	for _, topic := range memory.ExtractTopics(content) {
		tracker.AddTopic(topic)
	}
	m.collector.SetActiveSessions(m.sessions.Len())
}

// updateLongTerm classifies content into a scope and stores it with the
// adjusted importance. Disabled scopes drop their content silently.
func (m *MemoryMiddleware) updateLongTerm(content string) {
	if !m.config.EnableSemantic && !m.config.EnableEpisodic {
		return
	}
	importance := m.classifier.Importance(content, longTermBaseImportance)
	switch m.classifier.Classify(content) {
	case types.MemoryEpisodic:
		if m.config.EnableEpisodic {
			m.longTerm.AddEpisodic(content, importance, nil)
		}
	default:
		if m.config.EnableSemantic {
			m.longTerm.AddSemantic(content, importance, nil)
		}
	}
}

// autoSave persists long-term memory at most once per configured
// interval. Failures are logged and counted, never raised: a failed
// save must not fail the user-visible call.
func (m *MemoryMiddleware) autoSave(ctx context.Context) {
	if m.saveLimiter != nil && !m.saveLimiter.Allow() {
		return
	}
	if err := m.longTerm.Save(ctx); err != nil {
		m.logger.Warn("auto save failed", zap.Error(err))
	}
}

// SaveAll forces an immediate persistence pass, bypassing the throttle.
func (m *MemoryMiddleware) SaveAll(ctx context.Context) error {
	return m.longTerm.Save(ctx)
}

// Close flushes long-term memory. Call on shutdown.
func (m *MemoryMiddleware) Close() error {
	return m.SaveAll(context.Background())
}

// SearchMemories searches the long-term layers.
func (m *MemoryMiddleware) SearchMemories(query string, scope types.MemoryScope, limit int) []memory.SearchResult {
	return m.longTerm.Search(query, scope, limit)
}

// ClearWorkingMemory empties the working buffer.
func (m *MemoryMiddleware) ClearWorkingMemory() {
	m.working.Clear()
}

// LongTerm exposes the owned long-term store, mainly for tests and
// operational tooling.
func (m *MemoryMiddleware) LongTerm() *memory.LongTermStore { return m.longTerm }

// Sessions exposes the owned session store.
func (m *MemoryMiddleware) Sessions() *memory.SessionStore { return m.sessions }

// Working exposes the owned working buffer.
func (m *MemoryMiddleware) Working() *memory.WorkingBuffer { return m.working }

// MemoryStats is a point-in-time snapshot of all layers.
type MemoryStats struct {
	WorkingSize     int                            `json:"working_size"`
	WorkingCapacity int                            `json:"working_capacity"`
	ActiveSessions  int                            `json:"active_sessions"`
	Sessions        map[string]memory.SessionStats `json:"sessions"`
	SemanticCount   int                            `json:"semantic_count"`
	EpisodicCount   int                            `json:"episodic_count"`
}

// Stats reports the current state of the three layers.
func (m *MemoryMiddleware) Stats() MemoryStats {
	return MemoryStats{
		WorkingSize:     m.working.Len(),
		WorkingCapacity: m.working.Capacity(),
		ActiveSessions:  m.sessions.Len(),
		Sessions:        m.sessions.Stats(),
		SemanticCount:   m.longTerm.SemanticLen(),
		EpisodicCount:   m.longTerm.EpisodicLen(),
	}
}
