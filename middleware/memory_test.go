package middleware

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/backend"
	"github.com/BaSui01/memflow/types"
)

// testMemoryConfig disables the save throttle so persistence effects are
// observable within a single call.
func testMemoryConfig() MemoryConfig {
	cfg := DefaultMemoryConfig()
	cfg.AutoSaveInterval = -1
	return cfg
}

func userRequest(sessionID, content string) *types.ModelRequest {
	return &types.ModelRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: content}},
		State:    types.State{types.StateKeySessionID: sessionID},
	}
}

func assistantReply(content string) Handler {
	return func(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
		return &types.ModelResponse{
			Messages: []types.Message{{Role: types.RoleAssistant, Content: content}},
		}, nil
	}
}

// silentReply returns a response carrying no assistant content, so only
// the inbound half of the interaction is recorded.
func silentReply(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
	return &types.ModelResponse{}, nil
}

func TestMemoryMiddleware_RecordsInteractionsInOrder(t *testing.T) {
	t.Parallel()

	m := NewMemoryMiddleware(backend.NewMapBackend(), testMemoryConfig(), zap.NewNop())
	h := m.Middleware()(silentReply)

	_, err := h(context.Background(), userRequest("s1", "hello"))
	require.NoError(t, err)
	_, err = h(context.Background(), userRequest("s1", "world"))
	require.NoError(t, err)

	tracker, ok := m.Sessions().Get("s1")
	require.True(t, ok)
	require.Equal(t, 2, tracker.InteractionCount())
	require.Equal(t, "用户: hello\n用户: world", tracker.Summary())
	require.Equal(t, 2, m.Working().Len())
}

func TestMemoryMiddleware_HarvestsBothDirections(t *testing.T) {
	t.Parallel()

	m := NewMemoryMiddleware(backend.NewMapBackend(), testMemoryConfig(), zap.NewNop())
	h := m.Middleware()(assistantReply("hi there"))

	_, err := h(context.Background(), userRequest("s1", "hello"))
	require.NoError(t, err)

	items := m.Working().Items()
	require.Len(t, items, 2)
	require.Equal(t, "用户: hello", items[0].Content)
	require.Equal(t, 1.0, items[0].Importance)
	require.Equal(t, "助手: hi there", items[1].Content)
	require.Equal(t, 0.8, items[1].Importance)

	tracker, ok := m.Sessions().Get("s1")
	require.True(t, ok)
	require.Equal(t, 2, tracker.InteractionCount())

	// Only the assistant turn reaches long-term memory.
	require.Equal(t, 1, m.LongTerm().SemanticLen()+m.LongTerm().EpisodicLen())
}

func TestMemoryMiddleware_SessionIsolation(t *testing.T) {
	t.Parallel()

	m := NewMemoryMiddleware(backend.NewMapBackend(), testMemoryConfig(), zap.NewNop())
	h := m.Middleware()(silentReply)

	_, err := h(context.Background(), userRequest("a", "alpha topic"))
	require.NoError(t, err)
	m.ClearWorkingMemory()
	_, err = h(context.Background(), userRequest("b", "beta topic"))
	require.NoError(t, err)

	a, ok := m.Sessions().Get("a")
	require.True(t, ok)
	b, ok := m.Sessions().Get("b")
	require.True(t, ok)

	require.NotContains(t, a.Context(), "beta")
	require.NotContains(t, b.Context(), "alpha")
	require.Equal(t, 1, a.InteractionCount())
	require.Equal(t, 1, b.InteractionCount())
}

func TestMemoryMiddleware_SessionFallbackToThreadID(t *testing.T) {
	t.Parallel()

	m := NewMemoryMiddleware(backend.NewMapBackend(), testMemoryConfig(), zap.NewNop())
	h := m.Middleware()(silentReply)

	req := &types.ModelRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
		State:    types.State{types.StateKeyThreadID: "t-9"},
	}
	_, err := h(context.Background(), req)
	require.NoError(t, err)

	_, ok := m.Sessions().Get("t-9")
	require.True(t, ok)

	// No identifiers at all collapses onto the default session.
	req = &types.ModelRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	}
	_, err = h(context.Background(), req)
	require.NoError(t, err)
	_, ok = m.Sessions().Get(types.DefaultSessionID)
	require.True(t, ok)
}

func TestMemoryMiddleware_InjectsContextBeforeSystem(t *testing.T) {
	t.Parallel()

	m := NewMemoryMiddleware(backend.NewMapBackend(), testMemoryConfig(), zap.NewNop())
	m.LongTerm().AddSemantic("用户喜欢简洁回答", 1.0, nil)

	var seenSystem string
	h := m.Middleware()(func(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
		seenSystem = req.System
		return &types.ModelResponse{}, nil
	})

	req := userRequest("s1", "你好")
	req.System = "BASE INSTRUCTIONS"
	_, err := h(context.Background(), req)
	require.NoError(t, err)

	require.Contains(t, seenSystem, "## 当前对话上下文（工作记忆）")
	require.Contains(t, seenSystem, "用户: 你好")
	require.Contains(t, seenSystem, "## 长期记忆（相关上下文）")
	require.Contains(t, seenSystem, "用户喜欢简洁回答")
	require.Contains(t, seenSystem, "BASE INSTRUCTIONS")
	require.Contains(t, seenSystem, "<memory_system>")
	require.Contains(t, seenSystem, "/memories/")

	// Assembled context precedes the original instructions; the trailer
	// comes last.
	require.Less(t, strings.Index(seenSystem, "工作记忆"), strings.Index(seenSystem, "BASE INSTRUCTIONS"))
	require.Less(t, strings.Index(seenSystem, "BASE INSTRUCTIONS"), strings.Index(seenSystem, "<memory_system>"))
}

func TestMemoryMiddleware_NoInjectionWhenAllLayersEmpty(t *testing.T) {
	t.Parallel()

	m := NewMemoryMiddleware(backend.NewMapBackend(), testMemoryConfig(), zap.NewNop())

	var seenSystem string
	h := m.Middleware()(func(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
		seenSystem = req.System
		return &types.ModelResponse{}, nil
	})

	// No user message, so nothing lands in working memory before the
	// injection step.
	req := &types.ModelRequest{System: "BASE", State: types.State{}}
	_, err := h(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "BASE", seenSystem)
}

func TestMemoryMiddleware_DelegateErrorSkipsPostCallUpdates(t *testing.T) {
	t.Parallel()

	m := NewMemoryMiddleware(backend.NewMapBackend(), testMemoryConfig(), zap.NewNop())
	boom := errors.New("upstream unavailable")
	h := m.Middleware()(func(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
		return nil, boom
	})

	_, err := h(context.Background(), userRequest("s1", "hello"))
	require.ErrorIs(t, err, boom)

	// Inbound was recorded before delegation; nothing after.
	items := m.Working().Items()
	require.Len(t, items, 1)
	require.Equal(t, "用户: hello", items[0].Content)

	tracker, ok := m.Sessions().Get("s1")
	require.True(t, ok)
	require.Equal(t, 1, tracker.InteractionCount())
	require.Zero(t, m.LongTerm().SemanticLen())
	require.Zero(t, m.LongTerm().EpisodicLen())
}

func TestMemoryMiddleware_ClassifiesOutboundContent(t *testing.T) {
	t.Parallel()

	m := NewMemoryMiddleware(backend.NewMapBackend(), testMemoryConfig(), zap.NewNop())

	h := m.Middleware()(assistantReply("我们讨论了部署方案"))
	_, err := h(context.Background(), userRequest("s1", "方案如何"))
	require.NoError(t, err)
	require.Equal(t, 1, m.LongTerm().EpisodicLen())
	require.Zero(t, m.LongTerm().SemanticLen())

	h = m.Middleware()(assistantReply("服务默认监听 8080 端口"))
	_, err = h(context.Background(), userRequest("s1", "端口是多少"))
	require.NoError(t, err)
	require.Equal(t, 1, m.LongTerm().SemanticLen())
}

func TestMemoryMiddleware_ImportanceBoostOnMarkedContent(t *testing.T) {
	t.Parallel()

	m := NewMemoryMiddleware(backend.NewMapBackend(), testMemoryConfig(), zap.NewNop())
	h := m.Middleware()(assistantReply("好的，我会记住你偏好简洁回答"))

	_, err := h(context.Background(), userRequest("s1", "请记住我的偏好"))
	require.NoError(t, err)

	items := m.LongTerm().SemanticItems()
	require.Len(t, items, 1)
	require.InDelta(t, 1.0, items[0].Importance, 1e-9)
}

func TestMemoryMiddleware_DisabledScopesDropContent(t *testing.T) {
	t.Parallel()

	cfg := testMemoryConfig()
	cfg.EnableSemantic = false
	m := NewMemoryMiddleware(backend.NewMapBackend(), cfg, zap.NewNop())
	h := m.Middleware()(assistantReply("服务默认监听 8080 端口"))

	_, err := h(context.Background(), userRequest("s1", "端口"))
	require.NoError(t, err)
	require.Zero(t, m.LongTerm().SemanticLen())
	require.Zero(t, m.LongTerm().EpisodicLen())
}

func TestMemoryMiddleware_AutoSavePersistsWithoutThrottle(t *testing.T) {
	t.Parallel()

	b := backend.NewMapBackend()
	m := NewMemoryMiddleware(b, testMemoryConfig(), zap.NewNop())
	h := m.Middleware()(assistantReply("noted"))

	_, err := h(context.Background(), userRequest("s1", "hello"))
	require.NoError(t, err)

	ok, err := b.Exists(context.Background(), "/memories/semantic_memory.json")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = b.Exists(context.Background(), "/memories/episodic_memory.json")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryMiddleware_ThrottledSaveSkipsFirstCall(t *testing.T) {
	t.Parallel()

	b := backend.NewMapBackend()
	cfg := DefaultMemoryConfig() // 300s throttle
	m := NewMemoryMiddleware(b, cfg, zap.NewNop())
	h := m.Middleware()(assistantReply("noted"))

	_, err := h(context.Background(), userRequest("s1", "hello"))
	require.NoError(t, err)
	require.Zero(t, b.Len())
}

func TestMemoryMiddleware_HydratesFromBackend(t *testing.T) {
	t.Parallel()

	b := backend.NewMapBackend()
	seed := `[{"content":"用户喜欢简洁回答","timestamp":1700000000,"importance":1.0,"tags":[],"access_count":3,"last_accessed":1700000100}]`
	require.NoError(t, b.Write(context.Background(), "/memories/semantic_memory.json", seed))

	m := NewMemoryMiddleware(b, testMemoryConfig(), zap.NewNop())
	require.Equal(t, 1, m.LongTerm().SemanticLen())

	results := m.SearchMemories("简洁", types.MemoryAll, 5)
	require.Len(t, results, 1)
	require.Equal(t, 4, results[0].AccessCount)
}

func TestMemoryMiddleware_LegacyModeMergesFlatMemory(t *testing.T) {
	t.Parallel()

	cfg := testMemoryConfig()
	cfg.LegacyMode = true
	m := NewMemoryMiddleware(backend.NewMapBackend(), cfg, zap.NewNop())

	var seenSystem string
	h := m.Middleware()(func(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
		seenSystem = req.System
		return &types.ModelResponse{}, nil
	})

	req := userRequest("s1", "hi")
	req.State.Set(types.StateKeyAgentMemory, "the user is called Ada")
	_, err := h(context.Background(), req)
	require.NoError(t, err)

	require.Contains(t, seenSystem, "## 原始记忆\nthe user is called Ada")
}

func TestMemoryMiddleware_Stats(t *testing.T) {
	t.Parallel()

	m := NewMemoryMiddleware(backend.NewMapBackend(), testMemoryConfig(), zap.NewNop())
	h := m.Middleware()(assistantReply("noted"))
	_, err := h(context.Background(), userRequest("s1", "hello"))
	require.NoError(t, err)

	stats := m.Stats()
	require.Equal(t, 2, stats.WorkingSize)
	require.Equal(t, DefaultMemoryConfig().WorkingSize, stats.WorkingCapacity)
	require.Equal(t, 1, stats.ActiveSessions)
	require.Contains(t, stats.Sessions, "s1")
	require.Equal(t, 1, stats.SemanticCount+stats.EpisodicCount)
}

func TestMemoryMiddleware_CloseFlushes(t *testing.T) {
	t.Parallel()

	b := backend.NewMapBackend()
	cfg := DefaultMemoryConfig() // throttled, so only Close persists
	m := NewMemoryMiddleware(b, cfg, zap.NewNop())
	m.LongTerm().AddSemantic("fact", 1.0, nil)

	require.NoError(t, m.Close())
	ok, _ := b.Exists(context.Background(), "/memories/semantic_memory.json")
	require.True(t, ok)
}
