package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/backend"
	"github.com/BaSui01/memflow/types"
)

// AgentMemoryPath is the flat legacy memory file on the backend.
const AgentMemoryPath = "/agent.md"

// defaultMemorySnippet wraps the flat memory for injection.
const defaultMemorySnippet = "<agent_memory>\n%s\n</agent_memory>"

// AgentMemoryMiddleware is the legacy flat-memory middleware: it loads
// the agent's /agent.md once per run into the request state and injects
// it into the system instructions on every call. Kept for deployments
// predating the layered system; the hybrid configuration runs it behind
// the layered middleware.
type AgentMemoryMiddleware struct {
	backend    backend.Backend
	memoryPath string
	snippet    string
	logger     *zap.Logger
}

// NewAgentMemoryMiddleware creates the legacy middleware. memoryPath is
// the storage root referenced in the trailer prompt; snippetTemplate
// overrides the default <agent_memory> wrapper when non-empty (must
// contain one %s placeholder).
func NewAgentMemoryMiddleware(b backend.Backend, memoryPath string, snippetTemplate string, logger *zap.Logger) *AgentMemoryMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	if memoryPath == "" {
		memoryPath = "/memories/"
	}
	if snippetTemplate == "" {
		snippetTemplate = defaultMemorySnippet
	}
	return &AgentMemoryMiddleware{
		backend:    b,
		memoryPath: memoryPath,
		snippet:    snippetTemplate,
		logger:     logger.With(zap.String("component", "agent_memory_middleware")),
	}
}

// Middleware returns the chain adapter. The flat memory is read from
// the backend on the first call that finds no agent_memory in the state
// bag; a missing file injects an empty snippet rather than failing.
func (m *AgentMemoryMiddleware) Middleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
			agentMemory := req.State.GetString(types.StateKeyAgentMemory)
			if agentMemory == "" {
				agentMemory = m.load(ctx)
				req.State.Set(types.StateKeyAgentMemory, agentMemory)
			}

			section := fmt.Sprintf(m.snippet, agentMemory)
			if req.System != "" {
				req.System = section + "\n\n" + req.System
			} else {
				req.System = section
			}
			req.System += "\n\n" + fmt.Sprintf(memorySystemPromptTemplate, m.memoryPath)

			return next(ctx, req)
		}
	}
}

func (m *AgentMemoryMiddleware) load(ctx context.Context) string {
	data, err := m.backend.Read(ctx, AgentMemoryPath)
	if err != nil {
		if !backend.IsNotFound(err) {
			m.logger.Warn("failed to load agent memory", zap.Error(err))
		}
		return ""
	}
	return data
}
