package types

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single conversational message.
type Message struct {
	Role     Role              `json:"role"`
	Content  string            `json:"content,omitempty"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ModelRequest is the outgoing model invocation handed through the
// middleware chain. Middlewares mutate it in place before delegation;
// System carries the accumulated system instructions.
type ModelRequest struct {
	TraceID  string            `json:"trace_id,omitempty"`
	Model    string            `json:"model,omitempty"`
	System   string            `json:"system,omitempty"`
	Messages []Message         `json:"messages"`
	State    State             `json:"state,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LatestUserContent returns the content of the most recent user-authored
// message, or "" if the request carries none.
func (r *ModelRequest) LatestUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser && r.Messages[i].Content != "" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// ModelUsage reports token accounting for a completed invocation.
type ModelUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ModelResponse is the result of a model invocation.
type ModelResponse struct {
	ID        string     `json:"id,omitempty"`
	Model     string     `json:"model,omitempty"`
	Messages  []Message  `json:"messages"`
	Usage     ModelUsage `json:"usage,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
}

// LatestAssistantContent returns the content of the most recent
// generated message, or "" if the response carries none.
func (r *ModelResponse) LatestAssistantContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleAssistant && r.Messages[i].Content != "" {
			return r.Messages[i].Content
		}
	}
	return ""
}
