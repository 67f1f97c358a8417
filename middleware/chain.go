package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// Handler processes one model invocation and returns a response.
type Handler func(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error)

// Middleware wraps a handler with additional behavior.
type Middleware func(next Handler) Handler

// Chain composes middlewares around a terminal handler.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain creates a chain from the given middlewares.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use appends a middleware to the chain.
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// UseFront prepends a middleware to the chain.
func (c *Chain) UseFront(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append([]Middleware{m}, c.middlewares...)
	return c
}

// Then wraps h with every middleware in the chain; the first registered
// middleware runs outermost.
func (c *Chain) Then(h Handler) Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Len returns the number of middlewares in the chain.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// Built-in middlewares. These are the simpler consumers of the same
// interception contract the memory middleware uses.

// Logging records request/response details on logger.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
			start := time.Now()
			logger.Debug("model request",
				zap.String("trace_id", req.TraceID),
				zap.String("model", req.Model),
				zap.Int("messages", len(req.Messages)),
			)

			resp, err := next(ctx, req)

			duration := time.Since(start)
			if err != nil {
				logger.Warn("model request failed",
					zap.String("trace_id", req.TraceID),
					zap.Duration("duration", duration),
					zap.Error(err),
				)
			} else {
				logger.Debug("model response",
					zap.String("trace_id", req.TraceID),
					zap.Duration("duration", duration),
					zap.Int("total_tokens", resp.Usage.TotalTokens),
				)
			}
			return resp, err
		}
	}
}

// Tracing assigns a trace id to requests that carry none.
func Tracing() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
			if req.TraceID == "" {
				req.TraceID = uuid.NewString()
			}
			return next(ctx, req)
		}
	}
}

// Timeout bounds the delegate call.
func Timeout(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "panic recovered"
}

// Recovery converts panics in downstream handlers into errors.
func Recovery(onPanic func(any)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *types.ModelRequest) (resp *types.ModelResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					err = &PanicError{Value: r}
				}
			}()
			return next(ctx, req)
		}
	}
}
