// Package memflow provides a top-level convenience entry point for
// wiring the layered memory middleware stack with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/memflow"
//
//	stack, err := memflow.New(memflow.WithDir("./agent-data"))
//	stack, err := memflow.New(memflow.WithRedis("localhost:6379"))
//	stack, err := memflow.New(memflow.WithBackend(myBackend), memflow.WithMode(memflow.ModeHybrid))
//
// The returned stack's middlewares plug into a [middleware.Chain] (or
// any host runtime speaking the same Handler contract).
package memflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/backend"
	"github.com/BaSui01/memflow/middleware"
)

// Mode aliases for callers that only import this package.
const (
	ModeLegacy  = middleware.ModeLegacy
	ModeLayered = middleware.ModeLayered
	ModeHybrid  = middleware.ModeHybrid
	ModeAuto    = middleware.ModeAuto
)

type options struct {
	backend backend.Backend
	dir     string
	redis   *backend.RedisConfig
	mode    middleware.Mode
	config  *middleware.MemoryConfig
	logger  *zap.Logger
}

// Option configures the stack created by [New].
type Option func(*options)

// WithBackend uses a pre-built persistence backend.
func WithBackend(b backend.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithDir uses a filesystem backend rooted at dir.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithRedis uses a Redis backend at addr with default settings.
func WithRedis(addr string) Option {
	return func(o *options) {
		cfg := backend.DefaultRedisConfig()
		cfg.Addr = addr
		o.redis = &cfg
	}
}

// WithRedisConfig uses a fully configured Redis backend.
func WithRedisConfig(cfg backend.RedisConfig) Option {
	return func(o *options) { o.redis = &cfg }
}

// WithMode overrides the auto-detected memory mode.
func WithMode(mode middleware.Mode) Option {
	return func(o *options) { o.mode = mode }
}

// WithMemoryConfig overrides the default middleware configuration.
func WithMemoryConfig(cfg middleware.MemoryConfig) Option {
	return func(o *options) { o.config = &cfg }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New builds a memory middleware stack. Exactly one backend source must
// be provided via [WithBackend], [WithDir], [WithRedis] or
// [WithRedisConfig]; everything else defaults sensibly.
func New(opts ...Option) (*middleware.MemoryStack, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b, err := resolveBackend(&o, logger)
	if err != nil {
		return nil, err
	}

	cfg := middleware.DefaultMemoryConfig()
	if o.config != nil {
		cfg = *o.config
	}

	return middleware.NewMemoryStack(context.Background(), b, o.mode, cfg, logger)
}

func resolveBackend(o *options, logger *zap.Logger) (backend.Backend, error) {
	provided := 0
	if o.backend != nil {
		provided++
	}
	if o.dir != "" {
		provided++
	}
	if o.redis != nil {
		provided++
	}
	if provided == 0 {
		return nil, fmt.Errorf("memflow: a backend is required (WithBackend, WithDir or WithRedis)")
	}
	if provided > 1 {
		return nil, fmt.Errorf("memflow: multiple backends configured, pick one")
	}

	switch {
	case o.backend != nil:
		return o.backend, nil
	case o.dir != "":
		return backend.NewFilesystemBackend(o.dir, logger)
	default:
		return backend.NewRedisBackend(*o.redis, logger)
	}
}
