package middleware

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/backend"
)

// Mode selects the memory middleware configuration.
type Mode string

const (
	// ModeLegacy runs only the flat /agent.md middleware.
	ModeLegacy Mode = "legacy"

	// ModeLayered runs only the three-tier layered middleware.
	ModeLayered Mode = "layered"

	// ModeHybrid runs both: the layered middleware in compatibility
	// mode (merging the flat memory into its context) in front of the
	// legacy middleware.
	ModeHybrid Mode = "hybrid"

	// ModeAuto detects pre-existing flat memory at construction time:
	// a readable non-empty /agent.md selects hybrid, anything else
	// (absent, empty, read error) selects layered.
	ModeAuto Mode = "auto"
)

// MemoryStack is the selected middleware configuration: the ordered
// middlewares to register plus the layered instance (nil in legacy
// mode) for stats, search and shutdown flushing.
type MemoryStack struct {
	Mode        Mode
	Middlewares []Middleware
	Layered     *MemoryMiddleware
}

// NewMemoryStack builds the middleware set for mode. This is a pure
// configuration-time decision; ModeAuto probes the backend exactly once
// here and never again at runtime.
func NewMemoryStack(ctx context.Context, b backend.Backend, mode Mode, config MemoryConfig, logger *zap.Logger) (*MemoryStack, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if mode == ModeAuto || mode == "" {
		mode = detectMode(ctx, b, logger)
	}

	switch mode {
	case ModeLegacy:
		legacy := NewAgentMemoryMiddleware(b, config.MemoryPath, "", logger)
		return &MemoryStack{
			Mode:        ModeLegacy,
			Middlewares: []Middleware{legacy.Middleware()},
		}, nil

	case ModeLayered:
		config.LegacyMode = false
		layered := NewMemoryMiddleware(b, config, logger)
		return &MemoryStack{
			Mode:        ModeLayered,
			Middlewares: []Middleware{layered.Middleware()},
			Layered:     layered,
		}, nil

	case ModeHybrid:
		config.LegacyMode = true
		layered := NewMemoryMiddleware(b, config, logger)
		legacy := NewAgentMemoryMiddleware(b, config.MemoryPath, "", logger)
		return &MemoryStack{
			Mode:        ModeHybrid,
			Middlewares: []Middleware{layered.Middleware(), legacy.Middleware()},
			Layered:     layered,
		}, nil

	default:
		return nil, fmt.Errorf("unknown memory mode %q (use legacy, layered, hybrid or auto)", mode)
	}
}

// detectMode selects hybrid when pre-existing flat memory is present,
// layered otherwise. Read errors fall back to layered: a broken legacy
// file must not disable the new system.
func detectMode(ctx context.Context, b backend.Backend, logger *zap.Logger) Mode {
	data, err := b.Read(ctx, AgentMemoryPath)
	if err != nil {
		if !backend.IsNotFound(err) {
			logger.Warn("legacy memory probe failed, using layered mode", zap.Error(err))
		}
		return ModeLayered
	}
	if strings.TrimSpace(data) == "" {
		return ModeLayered
	}
	logger.Info("existing flat memory detected, using hybrid mode")
	return ModeHybrid
}
