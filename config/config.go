// Package config provides unified configuration loading for memflow:
// defaults → YAML file → environment overrides (MEMFLOW_ prefix).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/memflow/backend"
	"github.com/BaSui01/memflow/middleware"
)

// Backend type names accepted in BackendConfig.Type.
const (
	BackendFilesystem = "filesystem"
	BackendRedis      = "redis"
	BackendMemory     = "memory"
)

// BackendConfig selects and configures the persistence backend.
type BackendConfig struct {
	// Type is one of filesystem, redis, memory.
	Type string `yaml:"type"`

	// Dir is the root directory for the filesystem backend.
	Dir string `yaml:"dir"`

	// Redis configures the redis backend.
	Redis backend.RedisConfig `yaml:"redis"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level"`

	// Development switches to the console encoder with stacktraces.
	Development bool `yaml:"development"`
}

// Config is the complete memflow configuration.
type Config struct {
	// Mode selects the middleware stack: legacy, layered, hybrid, auto.
	Mode string `yaml:"mode"`

	// Backend selects the persistence backend.
	Backend BackendConfig `yaml:"backend"`

	// Memory tunes the layered memory middleware.
	Memory middleware.MemoryConfig `yaml:"memory"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`
}

// DefaultConfig returns the stock configuration: auto mode over a
// filesystem backend in ./memflow-data.
func DefaultConfig() Config {
	return Config{
		Mode: string(middleware.ModeAuto),
		Backend: BackendConfig{
			Type:  BackendFilesystem,
			Dir:   "memflow-data",
			Redis: backend.DefaultRedisConfig(),
		},
		Memory: middleware.DefaultMemoryConfig(),
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads configuration with precedence defaults → YAML file → env.
// An empty path skips the file stage; a missing file is an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides scalar settings from MEMFLOW_* variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MEMFLOW_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("MEMFLOW_BACKEND_TYPE"); v != "" {
		cfg.Backend.Type = v
	}
	if v := os.Getenv("MEMFLOW_BACKEND_DIR"); v != "" {
		cfg.Backend.Dir = v
	}
	if v := os.Getenv("MEMFLOW_REDIS_ADDR"); v != "" {
		cfg.Backend.Redis.Addr = v
	}
	if v := os.Getenv("MEMFLOW_REDIS_PASSWORD"); v != "" {
		cfg.Backend.Redis.Password = v
	}
	if v := os.Getenv("MEMFLOW_MEMORY_PATH"); v != "" {
		cfg.Memory.MemoryPath = v
	}
	if v := os.Getenv("MEMFLOW_WORKING_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Memory.WorkingSize = n
		}
	}
	if v := os.Getenv("MEMFLOW_AUTO_SAVE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Memory.AutoSaveInterval = d
		}
	}
	if v := os.Getenv("MEMFLOW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate rejects configurations that cannot be constructed.
func (c *Config) Validate() error {
	switch c.Mode {
	case string(middleware.ModeLegacy), string(middleware.ModeLayered),
		string(middleware.ModeHybrid), string(middleware.ModeAuto), "":
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}

	switch c.Backend.Type {
	case BackendFilesystem:
		if c.Backend.Dir == "" {
			return fmt.Errorf("backend.dir is required for the filesystem backend")
		}
	case BackendRedis:
		if c.Backend.Redis.Addr == "" {
			return fmt.Errorf("backend.redis.addr is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid backend type %q", c.Backend.Type)
	}

	if c.Memory.WorkingSize < 0 {
		return fmt.Errorf("memory.working_size must not be negative")
	}
	return nil
}

// NewLogger builds a zap logger from the log configuration.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}
