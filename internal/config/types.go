package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds every server-level option for the courtdraft service.
type Config struct {
	Server ServerConfig `koanf:"server"`
}

// ServerConfig collects the bootstrap knobs owned by the lifecycle agent.
type ServerConfig struct {
	Listen         ListenConfig         `koanf:"listen"`
	Logging        LoggingConfig        `koanf:"logging"`
	Upstream       UpstreamConfig       `koanf:"upstream"`
	Orchestrator   OrchestratorConfig   `koanf:"orchestrator"`
	Cache          CacheConfig          `koanf:"cache"`
	Prompt         PromptConfig         `koanf:"prompt"`
	Classification ClassificationConfig `koanf:"classification"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level, format, and correlation ID wiring.
type LoggingConfig struct {
	Level             string `koanf:"level"`
	Format            string `koanf:"format"`
	CorrelationHeader string `koanf:"correlationHeader"`
}

// UpstreamConfig describes the chat-completion endpoint and the model
// fallback chain cycled through across retry attempts.
type UpstreamConfig struct {
	URL       string `koanf:"url"`
	APIKeyEnv string `koanf:"apiKeyEnv"`
	// APIKey is resolved from the environment at load time and never read
	// from configuration files.
	APIKey                string   `koanf:"-"`
	Models                []string `koanf:"models"`
	Temperature           float64  `koanf:"temperature"`
	MaxTokens             int      `koanf:"maxTokens"`
	AttemptTimeoutSeconds int      `koanf:"attemptTimeoutSeconds"`
}

// OrchestratorConfig bounds the attempt loop and admission control.
type OrchestratorConfig struct {
	MaxAttempts int `koanf:"maxAttempts"`
	// Concurrency caps simultaneous upstream sequences. The default of 1
	// reproduces strict global serialization with FIFO admission.
	Concurrency      int `koanf:"concurrency"`
	BackoffInitialMs int `koanf:"backoffInitialMs"`
	BackoffCapMs     int `koanf:"backoffCapMs"`
	// RetryAfterSeconds is the wait suggested to callers when every attempt
	// was rate limited.
	RetryAfterSeconds int `koanf:"retryAfterSeconds"`
}

// CacheConfig selects and tunes the draft cache backend.
type CacheConfig struct {
	Backend    string `koanf:"backend"`
	TTLHours   int    `koanf:"ttlHours"`
	MaxEntries int    `koanf:"maxEntries"`
	EvictBatch int    `koanf:"evictBatch"`
	KeySalt    string `koanf:"keySalt"`
	// IncludeHeaderFields widens the cache key to cover parties, county,
	// causes, and case number instead of the summary alone. Off by default:
	// the summary-only key is the documented historical behavior.
	IncludeHeaderFields bool             `koanf:"includeHeaderFields"`
	Redis               RedisCacheConfig `koanf:"redis"`
}

// RedisCacheConfig carries connection settings for the Redis cache backend.
type RedisCacheConfig struct {
	Address  string              `koanf:"address"`
	Username string              `koanf:"username"`
	Password string              `koanf:"password"`
	DB       int                 `koanf:"db"`
	TLS      RedisTLSCacheConfig `koanf:"tls"`
}

type RedisTLSCacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// PromptConfig points at an optional template override folder. When set, the
// folder is watched and prompt templates reload on change.
type PromptConfig struct {
	TemplatesFolder string `koanf:"templatesFolder"`
	TemplateFile    string `koanf:"templateFile"`
}

// ClassificationConfig lets operators prepend CEL rules to the built-in
// upstream-error table. Rules are evaluated in order against
// {status, code, message}; the first match wins.
type ClassificationConfig struct {
	Rules []ClassificationRule `koanf:"rules"`
}

// ClassificationRule maps a CEL predicate over the upstream error payload to
// a failure kind.
type ClassificationRule struct {
	When string `koanf:"when"`
	Kind string `koanf:"kind"`
}

// DefaultConfig returns the canonical defaults, including the constants the
// attempt loop and cache eviction policy are specified around.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:             "info",
				Format:            "json",
				CorrelationHeader: "X-Request-Id",
			},
			Upstream: UpstreamConfig{
				URL:                   "https://api.openai.com/v1/chat/completions",
				APIKeyEnv:             "OPENAI_API_KEY",
				Models:                []string{"gpt-3.5-turbo", "gpt-3.5-turbo-0125", "gpt-3.5-turbo-1106"},
				Temperature:           0.3,
				MaxTokens:             2000,
				AttemptTimeoutSeconds: 60,
			},
			Orchestrator: OrchestratorConfig{
				MaxAttempts:       3,
				Concurrency:       1,
				BackoffInitialMs:  5000,
				BackoffCapMs:      30000,
				RetryAfterSeconds: 60,
			},
			Cache: CacheConfig{
				Backend:    "memory",
				TTLHours:   24,
				MaxEntries: 100,
				EvictBatch: 20,
			},
		},
	}
}

// Validate rejects configuration combinations the runtime cannot honor.
func (c Config) Validate() error {
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen port %d out of range", c.Server.Listen.Port)
	}
	switch strings.ToLower(c.Server.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unsupported log level %q", c.Server.Logging.Level)
	}
	switch strings.ToLower(c.Server.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: unsupported log format %q", c.Server.Logging.Format)
	}
	if strings.TrimSpace(c.Server.Upstream.URL) == "" {
		return errors.New("config: upstream url required")
	}
	if len(c.Server.Upstream.Models) == 0 {
		return errors.New("config: at least one upstream model required")
	}
	if c.Server.Orchestrator.MaxAttempts < 1 {
		return fmt.Errorf("config: maxAttempts %d must be at least 1", c.Server.Orchestrator.MaxAttempts)
	}
	if c.Server.Orchestrator.Concurrency < 1 {
		return fmt.Errorf("config: concurrency %d must be at least 1", c.Server.Orchestrator.Concurrency)
	}
	if c.Server.Cache.TTLHours <= 0 {
		return fmt.Errorf("config: cache ttlHours %d must be positive", c.Server.Cache.TTLHours)
	}
	if c.Server.Cache.MaxEntries <= 0 {
		return fmt.Errorf("config: cache maxEntries %d must be positive", c.Server.Cache.MaxEntries)
	}
	if c.Server.Cache.EvictBatch <= 0 || c.Server.Cache.EvictBatch > c.Server.Cache.MaxEntries {
		return fmt.Errorf("config: cache evictBatch %d must be within (0, maxEntries]", c.Server.Cache.EvictBatch)
	}
	switch strings.ToLower(strings.TrimSpace(c.Server.Cache.Backend)) {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("config: unsupported cache backend %q", c.Server.Cache.Backend)
	}
	for i, rule := range c.Server.Classification.Rules {
		if strings.TrimSpace(rule.When) == "" {
			return fmt.Errorf("config: classification rule %d missing condition", i)
		}
		if strings.TrimSpace(rule.Kind) == "" {
			return fmt.Errorf("config: classification rule %d missing kind", i)
		}
	}
	return nil
}
