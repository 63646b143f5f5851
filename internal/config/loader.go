package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	ktoml "github.com/knadh/koanf/parsers/toml"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file >
// default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract
// before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot using the documented precedence rules
// and resolves the upstream credential from the process environment.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserForPath(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"server.logging.correlationheader":      "server.logging.correlationHeader",
			"server.upstream.apikeyenv":             "server.upstream.apiKeyEnv",
			"server.upstream.maxtokens":             "server.upstream.maxTokens",
			"server.upstream.attempttimeoutseconds": "server.upstream.attemptTimeoutSeconds",
			"server.orchestrator.maxattempts":       "server.orchestrator.maxAttempts",
			"server.orchestrator.backoffinitialms":  "server.orchestrator.backoffInitialMs",
			"server.orchestrator.backoffcapms":      "server.orchestrator.backoffCapMs",
			"server.orchestrator.retryafterseconds": "server.orchestrator.retryAfterSeconds",
			"server.cache.ttlhours":                 "server.cache.ttlHours",
			"server.cache.maxentries":               "server.cache.maxEntries",
			"server.cache.evictbatch":               "server.cache.evictBatch",
			"server.cache.keysalt":                  "server.cache.keySalt",
			"server.cache.includeheaderfields":      "server.cache.includeHeaderFields",
			"server.cache.redis.tls.cafile":         "server.cache.redis.tls.caFile",
			"server.prompt.templatesfolder":         "server.prompt.templatesFolder",
			"server.prompt.templatefile":            "server.prompt.templateFile",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path
			// (SERVER__LISTEN__PORT -> server.listen.port).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			// Single underscores collapse so LISTEN_PORT becomes listenport
			// when callers skip double underscores for nesting.
			key = strings.ReplaceAll(key, "_", "")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	keyEnv := strings.TrimSpace(cfg.Server.Upstream.APIKeyEnv)
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
		cfg.Server.Upstream.APIKeyEnv = keyEnv
	}
	// A missing credential is not a load failure: the orchestrator surfaces
	// it as a configuration error per request so the health surface stays up.
	cfg.Server.Upstream.APIKey = strings.TrimSpace(os.Getenv(keyEnv))
	return cfg, nil
}

func parserForPath(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", "":
		return kyaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml":
		return ktoml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported config format %q", filepath.Ext(path))
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	rules := make([]map[string]any, 0, len(cfg.Server.Classification.Rules))
	for _, rule := range cfg.Server.Classification.Rules {
		rules = append(rules, map[string]any{"when": rule.When, "kind": rule.Kind})
	}
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":             cfg.Server.Logging.Level,
				"format":            cfg.Server.Logging.Format,
				"correlationHeader": cfg.Server.Logging.CorrelationHeader,
			},
			"upstream": map[string]any{
				"url":                   cfg.Server.Upstream.URL,
				"apiKeyEnv":             cfg.Server.Upstream.APIKeyEnv,
				"models":                cfg.Server.Upstream.Models,
				"temperature":           cfg.Server.Upstream.Temperature,
				"maxTokens":             cfg.Server.Upstream.MaxTokens,
				"attemptTimeoutSeconds": cfg.Server.Upstream.AttemptTimeoutSeconds,
			},
			"orchestrator": map[string]any{
				"maxAttempts":       cfg.Server.Orchestrator.MaxAttempts,
				"concurrency":       cfg.Server.Orchestrator.Concurrency,
				"backoffInitialMs":  cfg.Server.Orchestrator.BackoffInitialMs,
				"backoffCapMs":      cfg.Server.Orchestrator.BackoffCapMs,
				"retryAfterSeconds": cfg.Server.Orchestrator.RetryAfterSeconds,
			},
			"cache": map[string]any{
				"backend":             cfg.Server.Cache.Backend,
				"ttlHours":            cfg.Server.Cache.TTLHours,
				"maxEntries":          cfg.Server.Cache.MaxEntries,
				"evictBatch":          cfg.Server.Cache.EvictBatch,
				"keySalt":             cfg.Server.Cache.KeySalt,
				"includeHeaderFields": cfg.Server.Cache.IncludeHeaderFields,
				"redis": map[string]any{
					"address":  cfg.Server.Cache.Redis.Address,
					"username": cfg.Server.Cache.Redis.Username,
					"password": cfg.Server.Cache.Redis.Password,
					"db":       cfg.Server.Cache.Redis.DB,
					"tls": map[string]any{
						"enabled": cfg.Server.Cache.Redis.TLS.Enabled,
						"caFile":  cfg.Server.Cache.Redis.TLS.CAFile,
					},
				},
			},
			"prompt": map[string]any{
				"templatesFolder": cfg.Server.Prompt.TemplatesFolder,
				"templateFile":    cfg.Server.Prompt.TemplateFile,
			},
			"classification": map[string]any{
				"rules": rules,
			},
		},
	}
}
