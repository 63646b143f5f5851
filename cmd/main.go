package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/courtdraft/courtdraft/internal/config"
	"github.com/courtdraft/courtdraft/internal/export"
	"github.com/courtdraft/courtdraft/internal/logging"
	"github.com/courtdraft/courtdraft/internal/metrics"
	"github.com/courtdraft/courtdraft/internal/prompt"
	"github.com/courtdraft/courtdraft/internal/runtime"
	"github.com/courtdraft/courtdraft/internal/runtime/cache"
	"github.com/courtdraft/courtdraft/internal/server"
	"github.com/courtdraft/courtdraft/internal/upstream"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "COURTDRAFT", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	logger.Info("upstream credential resolved",
		slog.String("env", cfg.Server.Upstream.APIKeyEnv),
		slog.String("api_key", logging.MaskCredential(cfg.Server.Upstream.APIKey)),
	)

	cacheTTL := time.Duration(cfg.Server.Cache.TTLHours) * time.Hour
	cacheLogger := logger.With(slog.String("agent", "cache_factory"))
	draftCache, cacheBackend := buildDraftCache(cacheLogger, cfg.Server.Cache, cacheTTL)

	var templateSandbox *prompt.Sandbox
	if folder := strings.TrimSpace(cfg.Server.Prompt.TemplatesFolder); folder != "" {
		sandbox, err := prompt.NewSandbox(folder)
		if err != nil {
			logger.Warn("prompt sandbox setup failed", slog.String("templates_folder", folder), slog.Any("error", err))
		} else {
			templateSandbox = sandbox
		}
	}

	promptBuilder, err := prompt.NewBuilder(templateSandbox, cfg.Server.Prompt.TemplateFile)
	if err != nil {
		logger.Error("prompt template setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Server.Prompt.TemplateFile != "" || cfg.Server.Prompt.TemplatesFolder != "" {
		watcher, err := config.WatchPrompt(ctx, cfg.Server.Prompt, func() {
			if err := promptBuilder.Reload(); err != nil {
				logger.Error("prompt template reload failed", slog.Any("error", err))
				return
			}
			logger.Info("prompt template reloaded")
		}, func(err error) {
			if err != nil {
				logger.Error("prompt watcher error", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("prompt watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	classifier, err := upstream.NewClassifier(classificationRules(cfg.Server.Classification))
	if err != nil {
		logger.Error("classification rules rejected", slog.Any("error", err))
		os.Exit(1)
	}

	completionClient := upstream.New(upstream.Options{
		URL:            cfg.Server.Upstream.URL,
		APIKey:         cfg.Server.Upstream.APIKey,
		Temperature:    cfg.Server.Upstream.Temperature,
		MaxTokens:      cfg.Server.Upstream.MaxTokens,
		AttemptTimeout: time.Duration(cfg.Server.Upstream.AttemptTimeoutSeconds) * time.Second,
		Classifier:     classifier,
		Logger:         logger,
	})

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	orch := runtime.New(runtime.Options{
		Cache: draftCache,
		Keys: cache.KeyBuilder{
			Salt:                cfg.Server.Cache.KeySalt,
			IncludeHeaderFields: cfg.Server.Cache.IncludeHeaderFields,
		},
		Prompts:           promptBuilder,
		Completer:         completionClient,
		Models:            cfg.Server.Upstream.Models,
		MaxAttempts:       cfg.Server.Orchestrator.MaxAttempts,
		Concurrency:       int64(cfg.Server.Orchestrator.Concurrency),
		BackoffInitial:    time.Duration(cfg.Server.Orchestrator.BackoffInitialMs) * time.Millisecond,
		BackoffCap:        time.Duration(cfg.Server.Orchestrator.BackoffCapMs) * time.Millisecond,
		RetryAfterSeconds: cfg.Server.Orchestrator.RetryAfterSeconds,
		CacheTTL:          cacheTTL,
		APIKeyConfigured:  cfg.Server.Upstream.APIKey != "",
		Logger:            logger,
		Metrics:           metricsRecorder,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := orch.Close(shutdownCtx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	renderer, err := export.NewRenderer()
	if err != nil {
		logger.Error("document renderer setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	handler := server.NewHandler(server.HandlerOptions{
		Generator:         orch,
		Renderer:          renderer,
		Logger:            logger,
		Metrics:           metricsRecorder,
		CorrelationHeader: cfg.Server.Logging.CorrelationHeader,
		CacheBackend:      cacheBackend,
	})
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsRecorder.Handler())
	mux.Handle("/", handler)

	srv, err := server.New(cfg, logger, mux)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// buildDraftCache selects the cache backend, falling back to memory when the
// configured backend cannot be reached.
func buildDraftCache(logger *slog.Logger, cfg config.CacheConfig, ttl time.Duration) (cache.DraftCache, string) {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		if logger != nil {
			logger.Info("using memory draft cache",
				slog.Duration("ttl", ttl),
				slog.Int("max_entries", cfg.MaxEntries),
			)
		}
		return cache.NewMemory(ttl, cfg.MaxEntries, cfg.EvictBatch), "memory"
	case "redis":
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: cache.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		}, ttl)
		if err != nil {
			if logger != nil {
				logger.Error("redis cache initialization failed", slog.Any("error", err))
				logger.Info("falling back to memory cache")
			}
			return cache.NewMemory(ttl, cfg.MaxEntries, cfg.EvictBatch), "memory"
		}
		if logger != nil {
			logger.Info("using redis draft cache", slog.String("address", cfg.Redis.Address))
		}
		return redisCache, "redis"
	default:
		if logger != nil {
			logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		}
		return cache.NewMemory(ttl, cfg.MaxEntries, cfg.EvictBatch), "memory"
	}
}

func classificationRules(cfg config.ClassificationConfig) []upstream.Rule {
	rules := make([]upstream.Rule, 0, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		rules = append(rules, upstream.Rule{When: rule.When, Kind: rule.Kind})
	}
	return rules
}
