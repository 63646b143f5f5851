package runtime

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/courtdraft/courtdraft/internal/generation"
	"github.com/courtdraft/courtdraft/internal/metrics"
	"github.com/courtdraft/courtdraft/internal/prompt"
	"github.com/courtdraft/courtdraft/internal/runtime/cache"
	"github.com/courtdraft/courtdraft/internal/upstream"
)

// Completer is the upstream surface the orchestrator drives: one completion
// attempt per call, outcome pre-classified.
type Completer interface {
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) upstream.Attempt
}

// Options wires an Orchestrator.
type Options struct {
	Cache     cache.DraftCache
	Keys      cache.KeyBuilder
	Prompts   *prompt.Builder
	Completer Completer
	// Models is the fallback chain, most-capable first. Attempt i uses
	// models[(i-1) mod len(models)] so retries rotate across the chain.
	Models      []string
	MaxAttempts int
	// Concurrency caps simultaneous generation sequences. 1 reproduces the
	// historical global serialization; waiters are admitted in arrival order.
	Concurrency       int64
	BackoffInitial    time.Duration
	BackoffCap        time.Duration
	RetryAfterSeconds int
	CacheTTL          time.Duration
	// APIKeyConfigured gates generation: when false every request fails
	// with a configuration error before any upstream work.
	APIKeyConfigured bool
	Logger           *slog.Logger
	Metrics          *metrics.Recorder
	// Sleep overrides the inter-attempt backoff wait, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Orchestrator owns the full lifecycle of one generation request: validation,
// cache lookup, single-flight admission, the attempt loop, and the cache
// write. All mutable state lives here rather than in package globals so the
// behavior is testable per instance.
type Orchestrator struct {
	cache             cache.DraftCache
	keys              cache.KeyBuilder
	prompts           *prompt.Builder
	completer         Completer
	models            []string
	maxAttempts       int
	backoffInitial    time.Duration
	backoffCap        time.Duration
	retryAfterSeconds int
	cacheTTL          time.Duration
	apiKeyConfigured  bool
	logger            *slog.Logger
	metrics           *metrics.Recorder
	sleep             func(ctx context.Context, d time.Duration) error

	group singleflight.Group
	sem   *semaphore.Weighted
}

type flightResult struct {
	doc generation.Document
}

// defaultModels mirrors the configuration default so a zero-value chain can
// never panic the attempt loop.
var defaultModels = []string{"gpt-3.5-turbo", "gpt-3.5-turbo-0125", "gpt-3.5-turbo-1106"}

// New constructs an orchestrator from options, applying the documented
// defaults for any zero values.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	models := opts.Models
	if len(models) == 0 {
		models = defaultModels
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	backoffInitial := opts.BackoffInitial
	if backoffInitial <= 0 {
		backoffInitial = 5 * time.Second
	}
	backoffCap := opts.BackoffCap
	if backoffCap <= 0 {
		backoffCap = 30 * time.Second
	}
	retryAfter := opts.RetryAfterSeconds
	if retryAfter <= 0 {
		retryAfter = 60
	}
	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = cache.DefaultTTL
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
	return &Orchestrator{
		cache:             opts.Cache,
		keys:              opts.Keys,
		prompts:           opts.Prompts,
		completer:         opts.Completer,
		models:            models,
		maxAttempts:       maxAttempts,
		backoffInitial:    backoffInitial,
		backoffCap:        backoffCap,
		retryAfterSeconds: retryAfter,
		cacheTTL:          cacheTTL,
		apiKeyConfigured:  opts.APIKeyConfigured,
		logger:            logger.With(slog.String("agent", "orchestrator")),
		metrics:           opts.Metrics,
		sleep:             sleep,
		sem:               semaphore.NewWeighted(concurrency),
	}
}

// Generate runs one request to completion. Every returned error is a
// *generation.Error carrying a taxonomy kind.
func (o *Orchestrator) Generate(ctx context.Context, req *generation.Request) (generation.Document, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return generation.Document{}, err
	}
	if !o.apiKeyConfigured {
		return generation.Document{}, generation.NewError(generation.KindConfigurationError, "Server configuration error")
	}

	key := o.keys.Key(req)
	if doc, ok := o.lookup(ctx, key); ok {
		return doc, nil
	}

	// Identical summaries arriving concurrently collapse into one upstream
	// build; distinct keys proceed independently up to the admission cap.
	value, err, shared := o.group.Do(key, func() (any, error) {
		doc, err := o.build(ctx, key, req)
		if err != nil {
			return nil, err
		}
		return flightResult{doc: doc}, nil
	})
	if err != nil {
		return generation.Document{}, err
	}
	doc := value.(flightResult).doc
	if shared {
		// Followers of a collapsed build observe the same text a cache hit
		// would have produced moments later.
		doc.Cached = true
	}
	return doc, nil
}

func (o *Orchestrator) lookup(ctx context.Context, key string) (generation.Document, bool) {
	entry, ok, err := o.cache.Lookup(ctx, key)
	if err != nil {
		o.logger.Warn("draft cache lookup failed", slog.Any("error", err), slog.String("cache_key", key))
		o.metrics.ObserveCacheLookup(metrics.CacheLookupError)
		return generation.Document{}, false
	}
	if !ok {
		o.metrics.ObserveCacheLookup(metrics.CacheLookupMiss)
		return generation.Document{}, false
	}
	o.metrics.ObserveCacheLookup(metrics.CacheLookupHit)
	return generation.Document{
		Complaint: entry.Complaint,
		Model:     entry.Model,
		Cached:    true,
		CreatedAt: entry.StoredAt,
	}, true
}

// build performs admission, the prompt assembly, and the attempt loop for a
// single flight. Admission is released on every exit path so the next waiter
// is always serviced.
func (o *Orchestrator) build(ctx context.Context, key string, req *generation.Request) (generation.Document, error) {
	waitStart := time.Now()
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return generation.Document{}, generation.NewError(generation.KindNetworkError, "request canceled while waiting for admission")
	}
	defer o.sem.Release(1)
	o.metrics.ObserveAdmissionWait(time.Since(waitStart))

	// A flight for this key may have completed and stored while this caller
	// waited on admission.
	if doc, ok := o.lookup(ctx, key); ok {
		return doc, nil
	}

	userPrompt, err := o.prompts.Build(req)
	if err != nil {
		o.logger.Error("prompt assembly failed", slog.Any("error", err))
		return generation.Document{}, generation.NewError(generation.KindConfigurationError, "Server configuration error")
	}

	var lastErr *generation.Error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		model := o.models[(attempt-1)%len(o.models)]
		o.logger.Info("completion attempt",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", o.maxAttempts),
			slog.String("model", model),
		)

		result := o.completer.Complete(ctx, model, prompt.SystemPrompt, userPrompt)
		o.metrics.ObserveUpstreamAttempt(model, attemptOutcome(result))

		if result.Err == nil {
			doc := generation.Document{
				Complaint: result.Text,
				Model:     model,
				CreatedAt: time.Now().UTC(),
			}
			o.store(ctx, key, doc)
			return doc, nil
		}

		if !result.Retryable {
			return generation.Document{}, result.Err
		}

		lastErr = result.Err
		if attempt == o.maxAttempts {
			break
		}

		wait := o.backoff(attempt)
		o.logger.Info("retryable completion failure",
			slog.String("kind", string(result.Err.Kind)),
			slog.Duration("backoff", wait),
			slog.Int("next_attempt", attempt+1),
		)
		if err := o.sleep(ctx, wait); err != nil {
			return generation.Document{}, generation.NewError(generation.KindNetworkError, "request canceled during backoff")
		}
	}

	if lastErr != nil {
		if lastErr.Kind == generation.KindRateLimitExceeded {
			lastErr.RetryAfterSeconds = o.retryAfterSeconds
		}
		return generation.Document{}, lastErr
	}
	return generation.Document{}, generation.NewError(
		generation.KindAllRetriesExhausted,
		"Failed to generate complaint after multiple attempts. Please try again later.",
	)
}

func (o *Orchestrator) store(ctx context.Context, key string, doc generation.Document) {
	entry := cache.Entry{
		Complaint: doc.Complaint,
		Model:     doc.Model,
		StoredAt:  doc.CreatedAt,
		ExpiresAt: doc.CreatedAt.Add(o.cacheTTL),
	}
	if err := o.cache.Store(ctx, key, entry); err != nil {
		// A failed write costs a future cache hit, not this response.
		o.logger.Warn("draft cache store failed", slog.Any("error", err), slog.String("cache_key", key))
		o.metrics.ObserveCacheStore(metrics.CacheStoreError)
		return
	}
	o.metrics.ObserveCacheStore(metrics.CacheStoreStored)
}

// backoff computes the inter-attempt wait: initial doubled per attempt,
// capped.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	wait := o.backoffInitial << (attempt - 1)
	if wait > o.backoffCap {
		wait = o.backoffCap
	}
	return wait
}

// CacheSize reports the current draft cache occupancy for health responses.
func (o *Orchestrator) CacheSize(ctx context.Context) (int64, error) {
	return o.cache.Size(ctx)
}

// Close releases the cache backend.
func (o *Orchestrator) Close(ctx context.Context) error {
	if o.cache == nil {
		return nil
	}
	return o.cache.Close(ctx)
}

func attemptOutcome(result upstream.Attempt) string {
	if result.Err == nil {
		return "success"
	}
	return string(result.Err.Kind)
}
