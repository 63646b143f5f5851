package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/courtdraft/courtdraft/internal/generation"
)

const maxResponseBytes = 1 << 20

// httpDoer is the minimal client surface so tests can substitute transports.
type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client issues single completion attempts against an OpenAI-compatible
// chat-completions endpoint. Retry and model-fallback policy live in the
// orchestrator; the client executes exactly one HTTP call per Complete.
type Client struct {
	client      httpDoer
	url         string
	apiKey      string
	temperature float64
	maxTokens   int
	classifier  *Classifier
	logger      *slog.Logger
}

// Options configures a Client.
type Options struct {
	URL         string
	APIKey      string
	Temperature float64
	MaxTokens   int
	// AttemptTimeout bounds each individual upstream call. The zero value
	// falls back to 60 seconds; the original service had no client-side
	// timeout at all, which is the gap this closes.
	AttemptTimeout time.Duration
	Classifier     *Classifier
	Logger         *slog.Logger
	// HTTPClient overrides the default client, primarily for tests.
	HTTPClient httpDoer
}

// New constructs a completion client.
func New(opts Options) *Client {
	timeout := opts.AttemptTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = &Classifier{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:      client,
		url:         opts.URL,
		apiKey:      opts.APIKey,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		classifier:  classifier,
		logger:      logger.With(slog.String("agent", "upstream")),
	}
}

// Complete issues one completion attempt with the given model. The returned
// Attempt is always populated; transport failures surface as retryable
// network errors rather than plain Go errors so the attempt loop stays a
// pure function of outcomes.
func (c *Client) Complete(ctx context.Context, model, systemPrompt, userPrompt string) Attempt {
	attempt := Attempt{Model: model}

	payload := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		attempt.Err = generation.NewError(generation.KindUpstreamError, "encode completion request: "+err.Error())
		return attempt
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		attempt.Err = generation.NewError(generation.KindUpstreamError, "build completion request: "+err.Error())
		return attempt
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			attempt.Err = generation.NewError(generation.KindNetworkError, "completion request canceled")
			return attempt
		}
		c.logger.Warn("completion transport failure", slog.String("model", model), slog.Any("error", err))
		attempt.Err = generation.NewError(generation.KindNetworkError, "completion request failed: "+err.Error())
		attempt.Retryable = true
		return attempt
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		attempt.Err = generation.NewError(generation.KindNetworkError, "completion response read failed: "+err.Error())
		attempt.Retryable = true
		return attempt
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var decoded chatResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			attempt.Err = generation.NewError(generation.KindInvalidUpstreamResponse, "Invalid response from OpenAI")
			return attempt
		}
		if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == "" {
			attempt.Err = generation.NewError(generation.KindInvalidUpstreamResponse, "Invalid response from OpenAI")
			return attempt
		}
		attempt.Text = strings.TrimSpace(decoded.Choices[0].Message.Content)
		return attempt
	}

	var envelope errorEnvelope
	// Error bodies that fail to decode classify on status alone.
	_ = json.Unmarshal(raw, &envelope)

	attempt.Err, attempt.Retryable = c.classifier.Classify(resp.StatusCode, envelope.Error)
	return attempt
}
