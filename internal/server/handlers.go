package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/courtdraft/courtdraft/internal/export"
	"github.com/courtdraft/courtdraft/internal/generation"
	"github.com/courtdraft/courtdraft/internal/metrics"
)

const maxRequestBytes = 1 << 20

// Generator is the orchestrator surface the HTTP layer depends on.
type Generator interface {
	Generate(ctx context.Context, req *generation.Request) (generation.Document, error)
	CacheSize(ctx context.Context) (int64, error)
}

// HandlerOptions wires the request handlers.
type HandlerOptions struct {
	Generator Generator
	Renderer  *export.Renderer
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	// CorrelationHeader names the inbound header echoed back and attached to
	// request-scoped log lines.
	CorrelationHeader string
	// CacheBackend is reported by the health endpoint.
	CacheBackend string
}

// Handlers serves the generation API: POST /generate, POST /render, and
// GET /healthz.
type Handlers struct {
	generator         Generator
	renderer          *export.Renderer
	logger            *slog.Logger
	metrics           *metrics.Recorder
	correlationHeader string
	cacheBackend      string
}

// NewHandler builds the routed HTTP handler for the generation API.
func NewHandler(opts HandlerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		generator:         opts.Generator,
		renderer:          opts.Renderer,
		logger:            logger.With(slog.String("agent", "http")),
		metrics:           opts.Metrics,
		correlationHeader: opts.CorrelationHeader,
		cacheBackend:      opts.CacheBackend,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/generate", h.serveGenerate)
	mux.HandleFunc("/render", h.serveRender)
	mux.HandleFunc("/healthz", h.serveHealth)
	mux.HandleFunc("/health", h.serveHealth)
	return mux
}

type generateResponse struct {
	Complaint string `json:"complaint"`
	Model     string `json:"model,omitempty"`
	Cached    bool   `json:"cached,omitempty"`
}

type errorResponse struct {
	Error       string         `json:"error"`
	Type        string         `json:"type,omitempty"`
	RetryAfter  int            `json:"retryAfter,omitempty"`
	UserMessage string         `json:"userMessage,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

func (h *Handlers) serveGenerate(w http.ResponseWriter, r *http.Request) {
	applyCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		h.writeError(w, http.StatusMethodNotAllowed, &generation.Error{
			Kind:    generation.KindInvalidInput,
			Message: "method not allowed",
		})
		return
	}

	start := time.Now()
	logger := h.requestLogger(w, r)

	var req generation.Request
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("malformed generate payload", slog.Any("error", err))
		genErr := generation.NewError(generation.KindInvalidInput, "invalid JSON payload")
		h.writeError(w, http.StatusBadRequest, genErr)
		h.metrics.ObserveGenerate(string(genErr.Kind), http.StatusBadRequest, false, time.Since(start))
		return
	}

	doc, err := h.generator.Generate(r.Context(), &req)
	if err != nil {
		genErr := generation.AsError(err)
		status := statusFor(genErr)
		logger.Warn("generation failed",
			slog.String("kind", string(genErr.Kind)),
			slog.Int("status", status),
			slog.String("error", genErr.Message),
		)
		h.writeError(w, status, genErr)
		h.metrics.ObserveGenerate(string(genErr.Kind), status, false, time.Since(start))
		return
	}

	logger.Info("complaint generated",
		slog.String("model", doc.Model),
		slog.Bool("cached", doc.Cached),
		slog.Duration("elapsed", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, generateResponse{
		Complaint: doc.Complaint,
		Model:     doc.Model,
		Cached:    doc.Cached,
	})
	h.metrics.ObserveGenerate("success", http.StatusOK, doc.Cached, time.Since(start))
}

type renderRequest struct {
	generation.Request
	Complaint string `json:"complaint"`
}

func (h *Handlers) serveRender(w http.ResponseWriter, r *http.Request) {
	applyCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		h.writeError(w, http.StatusMethodNotAllowed, &generation.Error{
			Kind:    generation.KindInvalidInput,
			Message: "method not allowed",
		})
		return
	}

	logger := h.requestLogger(w, r)

	var req renderRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("malformed render payload", slog.Any("error", err))
		h.writeError(w, http.StatusBadRequest, generation.NewError(generation.KindInvalidInput, "invalid JSON payload"))
		return
	}
	if req.Complaint == "" {
		h.writeError(w, http.StatusBadRequest, generation.NewError(generation.KindInvalidInput, "complaint text is required"))
		return
	}

	req.Request.Normalize()
	document, err := h.renderer.Render(&req.Request, req.Complaint)
	if err != nil {
		logger.Error("document render failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, generation.NewError(generation.KindConfigurationError, "failed to render document"))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(document))
}

type healthResponse struct {
	Status string      `json:"status"`
	Cache  healthCache `json:"cache"`
}

type healthCache struct {
	Backend string `json:"backend"`
	Entries int64  `json:"entries"`
}

func (h *Handlers) serveHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{Status: "ok", Cache: healthCache{Backend: h.cacheBackend}}
	entries, err := h.generator.CacheSize(r.Context())
	if err != nil {
		resp.Status = "degraded"
		resp.Cache.Entries = -1
	} else {
		resp.Cache.Entries = entries
	}
	writeJSON(w, http.StatusOK, resp)
}

// requestLogger resolves the request correlation ID, echoes it back, and
// returns a logger scoped to this request.
func (h *Handlers) requestLogger(w http.ResponseWriter, r *http.Request) *slog.Logger {
	if h.correlationHeader == "" {
		return h.logger
	}
	id := strings.TrimSpace(r.Header.Get(h.correlationHeader))
	if id == "" {
		id = newCorrelationID()
	}
	w.Header().Set(h.correlationHeader, id)
	return h.logger.With(slog.String("correlation_id", id))
}

func newCorrelationID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, genErr *generation.Error) {
	if genErr.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(genErr.RetryAfterSeconds))
	}
	writeJSON(w, status, errorResponse{
		Error:       genErr.Message,
		Type:        string(genErr.Kind),
		RetryAfter:  genErr.RetryAfterSeconds,
		UserMessage: genErr.UserMessage,
		Details:     genErr.Details,
	})
}

// statusFor maps the failure taxonomy onto response codes. Unclassified
// upstream failures forward the upstream status when one was recorded.
func statusFor(genErr *generation.Error) int {
	switch genErr.Kind {
	case generation.KindInvalidInput:
		return http.StatusBadRequest
	case generation.KindInvalidCredential:
		return http.StatusUnauthorized
	case generation.KindQuotaExceeded, generation.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case generation.KindUpstreamError:
		if genErr.Status >= 400 {
			return genErr.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func applyCORS(w http.ResponseWriter) {
	header := w.Header()
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type")
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBytes))
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
