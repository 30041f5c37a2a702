package ask

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"medrag/internal/domain"
	"medrag/internal/middleware"
	"medrag/internal/pipeline"
)

// MaxRequestBytes caps the size of a request body.
const MaxRequestBytes = 1 << 20

type Answerer interface {
	Answer(ctx context.Context, question string, topK int) (*domain.AnswerRecord, error)
}

type DocumentLoader interface {
	Load(ctx context.Context, dir string) ([]domain.Document, error)
}

type IndexBuilder interface {
	BuildIndex(ctx context.Context, docs []domain.Document) (*pipeline.BuildStats, error)
}

// RebuildRequester enqueues a rebuild on the worker instead of building
// in-process.
type RebuildRequester interface {
	RequestRebuild(ctx context.Context) (string, error)
}

type Handler struct {
	answerer  Answerer
	loader    DocumentLoader
	builder   IndexBuilder
	requester RebuildRequester
	corpusDir string
}

// NewHandler wires the ask and index endpoints. requester may be nil, in
// which case POST /index builds synchronously.
func NewHandler(a Answerer, l DocumentLoader, b IndexBuilder, r RebuildRequester, corpusDir string) *Handler {
	return &Handler{answerer: a, loader: l, builder: b, requester: r, corpusDir: corpusDir}
}

type AskRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type IndexResponse struct {
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model"`
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AskRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(ctx, w, "REQUEST_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(ctx, w, "INVALID_JSON", "request body must be JSON", http.StatusBadRequest)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "question is required", http.StatusBadRequest)
		return
	}
	if req.TopK < 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "top_k must be positive", http.StatusBadRequest)
		return
	}

	rec, err := h.answerer.Answer(ctx, req.Question, req.TopK)
	if err != nil {
		slog.ErrorContext(ctx, "answer failed", "error", err)
		h.writeDomainError(ctx, w, err)
		return
	}

	slog.InfoContext(ctx, "question answered", "mode", rec.Mode, "contexts", len(rec.Contexts))
	h.writeJSON(ctx, w, http.StatusOK, rec)
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.requester != nil {
		id, err := h.requester.RequestRebuild(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to enqueue rebuild", "error", err)
			h.writeError(ctx, w, "QUEUE_ERROR", "failed to enqueue rebuild", http.StatusServiceUnavailable)
			return
		}
		h.writeJSON(ctx, w, http.StatusAccepted, map[string]string{
			"status":        "queued",
			"correlationId": id,
		})
		return
	}

	docs, err := h.loader.Load(ctx, h.corpusDir)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load corpus", "error", err, "dir", h.corpusDir)
		h.writeError(ctx, w, "CORPUS_ERROR", "failed to load corpus", http.StatusInternalServerError)
		return
	}

	stats, err := h.builder.BuildIndex(ctx, docs)
	if err != nil {
		slog.ErrorContext(ctx, "index build failed", "error", err)
		h.writeDomainError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, IndexResponse{
		Documents: stats.Documents,
		Chunks:    stats.Chunks,
		Dimension: stats.Dimension,
		Model:     stats.Model,
	})
}

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrIndexMissing):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	code := domain.Code(err)
	message := err.Error()
	if code == "" {
		code = "INTERNAL_ERROR"
		message = "internal error"
	}
	h.writeError(ctx, w, code, message, StatusFor(err))
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
