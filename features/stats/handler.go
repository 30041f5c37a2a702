package stats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"medrag/internal/domain"
	"medrag/internal/middleware"
	"medrag/internal/pipeline"
)

type IndexInspector interface {
	Stats(ctx context.Context) (*pipeline.IndexStats, error)
}

type Handler struct {
	index IndexInspector
}

func NewHandler(i IndexInspector) *Handler {
	return &Handler{index: i}
}

type StatsResponse struct {
	Built      bool   `json:"built"`
	Chunks     int    `json:"chunks"`
	Sources    int    `json:"sources"`
	Dimension  int    `json:"dimension"`
	Model      string `json:"model,omitempty"`
	Generation string `json:"generation,omitempty"`
}

// GetStats reports the serving snapshot. A missing index is not an error
// here; it is reported as built=false.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats")

	st, err := h.index.Stats(ctx)
	var resp StatsResponse
	switch {
	case err == nil:
		resp = StatsResponse{
			Built:      true,
			Chunks:     st.Chunks,
			Sources:    st.Sources,
			Dimension:  st.Dimension,
			Model:      st.Model,
			Generation: st.Generation,
		}
	case errors.Is(err, domain.ErrIndexMissing):
		resp = StatsResponse{Built: false}
	case errors.Is(err, domain.ErrIndexCorrupt):
		slog.ErrorContext(ctx, "index is corrupt", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, domain.ErrCodeIndexCorrupt, err.Error(), http.StatusInternalServerError)
		return
	default:
		slog.ErrorContext(ctx, "failed to read index stats", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to read index stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
