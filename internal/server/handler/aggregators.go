package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

// AggregatorDirectory defines the methods that the aggregator handler
// requires from the service layer.
type AggregatorDirectory interface {
	Aggregators() []domain.ProviderMeta
	RefreshAggregators(ctx context.Context) ([]domain.ProviderMeta, error)
}

// AggregatorHandler serves the provider directory.
type AggregatorHandler struct {
	dir    AggregatorDirectory
	logger *slog.Logger
}

// NewAggregatorHandler creates an AggregatorHandler.
func NewAggregatorHandler(dir AggregatorDirectory, logger *slog.Logger) *AggregatorHandler {
	return &AggregatorHandler{
		dir:    dir,
		logger: logHandler(logger, "aggregators"),
	}
}

type listAggregatorsResponse struct {
	Aggregators []domain.ProviderMeta `json:"aggregators"`
}

// ListAggregators returns the loaded directory.
// GET /api/aggregators
func (h *AggregatorHandler) ListAggregators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listAggregatorsResponse{Aggregators: h.dir.Aggregators()})
}

// Refresh reloads the directory from the upstream endpoint.
// POST /api/aggregators/refresh
func (h *AggregatorHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	metas, err := h.dir.RefreshAggregators(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "aggregator directory is not configured")
			return
		}
		h.logger.ErrorContext(r.Context(), "refresh aggregators failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to refresh aggregators")
		return
	}
	writeJSON(w, http.StatusOK, listAggregatorsResponse{Aggregators: metas})
}
