package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/metaquote/internal/domain"
	"github.com/alanyoungcy/metaquote/internal/projection"
)

// QuoteReader defines the methods that the quote handler requires from the
// service layer.
type QuoteReader interface {
	View() projection.View
	History(ctx context.Context, opts domain.ListOpts) ([]domain.QuoteObservation, error)
}

// QuoteHandler serves the collaborator view of the quote stream.
type QuoteHandler struct {
	quotes QuoteReader
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler with the given service and logger.
func NewQuoteHandler(quotes QuoteReader, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		quotes: quotes,
		logger: logHandler(logger, "quotes"),
	}
}

// listHistoryResponse wraps the audit trail response.
type listHistoryResponse struct {
	Quotes []domain.QuoteObservation `json:"quotes"`
}

// GetView returns connection status, best quotes and the latest quote.
// GET /api/quotes
func (h *QuoteHandler) GetView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.quotes.View())
}

// GetLatest returns the most recently received quote.
// GET /api/quotes/latest
func (h *QuoteHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	v := h.quotes.View()
	if v.LatestQuote == nil {
		writeError(w, http.StatusNotFound, "no quotes received")
		return
	}
	writeJSON(w, http.StatusOK, v.LatestQuote)
}

// GetHistory returns recorded quotes for the current stream, newest first.
// GET /api/quotes/history?limit=50&offset=0&since=...&until=...
func (h *QuoteHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}

	obs, err := h.quotes.History(r.Context(), opts)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "quote history is not enabled")
			return
		}
		h.logger.ErrorContext(r.Context(), "list quote history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list quote history")
		return
	}

	if obs == nil {
		obs = []domain.QuoteObservation{}
	}
	writeJSON(w, http.StatusOK, listHistoryResponse{Quotes: obs})
}
