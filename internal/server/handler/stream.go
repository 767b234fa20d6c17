package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/metaquote/internal/domain"
	"github.com/alanyoungcy/metaquote/internal/stream"
)

// StreamController defines the methods that the stream handler requires from
// the service layer.
type StreamController interface {
	Status() stream.Status
	Enable(ctx context.Context, p domain.StreamParameters) error
	Reconnect(ctx context.Context) error
	Disable()
	Events(ctx context.Context, opts domain.ListOpts) ([]domain.StreamEvent, error)
}

// StreamHandler serves subscription control endpoints.
type StreamHandler struct {
	stream StreamController
	logger *slog.Logger
}

// NewStreamHandler creates a StreamHandler with the given service and logger.
func NewStreamHandler(ctrl StreamController, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		stream: ctrl,
		logger: logHandler(logger, "stream"),
	}
}

// streamRequest is the body of PUT /api/stream. Addresses are hex strings.
type streamRequest struct {
	ChainID     int64    `json:"chainId"`
	TokenIn     string   `json:"tokenIn"`
	TokenOut    string   `json:"tokenOut"`
	Amount      string   `json:"amount"`
	To          string   `json:"to,omitempty"`
	MaxSlippage string   `json:"maxSlippage,omitempty"`
	Aggregators []string `json:"aggregators,omitempty"`
}

func (req streamRequest) params() (domain.StreamParameters, error) {
	in, err := domain.ParseAddress(req.TokenIn)
	if err != nil {
		return domain.StreamParameters{}, err
	}
	out, err := domain.ParseAddress(req.TokenOut)
	if err != nil {
		return domain.StreamParameters{}, err
	}
	p := domain.StreamParameters{
		ChainID:     req.ChainID,
		TokenIn:     in,
		TokenOut:    out,
		Amount:      req.Amount,
		MaxSlippage: req.MaxSlippage,
		Aggregators: req.Aggregators,
	}
	if req.To != "" {
		to, err := domain.ParseAddress(req.To)
		if err != nil {
			return domain.StreamParameters{}, err
		}
		p.Recipient = &to
	}
	return p, p.Validate()
}

type listEventsResponse struct {
	Events []domain.StreamEvent `json:"events"`
}

// GetStream returns the session status.
// GET /api/stream
func (h *StreamHandler) GetStream(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stream.Status())
}

// PutStream enables the subscription. Parameters equal to the current ones
// keep the open subscription; different ones replace it.
// PUT /api/stream
func (h *StreamHandler) PutStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p, err := req.params()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.stream.Enable(r.Context(), p); err != nil {
		if errors.Is(err, domain.ErrInvalidParams) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "enable stream failed",
			slog.Int64("chain_id", p.ChainID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to open quote stream")
		return
	}

	writeJSON(w, http.StatusOK, h.stream.Status())
}

// Reconnect reopens the current subscription.
// POST /api/stream/reconnect
func (h *StreamHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.stream.Reconnect(r.Context()); err != nil {
		if errors.Is(err, domain.ErrInvalidParams) {
			writeError(w, http.StatusConflict, "stream was never enabled")
			return
		}
		h.logger.ErrorContext(r.Context(), "reconnect stream failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to reopen quote stream")
		return
	}
	writeJSON(w, http.StatusOK, h.stream.Status())
}

// DeleteStream disables the subscription and clears all quotes.
// DELETE /api/stream
func (h *StreamHandler) DeleteStream(w http.ResponseWriter, r *http.Request) {
	h.stream.Disable()
	writeJSON(w, http.StatusOK, h.stream.Status())
}

// ListEvents returns stream lifecycle events, newest first.
// GET /api/stream/events?limit=50&offset=0&since=...&until=...
func (h *StreamHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}

	evs, err := h.stream.Events(r.Context(), opts)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "stream event log is not enabled")
			return
		}
		h.logger.ErrorContext(r.Context(), "list stream events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list stream events")
		return
	}

	if evs == nil {
		evs = []domain.StreamEvent{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: evs})
}
