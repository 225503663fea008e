package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/welldanyogia/replydesk/backend/internal/logger"
)

// maxPayloadBytes bounds a webhook body
const maxPayloadBytes = 5 << 20

// Handler is the HTTP entry point for gateway webhooks
type Handler struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewHandler creates a new Handler
func NewHandler(dispatcher *Dispatcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{dispatcher: dispatcher, logger: logger}
}

// Receive handles POST /webhooks/emailengine.
// It always answers 200 so the gateway never retries a delivery we have seen.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
		ctx = logger.SetCorrelationID(ctx, reqID)
	}

	result := ack
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Panic while handling webhook", slog.String("panic", fmt.Sprint(rec)))
			result = ack
		}
		writeResult(w, result)
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", slog.String("error", err.Error()))
		return
	}

	ev, err := ParseEvent(body)
	if err != nil {
		h.logger.Warn("Ignoring malformed webhook body", slog.String("error", err.Error()))
		return
	}

	result = h.dispatcher.Dispatch(ctx, ev)
}

func writeResult(w http.ResponseWriter, result Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// RegisterRoutes registers the webhook endpoint. Gateways authenticate by
// network placement, not bearer tokens, so no auth middleware is applied.
func RegisterRoutes(r chi.Router, handler *Handler) {
	r.Route("/webhooks", func(r chi.Router) {
		// POST /api/v1/webhooks/emailengine - Gateway event notifications
		r.Post("/emailengine", handler.Receive)
	})
}
