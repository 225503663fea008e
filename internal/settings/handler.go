// Package settings exposes the global auto-reply toggle over HTTP.
package settings

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/welldanyogia/replydesk/backend/internal/api"
)

// Store reads and writes the global toggle
type Store interface {
	AutoReplyEnabled(ctx context.Context) (bool, error)
	SetAutoReplyEnabled(ctx context.Context, enabled bool) error
}

// ToggleRequest is the body of POST /auto-reply/toggle
type ToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// Handler handles the toggle endpoints
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(store Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Get handles GET /api/v1/auto-reply/toggle
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.store.AutoReplyEnabled(r.Context())
	if err != nil {
		h.logger.Error("Failed to read auto-reply toggle", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "An unexpected error occurred", nil)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"enabled": enabled})
}

// Set handles POST /api/v1/auto-reply/toggle
func (h *Handler) Set(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return
	}

	var req ToggleRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.store.SetAutoReplyEnabled(r.Context(), *req.Enabled); err != nil {
		h.logger.Error("Failed to persist auto-reply toggle", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "An unexpected error occurred", nil)
		return
	}

	h.logger.Info("Global auto-reply toggled",
		slog.String("user_id", userID.String()),
		slog.Bool("enabled", *req.Enabled),
	)
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"enabled": *req.Enabled})
}

// RegisterRoutes registers the toggle routes. All routes require authentication.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware func(next http.Handler) http.Handler) {
	r.Route("/auto-reply/toggle", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/", handler.Get)
		r.Post("/", handler.Set)
	})
}
