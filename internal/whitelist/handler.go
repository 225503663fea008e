package whitelist

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/welldanyogia/replydesk/backend/internal/api"
)

// Error codes
const (
	CodeAlreadyWhitelisted = "ALREADY_WHITELISTED"
	CodeEntryNotFound      = "WHITELIST_ENTRY_NOT_FOUND"
)

// Handler handles HTTP requests for whitelist endpoints
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// List handles GET /api/v1/auto-reply/whitelist
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

// Add handles POST /api/v1/auto-reply/whitelist
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return
	}

	var req AddRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	entry, err := h.service.Add(r.Context(), userID, req.EmailAddress)
	if err != nil {
		h.handleError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusCreated, map[string]interface{}{
		"entry": entry,
	})
}

// Remove handles DELETE /api/v1/auto-reply/whitelist/{email}
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return
	}

	address, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid email address", nil)
		return
	}

	if err := h.service.Remove(r.Context(), userID, address); err != nil {
		h.handleError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "Email address removed from whitelist",
	})
}

// Clear handles DELETE /api/v1/auto-reply/whitelist
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return
	}

	n, err := h.service.Clear(r.Context(), userID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"removed": n,
	})
}

// handleError maps whitelist service errors to HTTP responses
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAddress):
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid email address", map[string][]string{
			"email_address": {"email_address must be a valid email address"},
		})
	case errors.Is(err, ErrAlreadyWhitelisted):
		api.WriteError(w, http.StatusConflict, CodeAlreadyWhitelisted, "Email address already in whitelist", nil)
	case errors.Is(err, ErrEntryNotFound):
		api.WriteError(w, http.StatusNotFound, CodeEntryNotFound, "Email address not found in whitelist", nil)
	default:
		h.logger.Error("Unexpected whitelist error", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "An unexpected error occurred", nil)
	}
}

// RegisterRoutes registers whitelist routes under /auto-reply/whitelist.
// All routes require authentication via auth middleware.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware func(next http.Handler) http.Handler) {
	r.Route("/auto-reply/whitelist", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/", handler.List)
		r.Post("/", handler.Add)
		r.Delete("/", handler.Clear)
		r.Delete("/{email}", handler.Remove)
	})
}
