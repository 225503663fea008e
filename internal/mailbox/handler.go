package mailbox

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/welldanyogia/replydesk/backend/internal/api"
	"github.com/welldanyogia/replydesk/backend/internal/gateway"
)

// Error codes
const (
	CodeNoActiveAccount    = "NO_ACTIVE_ACCOUNT"
	CodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	CodeNotConfigured      = "SERVICE_NOT_CONFIGURED"
)

// Handler handles HTTP requests for mailbox reads
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

// Inbox handles GET /api/v1/emails?page=&page_size=
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return
	}

	page, okPage := queryInt(r, "page")
	pageSize, okSize := queryInt(r, "page_size")
	if !okPage || !okSize {
		details := map[string][]string{}
		if !okPage {
			details["page"] = []string{"page must be a non-negative integer"}
		}
		if !okSize {
			details["page_size"] = []string{"page_size must be a non-negative integer"}
		}
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid query parameters", details)
		return
	}

	list, err := h.service.Inbox(r.Context(), userID, page, pageSize)
	if err != nil {
		h.handleError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, list)
}

// Thread handles GET /api/v1/emails/thread/{threadId}
func (h *Handler) Thread(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return
	}

	threadID, err := url.PathUnescape(chi.URLParam(r, "threadId"))
	if err != nil || threadID == "" {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Thread ID is required", nil)
		return
	}

	messages, err := h.service.Thread(r.Context(), userID, threadID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"thread_id": threadID,
		"messages":  messages,
	})
}

// Content handles GET /api/v1/emails/content/{messageId}
func (h *Handler) Content(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return
	}

	contentID, err := url.PathUnescape(chi.URLParam(r, "messageId"))
	if err != nil || contentID == "" {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Message ID is required", nil)
		return
	}

	content, err := h.service.Content(r.Context(), userID, contentID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"html":         content.HTML,
		"text_content": content.Text,
	})
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoActiveAccount):
		api.WriteError(w, http.StatusBadRequest, CodeNoActiveAccount, "No active account found for user", nil)
	case errors.Is(err, gateway.ErrNotConfigured):
		api.WriteError(w, http.StatusServiceUnavailable, CodeNotConfigured, "Email service is not configured", nil)
	case errors.Is(err, gateway.ErrRequestFailed), errors.Is(err, gateway.ErrInvalidResponse),
		errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("Mail gateway read failed", "error", err)
		api.WriteError(w, http.StatusBadGateway, CodeGatewayUnavailable, "Failed to reach email service", nil)
	default:
		h.logger.Error("Unexpected mailbox error", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "An unexpected error occurred", nil)
	}
}

// queryInt reads an optional non-negative integer query parameter
func queryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// RegisterRoutes registers mailbox read routes under /emails.
// All routes require authentication via auth middleware.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware func(next http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/emails", handler.Inbox)
		r.Get("/emails/thread/{threadId}", handler.Thread)
		r.Get("/emails/content/{messageId}", handler.Content)
	})
}
