// Package sentmail serves the outbound mail ledger over HTTP.
package sentmail

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/welldanyogia/replydesk/backend/internal/api"
	"github.com/welldanyogia/replydesk/backend/internal/repository"
)

// CodeSentMailNotFound is returned when no ledger record matches
const CodeSentMailNotFound = "SENT_MAIL_NOT_FOUND"

// Store reads the ledger
type Store interface {
	List(ctx context.Context, params repository.ListSentMailParams) ([]repository.SentMail, error)
	GetByMessageID(ctx context.Context, messageID string) (*repository.SentMail, error)
}

// Handler handles ledger browsing endpoints
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

// List handles GET /api/v1/emails/sent
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := api.UserID(w, r); !ok {
		return
	}

	params, details := parseListParams(r.URL.Query())
	if details != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid query parameters", details)
		return
	}

	mails, err := h.store.List(r.Context(), params)
	if err != nil {
		h.logger.Error("Failed to list sent mail", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "An unexpected error occurred", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"emails": mails,
		"total":  len(mails),
		"limit":  params.Limit,
	})
}

// Get handles GET /api/v1/emails/sent/{messageId}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := api.UserID(w, r); !ok {
		return
	}

	messageID, err := url.PathUnescape(chi.URLParam(r, "messageId"))
	if err != nil || messageID == "" {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid message ID", nil)
		return
	}

	mail, err := h.store.GetByMessageID(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, repository.ErrSentMailNotFound) {
			api.WriteError(w, http.StatusNotFound, CodeSentMailNotFound, "Sent mail not found", nil)
			return
		}
		h.logger.Error("Failed to get sent mail", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "An unexpected error occurred", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"email": mail})
}

// parseListParams reads the ledger filters; details is non-nil when a filter is invalid
func parseListParams(q url.Values) (repository.ListSentMailParams, map[string][]string) {
	params := repository.ListSentMailParams{
		ThreadID: q.Get("thread_id"),
		Limit:    repository.DefaultSentMailLimit,
	}
	details := make(map[string][]string)

	if v := q.Get("type"); v != "" {
		switch t := repository.SentMailType(v); t {
		case repository.SentMailTypeSent, repository.SentMailTypeAutoReply, repository.SentMailTypeManualReply:
			params.Type = t
		default:
			details["type"] = []string{"type must be one of: sent auto-reply manual-reply"}
		}
	}

	if v := q.Get("status"); v != "" {
		if s := repository.SentMailStatus(v); s.Valid() {
			params.Status = s
		} else {
			details["status"] = []string{"status must be one of: sent delivered opened failed"}
		}
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			details["limit"] = []string{"limit must be an integer"}
		} else {
			params.Limit = repository.ClampSentMailLimit(n)
		}
	}

	if len(details) > 0 {
		return params, details
	}
	return params, nil
}

// RegisterRoutes registers ledger routes under /emails/sent.
// All routes require authentication via auth middleware.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware func(next http.Handler) http.Handler) {
	r.Route("/emails/sent", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/", handler.List)
		r.Get("/{messageId}", handler.Get)
	})
}
