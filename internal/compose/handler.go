package compose

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/welldanyogia/replydesk/backend/internal/api"
	"github.com/welldanyogia/replydesk/backend/internal/autoreply"
	"github.com/welldanyogia/replydesk/backend/internal/completion"
	"github.com/welldanyogia/replydesk/backend/internal/gateway"
)

// Error codes
const (
	CodeNoActiveAccount     = "NO_ACTIVE_ACCOUNT"
	CodeThreadNotFound      = "THREAD_NOT_FOUND"
	CodeNoRecipient         = "NO_RECIPIENT"
	CodeGenerationFailed    = "GENERATION_FAILED"
	CodeSendRejected        = "SEND_REJECTED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeNotConfigured       = "SERVICE_NOT_CONFIGURED"
)

// GenerateRequest is the body of POST /auto-reply/generate
type GenerateRequest struct {
	ThreadID string `json:"thread_id" validate:"required,max=512"`
}

// ReplyRequest is the body of POST /replies
type ReplyRequest struct {
	ThreadID string `json:"thread_id" validate:"required,max=512"`
	Text     string `json:"text" validate:"max=20000"`
}

// SendRequest is the body of POST /send
type SendRequest struct {
	Emails  []string `json:"emails" validate:"required,min=1,max=50,dive,email"`
	Subject string   `json:"subject" validate:"required,min=3,max=120"`
	Brief   string   `json:"brief" validate:"required,min=10,max=4000"`
	Format  string   `json:"format" validate:"omitempty,oneof=formal casual friendly concise"`
	Action  string   `json:"action" validate:"omitempty,oneof=preview send"`
}

// Handler handles HTTP requests for drafting and sending
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

// Generate handles POST /api/v1/auto-reply/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return
	}

	var req GenerateRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	reply, err := h.service.GenerateReply(r.Context(), userID, req.ThreadID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, reply)
}

// Reply handles POST /api/v1/replies
func (h *Handler) Reply(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return
	}

	var req ReplyRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	sent, err := h.service.SendReply(r.Context(), userID, ReplyInput{ThreadID: req.ThreadID, Text: req.Text})
	if err != nil {
		h.handleError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusCreated, sent)
}

// Send handles POST /api/v1/send
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return
	}

	var req SendRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Compose(r.Context(), userID, ComposeInput{
		Emails:  req.Emails,
		Subject: req.Subject,
		Brief:   req.Brief,
		Format:  req.Format,
		Action:  req.Action,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	if req.Action == ActionPreview {
		api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"preview": result.Message})
		return
	}
	api.WriteSuccess(w, http.StatusOK, result)
}

// handleError maps compose service errors to HTTP responses
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoActiveAccount):
		api.WriteError(w, http.StatusBadRequest, CodeNoActiveAccount, "No active account found for user", nil)
	case errors.Is(err, ErrThreadNotFound):
		api.WriteError(w, http.StatusNotFound, CodeThreadNotFound, "No messages found in thread", nil)
	case errors.Is(err, ErrNoRecipient):
		api.WriteError(w, http.StatusUnprocessableEntity, CodeNoRecipient, "The latest message in this thread has no sender to reply to", nil)
	case errors.Is(err, ErrGenerationFailed):
		api.WriteError(w, http.StatusBadGateway, CodeGenerationFailed, "Failed to generate email", nil)
	case errors.Is(err, ErrSendRejected):
		api.WriteError(w, http.StatusBadGateway, CodeSendRejected, "The email service rejected the message", nil)
	case errors.Is(err, completion.ErrNotConfigured), errors.Is(err, gateway.ErrNotConfigured):
		api.WriteError(w, http.StatusServiceUnavailable, CodeNotConfigured, "Email drafting is not configured", nil)
	case errors.Is(err, gateway.ErrRequestFailed), errors.Is(err, gateway.ErrInvalidResponse),
		errors.Is(err, completion.ErrAPICallFailed), errors.Is(err, autoreply.ErrSubmitUncertain),
		errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("Upstream call failed", "error", err)
		api.WriteError(w, http.StatusBadGateway, CodeUpstreamUnavailable, "Email service unavailable", nil)
	default:
		h.logger.Error("Unexpected compose error", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "An unexpected error occurred", nil)
	}
}

// RegisterRoutes registers drafting and sending routes.
// All routes require authentication via auth middleware.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware func(next http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Post("/auto-reply/generate", handler.Generate)
		r.Post("/replies", handler.Reply)
		r.Post("/send", handler.Send)
	})
}
