package accounts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/welldanyogia/replydesk/backend/internal/api"
)

// Error codes
const (
	CodeCredentialNotFound = "CREDENTIAL_NOT_FOUND"
	CodeCredentialExists   = "CREDENTIAL_EXISTS"
	CodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
)

// LinkRequest is the body of POST /accounts
type LinkRequest struct {
	EmailAddress string `json:"email_address" validate:"required,email,max=254"`
	Password     string `json:"password" validate:"required_unless=Provider microsoft"`
	Provider     string `json:"provider" validate:"omitempty,max=50"`
	IMAPHost     string `json:"imap_host" validate:"omitempty,hostname_rfc1123"`
	IMAPPort     int    `json:"imap_port" validate:"omitempty,min=1,max=65535"`
	SMTPHost     string `json:"smtp_host" validate:"omitempty,hostname_rfc1123"`
	SMTPPort     int    `json:"smtp_port" validate:"omitempty,min=1,max=65535"`
}

// Handler handles HTTP requests for account endpoints
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

// List handles GET /api/v1/accounts
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return
	}

	creds, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"accounts": creds,
		"total":    len(creds),
	})
}

// Link handles POST /api/v1/accounts
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return
	}

	var req LinkRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Link(r.Context(), userID, LinkInput{
		EmailAddress: req.EmailAddress,
		Password:     req.Password,
		Provider:     req.Provider,
		IMAPHost:     req.IMAPHost,
		IMAPPort:     req.IMAPPort,
		SMTPHost:     req.SMTPHost,
		SMTPPort:     req.SMTPPort,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	data := map[string]interface{}{"account": result.Credential}
	if result.RedirectURL != "" {
		data["redirect_url"] = result.RedirectURL
	}
	api.WriteSuccess(w, http.StatusCreated, data)
}

// Get handles GET /api/v1/accounts/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	cred, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		h.handleError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"account": cred})
}

// Delete handles DELETE /api/v1/accounts/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		h.handleError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "Account removed",
	})
}

// Switch handles POST /api/v1/accounts/{id}/switch
func (h *Handler) Switch(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	cred, err := h.service.Switch(r.Context(), userID, id)
	if err != nil {
		h.handleError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"account": cred})
}

// ids extracts the authenticated user and the {id} path parameter
func (h *Handler) ids(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := api.UserID(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid account ID", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

// handleError maps account service errors to HTTP responses
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCredentialNotFound):
		api.WriteError(w, http.StatusNotFound, CodeCredentialNotFound, "Account not found", nil)
	case errors.Is(err, ErrForbidden):
		api.WriteError(w, http.StatusForbidden, api.CodeForbidden, "You do not have access to this account", nil)
	case errors.Is(err, ErrCredentialExists):
		api.WriteError(w, http.StatusConflict, CodeCredentialExists, "This email address is already linked", nil)
	case errors.Is(err, ErrGatewayFailed), errors.Is(err, ErrMissingRedirect):
		api.WriteError(w, http.StatusBadGateway, CodeGatewayUnavailable, "Failed to connect to email service", nil)
	default:
		h.logger.Error("Unexpected accounts error", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "An unexpected error occurred", nil)
	}
}

// RegisterRoutes registers account routes under /accounts.
// All routes require authentication via auth middleware.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware func(next http.Handler) http.Handler) {
	r.Route("/accounts", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/", handler.List)
		r.Post("/", handler.Link)
		r.Get("/{id}", handler.Get)
		r.Delete("/{id}", handler.Delete)
		r.Post("/{id}/switch", handler.Switch)
	})
}
