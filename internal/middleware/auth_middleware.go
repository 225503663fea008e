// Package middleware provides HTTP middleware for the backend API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/welldanyogia/replydesk/backend/internal/api"
	"github.com/welldanyogia/replydesk/backend/internal/auth"
	appctx "github.com/welldanyogia/replydesk/backend/internal/context"
)

// CodeTokenMissing is returned when no Authorization header is sent
const CodeTokenMissing = "AUTH_TOKEN_MISSING"

// TokenValidator validates bearer access tokens
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*auth.Claims, error)
}

// AuthMiddleware handles JWT authentication for protected routes
type AuthMiddleware struct {
	tokens TokenValidator
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate is a middleware that validates JWT tokens from the Authorization header
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			api.WriteError(w, http.StatusUnauthorized, CodeTokenMissing, "Authorization header is required", nil)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			api.WriteError(w, http.StatusUnauthorized, api.CodeTokenInvalid, "Invalid authorization header format", nil)
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			api.WriteError(w, http.StatusUnauthorized, api.CodeTokenInvalid, "Token is empty", nil)
			return
		}

		claims, err := m.tokens.ValidateAccessToken(tokenString)
		if err != nil {
			api.WriteError(w, http.StatusUnauthorized, api.CodeTokenInvalid, "Invalid or expired token", nil)
			return
		}

		ctx := appctx.WithUser(r.Context(), claims.UserID(), claims.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractUserID extracts the user ID from the request context
func ExtractUserID(ctx context.Context) (string, bool) {
	return appctx.ExtractUserID(ctx)
}

// ExtractEmail extracts the email from the request context
func ExtractEmail(ctx context.Context) (string, bool) {
	return appctx.ExtractEmail(ctx)
}
