package core

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"bannerly/internal/types"
)

// Authenticator decouples the HTTP layer from the session token mechanism,
// allowing mocking in tests.
type Authenticator interface {
	// ResolveToken resolves a bearer token to the Actor it represents.
	//
	// Distinct error codes:
	//   - ErrCodeAuthTokenInvalid: malformed, not found, or revoked.
	//   - ErrCodeAuthTokenExpired: exists but past its expiry.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// authPublicPaths lists exact URL paths exempt from authentication.
var authPublicPaths = map[string]bool{
	"/health":         true,
	"/v1/auth/signup": true,
	"/v1/auth/login":  true,
}

// authPublicPrefixes lists path prefixes exempt from bearer authentication.
// Webhooks authenticate via payload signatures in their handlers.
var authPublicPrefixes = []string{
	"/webhooks/",
	"/internal/",            // guarded by RequireAdminKey instead
	"/v1/accounts/callback", // OAuth redirect from the social provider
}

// AuthMiddleware extracts the Bearer token from the Authorization header,
// resolves it to an Actor via the Authenticator, and injects the Actor into
// the request context. Returns 401 with distinct error codes on failure:
//
//   - auth_token_missing: no Authorization header or empty Bearer token.
//   - auth_token_invalid: malformed, not found, or revoked token.
//   - auth_token_expired: token exists but has expired.
//
// Passes through when no Authenticator is configured (tests) or for public
// paths.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		ctx := types.WithActor(r.Context(), *actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isPublicPath(path string) bool {
	if authPublicPaths[path] {
		return true
	}
	for _, prefix := range authPublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// extractBearerToken parses "Bearer <token>" (case-insensitive scheme per
// RFC 7235). Returns empty string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// handleAuthError maps Authenticator errors to 401 responses with the
// correct error code, logging internal details without leaking them.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthTokenExpired:
			s.Logger.Warn("authentication failed: token expired",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenExpired, "Authentication token has expired")
			return
		case types.ErrCodeAuthTokenInvalid:
			s.Logger.Warn("authentication failed: token invalid",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}
	}

	s.Logger.Error("authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, http.StatusUnauthorized, resp)
}

// RequireAdminKey returns middleware guarding operational endpoints (e.g. the
// scheduled-post trigger) with a constant-time comparison against the
// configured admin API key. The key arrives in the X-Admin-Key header.
func (s *Server) RequireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := s.Config.Auth.AdminAPIKey.Unmask()
		provided := r.Header.Get("X-Admin-Key")

		if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid admin credentials")
			return
		}

		ctx := types.WithActor(r.Context(), types.Actor{ID: "admin", Type: types.ActorTypeAdmin})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
