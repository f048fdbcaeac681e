// Package handlers contains the HTTP handler implementations for the
// Bannerly API. Each handler declares narrow interfaces over the services
// and repositories it depends on, keeping the HTTP layer mockable.
//
// This file covers the authentication surface:
//   - POST   /v1/auth/signup
//   - POST   /v1/auth/login
//   - POST   /v1/auth/logout
//   - DELETE /v1/users/me
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"bannerly/internal/core"
	"bannerly/internal/types"
)

// AuthService is the subset of auth.Service the handler needs.
type AuthService interface {
	Signup(ctx context.Context, email, password string) (*types.User, string, error)
	Login(ctx context.Context, email, password string) (*types.User, string, error)
	Logout(ctx context.Context, token string) error
	DeleteAccount(ctx context.Context, userID string) error
}

// signupRequest is the payload for POST /v1/auth/signup and /v1/auth/login.
type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// userDTO is the public representation of a user.
type userDTO struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// authResponse carries the session token alongside the user record.
type authResponse struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

// AuthHandler manages signup, login, logout, and account deletion.
type AuthHandler struct {
	auth      AuthService
	validator *core.Validator
	logger    *slog.Logger

	// signupLimit throttles account creation per source IP. Nil disables
	// throttling (tests).
	signupLimit func(http.Handler) http.Handler
}

// NewAuthHandler creates a new AuthHandler with the provided dependencies.
func NewAuthHandler(auth AuthService, v *core.Validator, signupLimit func(http.Handler) http.Handler, l *slog.Logger) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuthHandler{
		auth:        auth,
		validator:   v,
		logger:      l,
		signupLimit: signupLimit,
	}
}

// RegisterRoutes mounts the authentication endpoints under the v1 router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		if h.signupLimit != nil {
			r.With(h.signupLimit).Post("/signup", h.Signup)
		} else {
			r.Post("/signup", h.Signup)
		}
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})
	r.Delete("/users/me", h.DeleteMe)
}

// Signup handles POST /v1/auth/signup.
// Creates the account, grants signup credits, and opens a session.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, token, err := h.auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "user signed up", "user_id", user.ID)
	core.Data(w, r, http.StatusCreated, authResponse{Token: token, User: toUserDTO(user)})
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	// Only presence matters on login; password policy is enforced at signup.
	if req.Email == "" || req.Password == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"email and password are required",
			nil,
		))
		return
	}

	user, token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, authResponse{Token: token, User: toUserDTO(user)})
}

// Logout handles POST /v1/auth/logout.
// Revokes the presented session token. Idempotent: revoking an unknown
// token still returns 204.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"Bearer token is required",
			nil,
		))
		return
	}

	if err := h.auth.Logout(r.Context(), token); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteMe handles DELETE /v1/users/me.
// Removes the account and all dependent rows (cascade in the schema), and
// revokes every session.
func (h *AuthHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"authentication required",
			nil,
		))
		return
	}

	if err := h.auth.DeleteAccount(r.Context(), userID); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "account deleted", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

func toUserDTO(u *types.User) userDTO {
	return userDTO{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, or "" when absent or malformed.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
