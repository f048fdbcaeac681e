// Brand kit endpoints:
//   - GET /v1/brand-kit
//   - PUT /v1/brand-kit
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bannerly/internal/core"
	"bannerly/internal/types"
)

// BrandKitStore is the subset of db.BrandRepository the handler needs.
type BrandKitStore interface {
	Get(ctx context.Context, userID string) (*types.BrandKit, error)
	Upsert(ctx context.Context, k *types.BrandKit) error
}

// brandKitRequest is the payload for PUT /v1/brand-kit. All fields are
// optional; an empty field clears the stored value.
type brandKitRequest struct {
	LogoURL             string `json:"logo_url" validate:"omitempty,url"`
	PrimaryColor        string `json:"primary_color" validate:"omitempty,hexcolor"`
	SecondaryColor      string `json:"secondary_color" validate:"omitempty,hexcolor"`
	BusinessDescription string `json:"business_description" validate:"max=1000"`
}

// BrandKitHandler exposes the user's stored visual identity.
type BrandKitHandler struct {
	store     BrandKitStore
	validator *core.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewBrandKitHandler creates a new BrandKitHandler.
func NewBrandKitHandler(store BrandKitStore, v *core.Validator, l *slog.Logger) *BrandKitHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BrandKitHandler{
		store:     store,
		validator: v,
		logger:    l,
		now:       time.Now,
	}
}

// RegisterRoutes mounts the brand-kit endpoints under the v1 router.
func (h *BrandKitHandler) RegisterRoutes(r chi.Router) {
	r.Route("/brand-kit", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Put)
	})
}

// Get handles GET /v1/brand-kit.
// A user with no stored kit receives an empty kit rather than a 404, since
// the kit exists implicitly for every user.
func (h *BrandKitHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	kit, err := h.store.Get(r.Context(), userID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundBrandKit {
			core.Data(w, r, http.StatusOK, types.BrandKit{UserID: userID})
			return
		}
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, kit)
}

// Put handles PUT /v1/brand-kit.
// Full replace: the request body becomes the stored kit.
func (h *BrandKitHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req brandKitRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	kit := &types.BrandKit{
		UserID:              userID,
		LogoURL:             req.LogoURL,
		PrimaryColor:        req.PrimaryColor,
		SecondaryColor:      req.SecondaryColor,
		BusinessDescription: req.BusinessDescription,
		UpdatedAt:           h.now().UTC(),
	}

	if err := h.store.Upsert(r.Context(), kit); err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, kit)
}
