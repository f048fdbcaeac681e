// Banner generation endpoints:
//   - POST /v1/images/generate
//   - GET  /v1/images
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bannerly/internal/core"
	"bannerly/internal/generation"
	"bannerly/internal/types"
)

// BannerGenerator runs a generation batch end to end. Implemented by
// generation.Orchestrator.
type BannerGenerator interface {
	Generate(ctx context.Context, req generation.Request) ([]types.GeneratedImage, error)
}

// ImageLister is the subset of db.ImageRepository the handler needs.
type ImageLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]types.GeneratedImage, error)
}

// generateRequest is the payload for POST /v1/images/generate.
// Variant count, aspect ratio, and reference images are optional; an unset
// variant count generates a single banner.
type generateRequest struct {
	Text               string   `json:"text" validate:"required,max=500"`
	Theme              string   `json:"theme" validate:"max=200"`
	Details            string   `json:"details" validate:"max=1000"`
	VariantCount       int      `json:"variant_count"`
	AspectRatio        string   `json:"aspect_ratio" validate:"max=20"`
	ReferenceImageURLs []string `json:"reference_image_urls" validate:"max=5,dive,url"`
}

// imagesResponse wraps a list of generated images.
type imagesResponse struct {
	Images []types.GeneratedImage `json:"images"`
}

// ImagesHandler exposes banner generation and the image library.
type ImagesHandler struct {
	generator BannerGenerator
	images    ImageLister
	validator *core.Validator
	logger    *slog.Logger
}

// NewImagesHandler creates a new ImagesHandler.
func NewImagesHandler(generator BannerGenerator, images ImageLister, v *core.Validator, l *slog.Logger) *ImagesHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ImagesHandler{
		generator: generator,
		images:    images,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the image endpoints under the v1 router.
func (h *ImagesHandler) RegisterRoutes(r chi.Router) {
	r.Route("/images", func(r chi.Router) {
		r.Post("/generate", h.Generate)
		r.Get("/", h.List)
	})
}

// Generate handles POST /v1/images/generate.
// Credits are deducted up front; the batch succeeds or fails as a whole,
// with unproduced variants refunded on failure.
func (h *ImagesHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req generateRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.VariantCount == 0 {
		req.VariantCount = 1
	}

	images, err := h.generator.Generate(r.Context(), generation.Request{
		UserID:             userID,
		Text:               req.Text,
		Theme:              req.Theme,
		Details:            req.Details,
		VariantCount:       req.VariantCount,
		AspectRatio:        req.AspectRatio,
		ReferenceImageURLs: req.ReferenceImageURLs,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "banner batch generated",
		"user_id", userID,
		"variants", len(images),
	)
	core.Data(w, r, http.StatusCreated, imagesResponse{Images: images})
}

// List handles GET /v1/images.
// Returns the user's generated banners, newest first.
func (h *ImagesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > 100 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"limit must be a number between 1 and 100",
				nil,
			))
			return
		}
		limit = parsed
	}

	images, err := h.images.ListByUser(r.Context(), userID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if images == nil {
		images = []types.GeneratedImage{}
	}

	core.Data(w, r, http.StatusOK, imagesResponse{Images: images})
}
