// Scheduled-post endpoints:
//   - POST   /v1/posts
//   - GET    /v1/posts
//   - GET    /v1/posts/{id}
//   - GET    /v1/posts/{id}/status
//   - DELETE /v1/posts/{id}
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bannerly/internal/core"
	"bannerly/internal/scheduler"
	"bannerly/internal/types"
)

// nudgeWindow bounds how close a post's scheduled time must be for the API
// to wake the post worker immediately instead of waiting for its cron tick.
const nudgeWindow = 2 * time.Minute

// PostStore is the subset of db.PostRepository the handler needs.
type PostStore interface {
	Create(ctx context.Context, p *types.ScheduledPost) error
	GetByID(ctx context.Context, id, userID string) (*types.ScheduledPost, error)
	ListByUser(ctx context.Context, userID string, status types.PostStatus, limit int) ([]types.ScheduledPost, error)
	Delete(ctx context.Context, id, userID string) error
}

// PostImageStore verifies that a referenced image exists and is owned by
// the scheduling user.
type PostImageStore interface {
	GetByID(ctx context.Context, id, userID string) (*types.GeneratedImage, error)
}

// SchedulingLedger charges for post scheduling.
type SchedulingLedger interface {
	Deduct(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error
	Refund(ctx context.Context, userID string, amount int, description string) error
}

// StatusChecker reconciles a post against the posting provider. Implemented
// by scheduler.Processor.
type StatusChecker interface {
	CheckStatus(ctx context.Context, postID, userID string) (*scheduler.StatusReport, error)
}

// WorkerNudger wakes the post worker for near-due posts. Implemented by
// queue.PostTrigger; nil or disabled means the worker's cron is the only
// trigger.
type WorkerNudger interface {
	Enabled() bool
	TriggerProcessing(ctx context.Context, postID string, scheduledFor time.Time, reason string) error
}

// createPostRequest is the payload for POST /v1/posts.
type createPostRequest struct {
	ImageID        string          `json:"image_id" validate:"required"`
	Caption        string          `json:"caption" validate:"max=2200"`
	ScheduledFor   time.Time       `json:"scheduled_for" validate:"required"`
	Platforms      []string        `json:"platforms" validate:"required,min=1,max=6"`
	TikTokMetadata json.RawMessage `json:"tiktok_metadata,omitempty"`
}

// postsResponse wraps a list of scheduled posts.
type postsResponse struct {
	Posts []types.ScheduledPost `json:"posts"`
}

// PostsHandler manages the scheduled-post lifecycle on the API side. The
// actual publication happens in the scheduler package.
type PostsHandler struct {
	posts     PostStore
	images    PostImageStore
	ledger    SchedulingLedger
	status    StatusChecker
	nudger    WorkerNudger
	validator *core.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewPostsHandler creates a new PostsHandler with the provided dependencies.
func NewPostsHandler(
	posts PostStore,
	images PostImageStore,
	ledger SchedulingLedger,
	status StatusChecker,
	nudger WorkerNudger,
	v *core.Validator,
	l *slog.Logger,
) *PostsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PostsHandler{
		posts:     posts,
		images:    images,
		ledger:    ledger,
		status:    status,
		nudger:    nudger,
		validator: v,
		logger:    l,
		now:       time.Now,
	}
}

// RegisterRoutes mounts the post endpoints under the v1 router.
func (h *PostsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/posts", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Get("/{id}/status", h.Status)
		r.Delete("/{id}", h.Delete)
	})
}

// Create handles POST /v1/posts.
//
// Validates the payload (future schedule time, known platforms, owned
// image), charges the scheduling cost, and inserts the post as pending.
// When the post is due within the nudge window the worker is woken
// immediately; otherwise its cron tick picks the post up.
func (h *PostsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req createPostRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	now := h.now().UTC()
	if !req.ScheduledFor.After(now) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationScheduleInPast,
			"scheduled_for must be in the future",
			nil,
		))
		return
	}

	platforms, err := normalizePlatforms(req.Platforms)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	// Ownership check before charging.
	if _, err := h.images.GetByID(r.Context(), req.ImageID, userID); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.ledger.Deduct(r.Context(), userID, types.SchedulePostCost,
		types.TxKindScheduling, "post scheduling"); err != nil {
		core.Error(w, r, err)
		return
	}

	post := &types.ScheduledPost{
		ID:             uuid.NewString(),
		UserID:         userID,
		ImageID:        req.ImageID,
		Caption:        req.Caption,
		ScheduledFor:   req.ScheduledFor.UTC(),
		Platforms:      platforms,
		Status:         types.PostStatusPending,
		TikTokMetadata: req.TikTokMetadata,
		CreatedAt:      now,
	}

	if err := h.posts.Create(r.Context(), post); err != nil {
		// The charge landed but the post did not; give the credits back.
		if refundErr := h.ledger.Refund(r.Context(), userID, types.SchedulePostCost,
			"post scheduling failed"); refundErr != nil {
			h.logger.ErrorContext(r.Context(), "refund after failed post insert failed",
				"user_id", userID,
				"error", refundErr,
			)
		}
		core.Error(w, r, err)
		return
	}

	h.maybeNudgeWorker(r.Context(), post, now)

	core.Data(w, r, http.StatusCreated, post)
}

// maybeNudgeWorker sends a best-effort wake-up when the post is due soon.
// A failed nudge only delays publication until the worker's next cron tick.
func (h *PostsHandler) maybeNudgeWorker(ctx context.Context, post *types.ScheduledPost, now time.Time) {
	if h.nudger == nil || !h.nudger.Enabled() {
		return
	}
	if post.ScheduledFor.After(now.Add(nudgeWindow)) {
		return
	}
	if err := h.nudger.TriggerProcessing(ctx, post.ID, post.ScheduledFor, "near_due_schedule"); err != nil {
		h.logger.WarnContext(ctx, "post worker nudge failed",
			"post_id", post.ID,
			"error", err,
		)
	}
}

// List handles GET /v1/posts.
// An optional status query parameter filters the result.
func (h *PostsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var status types.PostStatus
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status = types.PostStatus(statusStr)
		switch status {
		case types.PostStatusPending, types.PostStatusPosted, types.PostStatusFailed:
		default:
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"status must be one of: pending, posted, failed",
				nil,
			))
			return
		}
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

	posts, err := h.posts.ListByUser(r.Context(), userID, status, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if posts == nil {
		posts = []types.ScheduledPost{}
	}

	core.Data(w, r, http.StatusOK, postsResponse{Posts: posts})
}

// Get handles GET /v1/posts/{id}.
func (h *PostsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	post, err := h.posts.GetByID(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, post)
}

// Status handles GET /v1/posts/{id}/status.
// Combines local state with the provider's view when the post has been
// handed off to the provider.
func (h *PostsHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	report, err := h.status.CheckStatus(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, report)
}

// Delete handles DELETE /v1/posts/{id}.
// Only pending posts can be deleted; terminal posts are immutable history.
// Deleting refunds the scheduling cost.
func (h *PostsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	postID := chi.URLParam(r, "id")
	if err := h.posts.Delete(r.Context(), postID, userID); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.ledger.Refund(r.Context(), userID, types.SchedulePostCost, "scheduled post canceled"); err != nil {
		h.logger.ErrorContext(r.Context(), "refund after post deletion failed",
			"user_id", userID,
			"post_id", postID,
			"error", err,
		)
	}

	w.WriteHeader(http.StatusNoContent)
}

// normalizePlatforms lowercases and validates the requested platform names.
func normalizePlatforms(raw []string) ([]string, error) {
	normalized := make([]string, 0, len(raw))
	for _, name := range raw {
		p := types.NormalizePlatform(name)
		if !types.ValidPlatform(p) {
			return nil, types.NewAppError(
				types.ErrCodeValidationInvalidPlatform,
				fmt.Sprintf("unsupported platform %q", name),
				nil,
			)
		}
		normalized = append(normalized, string(p))
	}
	return normalized, nil
}
