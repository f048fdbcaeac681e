package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bannerly/internal/core"
	"bannerly/internal/scheduler"
	"bannerly/internal/types"
)

type mockPostStore struct {
	createFn     func(ctx context.Context, p *types.ScheduledPost) error
	getByIDFn    func(ctx context.Context, id, userID string) (*types.ScheduledPost, error)
	listByUserFn func(ctx context.Context, userID string, status types.PostStatus, limit int) ([]types.ScheduledPost, error)
	deleteFn     func(ctx context.Context, id, userID string) error

	createdPost *types.ScheduledPost
}

func (m *mockPostStore) Create(ctx context.Context, p *types.ScheduledPost) error {
	m.createdPost = p
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	return nil
}

func (m *mockPostStore) GetByID(ctx context.Context, id, userID string) (*types.ScheduledPost, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id, userID)
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundPost, "not found", nil)
}

func (m *mockPostStore) ListByUser(ctx context.Context, userID string, status types.PostStatus, limit int) ([]types.ScheduledPost, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID, status, limit)
	}
	return nil, nil
}

func (m *mockPostStore) Delete(ctx context.Context, id, userID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, userID)
	}
	return nil
}

type mockPostImageStore struct {
	getByIDFn func(ctx context.Context, id, userID string) (*types.GeneratedImage, error)
}

func (m *mockPostImageStore) GetByID(ctx context.Context, id, userID string) (*types.GeneratedImage, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id, userID)
	}
	return &types.GeneratedImage{ID: id, UserID: userID, ImageURL: "https://cdn.example.com/a.png"}, nil
}

type mockSchedulingLedger struct {
	deductFn func(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error
	refundFn func(ctx context.Context, userID string, amount int, description string) error

	deductedAmount int
	deductedKind   types.TransactionKind
	refunded       int
}

func (m *mockSchedulingLedger) Deduct(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error {
	m.deductedAmount = amount
	m.deductedKind = kind
	if m.deductFn != nil {
		return m.deductFn(ctx, userID, amount, kind, description)
	}
	return nil
}

func (m *mockSchedulingLedger) Refund(ctx context.Context, userID string, amount int, description string) error {
	m.refunded += amount
	if m.refundFn != nil {
		return m.refundFn(ctx, userID, amount, description)
	}
	return nil
}

type mockStatusChecker struct {
	checkFn func(ctx context.Context, postID, userID string) (*scheduler.StatusReport, error)
}

func (m *mockStatusChecker) CheckStatus(ctx context.Context, postID, userID string) (*scheduler.StatusReport, error) {
	if m.checkFn != nil {
		return m.checkFn(ctx, postID, userID)
	}
	return &scheduler.StatusReport{Post: &types.ScheduledPost{ID: postID, Status: types.PostStatusPending}}, nil
}

type mockNudger struct {
	enabled bool
	err     error

	nudgedPostID string
	nudgeCount   int
}

func (m *mockNudger) Enabled() bool { return m.enabled }

func (m *mockNudger) TriggerProcessing(ctx context.Context, postID string, scheduledFor time.Time, reason string) error {
	m.nudgedPostID = postID
	m.nudgeCount++
	return m.err
}

var postsNow = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func newTestPostsHandler() (*PostsHandler, *mockPostStore, *mockSchedulingLedger, *mockNudger) {
	posts := &mockPostStore{}
	ledger := &mockSchedulingLedger{}
	nudger := &mockNudger{enabled: true}
	h := NewPostsHandler(posts, &mockPostImageStore{}, ledger, &mockStatusChecker{}, nudger,
		core.NewValidator(slog.Default()), slog.Default())
	h.now = func() time.Time { return postsNow }
	return h, posts, ledger, nudger
}

func createBody(scheduledFor time.Time, platforms ...string) map[string]any {
	return map[string]any{
		"image_id":      "img-1",
		"caption":       "Spring sale!",
		"scheduled_for": scheduledFor.Format(time.RFC3339),
		"platforms":     platforms,
	}
}

func TestCreatePostChargesAndPersists(t *testing.T) {
	h, posts, ledger, _ := newTestPostsHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/posts",
		createBody(postsNow.Add(24*time.Hour), "Instagram", "tiktok"), userContext(testUserID))

	requireStatus(t, rec, http.StatusCreated)
	assert.Equal(t, types.SchedulePostCost, ledger.deductedAmount)
	assert.Equal(t, types.TxKindScheduling, ledger.deductedKind)

	require.NotNil(t, posts.createdPost)
	assert.Equal(t, types.PostStatusPending, posts.createdPost.Status)
	assert.Equal(t, []string{"instagram", "tiktok"}, posts.createdPost.Platforms)
	assert.Equal(t, testUserID, posts.createdPost.UserID)
	assert.NotEmpty(t, posts.createdPost.ID)
}

func TestCreatePostRejectsPastSchedule(t *testing.T) {
	h, posts, ledger, _ := newTestPostsHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/posts",
		createBody(postsNow.Add(-time.Minute), "instagram"), userContext(testUserID))

	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, string(types.ErrCodeValidationScheduleInPast), errorCode(t, rec))
	assert.Zero(t, ledger.deductedAmount, "no charge on rejected input")
	assert.Nil(t, posts.createdPost)
}

func TestCreatePostRejectsUnknownPlatform(t *testing.T) {
	h, _, ledger, _ := newTestPostsHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/posts",
		createBody(postsNow.Add(time.Hour), "myspace"), userContext(testUserID))

	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, string(types.ErrCodeValidationInvalidPlatform), errorCode(t, rec))
	assert.Zero(t, ledger.deductedAmount)
}

func TestCreatePostInsufficientCredits(t *testing.T) {
	h, posts, ledger, _ := newTestPostsHandler()
	ledger.deductFn = func(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error {
		return types.NewAppError(types.ErrCodeValidationInsufficientCredits, "insufficient credits", nil)
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/posts",
		createBody(postsNow.Add(time.Hour), "instagram"), userContext(testUserID))

	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, string(types.ErrCodeValidationInsufficientCredits), errorCode(t, rec))
	assert.Nil(t, posts.createdPost, "nothing persisted when the charge fails")
}

func TestCreatePostRefundsWhenInsertFails(t *testing.T) {
	h, posts, ledger, _ := newTestPostsHandler()
	posts.createFn = func(ctx context.Context, p *types.ScheduledPost) error {
		return types.NewAppError(types.ErrCodeInternalDB, "insert failed", nil)
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/posts",
		createBody(postsNow.Add(time.Hour), "instagram"), userContext(testUserID))

	requireStatus(t, rec, http.StatusInternalServerError)
	assert.Equal(t, types.SchedulePostCost, ledger.refunded)
}

func TestCreatePostNudgesWorkerWhenDueSoon(t *testing.T) {
	h, posts, _, nudger := newTestPostsHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/posts",
		createBody(postsNow.Add(30*time.Second), "instagram"), userContext(testUserID))

	requireStatus(t, rec, http.StatusCreated)
	assert.Equal(t, 1, nudger.nudgeCount)
	assert.Equal(t, posts.createdPost.ID, nudger.nudgedPostID)
}

func TestCreatePostSkipsNudgeForFarSchedule(t *testing.T) {
	h, _, _, nudger := newTestPostsHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/posts",
		createBody(postsNow.Add(3*time.Hour), "instagram"), userContext(testUserID))

	requireStatus(t, rec, http.StatusCreated)
	assert.Zero(t, nudger.nudgeCount)
}

func TestCreatePostSucceedsWhenNudgeFails(t *testing.T) {
	h, _, _, nudger := newTestPostsHandler()
	nudger.err = types.NewAppError(types.ErrCodeUpstreamUnavailable, "sqs down", nil)

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/posts",
		createBody(postsNow.Add(time.Minute), "instagram"), userContext(testUserID))

	// A lost nudge only delays publication until the cron tick.
	requireStatus(t, rec, http.StatusCreated)
}

func TestListPostsRejectsUnknownStatus(t *testing.T) {
	h, _, _, _ := newTestPostsHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodGet, "/posts?status=draft", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusBadRequest)
}

func TestListPostsFiltersByStatus(t *testing.T) {
	h, posts, _, _ := newTestPostsHandler()
	var gotStatus types.PostStatus
	posts.listByUserFn = func(ctx context.Context, userID string, status types.PostStatus, limit int) ([]types.ScheduledPost, error) {
		gotStatus = status
		return []types.ScheduledPost{{ID: "post-1", Status: status}}, nil
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodGet, "/posts?status=pending", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, types.PostStatusPending, gotStatus)

	var resp postsResponse
	decodeData(t, rec, &resp)
	require.Len(t, resp.Posts, 1)
}

func TestDeletePostRefundsSchedulingCost(t *testing.T) {
	h, _, ledger, _ := newTestPostsHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodDelete, "/posts/post-1", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusNoContent)
	assert.Equal(t, types.SchedulePostCost, ledger.refunded)
}

func TestDeleteTerminalPostConflicts(t *testing.T) {
	h, posts, ledger, _ := newTestPostsHandler()
	posts.deleteFn = func(ctx context.Context, id, userID string) error {
		return types.NewAppError(types.ErrCodeConflictPostNotPending, "only pending posts can be deleted", nil)
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodDelete, "/posts/post-1", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusConflict)
	assert.Zero(t, ledger.refunded, "no refund when nothing was deleted")
}

func TestPostStatusEndpoint(t *testing.T) {
	h, _, _, _ := newTestPostsHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodGet, "/posts/post-9/status", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusOK)
	var report scheduler.StatusReport
	decodeData(t, rec, &report)
	require.NotNil(t, report.Post)
	assert.Equal(t, "post-9", report.Post.ID)
}
