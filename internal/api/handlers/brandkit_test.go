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
	"bannerly/internal/types"
)

type mockBrandKitStore struct {
	getFn func(ctx context.Context, userID string) (*types.BrandKit, error)

	upserted *types.BrandKit
}

func (m *mockBrandKitStore) Get(ctx context.Context, userID string) (*types.BrandKit, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundBrandKit, "brand kit not found", nil)
}

func (m *mockBrandKitStore) Upsert(ctx context.Context, k *types.BrandKit) error {
	m.upserted = k
	return nil
}

func newTestBrandKitHandler() (*BrandKitHandler, *mockBrandKitStore) {
	store := &mockBrandKitStore{}
	h := NewBrandKitHandler(store, core.NewValidator(slog.Default()), slog.Default())
	h.now = func() time.Time { return time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC) }
	return h, store
}

func TestGetBrandKitMissingReturnsEmptyKit(t *testing.T) {
	h, _ := newTestBrandKitHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodGet, "/brand-kit/", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusOK)
	var kit types.BrandKit
	decodeData(t, rec, &kit)
	assert.Equal(t, testUserID, kit.UserID)
	assert.Empty(t, kit.PrimaryColor)
}

func TestGetBrandKitReturnsStoredKit(t *testing.T) {
	h, store := newTestBrandKitHandler()
	store.getFn = func(ctx context.Context, userID string) (*types.BrandKit, error) {
		return &types.BrandKit{UserID: userID, PrimaryColor: "#FF5733"}, nil
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodGet, "/brand-kit/", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusOK)
	var kit types.BrandKit
	decodeData(t, rec, &kit)
	assert.Equal(t, "#FF5733", kit.PrimaryColor)
}

func TestPutBrandKitUpserts(t *testing.T) {
	h, store := newTestBrandKitHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodPut, "/brand-kit/",
		map[string]string{
			"logo_url":             "https://cdn.example.com/logo.png",
			"primary_color":        "#FF5733",
			"secondary_color":      "#112233",
			"business_description": "Artisanal coffee roaster",
		}, userContext(testUserID))

	requireStatus(t, rec, http.StatusOK)
	require.NotNil(t, store.upserted)
	assert.Equal(t, testUserID, store.upserted.UserID)
	assert.Equal(t, "#FF5733", store.upserted.PrimaryColor)
	assert.False(t, store.upserted.UpdatedAt.IsZero())
}

func TestPutBrandKitRejectsInvalidColor(t *testing.T) {
	h, store := newTestBrandKitHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodPut, "/brand-kit/",
		map[string]string{"primary_color": "reddish"}, userContext(testUserID))

	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, string(types.ErrCodeValidationInvalidColor), errorCode(t, rec))
	assert.Nil(t, store.upserted)
}

func TestPutBrandKitRejectsInvalidLogoURL(t *testing.T) {
	h, store := newTestBrandKitHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodPut, "/brand-kit/",
		map[string]string{"logo_url": "not a url"}, userContext(testUserID))

	requireStatus(t, rec, http.StatusBadRequest)
	assert.Nil(t, store.upserted)
}
