package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bannerly/internal/core"
	"bannerly/internal/external"
	"bannerly/internal/types"
)

type mockCheckoutService struct {
	createFn func(ctx context.Context, userID, email string, plan types.PlanTier, urls types.RedirectURLs) (string, error)
	verifyFn func(ctx context.Context, userID, sessionID string) (*external.CheckoutSessionInfo, error)
	planFn   func(ctx context.Context, userID string) (types.PlanTier, error)
}

func (m *mockCheckoutService) CreateCheckout(ctx context.Context, userID, email string, plan types.PlanTier, urls types.RedirectURLs) (string, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, email, plan, urls)
	}
	return "https://checkout.stripe.com/c/pay/cs_test", nil
}

func (m *mockCheckoutService) VerifyCheckout(ctx context.Context, userID, sessionID string) (*external.CheckoutSessionInfo, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, userID, sessionID)
	}
	return &external.CheckoutSessionInfo{ID: sessionID, PaymentStatus: "paid", Plan: types.PlanPro, UserID: userID}, nil
}

func (m *mockCheckoutService) CurrentPlan(ctx context.Context, userID string) (types.PlanTier, error) {
	if m.planFn != nil {
		return m.planFn(ctx, userID)
	}
	return types.PlanPro, nil
}

type mockBillingUserStore struct{}

func (mockBillingUserStore) GetByID(ctx context.Context, id string) (*types.User, error) {
	return &types.User{ID: id, Email: "buyer@example.com"}, nil
}

func newTestBillingHandler() (*BillingHandler, *mockCheckoutService) {
	svc := &mockCheckoutService{}
	h := NewBillingHandler(svc, mockBillingUserStore{}, core.NewValidator(slog.Default()), slog.Default())
	return h, svc
}

func TestCreateCheckoutSession(t *testing.T) {
	h, svc := newTestBillingHandler()
	var gotEmail string
	var gotPlan types.PlanTier
	svc.createFn = func(ctx context.Context, userID, email string, plan types.PlanTier, urls types.RedirectURLs) (string, error) {
		gotEmail = email
		gotPlan = plan
		return "https://checkout.stripe.com/c/pay/cs_test", nil
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/billing/checkout-session",
		map[string]string{
			"plan":        "pro",
			"success_url": "https://bannerly.app/billing/success",
			"cancel_url":  "https://bannerly.app/billing/cancel",
		}, userContext(testUserID))

	requireStatus(t, rec, http.StatusCreated)
	assert.Equal(t, "buyer@example.com", gotEmail)
	assert.Equal(t, types.PlanPro, gotPlan)

	var resp checkoutResponse
	decodeData(t, rec, &resp)
	assert.Contains(t, resp.URL, "checkout.stripe.com")
}

func TestCreateCheckoutRequiresRedirectURLs(t *testing.T) {
	h, _ := newTestBillingHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/billing/checkout-session",
		map[string]string{"plan": "pro"}, userContext(testUserID))

	requireStatus(t, rec, http.StatusBadRequest)
}

func TestCreateCheckoutUnknownPlanPassesThrough(t *testing.T) {
	h, svc := newTestBillingHandler()
	svc.createFn = func(ctx context.Context, userID, email string, plan types.PlanTier, urls types.RedirectURLs) (string, error) {
		return "", types.NewAppError(types.ErrCodeValidationInvalidPlan, "plan cannot be purchased", nil)
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/billing/checkout-session",
		map[string]string{
			"plan":        "platinum",
			"success_url": "https://bannerly.app/s",
			"cancel_url":  "https://bannerly.app/c",
		}, userContext(testUserID))

	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, string(types.ErrCodeValidationInvalidPlan), errorCode(t, rec))
}

func TestVerifyCheckout(t *testing.T) {
	h, _ := newTestBillingHandler()

	rec := doRequest(t, h.RegisterRoutes, http.MethodGet,
		"/billing/verify?session_id=cs_test_1", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusOK)
	var resp verifyResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "cs_test_1", resp.SessionID)
	assert.Equal(t, "paid", resp.PaymentStatus)
	assert.Equal(t, types.PlanPro, resp.CurrentPlan)
}

func TestVerifyCheckoutOtherUsersSession(t *testing.T) {
	h, svc := newTestBillingHandler()
	svc.verifyFn = func(ctx context.Context, userID, sessionID string) (*external.CheckoutSessionInfo, error) {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "checkout session does not belong to this user", nil)
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodGet,
		"/billing/verify?session_id=cs_other", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusNotFound)
}

func TestVerifyCheckoutDegradesWhenPlanLookupFails(t *testing.T) {
	h, svc := newTestBillingHandler()
	svc.planFn = func(ctx context.Context, userID string) (types.PlanTier, error) {
		return "", types.NewAppError(types.ErrCodeInternalDB, "db down", nil)
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodGet,
		"/billing/verify?session_id=cs_test_1", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusOK)
	var resp verifyResponse
	decodeData(t, rec, &resp)
	require.Equal(t, types.PlanFree, resp.CurrentPlan)
}
