package billing

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bannerly/internal/external"
	"bannerly/internal/types"
)

type mockSubStore struct {
	mock.Mock
}

func (m *mockSubStore) Get(ctx context.Context, userID string) (*types.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Subscription), args.Error(1)
}

func (m *mockSubStore) Upsert(ctx context.Context, s *types.Subscription) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockSubStore) GetByProviderSubscriptionID(ctx context.Context, provider, providerSubID string) (*types.Subscription, error) {
	args := m.Called(ctx, provider, providerSubID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Subscription), args.Error(1)
}

type mockBillingLedger struct {
	mock.Mock
}

func (m *mockBillingLedger) Add(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error {
	args := m.Called(ctx, userID, amount, kind, description)
	return args.Error(0)
}

type mockCheckout struct {
	mock.Mock
}

func (m *mockCheckout) CreateCheckoutSession(ctx context.Context, userID, email string, plan types.PlanTier, urls types.RedirectURLs) (string, string, error) {
	args := m.Called(ctx, userID, email, plan, urls)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *mockCheckout) GetCheckoutSession(ctx context.Context, sessionID string) (*external.CheckoutSessionInfo, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*external.CheckoutSessionInfo), args.Error(1)
}

type mockEventStore struct {
	mock.Mock
}

func (m *mockEventStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	args := m.Called(ctx, provider, eventID)
	return args.Bool(0), args.Error(1)
}

func newTestService(subs SubscriptionStore, ledger Ledger, checkout external.BillingService) *Service {
	return NewService(subs, ledger, checkout, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func appErrCode(t *testing.T, err error) types.ErrorCode {
	t.Helper()
	appErr, ok := err.(*types.AppError)
	require.True(t, ok, "expected *types.AppError, got %T: %v", err, err)
	return appErr.Code
}

func TestCreateCheckoutSuccess(t *testing.T) {
	urls := types.RedirectURLs{Success: "https://app.example.com/ok", Cancel: "https://app.example.com/cancel"}

	checkout := new(mockCheckout)
	checkout.On("CreateCheckoutSession", mock.Anything, "user-1", "u@example.com", types.PlanPro, urls).
		Return("https://pay.example.com/cs_123", "cs_123", nil)

	svc := newTestService(new(mockSubStore), new(mockBillingLedger), checkout)
	url, err := svc.CreateCheckout(context.Background(), "user-1", "u@example.com", types.PlanPro, urls)

	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/cs_123", url)
	checkout.AssertExpectations(t)
}

func TestCreateCheckoutRejectsUnpurchasablePlans(t *testing.T) {
	checkout := new(mockCheckout)
	svc := newTestService(new(mockSubStore), new(mockBillingLedger), checkout)

	for _, plan := range []types.PlanTier{types.PlanFree, "platinum", ""} {
		_, err := svc.CreateCheckout(context.Background(), "user-1", "u@example.com", plan, types.RedirectURLs{})
		assert.Equal(t, types.ErrCodeValidationInvalidPlan, appErrCode(t, err), "plan %q", plan)
	}
	checkout.AssertNotCalled(t, "CreateCheckoutSession")
}

func TestVerifyCheckoutSuccess(t *testing.T) {
	completedAt := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	checkout := new(mockCheckout)
	checkout.On("GetCheckoutSession", mock.Anything, "cs_123").
		Return(&external.CheckoutSessionInfo{
			ID:            "cs_123",
			PaymentStatus: "paid",
			Plan:          types.PlanStarter,
			UserID:        "user-1",
			CompletedAt:   &completedAt,
		}, nil)

	svc := newTestService(new(mockSubStore), new(mockBillingLedger), checkout)
	info, err := svc.VerifyCheckout(context.Background(), "user-1", "cs_123")

	require.NoError(t, err)
	assert.Equal(t, "paid", info.PaymentStatus)
}

func TestVerifyCheckoutOtherUsersSessionIsNotFound(t *testing.T) {
	checkout := new(mockCheckout)
	checkout.On("GetCheckoutSession", mock.Anything, "cs_123").
		Return(&external.CheckoutSessionInfo{ID: "cs_123", UserID: "user-2"}, nil)

	svc := newTestService(new(mockSubStore), new(mockBillingLedger), checkout)
	_, err := svc.VerifyCheckout(context.Background(), "user-1", "cs_123")

	assert.Equal(t, types.ErrCodeNotFoundUser, appErrCode(t, err))
}

func TestVerifyCheckoutRequiresSessionID(t *testing.T) {
	svc := newTestService(new(mockSubStore), new(mockBillingLedger), new(mockCheckout))
	_, err := svc.VerifyCheckout(context.Background(), "user-1", "")

	assert.Equal(t, types.ErrCodeValidationMissingField, appErrCode(t, err))
}

func TestApplyCreditGrantUpsertsThenGrants(t *testing.T) {
	periodEnd := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	subs := new(mockSubStore)
	subs.On("Upsert", mock.Anything, mock.MatchedBy(func(s *types.Subscription) bool {
		return s.UserID == "user-1" &&
			s.Provider == ProviderStripe &&
			s.Plan == types.PlanPro &&
			s.Status == types.SubStatusActive
	})).Return(nil)

	ledger := new(mockBillingLedger)
	ledger.On("Add", mock.Anything, "user-1", 200, types.TxKindSubscription, "monthly credit grant: pro plan (stripe)").
		Return(nil)

	svc := newTestService(subs, ledger, new(mockCheckout))
	err := svc.ApplyCreditGrant(context.Background(), CreditGrant{
		Provider:               ProviderStripe,
		UserID:                 "user-1",
		Plan:                   types.PlanPro,
		ProviderSubscriptionID: "sub_1",
		PeriodEnd:              &periodEnd,
	})

	require.NoError(t, err)
	subs.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestApplyCreditGrantSkipsZeroCreditPlans(t *testing.T) {
	subs := new(mockSubStore)
	subs.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	ledger := new(mockBillingLedger)

	svc := newTestService(subs, ledger, new(mockCheckout))
	err := svc.ApplyCreditGrant(context.Background(), CreditGrant{
		Provider: ProviderPaddle,
		UserID:   "user-1",
		Plan:     types.PlanFree,
	})

	require.NoError(t, err)
	ledger.AssertNotCalled(t, "Add")
}

func TestApplyCreditGrantRequiresUser(t *testing.T) {
	subs := new(mockSubStore)
	ledger := new(mockBillingLedger)

	svc := newTestService(subs, ledger, new(mockCheckout))
	err := svc.ApplyCreditGrant(context.Background(), CreditGrant{Provider: ProviderStripe, Plan: types.PlanPro})

	assert.Equal(t, types.ErrCodeValidationMissingField, appErrCode(t, err))
	subs.AssertNotCalled(t, "Upsert")
	ledger.AssertNotCalled(t, "Add")
}

func TestApplyCreditGrantStopsWhenUpsertFails(t *testing.T) {
	subs := new(mockSubStore)
	subs.On("Upsert", mock.Anything, mock.Anything).
		Return(types.NewAppError(types.ErrCodeInternalDB, "db down", nil))
	ledger := new(mockBillingLedger)

	svc := newTestService(subs, ledger, new(mockCheckout))
	err := svc.ApplyCreditGrant(context.Background(), CreditGrant{
		Provider: ProviderStripe,
		UserID:   "user-1",
		Plan:     types.PlanPro,
	})

	assert.Equal(t, types.ErrCodeInternalDB, appErrCode(t, err))
	ledger.AssertNotCalled(t, "Add")
}

func TestApplySubscriptionStatusWithUserReference(t *testing.T) {
	subs := new(mockSubStore)
	subs.On("Upsert", mock.Anything, mock.MatchedBy(func(s *types.Subscription) bool {
		return s.UserID == "user-1" && s.Status == types.SubStatusCanceled
	})).Return(nil)

	svc := newTestService(subs, new(mockBillingLedger), new(mockCheckout))
	err := svc.ApplySubscriptionStatus(context.Background(), StatusChange{
		Provider:               ProviderStripe,
		UserID:                 "user-1",
		ProviderSubscriptionID: "sub_1",
		Status:                 types.SubStatusCanceled,
		Plan:                   types.PlanPro,
	})

	require.NoError(t, err)
	subs.AssertExpectations(t)
}

func TestApplySubscriptionStatusResolvesUserFromSubscriptionID(t *testing.T) {
	subs := new(mockSubStore)
	subs.On("GetByProviderSubscriptionID", mock.Anything, ProviderPaddle, "sub_9").
		Return(&types.Subscription{
			UserID:                 "user-7",
			Provider:               ProviderPaddle,
			ProviderSubscriptionID: "sub_9",
			Plan:                   types.PlanStarter,
			Status:                 types.SubStatusActive,
		}, nil)
	subs.On("Upsert", mock.Anything, mock.MatchedBy(func(s *types.Subscription) bool {
		return s.UserID == "user-7" &&
			s.Plan == types.PlanStarter &&
			s.Status == types.SubStatusPastDue
	})).Return(nil)

	svc := newTestService(subs, new(mockBillingLedger), new(mockCheckout))
	err := svc.ApplySubscriptionStatus(context.Background(), StatusChange{
		Provider:               ProviderPaddle,
		ProviderSubscriptionID: "sub_9",
		Status:                 types.SubStatusPastDue,
	})

	require.NoError(t, err)
	subs.AssertExpectations(t)
}

func TestApplySubscriptionStatusDropsUnknownSubscription(t *testing.T) {
	subs := new(mockSubStore)
	subs.On("GetByProviderSubscriptionID", mock.Anything, ProviderStripe, "sub_unknown").
		Return(nil, nil)

	svc := newTestService(subs, new(mockBillingLedger), new(mockCheckout))
	err := svc.ApplySubscriptionStatus(context.Background(), StatusChange{
		Provider:               ProviderStripe,
		ProviderSubscriptionID: "sub_unknown",
		Status:                 types.SubStatusCanceled,
	})

	require.NoError(t, err)
	subs.AssertNotCalled(t, "Upsert")
}

func TestCurrentPlan(t *testing.T) {
	cases := []struct {
		name string
		sub  *types.Subscription
		want types.PlanTier
	}{
		{"no subscription", nil, types.PlanFree},
		{"active pro", &types.Subscription{Plan: types.PlanPro, Status: types.SubStatusActive}, types.PlanPro},
		{"canceled pro", &types.Subscription{Plan: types.PlanPro, Status: types.SubStatusCanceled}, types.PlanFree},
		{"past due starter", &types.Subscription{Plan: types.PlanStarter, Status: types.SubStatusPastDue}, types.PlanFree},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subs := new(mockSubStore)
			subs.On("Get", mock.Anything, "user-1").Return(tc.sub, nil)

			svc := newTestService(subs, new(mockBillingLedger), new(mockCheckout))
			plan, err := svc.CurrentPlan(context.Background(), "user-1")

			require.NoError(t, err)
			assert.Equal(t, tc.want, plan)
		})
	}
}

func newTestServiceWithEvents(events ProcessedEventStore) *Service {
	return NewService(new(mockSubStore), new(mockBillingLedger), new(mockCheckout), events, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDedupeEventClaimsFreshID(t *testing.T) {
	events := new(mockEventStore)
	events.On("MarkProcessed", mock.Anything, ProviderStripe, "evt_1").Return(true, nil)

	svc := newTestServiceWithEvents(events)
	fresh, err := svc.DedupeEvent(context.Background(), ProviderStripe, "evt_1")

	require.NoError(t, err)
	assert.True(t, fresh)
	events.AssertExpectations(t)
}

func TestDedupeEventDetectsReplay(t *testing.T) {
	events := new(mockEventStore)
	events.On("MarkProcessed", mock.Anything, ProviderPaddle, "ntf_1").Return(false, nil)

	svc := newTestServiceWithEvents(events)
	fresh, err := svc.DedupeEvent(context.Background(), ProviderPaddle, "ntf_1")

	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestDedupeEventPassesThroughWithoutID(t *testing.T) {
	events := new(mockEventStore)

	svc := newTestServiceWithEvents(events)
	fresh, err := svc.DedupeEvent(context.Background(), ProviderStripe, "")

	require.NoError(t, err)
	assert.True(t, fresh)
	events.AssertNotCalled(t, "MarkProcessed")
}

func TestDedupeEventStoreError(t *testing.T) {
	events := new(mockEventStore)
	events.On("MarkProcessed", mock.Anything, ProviderStripe, "evt_1").
		Return(false, types.NewAppError(types.ErrCodeInternalDB, "db down", nil))

	svc := newTestServiceWithEvents(events)
	_, err := svc.DedupeEvent(context.Background(), ProviderStripe, "evt_1")

	assert.Error(t, err)
}
