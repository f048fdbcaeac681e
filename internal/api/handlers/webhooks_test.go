package handlers

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bannerly/internal/billing"
	"bannerly/internal/types"
)

type mockVerifier struct {
	err      error
	verified bool
}

func (m *mockVerifier) Verify(payload []byte, header string, secret string) error {
	m.verified = true
	return m.err
}

type mockBillingProcessor struct {
	dedupeFn func(ctx context.Context, provider, eventID string) (bool, error)
	grantFn  func(ctx context.Context, grant billing.CreditGrant) error
	statusFn func(ctx context.Context, change billing.StatusChange) error

	dedupes  []string
	grants   []billing.CreditGrant
	statuses []billing.StatusChange
}

func (m *mockBillingProcessor) DedupeEvent(ctx context.Context, provider, eventID string) (bool, error) {
	m.dedupes = append(m.dedupes, provider+"/"+eventID)
	if m.dedupeFn != nil {
		return m.dedupeFn(ctx, provider, eventID)
	}
	return true, nil
}

func (m *mockBillingProcessor) ApplyCreditGrant(ctx context.Context, grant billing.CreditGrant) error {
	m.grants = append(m.grants, grant)
	if m.grantFn != nil {
		return m.grantFn(ctx, grant)
	}
	return nil
}

func (m *mockBillingProcessor) ApplySubscriptionStatus(ctx context.Context, change billing.StatusChange) error {
	m.statuses = append(m.statuses, change)
	if m.statusFn != nil {
		return m.statusFn(ctx, change)
	}
	return nil
}

// postWebhook delivers a raw payload with a signature header through a chi
// router, bypassing the JSON helpers since webhook bodies must stay verbatim.
func postWebhook(t *testing.T, register func(chi.Router), path, headerName, headerValue string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	if headerValue != "" {
		req.Header.Set(headerName, headerValue)
	}

	r := chi.NewRouter()
	register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// --- Stripe ---

func newTestStripeHandler() (*StripeWebhookHandler, *mockVerifier, *mockBillingProcessor) {
	verifier := &mockVerifier{}
	processor := &mockBillingProcessor{}
	h := NewStripeWebhookHandler(verifier, processor, "whsec_test", slog.Default())
	return h, verifier, processor
}

func TestStripeWebhookRejectsInvalidSignature(t *testing.T) {
	h, verifier, processor := newTestStripeHandler()
	verifier.err = errors.New("signature mismatch")

	rec := postWebhook(t, h.RegisterRoutes, "/stripe", "Stripe-Signature", "t=1,v1=bad",
		[]byte(`{"id":"evt_1","type":"checkout.session.completed"}`))

	requireStatus(t, rec, http.StatusUnauthorized)
	assert.Empty(t, processor.grants, "no mutation before signature verification")
	assert.Empty(t, processor.statuses)
}

func TestStripeWebhookRejectsMissingSignatureHeader(t *testing.T) {
	h, verifier, processor := newTestStripeHandler()

	rec := postWebhook(t, h.RegisterRoutes, "/stripe", "Stripe-Signature", "",
		[]byte(`{"id":"evt_1","type":"checkout.session.completed"}`))

	requireStatus(t, rec, http.StatusUnauthorized)
	assert.False(t, verifier.verified)
	assert.Empty(t, processor.grants)
}

func TestStripeWebhookUnconfiguredSecret(t *testing.T) {
	verifier := &mockVerifier{}
	processor := &mockBillingProcessor{}
	h := NewStripeWebhookHandler(verifier, processor, "", slog.Default())

	rec := postWebhook(t, h.RegisterRoutes, "/stripe", "Stripe-Signature", "t=1,v1=x",
		[]byte(`{"id":"evt_1","type":"checkout.session.completed"}`))

	requireStatus(t, rec, http.StatusInternalServerError)
	assert.Equal(t, string(types.ErrCodeInternalNotConfigured), errorCode(t, rec))
	assert.Empty(t, processor.grants)
}

func TestStripeCheckoutCompletedGrantsCredits(t *testing.T) {
	h, _, processor := newTestStripeHandler()

	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"client_reference_id": "user-123",
			"subscription": "sub_42",
			"metadata": {"plan": "pro"}
		}}
	}`)

	rec := postWebhook(t, h.RegisterRoutes, "/stripe", "Stripe-Signature", "t=1,v1=ok", payload)

	requireStatus(t, rec, http.StatusOK)
	require.Len(t, processor.grants, 1)
	grant := processor.grants[0]
	assert.Equal(t, billing.ProviderStripe, grant.Provider)
	assert.Equal(t, "user-123", grant.UserID)
	assert.Equal(t, types.PlanPro, grant.Plan)
	assert.Equal(t, "sub_42", grant.ProviderSubscriptionID)
}

func TestStripeInvoicePaidGrantsRenewalCredits(t *testing.T) {
	h, _, processor := newTestStripeHandler()

	payload := []byte(`{
		"id": "evt_2",
		"type": "invoice.paid",
		"data": {"object": {
			"subscription": "sub_42",
			"period_end": 1767225600,
			"subscription_details": {"metadata": {"user_id": "user-123", "plan": "starter"}}
		}}
	}`)

	rec := postWebhook(t, h.RegisterRoutes, "/stripe", "Stripe-Signature", "t=1,v1=ok", payload)

	requireStatus(t, rec, http.StatusOK)
	require.Len(t, processor.grants, 1)
	grant := processor.grants[0]
	assert.Equal(t, "user-123", grant.UserID)
	assert.Equal(t, types.PlanStarter, grant.Plan)
	require.NotNil(t, grant.PeriodEnd)
	assert.Equal(t, int64(1767225600), grant.PeriodEnd.Unix())
}

func TestStripeSubscriptionDeletedCancels(t *testing.T) {
	h, _, processor := newTestStripeHandler()

	payload := []byte(`{
		"id": "evt_3",
		"type": "customer.subscription.deleted",
		"data": {"object": {
			"id": "sub_42",
			"status": "canceled",
			"metadata": {"user_id": "user-123"}
		}}
	}`)

	rec := postWebhook(t, h.RegisterRoutes, "/stripe", "Stripe-Signature", "t=1,v1=ok", payload)

	requireStatus(t, rec, http.StatusOK)
	require.Len(t, processor.statuses, 1)
	change := processor.statuses[0]
	assert.Equal(t, types.SubStatusCanceled, change.Status)
	assert.Equal(t, types.PlanFree, change.Plan)
	assert.Equal(t, "sub_42", change.ProviderSubscriptionID)
}

func TestStripeProcessingFailureStillAcks(t *testing.T) {
	h, _, processor := newTestStripeHandler()
	processor.grantFn = func(ctx context.Context, grant billing.CreditGrant) error {
		return types.NewAppError(types.ErrCodeInternalDB, "db down", nil)
	}

	payload := []byte(`{
		"id": "evt_4",
		"type": "checkout.session.completed",
		"data": {"object": {"client_reference_id": "user-123", "metadata": {"plan": "pro"}}}
	}`)

	rec := postWebhook(t, h.RegisterRoutes, "/stripe", "Stripe-Signature", "t=1,v1=ok", payload)

	// 200 after a valid signature, or the provider retries forever.
	requireStatus(t, rec, http.StatusOK)
}

func TestStripeDuplicateEventAckedWithoutReprocessing(t *testing.T) {
	h, _, processor := newTestStripeHandler()
	processor.dedupeFn = func(ctx context.Context, provider, eventID string) (bool, error) {
		return false, nil
	}

	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"client_reference_id": "user-123", "metadata": {"plan": "pro"}}}
	}`)

	rec := postWebhook(t, h.RegisterRoutes, "/stripe", "Stripe-Signature", "t=1,v1=ok", payload)

	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, []string{"stripe/evt_1"}, processor.dedupes)
	assert.Empty(t, processor.grants, "replayed event must not grant credits again")
	assert.Empty(t, processor.statuses)
}

func TestStripeDedupFailureAcksWithoutProcessing(t *testing.T) {
	h, _, processor := newTestStripeHandler()
	processor.dedupeFn = func(ctx context.Context, provider, eventID string) (bool, error) {
		return false, types.NewAppError(types.ErrCodeInternalDB, "db down", nil)
	}

	rec := postWebhook(t, h.RegisterRoutes, "/stripe", "Stripe-Signature", "t=1,v1=ok",
		[]byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`))

	requireStatus(t, rec, http.StatusOK)
	assert.Empty(t, processor.grants)
}

func TestStripeIgnoresUnhandledEventTypes(t *testing.T) {
	h, _, processor := newTestStripeHandler()

	rec := postWebhook(t, h.RegisterRoutes, "/stripe", "Stripe-Signature", "t=1,v1=ok",
		[]byte(`{"id":"evt_5","type":"charge.refunded","data":{"object":{}}}`))

	requireStatus(t, rec, http.StatusOK)
	assert.Empty(t, processor.grants)
	assert.Empty(t, processor.statuses)
}

// --- Paddle ---

func newTestPaddleHandler() (*PaddleWebhookHandler, *mockVerifier, *mockBillingProcessor) {
	verifier := &mockVerifier{}
	processor := &mockBillingProcessor{}
	h := NewPaddleWebhookHandler(verifier, processor, "pdl_secret", slog.Default())
	return h, verifier, processor
}

func TestPaddleTransactionCompletedGrantsCredits(t *testing.T) {
	h, _, processor := newTestPaddleHandler()

	payload := []byte(`{
		"event_id": "ntf_1",
		"event_type": "transaction.completed",
		"data": {
			"id": "txn_9",
			"subscription_id": "psub_7",
			"custom_data": {"user_id": "user-123", "plan": "agency"}
		}
	}`)

	rec := postWebhook(t, h.RegisterRoutes, "/paddle", "Paddle-Signature", "ts=1;h1=ok", payload)

	requireStatus(t, rec, http.StatusOK)
	require.Len(t, processor.grants, 1)
	grant := processor.grants[0]
	assert.Equal(t, billing.ProviderPaddle, grant.Provider)
	assert.Equal(t, "user-123", grant.UserID)
	assert.Equal(t, types.PlanAgency, grant.Plan)
	assert.Equal(t, "psub_7", grant.ProviderSubscriptionID)
}

func TestPaddleSubscriptionUpdatedMapsStatus(t *testing.T) {
	h, _, processor := newTestPaddleHandler()

	payload := []byte(`{
		"event_id": "ntf_2",
		"event_type": "subscription.updated",
		"data": {
			"id": "psub_7",
			"status": "past_due",
			"custom_data": {"user_id": "user-123", "plan": "pro"},
			"current_billing_period": {"ends_at": "2026-05-01T00:00:00Z"}
		}
	}`)

	rec := postWebhook(t, h.RegisterRoutes, "/paddle", "Paddle-Signature", "ts=1;h1=ok", payload)

	requireStatus(t, rec, http.StatusOK)
	require.Len(t, processor.statuses, 1)
	change := processor.statuses[0]
	assert.Equal(t, types.SubStatusPastDue, change.Status)
	require.NotNil(t, change.PeriodEnd)
	assert.Equal(t, "2026-05-01T00:00:00Z", change.PeriodEnd.Format("2006-01-02T15:04:05Z07:00"))
}

func TestPaddleWebhookRejectsInvalidSignature(t *testing.T) {
	h, verifier, processor := newTestPaddleHandler()
	verifier.err = errors.New("signature mismatch")

	rec := postWebhook(t, h.RegisterRoutes, "/paddle", "Paddle-Signature", "ts=1;h1=bad",
		[]byte(`{"event_id":"ntf_3","event_type":"transaction.completed","data":{}}`))

	requireStatus(t, rec, http.StatusUnauthorized)
	assert.Empty(t, processor.grants)
}

func TestPaddleSubscriptionCanceled(t *testing.T) {
	h, _, processor := newTestPaddleHandler()

	payload := []byte(`{
		"event_id": "ntf_4",
		"event_type": "subscription.canceled",
		"data": {"id": "psub_7", "status": "canceled", "custom_data": {"user_id": "user-123"}}
	}`)

	rec := postWebhook(t, h.RegisterRoutes, "/paddle", "Paddle-Signature", "ts=1;h1=ok", payload)

	requireStatus(t, rec, http.StatusOK)
	require.Len(t, processor.statuses, 1)
	assert.Equal(t, types.SubStatusCanceled, processor.statuses[0].Status)
	assert.Equal(t, types.PlanFree, processor.statuses[0].Plan)
}

func TestPaddleDuplicateEventAckedWithoutReprocessing(t *testing.T) {
	h, _, processor := newTestPaddleHandler()
	processor.dedupeFn = func(ctx context.Context, provider, eventID string) (bool, error) {
		return false, nil
	}

	payload := []byte(`{
		"event_id": "ntf_1",
		"event_type": "transaction.completed",
		"data": {"id": "txn_9", "custom_data": {"user_id": "user-123", "plan": "agency"}}
	}`)

	rec := postWebhook(t, h.RegisterRoutes, "/paddle", "Paddle-Signature", "ts=1;h1=ok", payload)

	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, []string{"paddle/ntf_1"}, processor.dedupes)
	assert.Empty(t, processor.grants, "replayed event must not grant credits again")
}
