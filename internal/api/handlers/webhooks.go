// Payment webhook endpoints:
//   - POST /webhooks/stripe
//   - POST /webhooks/paddle
//
// Neither endpoint is behind bearer auth -- they are called directly by the
// payment providers. Security is provided by verifying the provider's
// signature header over the raw payload. Nothing touches the database until
// the signature verifies.
//
// Both handlers reduce provider events to the provider-agnostic
// billing.CreditGrant / billing.StatusChange cores, so grant and status
// semantics live in exactly one place.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bannerly/internal/billing"
	"bannerly/internal/core"
	"bannerly/internal/external"
	"bannerly/internal/types"
)

// maxWebhookBodySize is the maximum allowed webhook payload (64 KB).
// Provider payloads are typically small; this limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// BillingProcessor is the subset of billing.Service the webhook handlers
// need.
type BillingProcessor interface {
	DedupeEvent(ctx context.Context, provider, eventID string) (bool, error)
	ApplyCreditGrant(ctx context.Context, grant billing.CreditGrant) error
	ApplySubscriptionStatus(ctx context.Context, change billing.StatusChange) error
}

// readVerifiedPayload reads the size-capped body and checks the provider
// signature. Any non-nil error has already been written to the response.
func readVerifiedPayload(
	w http.ResponseWriter,
	r *http.Request,
	verifier external.WebhookVerifier,
	headerName, secret string,
	logger *slog.Logger,
) ([]byte, error) {
	if secret == "" {
		logger.ErrorContext(r.Context(), "webhook secret not configured", "header", headerName)
		err := types.NewAppError(types.ErrCodeInternalNotConfigured, "webhook processing is not configured", nil)
		core.Error(w, r, err)
		return nil, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		appErr := types.NewAppError(types.ErrCodeValidationMissingField, "failed to read request body", err)
		core.Error(w, r, appErr)
		return nil, appErr
	}

	sigHeader := r.Header.Get(headerName)
	if sigHeader == "" {
		logger.WarnContext(r.Context(), "missing webhook signature header", "header", headerName)
		appErr := types.NewAppError(types.ErrCodeAuthTokenMissing,
			fmt.Sprintf("missing %s header", headerName), nil)
		core.Error(w, r, appErr)
		return nil, appErr
	}

	if err := verifier.Verify(payload, sigHeader, secret); err != nil {
		logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		appErr := types.NewAppError(types.ErrCodeAuthTokenInvalid, "webhook signature verification failed", err)
		core.Error(w, r, appErr)
		return nil, appErr
	}

	return payload, nil
}

// ---------------------------------------------------------------------------
// Stripe Webhook Handler
// ---------------------------------------------------------------------------

// StripeWebhookHandler handles asynchronous events from Stripe.
type StripeWebhookHandler struct {
	verifier external.WebhookVerifier
	billing  BillingProcessor
	secret   string
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler.
func NewStripeWebhookHandler(verifier external.WebhookVerifier, billing BillingProcessor, secret string, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		billing:  billing,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes mounts the Stripe webhook endpoint under /webhooks.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/stripe", h.Handle)
}

// Handle processes incoming Stripe webhook events.
//
//  1. Reads the body and the Stripe-Signature header.
//  2. Verifies the signature using the webhook signing secret.
//  3. Claims the event id; replayed deliveries are acknowledged and skipped.
//  4. Parses the event JSON and routes by event type.
//  5. Returns 200 OK; processing failures after a valid signature are
//     logged, not surfaced, to prevent Stripe from retrying forever.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := readVerifiedPayload(w, r, h.verifier, "Stripe-Signature", h.secret, h.logger)
	if err != nil {
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse stripe webhook event", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid webhook event JSON", err))
		return
	}

	fresh, err := h.billing.DedupeEvent(r.Context(), billing.ProviderStripe, event.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stripe webhook dedup failed",
			"event_id", event.ID,
			"error", err,
		)
		w.WriteHeader(http.StatusOK)
		return
	}
	if !fresh {
		w.WriteHeader(http.StatusOK)
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "stripe webhook processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeWebhookEvent) error {
	switch event.Type {
	case external.EventStripeCheckoutCompleted:
		session, err := event.checkoutSession()
		if err != nil {
			return err
		}
		userID := session.ClientReferenceID
		if userID == "" {
			userID = session.Metadata["user_id"]
		}
		return h.billing.ApplyCreditGrant(ctx, billing.CreditGrant{
			Provider:               billing.ProviderStripe,
			UserID:                 userID,
			Plan:                   types.PlanTier(session.Metadata["plan"]),
			ProviderSubscriptionID: session.Subscription,
		})

	case external.EventStripeInvoicePaid:
		invoice, err := event.invoice()
		if err != nil {
			return err
		}
		return h.billing.ApplyCreditGrant(ctx, billing.CreditGrant{
			Provider:               billing.ProviderStripe,
			UserID:                 invoice.userID(),
			Plan:                   types.PlanTier(invoice.metadataValue("plan")),
			ProviderSubscriptionID: invoice.Subscription,
			PeriodEnd:              unixTimePtr(invoice.PeriodEnd),
		})

	case external.EventStripeSubUpdated:
		sub, err := event.subscription()
		if err != nil {
			return err
		}
		return h.billing.ApplySubscriptionStatus(ctx, billing.StatusChange{
			Provider:               billing.ProviderStripe,
			UserID:                 sub.Metadata["user_id"],
			ProviderSubscriptionID: sub.ID,
			Status:                 stripeSubStatus(sub.Status),
			Plan:                   types.PlanTier(sub.Metadata["plan"]),
			PeriodEnd:              unixTimePtr(sub.CurrentPeriodEnd),
		})

	case external.EventStripeSubDeleted:
		sub, err := event.subscription()
		if err != nil {
			return err
		}
		return h.billing.ApplySubscriptionStatus(ctx, billing.StatusChange{
			Provider:               billing.ProviderStripe,
			UserID:                 sub.Metadata["user_id"],
			ProviderSubscriptionID: sub.ID,
			Status:                 types.SubStatusCanceled,
			Plan:                   types.PlanFree,
		})

	default:
		h.logger.InfoContext(ctx, "ignoring unhandled stripe event type", "event_type", event.Type)
		return nil
	}
}

// stripeWebhookEvent is a minimal representation of a Stripe webhook event
// tailored to extract the fields needed for routing. We avoid the full
// stripe.Event type to keep the handler decoupled from the SDK and to make
// testing straightforward.
type stripeWebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSessionObj struct {
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	Subscription      string            `json:"subscription"`
}

type stripeSubscriptionObj struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
}

type stripeInvoiceObj struct {
	Subscription        string            `json:"subscription"`
	Metadata            map[string]string `json:"metadata"`
	PeriodEnd           int64             `json:"period_end"`
	SubscriptionDetails *stripeSubDetails `json:"subscription_details"`
}

type stripeSubDetails struct {
	Metadata map[string]string `json:"metadata"`
}

func (e *stripeWebhookEvent) checkoutSession() (*stripeCheckoutSessionObj, error) {
	var obj stripeCheckoutSessionObj
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("parse checkout session object: %w", err)
	}
	return &obj, nil
}

func (e *stripeWebhookEvent) subscription() (*stripeSubscriptionObj, error) {
	var obj stripeSubscriptionObj
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("parse subscription object: %w", err)
	}
	return &obj, nil
}

func (e *stripeWebhookEvent) invoice() (*stripeInvoiceObj, error) {
	var obj stripeInvoiceObj
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("parse invoice object: %w", err)
	}
	return &obj, nil
}

// userID resolves the paying user from an invoice. Stripe copies the
// subscription metadata onto subscription_details; older events only carry
// invoice-level metadata.
func (o *stripeInvoiceObj) userID() string {
	return o.metadataValue("user_id")
}

func (o *stripeInvoiceObj) metadataValue(key string) string {
	if o.SubscriptionDetails != nil {
		if v := o.SubscriptionDetails.Metadata[key]; v != "" {
			return v
		}
	}
	return o.Metadata[key]
}

func stripeSubStatus(raw string) types.SubscriptionStatus {
	switch raw {
	case "active", "trialing":
		return types.SubStatusActive
	case "past_due", "unpaid":
		return types.SubStatusPastDue
	case "canceled", "incomplete_expired":
		return types.SubStatusCanceled
	default:
		return types.SubscriptionStatus(raw)
	}
}

func unixTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

// ---------------------------------------------------------------------------
// Paddle Webhook Handler
// ---------------------------------------------------------------------------

// PaddleWebhookHandler handles asynchronous events from Paddle. Same flow
// as the Stripe handler with Paddle's envelope and signature scheme
// (ts/h1 HMAC over "<ts>:<payload>").
type PaddleWebhookHandler struct {
	verifier external.WebhookVerifier
	billing  BillingProcessor
	secret   string
	logger   *slog.Logger
}

// NewPaddleWebhookHandler creates a new PaddleWebhookHandler.
func NewPaddleWebhookHandler(verifier external.WebhookVerifier, billing BillingProcessor, secret string, logger *slog.Logger) *PaddleWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaddleWebhookHandler{
		verifier: verifier,
		billing:  billing,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes mounts the Paddle webhook endpoint under /webhooks.
func (h *PaddleWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/paddle", h.Handle)
}

// Handle processes incoming Paddle webhook events. Same contract as the
// Stripe handler: verify, dedupe on the event id, route, always 200 after
// a valid signature.
func (h *PaddleWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := readVerifiedPayload(w, r, h.verifier, "Paddle-Signature", h.secret, h.logger)
	if err != nil {
		return
	}

	var event paddleWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse paddle webhook event", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid webhook event JSON", err))
		return
	}

	fresh, err := h.billing.DedupeEvent(r.Context(), billing.ProviderPaddle, event.EventID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "paddle webhook dedup failed",
			"event_id", event.EventID,
			"error", err,
		)
		w.WriteHeader(http.StatusOK)
		return
	}
	if !fresh {
		w.WriteHeader(http.StatusOK)
		return
	}

	h.logger.InfoContext(r.Context(), "processing paddle webhook event",
		"event_id", event.EventID,
		"event_type", event.EventType,
	)

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "paddle webhook processing failed",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"error", err,
		)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *PaddleWebhookHandler) routeEvent(ctx context.Context, event *paddleWebhookEvent) error {
	switch event.EventType {
	case external.EventPaddleTransactionCompleted:
		return h.billing.ApplyCreditGrant(ctx, billing.CreditGrant{
			Provider:               billing.ProviderPaddle,
			UserID:                 event.Data.CustomData.UserID,
			Plan:                   types.PlanTier(event.Data.CustomData.Plan),
			ProviderSubscriptionID: event.Data.SubscriptionID,
		})

	case external.EventPaddleSubActivated, external.EventPaddleSubUpdated:
		return h.billing.ApplySubscriptionStatus(ctx, billing.StatusChange{
			Provider:               billing.ProviderPaddle,
			UserID:                 event.Data.CustomData.UserID,
			ProviderSubscriptionID: event.Data.ID,
			Status:                 paddleSubStatus(event.Data.Status),
			Plan:                   types.PlanTier(event.Data.CustomData.Plan),
			PeriodEnd:              event.Data.periodEnd(),
		})

	case external.EventPaddleSubCanceled:
		return h.billing.ApplySubscriptionStatus(ctx, billing.StatusChange{
			Provider:               billing.ProviderPaddle,
			UserID:                 event.Data.CustomData.UserID,
			ProviderSubscriptionID: event.Data.ID,
			Status:                 types.SubStatusCanceled,
			Plan:                   types.PlanFree,
		})

	default:
		h.logger.InfoContext(ctx, "ignoring unhandled paddle event type", "event_type", event.EventType)
		return nil
	}
}

// paddleWebhookEvent is a minimal representation of a Paddle Billing
// notification envelope.
type paddleWebhookEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      paddleEventData `json:"data"`
}

type paddleEventData struct {
	ID                   string               `json:"id"`
	Status               string               `json:"status"`
	SubscriptionID       string               `json:"subscription_id"`
	CustomData           paddleCustomData     `json:"custom_data"`
	CurrentBillingPeriod *paddleBillingPeriod `json:"current_billing_period"`
}

type paddleCustomData struct {
	UserID string `json:"user_id"`
	Plan   string `json:"plan"`
}

type paddleBillingPeriod struct {
	EndsAt string `json:"ends_at"`
}

func (d *paddleEventData) periodEnd() *time.Time {
	if d.CurrentBillingPeriod == nil || d.CurrentBillingPeriod.EndsAt == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, d.CurrentBillingPeriod.EndsAt)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func paddleSubStatus(raw string) types.SubscriptionStatus {
	switch raw {
	case "active", "trialing":
		return types.SubStatusActive
	case "past_due", "paused":
		return types.SubStatusPastDue
	case "canceled":
		return types.SubStatusCanceled
	default:
		return types.SubscriptionStatus(raw)
	}
}
