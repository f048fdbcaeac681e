package external

import (
	"context"
	"encoding/json"
	"time"

	"bannerly/internal/types"
)

// ---------------------------------------------------------------------------
// Image Generation
// ---------------------------------------------------------------------------

// GenerationTask is a single banner-variant request submitted to the
// image-generation API. One task produces one image URL.
type GenerationTask struct {
	Prompt             string
	Model              string
	ReferenceImageURLs []string
	AspectRatio        string
}

// TaskStatus is the polled state of a submitted generation task.
type TaskStatus struct {
	ID       string
	State    types.GenerationTaskState
	ImageURL string
	Error    string
}

// ImageGenerator abstracts the image-generation task API
// (submit task, poll task, receive a result URL).
type ImageGenerator interface {
	// SubmitTask starts an asynchronous generation task and returns its ID.
	SubmitTask(ctx context.Context, task GenerationTask) (string, error)

	// GetTask retrieves the current state of a task. Callers poll this
	// until TaskStatus.State is terminal.
	GetTask(ctx context.Context, taskID string) (*TaskStatus, error)
}

// ---------------------------------------------------------------------------
// Social Posting Provider
// ---------------------------------------------------------------------------

// PublishRequest is a single publish call covering every target platform of
// one scheduled post.
type PublishRequest struct {
	ImageURL       string
	Caption        string
	AccountIDs     []string
	Platforms      []types.Platform
	TikTokMetadata json.RawMessage
}

// PublishResult is the provider's response to a publish call.
type PublishResult struct {
	ExternalPostID string
	Results        []types.PlatformResult
}

// PostStatusResult is the provider's view of a previously published post,
// used for reconciliation without re-posting.
type PostStatusResult struct {
	ExternalPostID string
	Posted         bool
	Results        []types.PlatformResult
}

// SocialProvider abstracts the third-party service that brokers OAuth
// connections and publishes to social platforms on the user's behalf.
type SocialProvider interface {
	// GetConnectURL returns the authorization URL the browser is redirected
	// to for linking accounts.
	GetConnectURL(ctx context.Context, userID string) (string, error)

	// GetPendingAccounts lists the accounts discovered during the OAuth
	// flow identified by sessionToken, not yet confirmed for linking.
	GetPendingAccounts(ctx context.Context, sessionToken string) ([]types.PendingAccount, error)

	// FinalizeAccounts confirms the chosen accounts with the provider and
	// returns the finalized account records.
	FinalizeAccounts(ctx context.Context, sessionToken string, accountIDs []string) ([]types.PendingAccount, error)

	// ListAccounts returns the accounts currently linked at the provider
	// for the given user.
	ListAccounts(ctx context.Context, userID string) ([]types.PendingAccount, error)

	// Unlink detaches an account at the provider side.
	Unlink(ctx context.Context, externalAccountID string) error

	// Publish posts an image with a caption to the given accounts.
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)

	// GetPostStatus queries the provider for the outcome of an earlier
	// publish call.
	GetPostStatus(ctx context.Context, externalPostID string) (*PostStatusResult, error)
}

// ---------------------------------------------------------------------------
// Billing (Stripe)
// ---------------------------------------------------------------------------

// CheckoutSessionInfo is the subset of a hosted checkout session needed to
// verify payment after the browser returns.
type CheckoutSessionInfo struct {
	ID            string
	PaymentStatus string
	Plan          types.PlanTier
	UserID        string
	CompletedAt   *time.Time
}

// BillingService abstracts the payment provider used for interactive
// checkout. Webhook handling is separate; see WebhookVerifier.
type BillingService interface {
	// CreateCheckoutSession generates a hosted checkout URL. userID is set
	// as client_reference_id for webhook correlation.
	CreateCheckoutSession(ctx context.Context, userID string, email string, plan types.PlanTier, urls types.RedirectURLs) (checkoutURL string, sessionID string, err error)

	// GetCheckoutSession retrieves a checkout session for post-redirect
	// payment verification.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionInfo, error)
}

// WebhookVerifier abstracts webhook signature checking. Each payment
// provider has its own implementation.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature
	// header and signing secret. Returns nil on success.
	Verify(payload []byte, header string, secret string) error
}

// Stripe event type constants prevent magic strings in webhook handlers.
const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripeInvoicePaid       = "invoice.paid"
	EventStripeSubUpdated        = "customer.subscription.updated"
	EventStripeSubDeleted        = "customer.subscription.deleted"
)

// Paddle event type constants.
const (
	EventPaddleTransactionCompleted = "transaction.completed"
	EventPaddleSubActivated         = "subscription.activated"
	EventPaddleSubUpdated           = "subscription.updated"
	EventPaddleSubCanceled          = "subscription.canceled"
)
