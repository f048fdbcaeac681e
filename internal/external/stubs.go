package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"bannerly/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stubs let the application boot in local mode without real provider
// credentials. They log all actions and return predictable, safe defaults.
// ---------------------------------------------------------------------------

// StubImageGenerator implements ImageGenerator with instantly-successful
// tasks that produce placeholder image URLs. The generation orchestrator
// submits variants concurrently, so the task counter is atomic.
type StubImageGenerator struct {
	logger *slog.Logger
	seq    atomic.Int64
}

// NewStubImageGenerator creates a new StubImageGenerator.
func NewStubImageGenerator(logger *slog.Logger) *StubImageGenerator {
	return &StubImageGenerator{logger: logger}
}

func (s *StubImageGenerator) SubmitTask(ctx context.Context, task GenerationTask) (string, error) {
	taskID := fmt.Sprintf("task_stub_%d", s.seq.Add(1))
	s.logger.InfoContext(ctx, "stub: SubmitTask called",
		"task_id", taskID,
		"reference_images", len(task.ReferenceImageURLs),
	)
	return taskID, nil
}

func (s *StubImageGenerator) GetTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	s.logger.InfoContext(ctx, "stub: GetTask called", "task_id", taskID)
	return &TaskStatus{
		ID:       taskID,
		State:    types.TaskStateSuccess,
		ImageURL: fmt.Sprintf("https://images.stub.local/%s.png", taskID),
	}, nil
}

// StubSocialProvider implements SocialProvider by logging calls and
// reporting every publish as an instant success.
type StubSocialProvider struct {
	logger *slog.Logger
}

// NewStubSocialProvider creates a new StubSocialProvider.
func NewStubSocialProvider(logger *slog.Logger) *StubSocialProvider {
	return &StubSocialProvider{logger: logger}
}

func (s *StubSocialProvider) GetConnectURL(ctx context.Context, userID string) (string, error) {
	s.logger.InfoContext(ctx, "stub: GetConnectURL called", "user_id", userID)
	return "https://connect.stub.local/authorize?user=" + userID, nil
}

func (s *StubSocialProvider) GetPendingAccounts(ctx context.Context, sessionToken string) ([]types.PendingAccount, error) {
	s.logger.InfoContext(ctx, "stub: GetPendingAccounts called")
	return []types.PendingAccount{
		{
			ExternalAccountID: "acct_stub_1",
			Platform:          types.PlatformInstagram,
			Username:          "stub_user",
			Name:              "Stub User",
		},
	}, nil
}

func (s *StubSocialProvider) FinalizeAccounts(ctx context.Context, sessionToken string, accountIDs []string) ([]types.PendingAccount, error) {
	s.logger.InfoContext(ctx, "stub: FinalizeAccounts called", "accounts", len(accountIDs))
	out := make([]types.PendingAccount, 0, len(accountIDs))
	for _, id := range accountIDs {
		out = append(out, types.PendingAccount{
			ExternalAccountID: id,
			Platform:          types.PlatformInstagram,
			Username:          "stub_user",
			Name:              "Stub User",
		})
	}
	return out, nil
}

func (s *StubSocialProvider) ListAccounts(ctx context.Context, userID string) ([]types.PendingAccount, error) {
	s.logger.InfoContext(ctx, "stub: ListAccounts called", "user_id", userID)
	return []types.PendingAccount{}, nil
}

func (s *StubSocialProvider) Unlink(ctx context.Context, externalAccountID string) error {
	s.logger.InfoContext(ctx, "stub: Unlink called", "account_id", externalAccountID)
	return nil
}

func (s *StubSocialProvider) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	s.logger.InfoContext(ctx, "stub: Publish called",
		"accounts", len(req.AccountIDs),
		"platforms", len(req.Platforms),
	)
	now := time.Now().UTC()
	results := make([]types.PlatformResult, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		results = append(results, types.PlatformResult{
			Platform: p,
			Success:  true,
			PostID:   "post_stub_" + string(p),
			PostedAt: &now,
		})
	}
	return &PublishResult{
		ExternalPostID: "post_stub",
		Results:        results,
	}, nil
}

func (s *StubSocialProvider) GetPostStatus(ctx context.Context, externalPostID string) (*PostStatusResult, error) {
	s.logger.InfoContext(ctx, "stub: GetPostStatus called", "external_post_id", externalPostID)
	return &PostStatusResult{
		ExternalPostID: externalPostID,
		Posted:         true,
	}, nil
}

// StubBillingService implements BillingService by logging calls and
// returning test-safe defaults.
type StubBillingService struct {
	logger *slog.Logger
}

// NewStubBillingService creates a new StubBillingService.
func NewStubBillingService(logger *slog.Logger) *StubBillingService {
	return &StubBillingService{logger: logger}
}

func (s *StubBillingService) CreateCheckoutSession(ctx context.Context, userID string, email string, plan types.PlanTier, urls types.RedirectURLs) (string, string, error) {
	s.logger.InfoContext(ctx, "stub: CreateCheckoutSession called",
		"user_id", userID,
		"plan", plan,
	)
	return "https://checkout.stub.local/session", fmt.Sprintf("cs_stub_%s", userID), nil
}

func (s *StubBillingService) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionInfo, error) {
	s.logger.InfoContext(ctx, "stub: GetCheckoutSession called", "session_id", sessionID)
	now := time.Now().UTC()
	return &CheckoutSessionInfo{
		ID:            sessionID,
		PaymentStatus: "paid",
		Plan:          types.PlanStarter,
		CompletedAt:   &now,
	}, nil
}

// StubWebhookVerifier implements WebhookVerifier by always succeeding.
// Never use outside local mode.
type StubWebhookVerifier struct {
	logger *slog.Logger
}

// NewStubWebhookVerifier creates a new StubWebhookVerifier.
func NewStubWebhookVerifier(logger *slog.Logger) *StubWebhookVerifier {
	return &StubWebhookVerifier{logger: logger}
}

func (s *StubWebhookVerifier) Verify(payload []byte, header string, secret string) error {
	s.logger.Info("stub: webhook signature verification skipped",
		"payload_bytes", len(payload),
	)
	return nil
}

// ---------------------------------------------------------------------------
// Unconfigured Implementations
//
// When a provider's credentials are absent in a non-local environment, the
// process still boots; only the dependent endpoints fail, with an
// explanatory 500.
// ---------------------------------------------------------------------------

func errNotConfigured(provider string) error {
	return types.NewAppError(
		types.ErrCodeInternalNotConfigured,
		fmt.Sprintf("%s provider is not configured; set its API credentials", provider),
		nil,
	)
}

// UnconfiguredImageGenerator fails every call with a configuration error.
type UnconfiguredImageGenerator struct{}

func (UnconfiguredImageGenerator) SubmitTask(ctx context.Context, task GenerationTask) (string, error) {
	return "", errNotConfigured("image generation")
}

func (UnconfiguredImageGenerator) GetTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	return nil, errNotConfigured("image generation")
}

// UnconfiguredSocialProvider fails every call with a configuration error.
type UnconfiguredSocialProvider struct{}

func (UnconfiguredSocialProvider) GetConnectURL(ctx context.Context, userID string) (string, error) {
	return "", errNotConfigured("social posting")
}

func (UnconfiguredSocialProvider) GetPendingAccounts(ctx context.Context, sessionToken string) ([]types.PendingAccount, error) {
	return nil, errNotConfigured("social posting")
}

func (UnconfiguredSocialProvider) FinalizeAccounts(ctx context.Context, sessionToken string, accountIDs []string) ([]types.PendingAccount, error) {
	return nil, errNotConfigured("social posting")
}

func (UnconfiguredSocialProvider) ListAccounts(ctx context.Context, userID string) ([]types.PendingAccount, error) {
	return nil, errNotConfigured("social posting")
}

func (UnconfiguredSocialProvider) Unlink(ctx context.Context, externalAccountID string) error {
	return errNotConfigured("social posting")
}

func (UnconfiguredSocialProvider) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	return nil, errNotConfigured("social posting")
}

func (UnconfiguredSocialProvider) GetPostStatus(ctx context.Context, externalPostID string) (*PostStatusResult, error) {
	return nil, errNotConfigured("social posting")
}

// UnconfiguredBillingService fails every call with a configuration error.
type UnconfiguredBillingService struct{}

func (UnconfiguredBillingService) CreateCheckoutSession(ctx context.Context, userID string, email string, plan types.PlanTier, urls types.RedirectURLs) (string, string, error) {
	return "", "", errNotConfigured("billing")
}

func (UnconfiguredBillingService) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionInfo, error) {
	return nil, errNotConfigured("billing")
}

var (
	_ ImageGenerator  = (*StubImageGenerator)(nil)
	_ SocialProvider  = (*StubSocialProvider)(nil)
	_ BillingService  = (*StubBillingService)(nil)
	_ WebhookVerifier = (*StubWebhookVerifier)(nil)
	_ ImageGenerator  = UnconfiguredImageGenerator{}
	_ SocialProvider  = UnconfiguredSocialProvider{}
	_ BillingService  = UnconfiguredBillingService{}
)
