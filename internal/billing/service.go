package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bannerly/internal/external"
	"bannerly/internal/types"
)

// Payment provider identifiers stored on subscription rows.
const (
	ProviderStripe = "stripe"
	ProviderPaddle = "paddle"
)

// SubscriptionStore is the subscription data access the service needs.
type SubscriptionStore interface {
	Get(ctx context.Context, userID string) (*types.Subscription, error)
	Upsert(ctx context.Context, s *types.Subscription) error
	GetByProviderSubscriptionID(ctx context.Context, provider, providerSubID string) (*types.Subscription, error)
}

// Ledger grants credits for paid billing cycles.
type Ledger interface {
	Add(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error
}

// ProcessedEventStore records provider webhook event ids that have already
// been handled, so a replayed delivery never grants credits twice.
type ProcessedEventStore interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// CreditGrant is one successful billing event: a completed checkout or a
// paid renewal invoice. Both providers' webhook handlers reduce their events
// to this before calling ApplyCreditGrant.
type CreditGrant struct {
	Provider               string
	UserID                 string
	Plan                   types.PlanTier
	ProviderSubscriptionID string
	PeriodEnd              *time.Time
}

// StatusChange is a subscription lifecycle event that carries no payment:
// cancellations, pauses, plan switches.
type StatusChange struct {
	Provider               string
	UserID                 string
	ProviderSubscriptionID string
	Status                 types.SubscriptionStatus
	Plan                   types.PlanTier
	PeriodEnd              *time.Time
}

// Service owns checkout orchestration and the provider-agnostic webhook
// cores. Webhook handlers verify and parse provider payloads, then call
// ApplyCreditGrant or ApplySubscriptionStatus.
type Service struct {
	subs     SubscriptionStore
	ledger   Ledger
	checkout external.BillingService
	events   ProcessedEventStore
	plans    PlanRegistry
	logger   *slog.Logger
}

// NewService creates a billing Service.
func NewService(subs SubscriptionStore, ledger Ledger, checkout external.BillingService, events ProcessedEventStore, plans PlanRegistry, logger *slog.Logger) *Service {
	if plans == nil {
		plans = NewStaticPlanRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		subs:     subs,
		ledger:   ledger,
		checkout: checkout,
		events:   events,
		plans:    plans,
		logger:   logger,
	}
}

// DedupeEvent claims a provider event id before the event is processed.
// A false result means the id was delivered before and the event must be
// skipped. Events without an id cannot be deduplicated and pass through.
func (s *Service) DedupeEvent(ctx context.Context, provider, eventID string) (bool, error) {
	if eventID == "" || s.events == nil {
		return true, nil
	}
	fresh, err := s.events.MarkProcessed(ctx, provider, eventID)
	if err != nil {
		return false, err
	}
	if !fresh {
		s.logger.InfoContext(ctx, "duplicate webhook event skipped",
			"provider", provider,
			"event_id", eventID,
		)
	}
	return fresh, nil
}

// CreateCheckout starts a hosted checkout session for a paid plan and
// returns the URL to redirect the browser to.
func (s *Service) CreateCheckout(ctx context.Context, userID, email string, plan types.PlanTier, urls types.RedirectURLs) (string, error) {
	if !PaidPlan(plan) {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidPlan,
			fmt.Sprintf("plan %q cannot be purchased", plan),
			nil,
		)
	}

	checkoutURL, sessionID, err := s.checkout.CreateCheckoutSession(ctx, userID, email, plan, urls)
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"user_id", userID,
		"plan", plan,
		"session_id", sessionID,
	)
	return checkoutURL, nil
}

// VerifyCheckout confirms a checkout session after the browser returns from
// the provider. Sessions belonging to other users are indistinguishable
// from missing ones. The webhook remains the source of truth for granting
// credits; this only reports payment state to the UI.
func (s *Service) VerifyCheckout(ctx context.Context, userID, sessionID string) (*external.CheckoutSessionInfo, error) {
	if sessionID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "session ID is required", nil)
	}

	info, err := s.checkout.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if info.UserID != userID {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "checkout session not found", nil)
	}
	return info, nil
}

// ApplyCreditGrant records a paid billing cycle: the subscription becomes
// active on the event's plan and the plan's monthly credits are granted.
// The grant follows the subscription write so a webhook retry after a
// partial failure re-runs both.
func (s *Service) ApplyCreditGrant(ctx context.Context, grant CreditGrant) error {
	if grant.UserID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "billing event has no user reference", nil)
	}

	benefits := s.plans.GetBenefits(grant.Plan)

	err := s.subs.Upsert(ctx, &types.Subscription{
		UserID:                 grant.UserID,
		Provider:               grant.Provider,
		ProviderSubscriptionID: grant.ProviderSubscriptionID,
		Plan:                   grant.Plan,
		Status:                 types.SubStatusActive,
		CurrentPeriodEnd:       grant.PeriodEnd,
	})
	if err != nil {
		return err
	}

	if benefits.MonthlyCredits > 0 {
		description := fmt.Sprintf("monthly credit grant: %s plan (%s)", grant.Plan, grant.Provider)
		if err := s.ledger.Add(ctx, grant.UserID, benefits.MonthlyCredits, types.TxKindSubscription, description); err != nil {
			return err
		}
	}

	s.logger.InfoContext(ctx, "credit grant applied",
		"provider", grant.Provider,
		"user_id", grant.UserID,
		"plan", grant.Plan,
		"credits", benefits.MonthlyCredits,
	)
	return nil
}

// ApplySubscriptionStatus mirrors a subscription lifecycle change. Events
// whose subscription reference is unknown locally are logged and dropped;
// no credits move on status changes.
func (s *Service) ApplySubscriptionStatus(ctx context.Context, change StatusChange) error {
	userID := change.UserID
	plan := change.Plan
	periodEnd := change.PeriodEnd

	if userID == "" {
		existing, err := s.subs.GetByProviderSubscriptionID(ctx, change.Provider, change.ProviderSubscriptionID)
		if err != nil {
			return err
		}
		if existing == nil {
			s.logger.WarnContext(ctx, "status change for unknown subscription dropped",
				"provider", change.Provider,
				"provider_subscription_id", change.ProviderSubscriptionID,
				"status", change.Status,
			)
			return nil
		}
		userID = existing.UserID
		if plan == "" {
			plan = existing.Plan
		}
		if periodEnd == nil {
			periodEnd = existing.CurrentPeriodEnd
		}
	}

	err := s.subs.Upsert(ctx, &types.Subscription{
		UserID:                 userID,
		Provider:               change.Provider,
		ProviderSubscriptionID: change.ProviderSubscriptionID,
		Plan:                   plan,
		Status:                 change.Status,
		CurrentPeriodEnd:       periodEnd,
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "subscription status applied",
		"provider", change.Provider,
		"user_id", userID,
		"status", change.Status,
	)
	return nil
}

// CurrentPlan resolves the user's effective plan tier: their active
// subscription's plan, or Free.
func (s *Service) CurrentPlan(ctx context.Context, userID string) (types.PlanTier, error) {
	sub, err := s.subs.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub == nil || sub.Status != types.SubStatusActive {
		return types.PlanFree, nil
	}
	return sub.Plan, nil
}
