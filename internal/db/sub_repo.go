package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"bannerly/internal/types"
)

// SubscriptionRepository provides data access for the subscriptions table.
// Rows are written only by the payment webhook handlers; the rest of the
// system reads them to resolve the user's plan.
type SubscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository creates a SubscriptionRepository backed by the
// given database connection (pool or transaction).
func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Get returns the user's subscription, or nil when the user has never
// subscribed (free tier).
func (r *SubscriptionRepository) Get(ctx context.Context, userID string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT user_id, provider, provider_subscription_id, plan, status, current_period_end, updated_at
		 FROM subscriptions WHERE user_id = $1`,
		userID,
	)

	var s types.Subscription
	err := row.Scan(&s.UserID, &s.Provider, &s.ProviderSubscriptionID, &s.Plan, &s.Status, &s.CurrentPeriodEnd, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription", err)
	}
	return &s, nil
}

// Upsert writes the subscription state reported by a payment provider.
// One subscription per user; a provider switch overwrites the previous row.
func (r *SubscriptionRepository) Upsert(ctx context.Context, s *types.Subscription) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions
		 (user_id, provider, provider_subscription_id, plan, status, current_period_end, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (user_id)
		 DO UPDATE SET provider = $2, provider_subscription_id = $3, plan = $4,
		               status = $5, current_period_end = $6, updated_at = now()`,
		s.UserID, s.Provider, s.ProviderSubscriptionID, s.Plan, s.Status, s.CurrentPeriodEnd,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}
	return nil
}

// GetByProviderSubscriptionID resolves a webhook's subscription reference to
// the local row. Returns nil when the reference is unknown (event for a
// subscription created before local state existed).
func (r *SubscriptionRepository) GetByProviderSubscriptionID(ctx context.Context, provider, providerSubID string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT user_id, provider, provider_subscription_id, plan, status, current_period_end, updated_at
		 FROM subscriptions WHERE provider = $1 AND provider_subscription_id = $2`,
		provider, providerSubID,
	)

	var s types.Subscription
	err := row.Scan(&s.UserID, &s.Provider, &s.ProviderSubscriptionID, &s.Plan, &s.Status, &s.CurrentPeriodEnd, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription", err)
	}
	return &s, nil
}
