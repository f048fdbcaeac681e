package db

import (
	"context"

	"bannerly/internal/types"
)

// WebhookEventRepository provides data access for the webhook_events table,
// the record of payment-provider event ids that have already been handled.
// The primary key on (provider, event_id) makes MarkProcessed the single
// dedup point for replayed deliveries.
type WebhookEventRepository struct {
	db DBTX
}

// NewWebhookEventRepository creates a WebhookEventRepository backed by the
// given database connection (pool or transaction).
func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// MarkProcessed claims an event id. Returns false when the id was already
// recorded, meaning this delivery is a replay and must be skipped.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO webhook_events (provider, event_id, processed_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (provider, event_id) DO NOTHING`,
		provider, eventID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record webhook event", err)
	}
	return tag.RowsAffected() == 1, nil
}
