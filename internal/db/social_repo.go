package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"bannerly/internal/types"
)

// SocialRepository provides data access for the social_accounts table.
// Accounts are unique on (user_id, external_account_id); Upsert makes the
// linking pipeline idempotent under OAuth callback retries.
type SocialRepository struct {
	db DBTX
}

// NewSocialRepository creates a SocialRepository backed by the given database
// connection (pool or transaction).
func NewSocialRepository(db DBTX) *SocialRepository {
	return &SocialRepository{db: db}
}

const socialColumns = `id, user_id, external_account_id, platform, username, name, is_active, created_at`

func scanSocialAccount(row pgx.Row) (*types.SocialAccount, error) {
	var a types.SocialAccount
	err := row.Scan(&a.ID, &a.UserID, &a.ExternalAccountID, &a.Platform, &a.Username, &a.Name, &a.IsActive, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Upsert inserts the account or refreshes its profile fields when the
// (user_id, external_account_id) pair already exists. Re-linking an account
// reactivates it.
func (r *SocialRepository) Upsert(ctx context.Context, a *types.SocialAccount) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO social_accounts (`+socialColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, external_account_id)
		 DO UPDATE SET platform = $4, username = $5, name = $6, is_active = true`,
		a.ID, a.UserID, a.ExternalAccountID, a.Platform, a.Username, a.Name, a.IsActive, a.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert social account", err)
	}
	return nil
}

// GetByID retrieves an account scoped to its owner.
func (r *SocialRepository) GetByID(ctx context.Context, id, userID string) (*types.SocialAccount, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+socialColumns+` FROM social_accounts WHERE id = $1 AND user_id = $2`,
		id, userID,
	)

	a, err := scanSocialAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "social account not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve social account", err)
	}
	return a, nil
}

// ListByUser returns the user's linked accounts. When activeOnly is set,
// deactivated accounts are omitted.
func (r *SocialRepository) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]types.SocialAccount, error) {
	query := `SELECT ` + socialColumns + ` FROM social_accounts WHERE user_id = $1`
	if activeOnly {
		query += ` AND is_active = true`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query social accounts", err)
	}
	defer rows.Close()

	var accounts []types.SocialAccount
	for rows.Next() {
		a, err := scanSocialAccount(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan social account", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating social accounts", err)
	}

	return accounts, nil
}

// Deactivate soft-disconnects an account. The row is kept so posts that
// referenced it remain explicable; a later re-link reactivates it via Upsert.
func (r *SocialRepository) Deactivate(ctx context.Context, id, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE social_accounts SET is_active = false WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate social account", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "social account not found", nil)
	}
	return nil
}
