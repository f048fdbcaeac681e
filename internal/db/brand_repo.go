package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"bannerly/internal/types"
)

// BrandRepository provides data access for the brand_kits table.
// One kit per user, upserted freely by its owner.
type BrandRepository struct {
	db DBTX
}

// NewBrandRepository creates a BrandRepository backed by the given database
// connection (pool or transaction).
func NewBrandRepository(db DBTX) *BrandRepository {
	return &BrandRepository{db: db}
}

// Get returns the user's brand kit. Returns ErrCodeNotFoundBrandKit when the
// user has never saved one; generation treats that as "no brand context".
func (r *BrandRepository) Get(ctx context.Context, userID string) (*types.BrandKit, error) {
	row := r.db.QueryRow(ctx,
		`SELECT user_id, logo_url, primary_color, secondary_color, business_description, updated_at
		 FROM brand_kits WHERE user_id = $1`,
		userID,
	)

	var k types.BrandKit
	err := row.Scan(&k.UserID, &k.LogoURL, &k.PrimaryColor, &k.SecondaryColor, &k.BusinessDescription, &k.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundBrandKit, "brand kit not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve brand kit", err)
	}
	return &k, nil
}

// Upsert saves the user's brand kit, replacing any previous version.
func (r *BrandRepository) Upsert(ctx context.Context, k *types.BrandKit) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO brand_kits (user_id, logo_url, primary_color, secondary_color, business_description, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (user_id)
		 DO UPDATE SET logo_url = $2, primary_color = $3, secondary_color = $4,
		               business_description = $5, updated_at = now()`,
		k.UserID, k.LogoURL, k.PrimaryColor, k.SecondaryColor, k.BusinessDescription,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save brand kit", err)
	}
	return nil
}
