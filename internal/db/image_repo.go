package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"bannerly/internal/types"
)

// ImageRepository provides data access for the generated_images table.
type ImageRepository struct {
	db DBTX
}

// NewImageRepository creates an ImageRepository backed by the given database
// connection (pool or transaction).
func NewImageRepository(db DBTX) *ImageRepository {
	return &ImageRepository{db: db}
}

const imageColumns = `id, user_id, image_url, prompt, theme, variant_number, created_at`

// Insert persists a generated image.
func (r *ImageRepository) Insert(ctx context.Context, img *types.GeneratedImage) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO generated_images (`+imageColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		img.ID, img.UserID, img.ImageURL, img.Prompt, img.Theme, img.VariantNumber, img.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert generated image", err)
	}
	return nil
}

// GetByID retrieves an image scoped to its owner. Other users' images are
// indistinguishable from missing ones.
func (r *ImageRepository) GetByID(ctx context.Context, id, userID string) (*types.GeneratedImage, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM generated_images WHERE id = $1 AND user_id = $2`,
		id, userID,
	)

	var img types.GeneratedImage
	err := row.Scan(&img.ID, &img.UserID, &img.ImageURL, &img.Prompt, &img.Theme, &img.VariantNumber, &img.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundImage, "image not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve image", err)
	}
	return &img, nil
}

// ListByUser returns the user's images, newest first.
func (r *ImageRepository) ListByUser(ctx context.Context, userID string, limit int) ([]types.GeneratedImage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+imageColumns+`
		 FROM generated_images
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query images", err)
	}
	defer rows.Close()

	var images []types.GeneratedImage
	for rows.Next() {
		var img types.GeneratedImage
		if err := rows.Scan(&img.ID, &img.UserID, &img.ImageURL, &img.Prompt, &img.Theme, &img.VariantNumber, &img.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan image row", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating image rows", err)
	}

	return images, nil
}
