package db

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"bannerly/internal/types"
)

// PostRepository provides data access for the scheduled_posts table.
//
// Status transitions are guarded in SQL: MarkPosted and MarkFailed update
// WHERE status = 'pending', so a post reaches a terminal state exactly once
// even if two processor runs overlap.
type PostRepository struct {
	db DBTX
}

// NewPostRepository creates a PostRepository backed by the given database
// connection (pool or transaction).
func NewPostRepository(db DBTX) *PostRepository {
	return &PostRepository{db: db}
}

const postColumns = `id, user_id, image_id, caption, scheduled_for, platforms, status,
	external_post_id, posted_at, tiktok_metadata, created_at`

func scanPost(row pgx.Row) (*types.ScheduledPost, error) {
	var p types.ScheduledPost
	var externalPostID *string
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.ImageID,
		&p.Caption,
		&p.ScheduledFor,
		&p.Platforms,
		&p.Status,
		&externalPostID,
		&p.PostedAt,
		&p.TikTokMetadata,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if externalPostID != nil {
		p.ExternalPostID = *externalPostID
	}
	return &p, nil
}

// Create inserts a new scheduled post with status pending.
func (r *PostRepository) Create(ctx context.Context, p *types.ScheduledPost) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO scheduled_posts
		 (id, user_id, image_id, caption, scheduled_for, platforms, status, tiktok_metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.UserID, p.ImageID, p.Caption, p.ScheduledFor, p.Platforms, p.Status, p.TikTokMetadata, p.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create scheduled post", err)
	}
	return nil
}

// GetByID retrieves a post scoped to its owner.
func (r *PostRepository) GetByID(ctx context.Context, id, userID string) (*types.ScheduledPost, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+postColumns+` FROM scheduled_posts WHERE id = $1 AND user_id = $2`,
		id, userID,
	)

	p, err := scanPost(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPost, "scheduled post not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve scheduled post", err)
	}
	return p, nil
}

// ListByUser returns the user's posts, soonest schedule first. An optional
// status filters the result; empty status returns all.
func (r *PostRepository) ListByUser(ctx context.Context, userID string, status types.PostStatus, limit int) ([]types.ScheduledPost, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT ` + postColumns + `
	 FROM scheduled_posts
	 WHERE user_id = $1`
	args := []any{userID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY scheduled_for ASC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query scheduled posts", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// ListDue returns up to limit pending posts whose scheduled time has passed,
// oldest first. Only pending posts are ever scanned; terminal posts are
// invisible to the processor.
func (r *PostRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]types.ScheduledPost, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+postColumns+`
		 FROM scheduled_posts
		 WHERE status = 'pending' AND scheduled_for <= $1
		 ORDER BY scheduled_for ASC
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query due posts", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// MarkPosted transitions a pending post to posted, recording the provider's
// post ID and timestamp. Returns ErrCodeConflictPostNotPending when the post
// was already terminal (lost race with another run).
func (r *PostRepository) MarkPosted(ctx context.Context, id, externalPostID string, postedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_posts
		 SET status = 'posted', external_post_id = $2, posted_at = $3
		 WHERE id = $1 AND status = 'pending'`,
		id, externalPostID, postedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark post as posted", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictPostNotPending, "post is not pending", nil)
	}
	return nil
}

// MarkFailed transitions a pending post to failed. Same pending guard as
// MarkPosted.
func (r *PostRepository) MarkFailed(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_posts
		 SET status = 'failed'
		 WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark post as failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictPostNotPending, "post is not pending", nil)
	}
	return nil
}

// FailOverdue marks pending posts scheduled before the cutoff as failed.
// The worker publishes late posts within the grace period; beyond it the
// content is stale and publishing it would surprise the user. Returns the
// number of posts transitioned per user so the caller can refund the
// scheduling charges.
func (r *PostRepository) FailOverdue(ctx context.Context, cutoff time.Time) (map[string]int, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE scheduled_posts
		 SET status = 'failed'
		 WHERE status = 'pending' AND scheduled_for < $1
		 RETURNING user_id`,
		cutoff,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to expire overdue posts", err)
	}
	defer rows.Close()

	byUser := make(map[string]int)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan expired post owner", err)
		}
		byUser[userID]++
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating expired posts", err)
	}
	return byUser, nil
}

// Delete removes a post, only while it is still pending. Posted and failed
// posts are immutable history.
func (r *PostRepository) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM scheduled_posts WHERE id = $1 AND user_id = $2 AND status = 'pending'`,
		id, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete scheduled post", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the post does not exist for this user or it is terminal.
		// Disambiguate so the client gets the right status code.
		if _, getErr := r.GetByID(ctx, id, userID); getErr != nil {
			return getErr
		}
		return types.NewAppError(types.ErrCodeConflictPostNotPending, "only pending posts can be deleted", nil)
	}
	return nil
}

func collectPosts(rows pgx.Rows) ([]types.ScheduledPost, error) {
	var posts []types.ScheduledPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan scheduled post", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating scheduled posts", err)
	}
	return posts, nil
}
