// Package scheduler publishes due scheduled posts to their target social
// platforms and reconciles post status against the posting provider.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bannerly/internal/external"
	"bannerly/internal/types"
)

// PostStore is the scheduled-post data access the processor needs.
type PostStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]types.ScheduledPost, error)
	GetByID(ctx context.Context, id, userID string) (*types.ScheduledPost, error)
	MarkPosted(ctx context.Context, id, externalPostID string, postedAt time.Time) error
	MarkFailed(ctx context.Context, id string) error
}

// ImageStore resolves the image a post references.
type ImageStore interface {
	GetByID(ctx context.Context, id, userID string) (*types.GeneratedImage, error)
}

// AccountStore lists the user's linked social accounts.
type AccountStore interface {
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]types.SocialAccount, error)
}

// Ledger gives the scheduling charge back when a post the user paid for is
// failed without ever being published.
type Ledger interface {
	Refund(ctx context.Context, userID string, amount int, description string) error
}

// Metrics records processing outcomes. Implementations must be safe to call
// with a canceled context.
type Metrics interface {
	RecordPostProcessed(ctx context.Context, outcome types.PostStatus)
}

type noopMetrics struct{}

func (noopMetrics) RecordPostProcessed(context.Context, types.PostStatus) {}

// Summary reports one ProcessDue run.
type Summary struct {
	Processed int `json:"processed"`
	Posted    int `json:"posted"`
	Failed    int `json:"failed"`
}

// Config wires the processor's dependencies.
type Config struct {
	Posts     PostStore
	Images    ImageStore
	Accounts  AccountStore
	Provider  external.SocialProvider
	Ledger    Ledger
	BatchSize int
	Metrics   Metrics
	Logger    *slog.Logger
}

// Processor drains due posts. Posts are processed sequentially; one bad post
// never blocks the rest of the batch.
type Processor struct {
	posts     PostStore
	images    ImageStore
	accounts  AccountStore
	provider  external.SocialProvider
	ledger    Ledger
	batchSize int
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewProcessor creates a Processor, applying defaults for any unset values.
func NewProcessor(cfg Config) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Processor{
		posts:     cfg.Posts,
		images:    cfg.Images,
		accounts:  cfg.Accounts,
		provider:  cfg.Provider,
		ledger:    cfg.Ledger,
		batchSize: cfg.BatchSize,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// ProcessDue publishes every pending post whose scheduled time has passed,
// up to the batch size. Each post transitions pending -> posted|failed
// exactly once; failed posts are not retried.
func (p *Processor) ProcessDue(ctx context.Context) (*Summary, error) {
	due, err := p.posts.ListDue(ctx, p.now().UTC(), p.batchSize)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for i := range due {
		post := &due[i]
		summary.Processed++

		posted := p.processPost(ctx, post)
		if posted {
			summary.Posted++
			p.metrics.RecordPostProcessed(ctx, types.PostStatusPosted)
		} else {
			summary.Failed++
			p.metrics.RecordPostProcessed(ctx, types.PostStatusFailed)
		}
	}

	if summary.Processed > 0 {
		p.logger.InfoContext(ctx, "processed due posts",
			"processed", summary.Processed,
			"posted", summary.Posted,
			"failed", summary.Failed,
		)
	}
	return summary, nil
}

// processPost publishes one post and writes back its terminal status.
// Returns true when the post ended up posted. Panics from provider or
// store code are contained to the post that caused them.
func (p *Processor) processPost(ctx context.Context, post *types.ScheduledPost) (posted bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "panic while processing post",
				"post_id", post.ID,
				"panic", fmt.Sprint(r),
			)
			p.failPost(ctx, post)
			posted = false
		}
	}()

	result, err := p.publish(ctx, post)
	if err != nil {
		p.logger.WarnContext(ctx, "post publication failed",
			"post_id", post.ID,
			"user_id", post.UserID,
			"error", err,
		)
		p.failPost(ctx, post)
		return false
	}

	postedAt := earliestSuccess(result.Results, p.now().UTC())
	if err := p.posts.MarkPosted(ctx, post.ID, result.ExternalPostID, postedAt); err != nil {
		// A concurrent run already settled this post; nothing to undo.
		p.logger.WarnContext(ctx, "could not mark post as posted",
			"post_id", post.ID,
			"error", err,
		)
		return false
	}

	p.logger.InfoContext(ctx, "post published",
		"post_id", post.ID,
		"external_post_id", result.ExternalPostID,
		"platforms", len(result.Results),
	)
	return true
}

// publish resolves the post's image and accounts and makes one provider
// call covering all target platforms. It succeeds when at least one
// platform accepted the post.
func (p *Processor) publish(ctx context.Context, post *types.ScheduledPost) (*external.PublishResult, error) {
	img, err := p.images.GetByID(ctx, post.ImageID, post.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolving image %s: %w", post.ImageID, err)
	}

	accounts, err := p.accounts.ListByUser(ctx, post.UserID, true)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	platforms := make([]types.Platform, 0, len(post.Platforms))
	for _, raw := range post.Platforms {
		platforms = append(platforms, types.NormalizePlatform(raw))
	}

	accountIDs := matchAccounts(accounts, platforms)
	if len(accountIDs) == 0 {
		return nil, fmt.Errorf("no active accounts match platforms %v", post.Platforms)
	}

	result, err := p.provider.Publish(ctx, external.PublishRequest{
		ImageURL:       img.ImageURL,
		Caption:        post.Caption,
		AccountIDs:     accountIDs,
		Platforms:      platforms,
		TikTokMetadata: post.TikTokMetadata,
	})
	if err != nil {
		return nil, err
	}

	if !anySuccess(result.Results) {
		return nil, fmt.Errorf("all %d platforms rejected the post", len(result.Results))
	}
	return result, nil
}

// failPost transitions the post to failed and gives the scheduling charge
// back. The pending guard in MarkFailed keeps the refund exactly-once: a
// post another run already settled refunds nothing here.
func (p *Processor) failPost(ctx context.Context, post *types.ScheduledPost) {
	if err := p.posts.MarkFailed(ctx, post.ID); err != nil {
		p.logger.WarnContext(ctx, "could not mark post as failed",
			"post_id", post.ID,
			"error", err,
		)
		return
	}
	if p.ledger == nil {
		return
	}
	description := fmt.Sprintf("refund for failed scheduled post %s", post.ID)
	if err := p.ledger.Refund(ctx, post.UserID, types.SchedulePostCost, description); err != nil {
		p.logger.ErrorContext(ctx, "failed to refund scheduling charge",
			"post_id", post.ID,
			"user_id", post.UserID,
			"error", err,
		)
	}
}

// StatusReport combines the stored post with the provider's view of it.
type StatusReport struct {
	Post     *types.ScheduledPost       `json:"post"`
	Provider *external.PostStatusResult `json:"provider,omitempty"`
}

// CheckStatus reconciles a post's status against the provider without
// re-posting. Posts that never reached the provider report only local state.
func (p *Processor) CheckStatus(ctx context.Context, postID, userID string) (*StatusReport, error) {
	post, err := p.posts.GetByID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{Post: post}
	if post.ExternalPostID == "" {
		return report, nil
	}

	providerStatus, err := p.provider.GetPostStatus(ctx, post.ExternalPostID)
	if err != nil {
		p.logger.WarnContext(ctx, "provider status check failed",
			"post_id", postID,
			"external_post_id", post.ExternalPostID,
			"error", err,
		)
		return report, nil
	}
	report.Provider = providerStatus
	return report, nil
}

// matchAccounts returns IDs of accounts whose platform the post targets.
// Platform names are already normalized on both sides.
func matchAccounts(accounts []types.SocialAccount, platforms []types.Platform) []string {
	wanted := make(map[types.Platform]bool, len(platforms))
	for _, pl := range platforms {
		wanted[pl] = true
	}

	var ids []string
	for _, a := range accounts {
		if wanted[types.NormalizePlatform(string(a.Platform))] {
			ids = append(ids, a.ExternalAccountID)
		}
	}
	return ids
}

func anySuccess(results []types.PlatformResult) bool {
	for _, r := range results {
		if r.Success {
			return true
		}
	}
	return false
}

// earliestSuccess returns the earliest successful platform timestamp,
// falling back to now when the provider reported none.
func earliestSuccess(results []types.PlatformResult, now time.Time) time.Time {
	var earliest *time.Time
	for _, r := range results {
		if !r.Success || r.PostedAt == nil {
			continue
		}
		if earliest == nil || r.PostedAt.Before(*earliest) {
			earliest = r.PostedAt
		}
	}
	if earliest == nil {
		return now
	}
	return *earliest
}
