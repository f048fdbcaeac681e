// Package generation orchestrates banner creation: it charges credits,
// fans out variant tasks to the image-generation API, polls them to a
// terminal state, and persists the resulting images.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bannerly/internal/external"
	"bannerly/internal/types"
)

// Ledger is the credit operations the orchestrator needs.
type Ledger interface {
	Deduct(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error
	Refund(ctx context.Context, userID string, amount int, description string) error
}

// BrandKitStore loads the user's stored visual identity.
type BrandKitStore interface {
	Get(ctx context.Context, userID string) (*types.BrandKit, error)
}

// ImageStore persists generated images.
type ImageStore interface {
	Insert(ctx context.Context, img *types.GeneratedImage) error
}

// Request describes one generation batch.
type Request struct {
	UserID             string
	Text               string
	Theme              string
	Details            string
	VariantCount       int
	AspectRatio        string
	ReferenceImageURLs []string
}

// Config wires the orchestrator's dependencies and tuning.
type Config struct {
	Generator    external.ImageGenerator
	Ledger       Ledger
	Brands       BrandKitStore
	Images       ImageStore
	PollInterval time.Duration
	MaxPolls     int
	MaxVariants  int
	Logger       *slog.Logger
}

// Orchestrator runs generation batches end to end.
type Orchestrator struct {
	generator    external.ImageGenerator
	ledger       Ledger
	brands       BrandKitStore
	images       ImageStore
	pollInterval time.Duration
	maxPolls     int
	maxVariants  int
	logger       *slog.Logger
	now          func() time.Time
	sleepFn      func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an Orchestrator, applying defaults for any unset
// tuning values.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 60
	}
	if cfg.MaxVariants <= 0 {
		cfg.MaxVariants = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Orchestrator{
		generator:    cfg.Generator,
		ledger:       cfg.Ledger,
		brands:       cfg.Brands,
		images:       cfg.Images,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		maxVariants:  cfg.MaxVariants,
		logger:       cfg.Logger,
		now:          time.Now,
		sleepFn:      sleepCtx,
	}
}

// Generate runs a batch: deduct credits up front (one per variant), submit
// all variants concurrently, poll each to completion, persist the results.
// Any single variant failure fails the whole batch, but variants that did
// complete are still persisted and returned alongside the error; only
// credits for variants that produced no image are refunded.
func (o *Orchestrator) Generate(ctx context.Context, req Request) ([]types.GeneratedImage, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	kit, err := o.brands.Get(ctx, req.UserID)
	if err != nil {
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundBrandKit {
			return nil, err
		}
		kit = nil
	}

	// Charge before any submission so an underfunded request never reaches
	// the provider.
	description := fmt.Sprintf("banner generation (%d variants)", req.VariantCount)
	if err := o.ledger.Deduct(ctx, req.UserID, req.VariantCount, types.TxKindGeneration, description); err != nil {
		return nil, err
	}

	prompt := BuildPrompt(req.Text, req.Theme, req.Details, kit)
	task := external.GenerationTask{
		Prompt:             prompt,
		Model:              selectModel(req.ReferenceImageURLs),
		ReferenceImageURLs: req.ReferenceImageURLs,
		AspectRatio:        req.AspectRatio,
	}

	o.logger.InfoContext(ctx, "starting generation batch",
		"user_id", req.UserID,
		"variants", req.VariantCount,
		"model", task.Model,
	)

	// Each goroutine writes its own slot; g.Wait orders the reads below.
	urls := make([]string, req.VariantCount)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < req.VariantCount; i++ {
		g.Go(func() error {
			url, err := o.runVariant(gctx, task)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// The user paid per variant: keep what completed, give back the rest.
		images := o.persistBatch(ctx, req, prompt, urls)
		failed := req.VariantCount - len(images)
		o.logger.ErrorContext(ctx, "generation batch failed",
			"user_id", req.UserID,
			"completed_variants", len(images),
			"failed_variants", failed,
			"error", err,
		)
		if failed > 0 {
			refundDesc := fmt.Sprintf("refund for %d failed generation variants", failed)
			if refundErr := o.ledger.Refund(ctx, req.UserID, failed, refundDesc); refundErr != nil {
				o.logger.ErrorContext(ctx, "failed to refund generation credits",
					"user_id", req.UserID,
					"amount", failed,
					"error", refundErr,
				)
			}
		}
		return images, err
	}

	images := o.persistBatch(ctx, req, prompt, urls)
	o.logger.InfoContext(ctx, "generation batch completed",
		"user_id", req.UserID,
		"variants", len(images),
	)
	return images, nil
}

// persistBatch writes one GeneratedImage row per completed variant and
// returns them, skipping slots whose variant never produced a URL.
func (o *Orchestrator) persistBatch(ctx context.Context, req Request, prompt string, urls []string) []types.GeneratedImage {
	images := make([]types.GeneratedImage, 0, len(urls))
	createdAt := o.now().UTC()
	for i, url := range urls {
		if url == "" {
			continue
		}
		img := types.GeneratedImage{
			ID:            uuid.New().String(),
			UserID:        req.UserID,
			ImageURL:      url,
			Prompt:        prompt,
			Theme:         req.Theme,
			VariantNumber: i + 1,
			CreatedAt:     createdAt,
		}
		if err := o.images.Insert(ctx, &img); err != nil {
			// The user already paid and the image exists upstream; losing
			// the row must not lose the URL.
			o.logger.ErrorContext(ctx, "failed to persist generated image",
				"user_id", req.UserID,
				"variant", i+1,
				"error", err,
			)
		}
		images = append(images, img)
	}
	return images
}

func (o *Orchestrator) validate(req Request) error {
	if req.UserID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "user ID is required", nil)
	}
	if req.Text == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "banner text is required", nil)
	}
	if req.VariantCount < 1 || req.VariantCount > o.maxVariants {
		return types.NewAppError(
			types.ErrCodeValidationVariantCount,
			fmt.Sprintf("variant count must be between 1 and %d", o.maxVariants),
			nil,
		)
	}
	return nil
}

// runVariant submits one task and polls it until it reaches a terminal
// state or the attempt cap is exhausted.
func (o *Orchestrator) runVariant(ctx context.Context, task external.GenerationTask) (string, error) {
	taskID, err := o.generator.SubmitTask(ctx, task)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < o.maxPolls; attempt++ {
		status, err := o.generator.GetTask(ctx, taskID)
		if err != nil {
			return "", err
		}

		switch status.State {
		case types.TaskStateSuccess:
			if status.ImageURL == "" {
				return "", types.NewAppError(
					types.ErrCodeUpstreamImageGen,
					"generation task succeeded without an image URL",
					nil,
				)
			}
			return status.ImageURL, nil
		case types.TaskStateFail:
			return "", types.NewAppError(
				types.ErrCodeUpstreamImageGen,
				fmt.Sprintf("generation task failed: %s", status.Error),
				nil,
			)
		}

		if err := o.sleepFn(ctx, o.pollInterval); err != nil {
			return "", err
		}
	}

	return "", types.NewAppError(
		types.ErrCodeUpstreamImageGen,
		fmt.Sprintf("generation task %s did not complete within %d polls", taskID, o.maxPolls),
		nil,
	)
}

// sleepCtx waits for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
