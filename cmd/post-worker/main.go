// Package main is the entrypoint for the post worker.
//
// The worker publishes scheduled posts whose time has arrived. In deployed
// environments it runs as a Lambda function with an SQS event source: the
// EventBridge cron rule drops a wake-up message on the queue every minute,
// and the API enqueues nudge messages for posts scheduled in the immediate
// future. Either message kind just wakes the worker; every invocation drains
// all currently due posts, so lost or duplicated messages only shift timing.
//
// Outside Lambda (local development) the worker runs as a plain loop that
// ticks at the configured processor interval until SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"bannerly/internal/config"
	"bannerly/internal/db"
	"bannerly/internal/external"
	"bannerly/internal/ledger"
	"bannerly/internal/metrics"
	"bannerly/internal/queue"
	"bannerly/internal/scheduler"
)

// maxDrainRounds caps repeated batches within one invocation when a backlog
// has built up beyond the configured batch size.
const maxDrainRounds = 10

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("post worker failed to start", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger.Info("post worker initializing",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"batch_size", cfg.Processor.BatchSize,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	clients := external.NewClientRegistry(cfg, logger)

	var schedulerMetrics scheduler.Metrics
	if cfg.Environment != "local" || cfg.AWS.EndpointURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = &cfg.AWS.EndpointURL
			}
		})
		schedulerMetrics = metrics.NewCollector(cwClient, cfg.AWS.MetricNamespace, logger)
	}

	processor := scheduler.NewProcessor(scheduler.Config{
		Posts:     db.NewPostRepository(pool),
		Images:    db.NewImageRepository(pool),
		Accounts:  db.NewSocialRepository(pool),
		Provider:  clients.Social,
		Ledger:    ledger.NewService(db.NewCreditRepository(pool), pool, logger),
		BatchSize: cfg.Processor.BatchSize,
		Metrics:   schedulerMetrics,
		Logger:    logger.With("service", "scheduler"),
	})

	worker := &worker{
		processor: processor,
		batchSize: cfg.Processor.BatchSize,
		logger:    logger,
	}

	if isLambdaEnvironment() {
		logger.Info("post worker initialized, starting Lambda runtime")
		lambda.Start(worker.Handle)
		return nil
	}

	defer pool.Close()
	return worker.runLoop(cfg.Processor.Interval)
}

// postProcessor is the slice of scheduler.Processor the worker uses.
type postProcessor interface {
	ProcessDue(ctx context.Context) (*scheduler.Summary, error)
}

// worker drains due posts on every wake-up, regardless of what triggered it.
type worker struct {
	processor postProcessor
	batchSize int
	logger    *slog.Logger
}

// Handle processes an SQS event. The records are wake-up messages (cron
// ticks or API nudges); they carry no per-record work of their own, so the
// whole event triggers a single drain. Messages are never returned as batch
// failures: a drain error is logged and left to the next cron tick rather
// than redelivered, which would only repeat the same drain.
func (w *worker) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	for _, record := range sqsEvent.Records {
		var nudge queue.NudgeMessage
		if err := json.Unmarshal([]byte(record.Body), &nudge); err != nil || nudge.NudgeID == "" {
			// Cron wake-ups are not nudge-shaped; nothing to log per record.
			continue
		}
		w.logger.InfoContext(ctx, "nudge received",
			"nudge_id", nudge.NudgeID,
			"post_id", nudge.PostID,
			"scheduled_for", nudge.ScheduledFor,
			"queue_latency", time.Since(nudge.EnqueuedAt).String(),
		)
	}

	if err := w.drain(ctx); err != nil {
		w.logger.ErrorContext(ctx, "drain failed", "error", err)
	}
	return events.SQSEventResponse{}, nil
}

// drain runs processing batches until no full batch remains due.
func (w *worker) drain(ctx context.Context) error {
	for round := 0; round < maxDrainRounds; round++ {
		summary, err := w.processor.ProcessDue(ctx)
		if err != nil {
			return err
		}

		if summary.Processed > 0 {
			w.logger.InfoContext(ctx, "batch processed",
				"round", round,
				"processed", summary.Processed,
				"posted", summary.Posted,
				"failed", summary.Failed,
			)
		}

		// A short batch means the due backlog is empty.
		if summary.Processed < w.batchSize {
			return nil
		}
	}

	w.logger.WarnContext(ctx, "drain round cap reached, leaving remainder for next tick",
		"rounds", maxDrainRounds,
	)
	return nil
}

// runLoop is the local-development substitute for the cron trigger.
func (w *worker) runLoop(interval time.Duration) error {
	w.logger.Info("post worker running in loop mode", "interval", interval.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Immediate first pass so a restart does not wait out a full interval.
	if err := w.drain(ctx); err != nil {
		w.logger.Error("drain failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("post worker shutting down")
			return nil
		case <-ticker.C:
			if err := w.drain(ctx); err != nil {
				w.logger.Error("drain failed", "error", err)
			}
		}
	}
}

// isLambdaEnvironment reports whether the process is running inside the
// AWS Lambda runtime.
func isLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" || os.Getenv("_LAMBDA_SERVER_PORT") != ""
}
