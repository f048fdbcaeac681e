// Package main implements the job-runner CLI tool for invoking worker jobs
// directly, bypassing the Lambda shim and the /internal HTTP endpoints.
//
// This tool is intended for local development and operational debugging.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=all
//	go run ./cmd/tools/job-runner --task=fail_overdue_posts --grace=6h
//	go run ./cmd/tools/job-runner --task=process_due
//	go run ./cmd/tools/job-runner --list
//
// The tool loads configuration the same way the servers do (.env via
// godotenv, SSM outside local mode). The process_due task uses the external
// client registry, so in local mode posts are published against the stub
// posting provider.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"bannerly/internal/config"
	"bannerly/internal/db"
	"bannerly/internal/external"
	"bannerly/internal/ledger"
	"bannerly/internal/scheduler"
)

// taskProcessDue drains one batch of due posts; the remaining names come
// from the maintenance multiplexer.
const taskProcessDue = "process_due"

var validTasks = map[string]string{
	scheduler.TaskAll:                  "Run every maintenance task",
	scheduler.TaskPurgeExpiredSessions: "Delete sessions past their expiry",
	scheduler.TaskFailOverduePosts:     "Sweep pending posts past the overdue grace period to failed",
	taskProcessDue:                     "Publish one batch of due scheduled posts",
}

func main() {
	taskFlag := flag.String("task", "", "Task to execute (e.g., fail_overdue_posts)")
	graceFlag := flag.Duration("grace", 0, "Override the overdue grace period (e.g., 6h)")
	listFlag := flag.Bool("list", false, "List all available tasks and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Invoke worker jobs directly, bypassing Lambda and the internal API.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nUse --list to see all available tasks.\n")
	}

	flag.Parse()

	if *listFlag {
		printAvailableTasks()
		return
	}

	if *taskFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --task is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if _, ok := validTasks[*taskFlag]; !ok {
		fmt.Fprintf(os.Stderr, "error: unknown task %q\n\n", *taskFlag)
		printAvailableTasks()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(logger, *taskFlag, *graceFlag); err != nil {
		logger.Error("job failed", "task", *taskFlag, "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, task string, grace time.Duration) error {
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	start := time.Now()

	credits := ledger.NewService(db.NewCreditRepository(pool), pool, logger)

	var result any
	switch task {
	case taskProcessDue:
		clients := external.NewClientRegistry(cfg, logger)
		processor := scheduler.NewProcessor(scheduler.Config{
			Posts:     db.NewPostRepository(pool),
			Images:    db.NewImageRepository(pool),
			Accounts:  db.NewSocialRepository(pool),
			Provider:  clients.Social,
			Ledger:    credits,
			BatchSize: cfg.Processor.BatchSize,
			Logger:    logger,
		})
		result, err = processor.ProcessDue(ctx)
	default:
		maintenance := scheduler.NewMaintenance(scheduler.MaintenanceConfig{
			Sessions:     db.NewSessionRepository(pool),
			Posts:        db.NewPostRepository(pool),
			Ledger:       credits,
			OverdueGrace: grace,
			Logger:       logger,
		})
		result, err = maintenance.Run(ctx, task)
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	logger.Info("job complete", "task", task, "duration", time.Since(start).String())
	fmt.Println(string(out))
	return nil
}

func printAvailableTasks() {
	names := make([]string, 0, len(validTasks))
	for name := range validTasks {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available tasks:")
	for _, name := range names {
		fmt.Printf("  %-24s %s\n", name, validTasks[name])
	}
}
