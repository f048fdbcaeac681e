// Package main is the entry point for the Bannerly API server.
//
// It loads configuration (resolving SSM-backed secrets outside local mode),
// connects to Postgres, builds the external client registry, wires the
// domain services, and mounts every route group on the core chassis before
// starting the HTTP listener.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"

	"bannerly/internal/accounts"
	"bannerly/internal/api/handlers"
	"bannerly/internal/auth"
	"bannerly/internal/billing"
	"bannerly/internal/config"
	"bannerly/internal/core"
	"bannerly/internal/db"
	"bannerly/internal/external"
	"bannerly/internal/generation"
	"bannerly/internal/ledger"
	"bannerly/internal/metrics"
	"bannerly/internal/queue"
	"bannerly/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// Secrets live in SSM Parameter Store outside local mode; the provider
	// is consulted only for variables that carry an _SSM_PARAM indirection.
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("bannerly API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	users := db.NewUserRepository(pool)
	sessions := db.NewSessionRepository(pool)
	creditStore := db.NewCreditRepository(pool)
	images := db.NewImageRepository(pool)
	posts := db.NewPostRepository(pool)
	socials := db.NewSocialRepository(pool)
	brands := db.NewBrandRepository(pool)
	subs := db.NewSubscriptionRepository(pool)
	webhookEvents := db.NewWebhookEventRepository(pool)

	clients := external.NewClientRegistry(cfg, logger)

	cwClient, sqsClient, err := newAWSClients(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing AWS clients: %w", err)
	}

	credits := ledger.NewService(creditStore, pool, logger)

	authService := auth.NewService(auth.ServiceConfig{
		Users:              users,
		Sessions:           sessions,
		Credits:            credits,
		SessionTTL:         cfg.Auth.SessionTTL,
		SignupGrantCredits: cfg.Billing.SignupGrantCredits,
		Logger:             logger.With("service", "auth"),
	})

	generator := generation.NewOrchestrator(generation.Config{
		Generator:    clients.ImageGen,
		Ledger:       credits,
		Brands:       brands,
		Images:       images,
		PollInterval: cfg.ImageGen.PollInterval,
		MaxPolls:     cfg.ImageGen.MaxPolls,
		MaxVariants:  cfg.ImageGen.MaxVariants,
		Logger:       logger.With("service", "generation"),
	})

	var schedulerMetrics scheduler.Metrics
	var apiMetrics core.MetricsCollector
	if cwClient != nil {
		collector := metrics.NewCollector(cwClient, cfg.AWS.MetricNamespace, logger)
		schedulerMetrics = collector
		apiMetrics = collector
	}

	processor := scheduler.NewProcessor(scheduler.Config{
		Posts:     posts,
		Images:    images,
		Accounts:  socials,
		Provider:  clients.Social,
		Ledger:    credits,
		BatchSize: cfg.Processor.BatchSize,
		Metrics:   schedulerMetrics,
		Logger:    logger.With("service", "scheduler"),
	})

	linker := accounts.NewService(socials, clients.Social, logger.With("service", "accounts"))

	billingService := billing.NewService(
		subs,
		credits,
		clients.Billing,
		webhookEvents,
		billing.NewStaticPlanRegistry(),
		logger.With("service", "billing"),
	)

	var sqsSender queue.SQSSender
	if sqsClient != nil {
		sqsSender = sqsClient
	}
	nudger := queue.NewPostTrigger(sqsSender, cfg.AWS, logger.With("service", "queue"))

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = auth.NewAuthenticator(sessions)
	srv.RateLimits = core.NewMemoryRateLimitStore()
	srv.Metrics = apiMetrics
	srv.HealthProbes = []core.HealthProbe{
		core.ProbeFunc{ProbeName: "database", Fn: pool.Ping},
	}

	validator := core.NewValidator(logger)

	authHandler := handlers.NewAuthHandler(
		authService,
		validator,
		srv.EndpointRateLimit("signup", cfg.Limits.SignupPerWindow, cfg.Limits.SignupWindow),
		logger,
	)
	creditsHandler := handlers.NewCreditsHandler(credits, logger)
	imagesHandler := handlers.NewImagesHandler(generator, images, validator, logger)
	postsHandler := handlers.NewPostsHandler(posts, images, credits, processor, nudger, validator, logger)
	accountsHandler := handlers.NewAccountsHandler(linker, validator, cfg.Server.AppURL, logger)
	brandKitHandler := handlers.NewBrandKitHandler(brands, validator, logger)
	billingHandler := handlers.NewBillingHandler(billingService, users, validator, logger)

	srv.V1RouteRegistrars = []func(chi.Router){
		authHandler.RegisterRoutes,
		creditsHandler.RegisterRoutes,
		imagesHandler.RegisterRoutes,
		postsHandler.RegisterRoutes,
		accountsHandler.RegisterRoutes,
		brandKitHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
	}

	stripeWebhook := handlers.NewStripeWebhookHandler(
		clients.StripeVerifier,
		billingService,
		cfg.Billing.StripeWebhookSecret.Unmask(),
		logger,
	)
	paddleWebhook := handlers.NewPaddleWebhookHandler(
		clients.PaddleVerifier,
		billingService,
		cfg.Billing.PaddleWebhookSecret.Unmask(),
		logger,
	)
	srv.WebhookRegistrars = []func(chi.Router){
		stripeWebhook.RegisterRoutes,
		paddleWebhook.RegisterRoutes,
	}

	maintenance := scheduler.NewMaintenance(scheduler.MaintenanceConfig{
		Sessions: sessions,
		Posts:    posts,
		Ledger:   credits,
		Logger:   logger.With("service", "maintenance"),
	})
	adminHandler := handlers.NewAdminHandler(processor, maintenance, logger)
	srv.InternalRouteRegistrars = []func(chi.Router){
		adminHandler.RegisterRoutes,
	}

	srv.MountRoutes()

	return runHTTPServer(cfg, logger, srv)
}

// newAWSClients builds the CloudWatch and SQS clients. In local mode without
// an endpoint override both are nil and the dependent features (metrics
// publication, worker nudges) are disabled.
func newAWSClients(ctx context.Context, cfg *config.Config) (*cloudwatch.Client, *sqs.Client, error) {
	if cfg.Environment == "local" && cfg.AWS.EndpointURL == "" {
		return nil, nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("loading AWS config: %w", err)
	}

	// Endpoint override points the SDK at LocalStack during development.
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	return cwClient, sqsClient, nil
}

// newLogger creates a structured JSON logger at the configured level.
func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// runHTTPServer starts the HTTP listener and blocks until a termination
// signal arrives or the listener fails, then drains in-flight requests.
func runHTTPServer(cfg *config.Config, logger *slog.Logger, srv *core.Server) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server error: %w", err)
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server cleanup failed", "error", err)
	}

	logger.Info("server shutdown complete")
	return nil
}
