package external

import (
	"log/slog"
	"net/http"
	"time"

	"bannerly/internal/config"
)

// ---------------------------------------------------------------------------
// Client Registry
//
// Central factory that instantiates all external service clients from
// configuration. In local mode the registry is populated with stubs so the
// application can boot without real provider credentials. In other
// environments each client is built only when its credentials are present;
// missing credentials yield an Unconfigured implementation so the process
// still starts and only the dependent endpoints fail.
// ---------------------------------------------------------------------------

// ClientRegistry holds all external service client interfaces. It is the
// single point of access to third-party services for the rest of the
// application.
type ClientRegistry struct {
	ImageGen ImageGenerator
	Social   SocialProvider
	Billing  BillingService

	StripeVerifier WebhookVerifier
	PaddleVerifier WebhookVerifier
}

// NewClientRegistry initializes all external service clients.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Environment == "local" {
		logger.Info("initializing external clients in STUB mode",
			"environment", cfg.Environment,
		)
		return newStubRegistry(logger)
	}

	logger.Info("initializing external clients",
		"environment", cfg.Environment,
	)
	return newProductionRegistry(cfg, logger)
}

// newStubRegistry creates a ClientRegistry populated entirely with stubs.
func newStubRegistry(logger *slog.Logger) *ClientRegistry {
	stubLogger := logger.With("mode", "stub")

	return &ClientRegistry{
		ImageGen:       NewStubImageGenerator(stubLogger),
		Social:         NewStubSocialProvider(stubLogger),
		Billing:        NewStubBillingService(stubLogger),
		StripeVerifier: NewStubWebhookVerifier(stubLogger),
		PaddleVerifier: NewStubWebhookVerifier(stubLogger),
	}
}

// newProductionRegistry creates a ClientRegistry with real implementations
// for every provider whose credentials are configured.
func newProductionRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	reg := &ClientRegistry{
		StripeVerifier: &StripeVerifier{},
		PaddleVerifier: &PaddleVerifier{},
	}

	if cfg.ImageGen.APIKey.IsSet() {
		// Submit and poll calls are individually short; task lifetime is
		// handled by the orchestrator's poll loop.
		imageGenHTTPClient := &http.Client{Timeout: 30 * time.Second}
		reg.ImageGen = NewImageGenClient(imageGenHTTPClient, ImageGenClientConfig{
			APIKey:  cfg.ImageGen.APIKey.Unmask(),
			BaseURL: cfg.ImageGen.BaseURL,
			Logger:  logger.With("client", "imagegen"),
		})
	} else {
		logger.Warn("image generation credentials missing; generation endpoints will fail")
		reg.ImageGen = UnconfiguredImageGenerator{}
	}

	if cfg.Social.APIKey.IsSet() {
		socialHTTPClient := &http.Client{Timeout: 30 * time.Second}
		reg.Social = NewSocialClient(socialHTTPClient, SocialClientConfig{
			APIKey:  cfg.Social.APIKey.Unmask(),
			BaseURL: cfg.Social.BaseURL,
			Logger:  logger.With("client", "social"),
		})
	} else {
		logger.Warn("posting provider credentials missing; posting endpoints will fail")
		reg.Social = UnconfiguredSocialProvider{}
	}

	if cfg.Billing.StripeSecretKey.IsSet() {
		stripeHTTPClient := &http.Client{Timeout: 20 * time.Second}
		reg.Billing = NewStripeClient(stripeHTTPClient, StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
			Logger:    logger.With("client", "stripe"),
		})
	} else {
		logger.Warn("Stripe credentials missing; checkout endpoints will fail")
		reg.Billing = UnconfiguredBillingService{}
	}

	return reg
}
