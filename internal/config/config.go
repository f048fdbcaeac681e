// Package config defines the global configuration structure for the Bannerly
// platform. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Missing required values or invalid formats fail the process immediately on
// startup. Provider API keys are deliberately optional: a handler that needs
// an unset provider key returns a structured 500 rather than preventing the
// rest of the API from serving.
package config

import (
	"time"

	"bannerly/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the Bannerly platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"bannerly-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	AWS       AWSConfig
	Auth      AuthConfig
	Billing   BillingConfig
	ImageGen  ImageGenConfig
	Social    SocialConfig
	Limits    LimitsConfig
	Processor ProcessorConfig

	// Build Metadata (injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs for OAuth redirects and checkout return pages (no trailing slash)
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"` // e.g., https://api.bannerly.app
	AppURL         string `envconfig:"APP_URL" validate:"required,url"`          // e.g., https://bannerly.app
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
// The worker nudge queue is optional; when unset the API never enqueues
// wake-up messages and the post worker relies solely on its cron trigger.
type AWSConfig struct {
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Bannerly"`
	PostQueueURL    string `envconfig:"SQS_POST_QUEUE"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// AuthConfig holds session and admin access secrets.
type AuthConfig struct {
	SessionTTL  time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	AdminAPIKey SecretString  `envconfig:"ADMIN_API_KEY" validate:"required"`
}

// BillingConfig holds payment provider credentials. Two providers are
// supported; each webhook endpoint returns a structured error when its
// secret is unset rather than failing startup.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`
	PaddleWebhookSecret SecretString `envconfig:"PADDLE_WEBHOOK_SECRET"`
	SignupGrantCredits  int          `envconfig:"SIGNUP_GRANT_CREDITS" default:"10"`
}

// ImageGenConfig holds credentials and tuning for the image generation task API.
type ImageGenConfig struct {
	APIKey       SecretString  `envconfig:"IMAGEGEN_API_KEY"`
	BaseURL      string        `envconfig:"IMAGEGEN_BASE_URL"`
	PollInterval time.Duration `envconfig:"IMAGEGEN_POLL_INTERVAL" default:"2s"`
	MaxPolls     int           `envconfig:"IMAGEGEN_MAX_POLLS" default:"60"`
	MaxVariants  int           `envconfig:"IMAGEGEN_MAX_VARIANTS" default:"10"`
}

// SocialConfig holds credentials for the social posting/account provider.
type SocialConfig struct {
	APIKey  SecretString `envconfig:"SOCIAL_API_KEY"`
	BaseURL string       `envconfig:"SOCIAL_BASE_URL"`
}

// LimitsConfig holds rate limiting knobs for abuse-prone endpoints.
type LimitsConfig struct {
	SignupPerWindow int           `envconfig:"SIGNUP_RATE_LIMIT" default:"5"`
	SignupWindow    time.Duration `envconfig:"SIGNUP_RATE_WINDOW" default:"1h"`
}

// ProcessorConfig tunes the scheduled-post processor.
type ProcessorConfig struct {
	BatchSize int           `envconfig:"PROCESSOR_BATCH_SIZE" default:"10"`
	Interval  time.Duration `envconfig:"PROCESSOR_INTERVAL" default:"1m"` // local loop mode only
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
