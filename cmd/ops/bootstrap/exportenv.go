package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// envExport maps one SSM parameter onto a .env variable.
type envExport struct {
	// EnvName is the variable name written to the .env file.
	EnvName string

	// SSMCategoryKey is the category/key under the environment prefix.
	SSMCategoryKey string

	// Decrypt requests WithDecryption for SecureString parameters.
	Decrypt bool
}

// exportInventory lists every parameter the bootstrap tool manages, in the
// order they appear in the generated file. The names match the envconfig
// tags the API and workers read at startup.
var exportInventory = []envExport{
	{EnvName: "DATABASE_URL", SSMCategoryKey: "database/url", Decrypt: true},
	{EnvName: "STRIPE_SECRET_KEY", SSMCategoryKey: "billing/stripe_secret_key", Decrypt: true},
	{EnvName: "STRIPE_WEBHOOK_SECRET", SSMCategoryKey: "billing/stripe_webhook_secret", Decrypt: true},
	{EnvName: "PADDLE_WEBHOOK_SECRET", SSMCategoryKey: "billing/paddle_webhook_secret", Decrypt: true},
	{EnvName: "IMAGEGEN_API_KEY", SSMCategoryKey: "imagegen/api_key", Decrypt: true},
	{EnvName: "SOCIAL_API_KEY", SSMCategoryKey: "social/api_key", Decrypt: true},
	{EnvName: "ADMIN_API_KEY", SSMCategoryKey: "security/admin_api_key", Decrypt: true},
	{EnvName: "APP_URL", SSMCategoryKey: "server/app_url"},
	{EnvName: "API_EXTERNAL_URL", SSMCategoryKey: "server/api_external_url"},
	{EnvName: "SQS_POST_QUEUE", SSMCategoryKey: "queue/post_queue_url"},
}

// localDefaults are appended when IncludeLocalDefaults is set, so the
// generated file works as-is for `go run ./cmd/api` against the exported
// environment's backing services.
var localDefaults = []string{
	"APP_ENV=local",
	"PORT=8080",
	"LOG_LEVEL=debug",
}

// ExportEnvConfig configures ExportEnvFile.
type ExportEnvConfig struct {
	// OutputPath is where the .env file is written.
	OutputPath string

	// Environment is the SSM environment prefix the values come from.
	// It is recorded in the file header.
	Environment string

	// SSM reads the parameter values.
	SSM *SSMManager

	// Stderr receives progress and warnings.
	Stderr io.Writer

	// IncludeLocalDefaults appends APP_ENV/PORT/LOG_LEVEL defaults for
	// local development.
	IncludeLocalDefaults bool
}

// ExportEnvFile reads every bootstrap-managed parameter from SSM and writes
// a .env file at cfg.OutputPath with 0600 permissions. Parameters that are
// missing from SSM (for example an optional Paddle secret that was skipped)
// are omitted with a warning rather than failing the export.
func ExportEnvFile(ctx context.Context, cfg ExportEnvConfig) error {
	if cfg.SSM == nil {
		return fmt.Errorf("export-env: SSM manager is required")
	}
	if cfg.OutputPath == "" {
		return fmt.Errorf("export-env: output path is required")
	}
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Generated by bannerly-bootstrap --export-env\n")
	fmt.Fprintf(&b, "# Source environment: %s\n", cfg.Environment)
	fmt.Fprintf(&b, "# Do not commit this file.\n\n")

	exported := 0
	skipped := 0

	for _, item := range exportInventory {
		path := cfg.SSM.SSMPath(item.SSMCategoryKey)

		value, err := cfg.SSM.GetParameterValue(ctx, path, item.Decrypt)
		if err != nil {
			fmt.Fprintf(cfg.Stderr, "  Warning: %s not exported (%s unavailable)\n", item.EnvName, path)
			skipped++
			continue
		}

		fmt.Fprintf(&b, "%s=%s\n", item.EnvName, value)
		exported++
	}

	if cfg.IncludeLocalDefaults {
		fmt.Fprintf(&b, "\n# Local development defaults\n")
		for _, line := range localDefaults {
			fmt.Fprintf(&b, "%s\n", line)
		}
	}

	// 0600: the file contains decrypted secrets.
	if err := os.WriteFile(cfg.OutputPath, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("export-env: writing %s: %w", cfg.OutputPath, err)
	}

	fmt.Fprintf(cfg.Stderr, "\n  Wrote %s (%d exported, %d skipped)\n", cfg.OutputPath, exported, skipped)
	return nil
}
