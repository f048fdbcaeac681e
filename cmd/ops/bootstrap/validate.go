package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ValidationResult holds the outcome of a validation check: a pass/fail
// signal plus a human-readable message for the CLI.
type ValidationResult struct {
	Valid bool

	// Message describes the result. On success it says what was verified
	// (e.g., "Stripe key verified [live mode]"), on failure why it failed.
	Message string
}

// HTTPClient is the interface used by validators that make outbound HTTP
// calls. It enables injecting mock transports in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector abstracts the database connection probe for testing.
type DatabaseConnector interface {
	// Connect attempts a connection to the given DSN and returns an error
	// if it fails. Implementations must close the connection before returning.
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector is the production DatabaseConnector: a real pgx connection
// that is opened and immediately closed.
type PgxConnector struct{}

func (c *PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Validator holds the dependencies for validation probes. It is built once
// during bootstrap initialization and threaded through the inventory.
type Validator struct {
	httpClient HTTPClient
	dbConn     DatabaseConnector
}

// NewValidator creates a Validator with production dependencies: an HTTP
// client with a 10-second timeout and a real pgx connector.
func NewValidator() *Validator {
	return &Validator{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		dbConn: &PgxConnector{},
	}
}

// NewValidatorWithDeps creates a Validator with injected dependencies for testing.
func NewValidatorWithDeps(httpClient HTTPClient, dbConn DatabaseConnector) *Validator {
	return &Validator{
		httpClient: httpClient,
		dbConn:     dbConn,
	}
}

// validateTimeout is the per-probe outer bound for active validation calls,
// covering DNS resolution and TLS handshake on top of the client timeout.
const validateTimeout = 15 * time.Second

// ---------------------------------------------------------------------------
// ValidateDatabaseURL
// ---------------------------------------------------------------------------

// ValidateDatabaseURL validates a Supabase PostgreSQL connection string.
//
// Steps:
//  1. Parse the URL and check the scheme.
//  2. Verify the port is 6543 (Supabase Transaction Mode via PgBouncer).
//     The API runs prepared-statement-free through the pooler, so session
//     mode (5432) connections are rejected here before they cause trouble.
//  3. Attempt a real connection to verify credentials and reachability.
//
// The probe connection is closed immediately after the check.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Valid: false, Message: "database URL must not be empty"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid URL format: %v", err),
		}
	}

	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme),
		}
	}

	_, port, err := net.SplitHostPort(parsed.Host)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("could not extract port from host %q: %v (port 6543 is required for Supabase Transaction Mode)", parsed.Host, err),
		}
	}

	if port != "6543" {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("port must be 6543 (Supabase Transaction Mode), got %q", port),
		}
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("connection failed: %v", err),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("database connection verified (host=%s, port=%s)", parsed.Hostname(), port),
	}
}

// ---------------------------------------------------------------------------
// ValidateStripeKey
// ---------------------------------------------------------------------------

// stripeKeyRegex matches Stripe secret keys: sk_(test|live)_ followed by
// 24+ alphanumeric characters.
var stripeKeyRegex = regexp.MustCompile(`^sk_(test|live)_[0-9a-zA-Z]{24,}$`)

// ValidateStripeKey validates a Stripe secret key by checking the format
// and then making a GET request to https://api.stripe.com/v1/account.
// The /v1/account endpoint is the lightest-weight call that proves the key
// works without side effects.
func (v *Validator) ValidateStripeKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: "Stripe secret key must not be empty"}
	}

	if !stripeKeyRegex.MatchString(key) {
		return ValidationResult{
			Valid:   false,
			Message: "Stripe secret key must match format sk_(test|live)_[alphanumeric 24+ chars]",
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, "https://api.stripe.com/v1/account", nil)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "Bannerly-Bootstrap/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Stripe API probe failed: %v", err),
		}
	}
	defer resp.Body.Close()

	// Read and discard the body to allow connection reuse.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusUnauthorized {
		return ValidationResult{
			Valid:   false,
			Message: "Stripe API returned 401 Unauthorized: key is invalid or revoked",
		}
	}

	if resp.StatusCode != http.StatusOK {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Stripe API returned HTTP %d: %s", resp.StatusCode, truncateBody(body, 200)),
		}
	}

	// Extract the account display name for operator feedback.
	var account struct {
		ID              string `json:"id"`
		BusinessProfile struct {
			Name string `json:"name"`
		} `json:"business_profile"`
	}
	displayInfo := ""
	if err := json.Unmarshal(body, &account); err == nil {
		if account.BusinessProfile.Name != "" {
			displayInfo = fmt.Sprintf(" (account: %s, name: %s)", account.ID, account.BusinessProfile.Name)
		} else if account.ID != "" {
			displayInfo = fmt.Sprintf(" (account: %s)", account.ID)
		}
	}

	mode := "test"
	if strings.HasPrefix(key, "sk_live_") {
		mode = "live"
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("Stripe key verified [%s mode]%s", mode, displayInfo),
	}
}

// ---------------------------------------------------------------------------
// ValidateAPIKeyLength
// ---------------------------------------------------------------------------

// ValidateAPIKeyLength checks that an API key is longer than 20 characters.
// Used for provider keys that cannot be probed without consuming quota or
// requiring scopes the bootstrap tool does not have (image generation,
// social posting, Paddle webhook secrets).
func (v *Validator) ValidateAPIKeyLength(_ context.Context, key, fieldName string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("%s must not be empty", fieldName)}
	}

	if len(key) <= 20 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("%s must be longer than 20 characters (got %d)", fieldName, len(key)),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("%s accepted (length: %d chars)", fieldName, len(key)),
	}
}

// ---------------------------------------------------------------------------
// ValidateRegex
// ---------------------------------------------------------------------------

// ValidateRegex is a generic validator that checks whether the input matches
// the given regular expression pattern. Used for inputs that cannot be
// actively probed, such as webhook signing secrets and public URLs.
func (v *Validator) ValidateRegex(_ context.Context, input, pattern, fieldName string) ValidationResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("%s must not be empty", fieldName),
		}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid regex pattern %q: %v", pattern, err),
		}
	}

	if !re.MatchString(input) {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("%s does not match expected format (pattern: %s)", fieldName, pattern),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("%s format validated", fieldName),
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// truncateBody returns the first n bytes of body as a string, appending
// "..." if truncation occurred. Used to include partial API response bodies
// in error messages without overwhelming the operator.
func truncateBody(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
