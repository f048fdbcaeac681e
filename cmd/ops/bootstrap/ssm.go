package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ssmOpTimeout bounds each individual SSM API call.
const ssmOpTimeout = 15 * time.Second

// SSMClient covers the subset of the SSM API used by the bootstrap tool.
// It exists so tests can substitute a mock.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMManager wraps parameter reads and writes under a single environment
// prefix. All paths follow the /{env}/bannerly/{category}/{key} convention,
// matching what the API's config loader resolves at startup.
type SSMManager struct {
	client SSMClient
	env    string
	logger *slog.Logger
}

// NewSSMManager builds a manager from the bootstrap session's AWS config.
func NewSSMManager(bctx *BootstrapContext) *SSMManager {
	return &SSMManager{
		client: ssm.NewFromConfig(bctx.AWSConfig),
		env:    bctx.Environment,
		logger: bctx.Logger,
	}
}

// NewSSMManagerWithClient builds a manager with an injected client. Used by tests.
func NewSSMManagerWithClient(client SSMClient, env string, logger *slog.Logger) *SSMManager {
	return &SSMManager{client: client, env: env, logger: logger}
}

// SSMPath expands a category/key pair into the full parameter path.
// Example: SSMPath("database/url") -> "/prod/bannerly/database/url".
func (m *SSMManager) SSMPath(categoryKey string) string {
	return fmt.Sprintf("/%s/bannerly/%s", m.env, categoryKey)
}

// ParameterExists probes SSM for the given path. It distinguishes a missing
// parameter (false, nil) from an API failure (false, err). The probe never
// requests decryption; only presence matters here.
func (m *SSMManager) ParameterExists(ctx context.Context, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, ssmOpTimeout)
	defer cancel()

	_, err := m.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(false),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("probing parameter %s: %w", path, err)
	}
	return true, nil
}

// PutSecret writes a SecureString parameter. When overwrite is false and the
// parameter already exists, the SSM API returns ParameterAlreadyExists.
func (m *SSMManager) PutSecret(ctx context.Context, path, value string, overwrite bool) error {
	return m.putParameter(ctx, path, value, ssmtypes.ParameterTypeSecureString, overwrite)
}

// PutString writes a plain String parameter, always overwriting.
func (m *SSMManager) PutString(ctx context.Context, path, value string) error {
	return m.putParameter(ctx, path, value, ssmtypes.ParameterTypeString, true)
}

func (m *SSMManager) putParameter(ctx context.Context, path, value string, paramType ssmtypes.ParameterType, overwrite bool) error {
	ctx, cancel := context.WithTimeout(ctx, ssmOpTimeout)
	defer cancel()

	_, err := m.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      paramType,
		Overwrite: aws.Bool(overwrite),
	})
	if err != nil {
		return fmt.Errorf("putting parameter %s: %w", path, err)
	}

	// Never log secret values; length is enough for the operator to sanity-check.
	if paramType == ssmtypes.ParameterTypeSecureString {
		m.logger.Info("stored secure parameter", "path", path, "value_length", len(value))
	} else {
		m.logger.Info("stored parameter", "path", path, "value", value)
	}
	return nil
}

// GetParameterValue fetches a parameter's value, optionally decrypting it.
// Used by --export-env to read back values for a local .env file. The caller
// is responsible for handling decrypted values securely.
func (m *SSMManager) GetParameterValue(ctx context.Context, path string, decrypt bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ssmOpTimeout)
	defer cancel()

	out, err := m.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		return "", fmt.Errorf("getting parameter %s: %w", path, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", path)
	}
	return *out.Parameter.Value, nil
}
