package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ssmWithValues returns a mock client that serves the given path->value map
// and reports ParameterNotFound for anything else.
func ssmWithValues(values map[string]string) *mockSSMClient {
	return &mockSSMClient{
		getParameterFn: func(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
			value, ok := values[*params.Name]
			if !ok {
				return nil, &ssmtypes.ParameterNotFound{}
			}
			return &ssm.GetParameterOutput{
				Parameter: &ssmtypes.Parameter{Name: params.Name, Value: aws.String(value)},
			}, nil
		},
	}
}

func fullParameterSet() map[string]string {
	return map[string]string{
		"/dev/bannerly/database/url":                  "postgres://db:6543/app",
		"/dev/bannerly/billing/stripe_secret_key":     "sk_test_abc",
		"/dev/bannerly/billing/stripe_webhook_secret": "whsec_abc",
		"/dev/bannerly/billing/paddle_webhook_secret": "pdl_secret",
		"/dev/bannerly/imagegen/api_key":              "img-key",
		"/dev/bannerly/social/api_key":                "soc-key",
		"/dev/bannerly/security/admin_api_key":        "admin-key",
		"/dev/bannerly/server/app_url":                "https://bannerly.app",
		"/dev/bannerly/server/api_external_url":       "https://api.bannerly.app",
		"/dev/bannerly/queue/post_queue_url":          "https://sqs.us-east-1.amazonaws.com/123/posts",
	}
}

func TestExportEnvFile(t *testing.T) {
	client := ssmWithValues(fullParameterSet())
	outPath := filepath.Join(t.TempDir(), ".env")
	stderr := &bytes.Buffer{}

	err := ExportEnvFile(context.Background(), ExportEnvConfig{
		OutputPath:           outPath,
		Environment:          "dev",
		SSM:                  newTestSSMManager(t, client, "dev"),
		Stderr:               stderr,
		IncludeLocalDefaults: true,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "DATABASE_URL=postgres://db:6543/app")
	assert.Contains(t, content, "STRIPE_SECRET_KEY=sk_test_abc")
	assert.Contains(t, content, "STRIPE_WEBHOOK_SECRET=whsec_abc")
	assert.Contains(t, content, "PADDLE_WEBHOOK_SECRET=pdl_secret")
	assert.Contains(t, content, "IMAGEGEN_API_KEY=img-key")
	assert.Contains(t, content, "SOCIAL_API_KEY=soc-key")
	assert.Contains(t, content, "ADMIN_API_KEY=admin-key")
	assert.Contains(t, content, "APP_URL=https://bannerly.app")
	assert.Contains(t, content, "API_EXTERNAL_URL=https://api.bannerly.app")
	assert.Contains(t, content, "SQS_POST_QUEUE=https://sqs.us-east-1.amazonaws.com/123/posts")

	// Local defaults appended when requested.
	assert.Contains(t, content, "APP_ENV=local")
	assert.Contains(t, content, "PORT=8080")
	assert.Contains(t, content, "LOG_LEVEL=debug")

	// Source environment recorded in the header.
	assert.Contains(t, content, "# Source environment: dev")
}

func TestExportEnvFilePermissions(t *testing.T) {
	client := ssmWithValues(fullParameterSet())
	outPath := filepath.Join(t.TempDir(), ".env")

	err := ExportEnvFile(context.Background(), ExportEnvConfig{
		OutputPath:  outPath,
		Environment: "dev",
		SSM:         newTestSSMManager(t, client, "dev"),
	})
	require.NoError(t, err)

	// The file holds decrypted secrets; owner-only access.
	info, err := os.Stat(outPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestExportEnvFileSkipsMissingParameters(t *testing.T) {
	values := fullParameterSet()
	delete(values, "/dev/bannerly/billing/paddle_webhook_secret")
	client := ssmWithValues(values)

	outPath := filepath.Join(t.TempDir(), ".env")
	stderr := &bytes.Buffer{}

	err := ExportEnvFile(context.Background(), ExportEnvConfig{
		OutputPath:  outPath,
		Environment: "dev",
		SSM:         newTestSSMManager(t, client, "dev"),
		Stderr:      stderr,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "PADDLE_WEBHOOK_SECRET")
	assert.Contains(t, stderr.String(), "PADDLE_WEBHOOK_SECRET not exported")
	assert.Contains(t, stderr.String(), "1 skipped")
}

func TestExportEnvFileWithoutLocalDefaults(t *testing.T) {
	client := ssmWithValues(fullParameterSet())
	outPath := filepath.Join(t.TempDir(), ".env")

	err := ExportEnvFile(context.Background(), ExportEnvConfig{
		OutputPath:  outPath,
		Environment: "prod",
		SSM:         newTestSSMManager(t, client, "prod"),
	})
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "APP_ENV=local")
}

func TestExportEnvFileDecryptsSecrets(t *testing.T) {
	client := ssmWithValues(fullParameterSet())
	outPath := filepath.Join(t.TempDir(), ".env")

	err := ExportEnvFile(context.Background(), ExportEnvConfig{
		OutputPath:  outPath,
		Environment: "dev",
		SSM:         newTestSSMManager(t, client, "dev"),
	})
	require.NoError(t, err)

	decrypted := make(map[string]bool)
	for _, call := range client.getCalls {
		decrypted[*call.Name] = *call.WithDecryption
	}

	// Secrets request decryption, plain strings do not.
	assert.True(t, decrypted["/dev/bannerly/database/url"])
	assert.True(t, decrypted["/dev/bannerly/security/admin_api_key"])
	assert.False(t, decrypted["/dev/bannerly/server/app_url"])
	assert.False(t, decrypted["/dev/bannerly/queue/post_queue_url"])
}

func TestExportEnvFileConfigErrors(t *testing.T) {
	client := ssmWithValues(fullParameterSet())

	t.Run("missing SSM manager", func(t *testing.T) {
		err := ExportEnvFile(context.Background(), ExportEnvConfig{
			OutputPath:  filepath.Join(t.TempDir(), ".env"),
			Environment: "dev",
		})
		require.Error(t, err)
	})

	t.Run("missing output path", func(t *testing.T) {
		err := ExportEnvFile(context.Background(), ExportEnvConfig{
			Environment: "dev",
			SSM:         newTestSSMManager(t, client, "dev"),
		})
		require.Error(t, err)
	})
}

func TestExportEnvFileProdValues(t *testing.T) {
	values := map[string]string{}
	for path, value := range fullParameterSet() {
		values["/prod"+path[len("/dev"):]] = value
	}
	client := ssmWithValues(values)
	outPath := filepath.Join(t.TempDir(), ".env")

	err := ExportEnvFile(context.Background(), ExportEnvConfig{
		OutputPath:  outPath,
		Environment: "prod",
		SSM:         newTestSSMManager(t, client, "prod"),
	})
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DATABASE_URL=postgres://db:6543/app")
}
