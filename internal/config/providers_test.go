package config

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

func TestProvidersSatisfySecretProvider(t *testing.T) {
	var _ SecretProvider = (*EnvVarProvider)(nil)
	var _ SecretProvider = (*SSMProvider)(nil)
}

func TestEnvVarProviderResolvesSetKeys(t *testing.T) {
	t.Setenv("BANNERLY_TEST_SECRET", "s3cret")

	p := NewEnvVarProvider()
	result, err := p.GetParametersBatch(context.Background(), []string{"BANNERLY_TEST_SECRET", "BANNERLY_TEST_MISSING"})
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}
	if result["BANNERLY_TEST_SECRET"] != "s3cret" {
		t.Errorf("resolved value = %q, want %q", result["BANNERLY_TEST_SECRET"], "s3cret")
	}
	if _, ok := result["BANNERLY_TEST_MISSING"]; ok {
		t.Error("missing key should be omitted from the result")
	}
}

// mockSSMClient records requests and replays canned responses per call.
type mockSSMClient struct {
	calls     [][]string
	responses []*ssm.GetParametersOutput
	err       error
}

func (m *mockSSMClient) GetParameters(_ context.Context, params *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	m.calls = append(m.calls, params.Names)
	if m.err != nil {
		return nil, m.err
	}
	idx := len(m.calls) - 1
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return &ssm.GetParametersOutput{}, nil
}

func param(name, value string) ssmtypes.Parameter {
	return ssmtypes.Parameter{Name: aws.String(name), Value: aws.String(value)}
}

func TestSSMProviderEmptyKeys(t *testing.T) {
	p := NewSSMProvider("us-east-1")
	result, err := p.GetParametersBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetParametersBatch with no keys returned error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result, got %v", result)
	}
}

func TestSSMProviderBatchesRequests(t *testing.T) {
	keys := make([]string, 0, 12)
	resp1 := &ssm.GetParametersOutput{}
	resp2 := &ssm.GetParametersOutput{}
	for i := 0; i < 12; i++ {
		name := "/dev/bannerly/param-" + string(rune('a'+i))
		keys = append(keys, name)
		if i < ssmMaxBatchSize {
			resp1.Parameters = append(resp1.Parameters, param(name, "v"))
		} else {
			resp2.Parameters = append(resp2.Parameters, param(name, "v"))
		}
	}

	client := &mockSSMClient{responses: []*ssm.GetParametersOutput{resp1, resp2}}
	p := newSSMProviderWithClient("us-east-1", client)

	result, err := p.GetParametersBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}
	if len(client.calls) != 2 {
		t.Fatalf("expected 2 batched calls, got %d", len(client.calls))
	}
	if len(client.calls[0]) != ssmMaxBatchSize || len(client.calls[1]) != 2 {
		t.Errorf("batch sizes = %d, %d; want %d, 2", len(client.calls[0]), len(client.calls[1]), ssmMaxBatchSize)
	}
	if len(result) != 12 {
		t.Errorf("resolved %d parameters, want 12", len(result))
	}
}

func TestSSMProviderInvalidParameters(t *testing.T) {
	client := &mockSSMClient{
		responses: []*ssm.GetParametersOutput{
			{InvalidParameters: []string{"/dev/bannerly/missing"}},
		},
	}
	p := newSSMProviderWithClient("us-east-1", client)

	_, err := p.GetParametersBatch(context.Background(), []string{"/dev/bannerly/missing"})
	if err == nil {
		t.Fatal("expected error for invalid SSM parameter")
	}
}

func TestSSMProviderClientError(t *testing.T) {
	client := &mockSSMClient{err: errors.New("throttled")}
	p := newSSMProviderWithClient("us-east-1", client)

	_, err := p.GetParametersBatch(context.Background(), []string{"/dev/bannerly/x"})
	if err == nil {
		t.Fatal("expected wrapped client error")
	}
}

func TestSSMProviderContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &mockSSMClient{}
	p := newSSMProviderWithClient("us-east-1", client)

	_, err := p.GetParametersBatch(ctx, []string{"/dev/bannerly/x"})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if len(client.calls) != 0 {
		t.Errorf("client should not be called after cancellation, got %d calls", len(client.calls))
	}
}
