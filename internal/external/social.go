package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bannerly/internal/types"
)

// SocialClientConfig holds the configuration for creating a
// SocialHTTPClient.
type SocialClientConfig struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
}

// socialAccount is the provider's account representation.
type socialAccount struct {
	ID       string `json:"id"`
	Platform string `json:"platform"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// socialConnectResponse is the body of the connect-URL endpoint.
type socialConnectResponse struct {
	URL string `json:"url"`
}

// socialAccountsResponse wraps account listings.
type socialAccountsResponse struct {
	Accounts []socialAccount `json:"accounts"`
}

// socialFinalizeRequest confirms a set of pending accounts.
type socialFinalizeRequest struct {
	SessionToken string   `json:"session_token"`
	AccountIDs   []string `json:"account_ids"`
}

// socialPublishRequest is the body of a publish call.
type socialPublishRequest struct {
	ImageURL       string          `json:"image_url"`
	Caption        string          `json:"caption"`
	AccountIDs     []string        `json:"account_ids"`
	Platforms      []string        `json:"platforms"`
	TikTokMetadata json.RawMessage `json:"tiktok_metadata,omitempty"`
}

// socialPlatformResult is the provider's per-platform publish outcome.
type socialPlatformResult struct {
	Platform string `json:"platform"`
	Success  bool   `json:"success"`
	PostID   string `json:"post_id,omitempty"`
	PostedAt string `json:"posted_at,omitempty"`
	Error    string `json:"error,omitempty"`
}

// socialPublishResponse is the body returned by publish and status calls.
type socialPublishResponse struct {
	PostID  string                 `json:"post_id"`
	Posted  bool                   `json:"posted"`
	Results []socialPlatformResult `json:"results"`
}

// SocialHTTPClient implements SocialProvider against the posting provider's
// REST API through BaseClient.
type SocialHTTPClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewSocialClient creates a SocialHTTPClient.
func NewSocialClient(httpClient *http.Client, cfg SocialClientConfig) *SocialHTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"social",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Bannerly/1.0",
	)

	return &SocialHTTPClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// NewSocialClientWithBase creates a SocialHTTPClient with a pre-configured
// BaseClient, used by tests to control retry behavior.
func NewSocialClientWithBase(base *BaseClient, cfg SocialClientConfig) *SocialHTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SocialHTTPClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// GetConnectURL requests an authorization URL for the account-linking flow.
func (c *SocialHTTPClient) GetConnectURL(ctx context.Context, userID string) (string, error) {
	params := url.Values{}
	params.Set("user_id", userID)

	resp, err := c.doGet(ctx, "/v1/connect-url", params)
	if err != nil {
		return "", c.wrapError("GetConnectURL", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", c.handleErrorResponse(resp, "GetConnectURL")
	}

	var connectResp socialConnectResponse
	if err := json.NewDecoder(resp.Body).Decode(&connectResp); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode connect-url response",
			err,
		)
	}

	if connectResp.URL == "" {
		return "", types.NewAppError(
			types.ErrCodeUpstreamSocial,
			"posting provider returned empty connect URL",
			nil,
		)
	}

	return connectResp.URL, nil
}

// GetPendingAccounts lists the accounts discovered during the OAuth session
// that are waiting for the user's confirmation.
func (c *SocialHTTPClient) GetPendingAccounts(ctx context.Context, sessionToken string) ([]types.PendingAccount, error) {
	if sessionToken == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"session token is required",
			nil,
		)
	}

	params := url.Values{}
	params.Set("session_token", sessionToken)

	resp, err := c.doGet(ctx, "/v1/pending-accounts", params)
	if err != nil {
		return nil, c.wrapError("GetPendingAccounts", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "GetPendingAccounts")
	}

	var accountsResp socialAccountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&accountsResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode pending-accounts response",
			err,
		)
	}

	return mapAccounts(accountsResp.Accounts), nil
}

// FinalizeAccounts confirms the chosen accounts with the provider. The
// provider returns the full account records, which the linking pipeline
// upserts locally.
func (c *SocialHTTPClient) FinalizeAccounts(ctx context.Context, sessionToken string, accountIDs []string) ([]types.PendingAccount, error) {
	if len(accountIDs) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"at least one account ID is required",
			nil,
		)
	}

	resp, err := c.doPost(ctx, "/v1/finalize", socialFinalizeRequest{
		SessionToken: sessionToken,
		AccountIDs:   accountIDs,
	})
	if err != nil {
		return nil, c.wrapError("FinalizeAccounts", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "FinalizeAccounts")
	}

	var accountsResp socialAccountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&accountsResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode finalize response",
			err,
		)
	}

	c.logger.InfoContext(ctx, "accounts finalized at provider",
		"requested", len(accountIDs),
		"returned", len(accountsResp.Accounts),
	)

	return mapAccounts(accountsResp.Accounts), nil
}

// ListAccounts returns the accounts currently linked at the provider.
func (c *SocialHTTPClient) ListAccounts(ctx context.Context, userID string) ([]types.PendingAccount, error) {
	params := url.Values{}
	params.Set("user_id", userID)

	resp, err := c.doGet(ctx, "/v1/accounts", params)
	if err != nil {
		return nil, c.wrapError("ListAccounts", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "ListAccounts")
	}

	var accountsResp socialAccountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&accountsResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode accounts response",
			err,
		)
	}

	return mapAccounts(accountsResp.Accounts), nil
}

// Unlink detaches an account at the provider side. A 404 from the provider
// is treated as already unlinked.
func (c *SocialHTTPClient) Unlink(ctx context.Context, externalAccountID string) error {
	if externalAccountID == "" {
		return types.NewAppError(
			types.ErrCodeValidationMissingField,
			"account ID is required",
			nil,
		)
	}

	reqURL := fmt.Sprintf("%s/v1/accounts/%s", c.baseURL, url.PathEscape(externalAccountID))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create unlink request",
			err,
		)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return c.wrapError("Unlink", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp, "Unlink")
	}

	return nil
}

// Publish posts an image with a caption to the given accounts. One call
// covers every target platform of a scheduled post.
func (c *SocialHTTPClient) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if req.ImageURL == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"image URL is required for publishing",
			nil,
		)
	}
	if len(req.AccountIDs) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"at least one account ID is required for publishing",
			nil,
		)
	}

	platforms := make([]string, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		platforms = append(platforms, string(p))
	}

	resp, err := c.doPost(ctx, "/v1/post", socialPublishRequest{
		ImageURL:       req.ImageURL,
		Caption:        req.Caption,
		AccountIDs:     req.AccountIDs,
		Platforms:      platforms,
		TikTokMetadata: req.TikTokMetadata,
	})
	if err != nil {
		return nil, c.wrapError("Publish", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "Publish")
	}

	var publishResp socialPublishResponse
	if err := json.NewDecoder(resp.Body).Decode(&publishResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode publish response",
			err,
		)
	}

	result := &PublishResult{
		ExternalPostID: publishResp.PostID,
		Results:        mapPlatformResults(publishResp.Results),
	}

	c.logger.InfoContext(ctx, "publish call completed",
		"external_post_id", result.ExternalPostID,
		"platforms", len(result.Results),
	)

	return result, nil
}

// GetPostStatus queries the provider for the outcome of an earlier publish
// call. It never re-posts.
func (c *SocialHTTPClient) GetPostStatus(ctx context.Context, externalPostID string) (*PostStatusResult, error) {
	if externalPostID == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"external post ID is required for status check",
			nil,
		)
	}

	reqURL := fmt.Sprintf("%s/v1/post/%s", c.baseURL, url.PathEscape(externalPostID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create post status request",
			err,
		)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapError("GetPostStatus", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "GetPostStatus")
	}

	var statusResp socialPublishResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode post status response",
			err,
		)
	}

	return &PostStatusResult{
		ExternalPostID: statusResp.PostID,
		Posted:         statusResp.Posted,
		Results:        mapPlatformResults(statusResp.Results),
	}, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

func (c *SocialHTTPClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.base.Do(req)
}

func (c *SocialHTTPClient) doPost(ctx context.Context, path string, body any) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to serialize request body",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.base.Do(req)
}

// ---------------------------------------------------------------------------
// Mapping
// ---------------------------------------------------------------------------

// mapAccounts normalizes provider account records. Platform names arrive
// with inconsistent casing.
func mapAccounts(accounts []socialAccount) []types.PendingAccount {
	out := make([]types.PendingAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, types.PendingAccount{
			ExternalAccountID: a.ID,
			Platform:          types.NormalizePlatform(a.Platform),
			Username:          a.Username,
			Name:              a.Name,
		})
	}
	return out
}

func mapPlatformResults(results []socialPlatformResult) []types.PlatformResult {
	out := make([]types.PlatformResult, 0, len(results))
	for _, r := range results {
		pr := types.PlatformResult{
			Platform: types.NormalizePlatform(r.Platform),
			Success:  r.Success,
			PostID:   r.PostID,
			Error:    r.Error,
		}
		if r.PostedAt != "" {
			if t, err := time.Parse(time.RFC3339, r.PostedAt); err == nil {
				pr.PostedAt = &t
			}
		}
		out = append(out, pr)
	}
	return out
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

func (c *SocialHTTPClient) handleErrorResponse(resp *http.Response, operation string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.Error("posting provider error",
		"operation", operation,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return types.NewAppError(
			types.ErrCodeUpstreamSocial,
			"posting provider authentication failed (401)",
			fmt.Errorf("%s returned 401: %s", operation, bodyStr),
		)
	case resp.StatusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundAccount,
			fmt.Sprintf("posting provider resource not found: %s", operation),
			fmt.Errorf("%s returned 404: %s", operation, bodyStr),
		)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return types.NewAppError(
			types.ErrCodeUpstreamSocial,
			fmt.Sprintf("posting provider client error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("%s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamSocial,
			fmt.Sprintf("posting provider server error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("%s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	}
}

func (c *SocialHTTPClient) wrapError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return types.NewAppError(
			appErr.Code,
			fmt.Sprintf("social %s: %s", operation, appErr.Message),
			appErr.Err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamSocial,
		fmt.Sprintf("social %s failed", operation),
		err,
	)
}

var _ SocialProvider = (*SocialHTTPClient)(nil)
