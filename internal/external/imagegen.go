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
	"strings"
	"time"

	"bannerly/internal/types"
)

// ImageGenClientConfig holds the configuration for creating an
// ImageGenHTTPClient.
type ImageGenClientConfig struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
}

// imageGenTaskRequest is the body sent to the task submission endpoint.
type imageGenTaskRequest struct {
	Prompt             string   `json:"prompt"`
	Model              string   `json:"model,omitempty"`
	ReferenceImageURLs []string `json:"reference_image_urls,omitempty"`
	AspectRatio        string   `json:"aspect_ratio,omitempty"`
}

// imageGenTaskResponse is the body returned by both the submission and the
// status endpoints.
type imageGenTaskResponse struct {
	TaskID   string `json:"task_id"`
	State    string `json:"state"`
	ImageURL string `json:"image_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ImageGenHTTPClient implements ImageGenerator by calling the generation
// task API through BaseClient, so submissions and polls inherit the circuit
// breaker and retry behavior and tests can run against httptest.
type ImageGenHTTPClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewImageGenClient creates an ImageGenHTTPClient. The httpClient timeout
// should cover a single submit or poll call, not the whole task lifetime.
func NewImageGenClient(httpClient *http.Client, cfg ImageGenClientConfig) *ImageGenHTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"imagegen",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    1 * time.Second,
			MaxWait:    10 * time.Second,
		},
		"Bannerly/1.0",
	)

	return &ImageGenHTTPClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// NewImageGenClientWithBase creates an ImageGenHTTPClient with a
// pre-configured BaseClient, used by tests to control retry behavior.
func NewImageGenClientWithBase(base *BaseClient, cfg ImageGenClientConfig) *ImageGenHTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ImageGenHTTPClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// SubmitTask starts an asynchronous generation task by POSTing to
// /v1/tasks. Returns the provider's task ID.
func (c *ImageGenHTTPClient) SubmitTask(ctx context.Context, task GenerationTask) (string, error) {
	if task.Prompt == "" {
		return "", types.NewAppError(
			types.ErrCodeValidationMissingField,
			"generation prompt is required",
			nil,
		)
	}

	bodyBytes, err := json.Marshal(imageGenTaskRequest{
		Prompt:             task.Prompt,
		Model:              task.Model,
		ReferenceImageURLs: task.ReferenceImageURLs,
		AspectRatio:        task.AspectRatio,
	})
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to serialize generation task",
			err,
		)
	}

	url := c.baseURL + "/v1/tasks"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create task submission request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.InfoContext(ctx, "submitting generation task",
		"reference_images", len(task.ReferenceImageURLs),
		"aspect_ratio", task.AspectRatio,
	)

	resp, err := c.base.Do(req)
	if err != nil {
		return "", c.wrapError("SubmitTask", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", c.handleErrorResponse(resp, "SubmitTask")
	}

	var taskResp imageGenTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&taskResp); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode task submission response",
			err,
		)
	}

	if taskResp.TaskID == "" {
		return "", types.NewAppError(
			types.ErrCodeUpstreamImageGen,
			"generation API returned empty task ID",
			nil,
		)
	}

	c.logger.InfoContext(ctx, "generation task submitted",
		"task_id", taskResp.TaskID,
		"state", taskResp.State,
	)

	return taskResp.TaskID, nil
}

// GetTask retrieves the current state of a task via GET /v1/tasks/{id}.
func (c *ImageGenHTTPClient) GetTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	if taskID == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"task ID is required for status check",
			nil,
		)
	}

	url := fmt.Sprintf("%s/v1/tasks/%s", c.baseURL, taskID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create task status request",
			err,
		)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapError("GetTask", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "GetTask")
	}

	var taskResp imageGenTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&taskResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode task status response",
			err,
		)
	}

	return &TaskStatus{
		ID:       taskResp.TaskID,
		State:    mapTaskState(taskResp.State),
		ImageURL: taskResp.ImageURL,
		Error:    taskResp.Error,
	}, nil
}

// mapTaskState normalizes the provider's state strings onto the domain
// enum. Unknown states are treated as still-processing so the poll loop's
// attempt cap decides the outcome.
func mapTaskState(raw string) types.GenerationTaskState {
	switch strings.ToLower(raw) {
	case "queued", "pending", "in_queue":
		return types.TaskStateQueued
	case "processing", "running", "in_progress":
		return types.TaskStateProcessing
	case "success", "succeeded", "completed":
		return types.TaskStateSuccess
	case "fail", "failed", "error":
		return types.TaskStateFail
	default:
		return types.TaskStateProcessing
	}
}

// handleErrorResponse reads and logs the error body from a non-2xx
// response, then returns an AppError.
func (c *ImageGenHTTPClient) handleErrorResponse(resp *http.Response, operation string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.Error("generation API error",
		"operation", operation,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return types.NewAppError(
			types.ErrCodeUpstreamImageGen,
			"generation API authentication failed (401)",
			fmt.Errorf("%s returned 401: %s", operation, bodyStr),
		)
	case resp.StatusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeUpstreamImageGen,
			fmt.Sprintf("generation task not found (404): %s", operation),
			fmt.Errorf("%s returned 404: %s", operation, bodyStr),
		)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return types.NewAppError(
			types.ErrCodeUpstreamImageGen,
			fmt.Sprintf("generation API client error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("%s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamImageGen,
			fmt.Sprintf("generation API server error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("%s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	}
}

// wrapError converts BaseClient failures into generation-flavored errors
// while preserving already-mapped upstream codes.
func (c *ImageGenHTTPClient) wrapError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return types.NewAppError(
			appErr.Code,
			fmt.Sprintf("generation %s: %s", operation, appErr.Message),
			appErr.Err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamImageGen,
		fmt.Sprintf("generation %s failed", operation),
		err,
	)
}

var _ ImageGenerator = (*ImageGenHTTPClient)(nil)
