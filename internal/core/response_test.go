package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bannerly/internal/types"
)

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Data(w, r, http.StatusOK, map[string]string{"name": "summer-sale"})

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var body APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	dataMap, ok := body.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected data to be a map, got %T", body.Data)
	}
	if dataMap["name"] != "summer-sale" {
		t.Errorf("expected name=summer-sale, got %v", dataMap["name"])
	}
}

func TestError_AppError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-123"))

	appErr := types.NewAppError(types.ErrCodeNotFoundPost, "post not found", nil)
	Error(w, r, appErr)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", resp.StatusCode)
	}

	var body APIErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error.Code != "not_found_post" {
		t.Errorf("expected code not_found_post, got %q", body.Error.Code)
	}
	if body.Error.RequestID != "req-123" {
		t.Errorf("expected request_id req-123, got %q", body.Error.RequestID)
	}
}

func TestError_WrappedAppError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	inner := types.NewAppError(types.ErrCodeValidationInsufficientCredits, "insufficient credits", nil)
	wrapped := errors.Join(errors.New("outer"), inner)
	Error(w, r, wrapped)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 for wrapped AppError, got %d", w.Result().StatusCode)
	}
}

func TestError_GenericErrorIsNotLeaked(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(w, r, errors.New("pq: connection refused to db-internal.local"))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", resp.StatusCode)
	}

	var body APIErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("expected internal_unexpected_error, got %q", body.Error.Code)
	}
	if strings.Contains(body.Error.Message, "db-internal") {
		t.Error("internal error details leaked to client")
	}
}

func TestDecodeJSON_Valid(t *testing.T) {
	body := `{"caption":"hello","platforms":["instagram"]}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	var dst struct {
		Caption   string   `json:"caption"`
		Platforms []string `json:"platforms"`
	}
	if err := DecodeJSON(w, r, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Caption != "hello" || len(dst.Platforms) != 1 {
		t.Errorf("decoded struct mismatch: %+v", dst)
	}
}

func TestDecodeJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed", `{"caption":`},
		{"unknown field", `{"nope":1}`},
		{"type mismatch", `{"caption":42}`},
		{"multiple values", `{"caption":"a"}{"caption":"b"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			w := httptest.NewRecorder()

			var dst struct {
				Caption string `json:"caption"`
			}
			err := DecodeJSON(w, r, &dst)
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T", err)
			}
			if appErr.Code != types.ErrCodeValidationInvalidJSON {
				t.Errorf("expected validation_invalid_json, got %q", appErr.Code)
			}
		})
	}
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	large := bytes.Repeat([]byte("a"), maxRequestBodySize+10)
	body := `{"caption":"` + string(large) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	var dst struct {
		Caption string `json:"caption"`
	}
	err := DecodeJSON(w, r, &dst)
	if err == nil {
		t.Fatal("expected error for oversized body, got nil")
	}
}
