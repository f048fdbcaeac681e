package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"bannerly/internal/types"
)

const testUserID = "user-123"

// userContext returns a context carrying an authenticated user actor, as
// the auth middleware would have installed it.
func userContext(userID string) context.Context {
	return types.WithActor(context.Background(), types.Actor{
		ID:   userID,
		Type: types.ActorTypeUser,
	})
}

// doRequest routes the request through a chi router with the handler's
// routes mounted, mirroring production URL parameter extraction.
func doRequest(t *testing.T, register func(chi.Router), method, target string, body any, ctx context.Context) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if ctx != nil {
		req = req.WithContext(ctx)
	}

	r := chi.NewRouter()
	register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// doRequestWithHeader is doRequest with one extra request header set.
func doRequestWithHeader(t *testing.T, register func(chi.Router), method, target string, body any, ctx context.Context, headerKey, headerValue string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerKey, headerValue)
	if ctx != nil {
		req = req.WithContext(ctx)
	}

	r := chi.NewRouter()
	register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// decodeData unmarshals the "data" envelope of a success response into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

// errorCode extracts the error code from an error response body.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

// requireStatus asserts the HTTP status with the body in the failure message.
func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, "unexpected status, body: %s", rec.Body.String())
}
