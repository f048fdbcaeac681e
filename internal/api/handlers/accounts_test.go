package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bannerly/internal/accounts"
	"bannerly/internal/core"
	"bannerly/internal/types"
)

type mockAccountLinker struct {
	connectFn  func(ctx context.Context, userID string) (string, error)
	pendingFn  func(ctx context.Context, sessionToken string) ([]types.PendingAccount, error)
	callbackFn func(ctx context.Context, userID, sessionToken string) (*accounts.CallbackResult, error)
	finalizeFn func(ctx context.Context, userID, sessionToken string, accountIDs []string) ([]types.SocialAccount, error)
	syncFn     func(ctx context.Context, userID, message string) (*types.SocialAccount, error)
	listFn     func(ctx context.Context, userID string) ([]types.SocialAccount, error)

	disconnectedID string
}

func (m *mockAccountLinker) Connect(ctx context.Context, userID string) (string, error) {
	if m.connectFn != nil {
		return m.connectFn(ctx, userID)
	}
	return "https://provider.example.com/oauth?u=" + userID, nil
}

func (m *mockAccountLinker) PendingAccounts(ctx context.Context, sessionToken string) ([]types.PendingAccount, error) {
	if m.pendingFn != nil {
		return m.pendingFn(ctx, sessionToken)
	}
	return nil, nil
}

func (m *mockAccountLinker) HandleCallback(ctx context.Context, userID, sessionToken string) (*accounts.CallbackResult, error) {
	if m.callbackFn != nil {
		return m.callbackFn(ctx, userID, sessionToken)
	}
	return &accounts.CallbackResult{}, nil
}

func (m *mockAccountLinker) Finalize(ctx context.Context, userID, sessionToken string, accountIDs []string) ([]types.SocialAccount, error) {
	if m.finalizeFn != nil {
		return m.finalizeFn(ctx, userID, sessionToken, accountIDs)
	}
	return nil, nil
}

func (m *mockAccountLinker) SyncFromProvider(ctx context.Context, userID, message string) (*types.SocialAccount, error) {
	if m.syncFn != nil {
		return m.syncFn(ctx, userID, message)
	}
	return &types.SocialAccount{UserID: userID, Platform: types.PlatformInstagram, Username: "brand.co"}, nil
}

func (m *mockAccountLinker) List(ctx context.Context, userID string) ([]types.SocialAccount, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockAccountLinker) Disconnect(ctx context.Context, userID, accountID string) error {
	m.disconnectedID = accountID
	return nil
}

func newTestAccountsHandler(appURL string) (*AccountsHandler, *mockAccountLinker) {
	linker := &mockAccountLinker{}
	h := NewAccountsHandler(linker, core.NewValidator(slog.Default()), appURL, slog.Default())
	return h, linker
}

func TestConnectReturnsProviderURL(t *testing.T) {
	h, _ := newTestAccountsHandler("")

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/accounts/connect", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusOK)
	var resp connectResponse
	decodeData(t, rec, &resp)
	assert.Contains(t, resp.URL, "provider.example.com")
}

func TestCallbackAutoLinkReturnsJSONWithoutAppURL(t *testing.T) {
	h, linker := newTestAccountsHandler("")
	linker.callbackFn = func(ctx context.Context, userID, sessionToken string) (*accounts.CallbackResult, error) {
		require.Equal(t, testUserID, userID)
		require.Equal(t, "sess-1", sessionToken)
		return &accounts.CallbackResult{
			Linked: []types.SocialAccount{{ID: "acc-1", Platform: types.PlatformInstagram}},
		}, nil
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodGet,
		"/accounts/callback?session_token=sess-1&state="+testUserID, nil, nil)

	requireStatus(t, rec, http.StatusOK)
	var result accounts.CallbackResult
	decodeData(t, rec, &result)
	require.Len(t, result.Linked, 1)
	assert.False(t, result.NeedsSelection)
}

func TestCallbackRedirectsToAppForSelection(t *testing.T) {
	h, linker := newTestAccountsHandler("https://bannerly.app")
	linker.callbackFn = func(ctx context.Context, userID, sessionToken string) (*accounts.CallbackResult, error) {
		return &accounts.CallbackResult{
			Pending:        []types.PendingAccount{{ExternalAccountID: "x1"}, {ExternalAccountID: "x2"}},
			NeedsSelection: true,
		}, nil
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodGet,
		"/accounts/callback?session_token=sess-1&state="+testUserID, nil, nil)

	requireStatus(t, rec, http.StatusFound)
	location := rec.Header().Get("Location")
	assert.Contains(t, location, "https://bannerly.app/accounts?")
	assert.Contains(t, location, "select=1")
	assert.Contains(t, location, "session_token=sess-1")
}

func TestCallbackRequiresTokenAndState(t *testing.T) {
	h, _ := newTestAccountsHandler("")

	rec := doRequest(t, h.RegisterRoutes, http.MethodGet, "/accounts/callback?state=user-1", nil, nil)

	requireStatus(t, rec, http.StatusBadRequest)
}

func TestPendingRequiresSessionToken(t *testing.T) {
	h, _ := newTestAccountsHandler("")

	rec := doRequest(t, h.RegisterRoutes, http.MethodGet, "/accounts/pending", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusBadRequest)
}

func TestFinalizeLinksSelectedAccounts(t *testing.T) {
	h, linker := newTestAccountsHandler("")
	linker.finalizeFn = func(ctx context.Context, userID, sessionToken string, accountIDs []string) ([]types.SocialAccount, error) {
		require.Equal(t, []string{"x1", "x2"}, accountIDs)
		return []types.SocialAccount{
			{ID: "acc-1", ExternalAccountID: "x1"},
			{ID: "acc-2", ExternalAccountID: "x2"},
		}, nil
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/accounts/finalize",
		map[string]any{"session_token": "sess-1", "account_ids": []string{"x1", "x2"}},
		userContext(testUserID))

	requireStatus(t, rec, http.StatusOK)
	var resp accountsResponse
	decodeData(t, rec, &resp)
	assert.Len(t, resp.Accounts, 2)
}

func TestFinalizeRequiresAccountIDs(t *testing.T) {
	h, _ := newTestAccountsHandler("")

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/accounts/finalize",
		map[string]any{"session_token": "sess-1", "account_ids": []string{}},
		userContext(testUserID))

	requireStatus(t, rec, http.StatusBadRequest)
}

func TestSyncParsesProviderMessage(t *testing.T) {
	h, linker := newTestAccountsHandler("")
	var gotMessage string
	linker.syncFn = func(ctx context.Context, userID, message string) (*types.SocialAccount, error) {
		gotMessage = message
		return &types.SocialAccount{UserID: userID, Platform: types.PlatformTikTok, Username: "brand"}, nil
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/accounts/sync",
		map[string]string{"message": "Successfully connected TikTok account @brand!"},
		userContext(testUserID))

	requireStatus(t, rec, http.StatusCreated)
	assert.Equal(t, "Successfully connected TikTok account @brand!", gotMessage)
}

func TestSyncUnparseableMessageIs400(t *testing.T) {
	h, linker := newTestAccountsHandler("")
	linker.syncFn = func(ctx context.Context, userID, message string) (*types.SocialAccount, error) {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPlatform, "could not parse provider message", nil)
	}

	rec := doRequest(t, h.RegisterRoutes, http.MethodPost, "/accounts/sync",
		map[string]string{"message": "welcome back"}, userContext(testUserID))

	requireStatus(t, rec, http.StatusBadRequest)
}

func TestDisconnectAccount(t *testing.T) {
	h, linker := newTestAccountsHandler("")

	rec := doRequest(t, h.RegisterRoutes, http.MethodDelete, "/accounts/acc-7", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusNoContent)
	assert.Equal(t, "acc-7", linker.disconnectedID)
}

func TestListAccountsEmptyIsNotNull(t *testing.T) {
	h, _ := newTestAccountsHandler("")

	rec := doRequest(t, h.RegisterRoutes, http.MethodGet, "/accounts/", nil, userContext(testUserID))

	requireStatus(t, rec, http.StatusOK)
	assert.Contains(t, rec.Body.String(), `"accounts":[]`)
}
