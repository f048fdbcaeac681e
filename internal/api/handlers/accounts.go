// Social-account linking endpoints:
//   - POST   /v1/accounts/connect
//   - GET    /v1/accounts/callback   (public; OAuth redirect target)
//   - GET    /v1/accounts/pending
//   - POST   /v1/accounts/finalize
//   - POST   /v1/accounts/sync
//   - GET    /v1/accounts
//   - DELETE /v1/accounts/{id}
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"bannerly/internal/accounts"
	"bannerly/internal/core"
	"bannerly/internal/types"
)

// AccountLinker is the subset of accounts.Service the handler needs.
type AccountLinker interface {
	Connect(ctx context.Context, userID string) (string, error)
	PendingAccounts(ctx context.Context, sessionToken string) ([]types.PendingAccount, error)
	HandleCallback(ctx context.Context, userID, sessionToken string) (*accounts.CallbackResult, error)
	Finalize(ctx context.Context, userID, sessionToken string, accountIDs []string) ([]types.SocialAccount, error)
	SyncFromProvider(ctx context.Context, userID, message string) (*types.SocialAccount, error)
	List(ctx context.Context, userID string) ([]types.SocialAccount, error)
	Disconnect(ctx context.Context, userID, accountID string) error
}

// connectResponse carries the provider authorization URL.
type connectResponse struct {
	URL string `json:"url"`
}

// finalizeRequest is the payload for POST /v1/accounts/finalize.
type finalizeRequest struct {
	SessionToken string   `json:"session_token" validate:"required"`
	AccountIDs   []string `json:"account_ids" validate:"required,min=1"`
}

// syncRequest is the payload for POST /v1/accounts/sync.
type syncRequest struct {
	Message string `json:"message" validate:"required,max=500"`
}

// accountsResponse wraps a list of linked accounts.
type accountsResponse struct {
	Accounts []types.SocialAccount `json:"accounts"`
}

// pendingResponse wraps the accounts awaiting linking confirmation.
type pendingResponse struct {
	Accounts []types.PendingAccount `json:"accounts"`
}

// AccountsHandler exposes the account linking pipeline.
type AccountsHandler struct {
	linker    AccountLinker
	validator *core.Validator
	logger    *slog.Logger

	// appURL is the dashboard origin the OAuth callback redirects back to.
	// Empty means the callback answers with JSON (local development).
	appURL string
}

// NewAccountsHandler creates a new AccountsHandler.
func NewAccountsHandler(linker AccountLinker, v *core.Validator, appURL string, l *slog.Logger) *AccountsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AccountsHandler{
		linker:    linker,
		validator: v,
		logger:    l,
		appURL:    appURL,
	}
}

// RegisterRoutes mounts the account endpoints under the v1 router.
func (h *AccountsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Post("/connect", h.Connect)
		r.Get("/callback", h.Callback)
		r.Get("/pending", h.Pending)
		r.Post("/finalize", h.Finalize)
		r.Post("/sync", h.Sync)
		r.Get("/", h.List)
		r.Delete("/{id}", h.Disconnect)
	})
}

// Connect handles POST /v1/accounts/connect.
// Returns the provider URL the browser is redirected to for OAuth.
func (h *AccountsHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	connectURL, err := h.linker.Connect(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, connectResponse{URL: connectURL})
}

// Callback handles GET /v1/accounts/callback.
//
// This is the provider's OAuth redirect target, so there is no bearer
// token: the user is identified by the state parameter set when the connect
// URL was issued. A single discovered account links automatically; multiple
// accounts send the user back to the dashboard to pick.
func (h *AccountsHandler) Callback(w http.ResponseWriter, r *http.Request) {
	sessionToken := r.URL.Query().Get("session_token")
	if sessionToken == "" {
		sessionToken = r.URL.Query().Get("token")
	}
	userID := r.URL.Query().Get("state")

	if sessionToken == "" || userID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"session_token and state are required",
			nil,
		))
		return
	}

	result, err := h.linker.HandleCallback(r.Context(), userID, sessionToken)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if h.appURL != "" {
		h.redirectToApp(w, r, sessionToken, result)
		return
	}
	core.Data(w, r, http.StatusOK, result)
}

// redirectToApp bounces the browser back to the dashboard with the linking
// outcome encoded in the query string.
func (h *AccountsHandler) redirectToApp(w http.ResponseWriter, r *http.Request, sessionToken string, result *accounts.CallbackResult) {
	q := url.Values{}
	if result.NeedsSelection {
		q.Set("select", "1")
		q.Set("session_token", sessionToken)
	} else {
		q.Set("linked", "1")
	}
	http.Redirect(w, r, h.appURL+"/accounts?"+q.Encode(), http.StatusFound)
}

// Pending handles GET /v1/accounts/pending.
// Lists the accounts discovered during the OAuth flow but not yet linked.
func (h *AccountsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	sessionToken := r.URL.Query().Get("session_token")
	if sessionToken == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"session_token is required",
			nil,
		))
		return
	}

	pending, err := h.linker.PendingAccounts(r.Context(), sessionToken)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if pending == nil {
		pending = []types.PendingAccount{}
	}

	core.Data(w, r, http.StatusOK, pendingResponse{Accounts: pending})
}

// Finalize handles POST /v1/accounts/finalize.
// Confirms the selected accounts with the provider and links them locally.
func (h *AccountsHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req finalizeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	linked, err := h.linker.Finalize(r.Context(), userID, req.SessionToken, req.AccountIDs)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, accountsResponse{Accounts: linked})
}

// Sync handles POST /v1/accounts/sync.
// Degraded-mode linking: parses the provider's human-readable success
// message when the structured callback never arrived.
func (h *AccountsHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req syncRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	account, err := h.linker.SyncFromProvider(r.Context(), userID, req.Message)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusCreated, account)
}

// List handles GET /v1/accounts.
// Returns the user's active linked accounts.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	linked, err := h.linker.List(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if linked == nil {
		linked = []types.SocialAccount{}
	}

	core.Data(w, r, http.StatusOK, accountsResponse{Accounts: linked})
}

// Disconnect handles DELETE /v1/accounts/{id}.
func (h *AccountsHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	if err := h.linker.Disconnect(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
