// Credit balance and ledger endpoints:
//   - GET /v1/credits
//   - GET /v1/credits/transactions
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bannerly/internal/core"
	"bannerly/internal/types"
)

// CreditLedger is the subset of ledger.Service the handler needs.
type CreditLedger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Transactions(ctx context.Context, userID string, limit int) ([]types.CreditTransaction, error)
}

// defaultTransactionLimit bounds GET /v1/credits/transactions when the
// client does not pass an explicit limit.
const defaultTransactionLimit = 50

// balanceResponse is the payload for GET /v1/credits.
type balanceResponse struct {
	Balance int `json:"balance"`
}

// transactionsResponse is the payload for GET /v1/credits/transactions.
type transactionsResponse struct {
	Transactions []types.CreditTransaction `json:"transactions"`
}

// CreditsHandler exposes the credit balance and transaction history.
type CreditsHandler struct {
	ledger CreditLedger
	logger *slog.Logger
}

// NewCreditsHandler creates a new CreditsHandler.
func NewCreditsHandler(ledger CreditLedger, l *slog.Logger) *CreditsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &CreditsHandler{ledger: ledger, logger: l}
}

// RegisterRoutes mounts the credit endpoints under the v1 router.
func (h *CreditsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/credits", func(r chi.Router) {
		r.Get("/", h.GetBalance)
		r.Get("/transactions", h.ListTransactions)
	})
}

// GetBalance handles GET /v1/credits.
func (h *CreditsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	balance, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, balanceResponse{Balance: balance})
}

// ListTransactions handles GET /v1/credits/transactions.
// Returns the user's ledger entries, newest first.
func (h *CreditsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	limit := defaultTransactionLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > 100 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"limit must be a number between 1 and 100",
				nil,
			))
			return
		}
		limit = parsed
	}

	txns, err := h.ledger.Transactions(r.Context(), userID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if txns == nil {
		txns = []types.CreditTransaction{}
	}

	core.Data(w, r, http.StatusOK, transactionsResponse{Transactions: txns})
}
