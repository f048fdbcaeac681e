package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"bannerly/internal/types"
)

// CreditRepository provides data access for the credit_balances and
// credit_transactions tables.
//
// Deductions are floor-checked in a single atomic UPDATE so that concurrent
// spends can never drive a balance negative. Grants upsert the balance row,
// creating it on the first grant. Every mutation appends a ledger row in the
// same transaction as its balance change.
type CreditRepository struct {
	db DBTX
}

// NewCreditRepository creates a CreditRepository backed by the given database
// connection (pool or transaction).
func NewCreditRepository(db DBTX) *CreditRepository {
	return &CreditRepository{db: db}
}

// GetBalance returns the user's current balance. A user with no balance row
// has a balance of zero; this is not an error.
func (r *CreditRepository) GetBalance(ctx context.Context, userID string) (*types.CreditBalance, error) {
	row := r.db.QueryRow(ctx,
		`SELECT user_id, amount, updated_at FROM credit_balances WHERE user_id = $1`,
		userID,
	)

	var b types.CreditBalance
	err := row.Scan(&b.UserID, &b.Amount, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &types.CreditBalance{UserID: userID, Amount: 0}, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve credit balance", err)
	}
	return &b, nil
}

// Deduct atomically subtracts amount from the user's balance, refusing to go
// below zero. The WHERE clause carries the floor check; zero rows affected
// means the balance was insufficient (or the row does not exist, which is the
// same thing for a spend).
//
// A ledger row with the negated amount is appended after a successful
// deduction. Run inside a transaction (InTx) so the balance change and ledger
// row commit together.
func (r *CreditRepository) Deduct(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error {
	if amount <= 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "deduction amount must be positive", nil)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE credit_balances
		 SET amount = amount - $1, updated_at = now()
		 WHERE user_id = $2 AND amount >= $1`,
		amount, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to deduct credits", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeValidationInsufficientCredits, "insufficient credits", nil)
	}

	return r.appendTransaction(ctx, userID, -amount, kind, description)
}

// Add grants amount credits, creating the balance row if absent. A positive
// ledger row is appended in the same call. Run inside a transaction (InTx)
// when the grant must commit atomically with other changes.
func (r *CreditRepository) Add(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error {
	if amount <= 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "grant amount must be positive", nil)
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO credit_balances (user_id, amount, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id)
		 DO UPDATE SET amount = credit_balances.amount + $2, updated_at = now()`,
		userID, amount,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to add credits", err)
	}

	return r.appendTransaction(ctx, userID, amount, kind, description)
}

func (r *CreditRepository) appendTransaction(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO credit_transactions (id, user_id, amount, kind, description, created_at)
		 VALUES (gen_random_uuid(), $1, $2, $3, $4, now())`,
		userID, amount, kind, description,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record credit transaction", err)
	}
	return nil
}

// ListTransactions returns the user's ledger entries, newest first.
func (r *CreditRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]types.CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, amount, kind, description, created_at
		 FROM credit_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query credit transactions", err)
	}
	defer rows.Close()

	var txns []types.CreditTransaction
	for rows.Next() {
		var tx types.CreditTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Kind, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan credit transaction", err)
		}
		txns = append(txns, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating credit transactions", err)
	}

	return txns, nil
}

// SumTransactions returns the sum of a user's ledger rows; used by tests and
// the reconciliation report to verify the ledger matches the balance.
func (r *CreditRepository) SumTransactions(ctx context.Context, userID string) (int, error) {
	row := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = $1`,
		userID,
	)
	var sum int
	if err := row.Scan(&sum); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to sum credit transactions", err)
	}
	return sum, nil
}
