// Package ledger exposes the credit ledger to the rest of the application:
// balance reads, floor-checked spends, grants, and transaction history.
package ledger

import (
	"context"
	"log/slog"

	"bannerly/internal/db"
	"bannerly/internal/types"
)

// CreditStore defines the data access the Service needs.
type CreditStore interface {
	GetBalance(ctx context.Context, userID string) (*types.CreditBalance, error)
	Deduct(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error
	Add(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error
	ListTransactions(ctx context.Context, userID string, limit int) ([]types.CreditTransaction, error)
	SumTransactions(ctx context.Context, userID string) (int, error)
}

// Service wraps the credit store with transactional boundaries and is the
// single entry point for credit mutations.
type Service struct {
	store    CreditStore
	runner   db.TxRunner
	newStore func(tx db.DBTX) CreditStore
	logger   *slog.Logger
}

// NewService creates a ledger Service. runner may be nil in tests, in which
// case mutations run directly against store without a transaction.
func NewService(store CreditStore, runner db.TxRunner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		runner: runner,
		newStore: func(tx db.DBTX) CreditStore {
			return db.NewCreditRepository(tx)
		},
		logger: logger,
	}
}

// Balance returns the user's spendable credits. Users with no balance row
// have zero.
func (s *Service) Balance(ctx context.Context, userID string) (int, error) {
	balance, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return balance.Amount, nil
}

// Deduct spends credits. It fails with validation_insufficient_credits and
// no mutation when the balance is below amount; on success exactly one
// negative transaction row accompanies the balance change.
func (s *Service) Deduct(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error {
	if amount <= 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "deduction amount must be positive", nil)
	}

	err := s.inTx(ctx, func(store CreditStore) error {
		return store.Deduct(ctx, userID, amount, kind, description)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "credits deducted",
		"user_id", userID,
		"amount", amount,
		"kind", kind,
	)
	return nil
}

// Add grants credits, creating the balance row on first grant.
func (s *Service) Add(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error {
	if amount <= 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "grant amount must be positive", nil)
	}

	err := s.inTx(ctx, func(store CreditStore) error {
		return store.Add(ctx, userID, amount, kind, description)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "credits granted",
		"user_id", userID,
		"amount", amount,
		"kind", kind,
	)
	return nil
}

// Refund returns credits spent on work that later failed. It is a grant
// with the refund kind; refunds never fail the operation that triggered
// them, so callers log and continue on error.
func (s *Service) Refund(ctx context.Context, userID string, amount int, description string) error {
	return s.Add(ctx, userID, amount, types.TxKindRefund, description)
}

// Transactions lists the user's most recent ledger entries.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]types.CreditTransaction, error) {
	return s.store.ListTransactions(ctx, userID, limit)
}

// Reconcile compares the materialized balance against the transaction sum.
// A mismatch indicates a write that bypassed the ledger.
func (s *Service) Reconcile(ctx context.Context, userID string) (balance int, ledgerSum int, err error) {
	b, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	sum, err := s.store.SumTransactions(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	if b.Amount != sum {
		s.logger.WarnContext(ctx, "credit balance does not reconcile with ledger",
			"user_id", userID,
			"balance", b.Amount,
			"ledger_sum", sum,
		)
	}
	return b.Amount, sum, nil
}

// inTx runs fn against a transaction-scoped store when a runner is
// configured, and directly against the base store otherwise.
func (s *Service) inTx(ctx context.Context, fn func(store CreditStore) error) error {
	if s.runner == nil {
		return fn(s.store)
	}
	return db.InTx(ctx, s.runner, func(tx db.DBTX) error {
		return fn(s.newStore(tx))
	})
}
