// Package accounts links external social accounts to users through the
// posting provider's OAuth flow and keeps the local mirror of linked
// accounts in sync.
package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bannerly/internal/external"
	"bannerly/internal/types"
)

// SocialStore is the linked-account data access the service needs.
type SocialStore interface {
	Upsert(ctx context.Context, a *types.SocialAccount) error
	GetByID(ctx context.Context, id, userID string) (*types.SocialAccount, error)
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]types.SocialAccount, error)
	Deactivate(ctx context.Context, id, userID string) error
}

// CallbackResult is the outcome of an OAuth callback. Exactly one pending
// account is linked automatically; more than one requires the user to pick.
type CallbackResult struct {
	Linked         []types.SocialAccount `json:"linked,omitempty"`
	Pending        []types.PendingAccount `json:"pending,omitempty"`
	NeedsSelection bool                  `json:"needs_selection"`
}

// Service drives the account linking pipeline.
type Service struct {
	store    SocialStore
	provider external.SocialProvider
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates an accounts Service.
func NewService(store SocialStore, provider external.SocialProvider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
}

// Connect returns the provider's authorization URL for the user to begin
// linking accounts.
func (s *Service) Connect(ctx context.Context, userID string) (string, error) {
	return s.provider.GetConnectURL(ctx, userID)
}

// PendingAccounts lists the accounts discovered by the OAuth flow but not
// yet confirmed.
func (s *Service) PendingAccounts(ctx context.Context, sessionToken string) ([]types.PendingAccount, error) {
	return s.provider.GetPendingAccounts(ctx, sessionToken)
}

// HandleCallback processes the browser's return from the OAuth flow. A
// single discovered account is finalized immediately; multiple accounts
// are returned for the user to choose from.
func (s *Service) HandleCallback(ctx context.Context, userID, sessionToken string) (*CallbackResult, error) {
	if sessionToken == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "session token is required", nil)
	}

	pending, err := s.provider.GetPendingAccounts(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	switch len(pending) {
	case 0:
		return &CallbackResult{}, nil
	case 1:
		linked, err := s.Finalize(ctx, userID, sessionToken, []string{pending[0].ExternalAccountID})
		if err != nil {
			return nil, err
		}
		return &CallbackResult{Linked: linked}, nil
	default:
		return &CallbackResult{Pending: pending, NeedsSelection: true}, nil
	}
}

// Finalize confirms the chosen accounts with the provider, then mirrors
// each locally. The mirror write is an upsert on (user_id,
// external_account_id), so a retried callback re-links rather than
// duplicating.
func (s *Service) Finalize(ctx context.Context, userID, sessionToken string, accountIDs []string) ([]types.SocialAccount, error) {
	if len(accountIDs) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "at least one account ID is required", nil)
	}

	finalized, err := s.provider.FinalizeAccounts(ctx, sessionToken, accountIDs)
	if err != nil {
		return nil, err
	}

	linked := make([]types.SocialAccount, 0, len(finalized))
	for _, p := range finalized {
		account := types.SocialAccount{
			ID:                uuid.New().String(),
			UserID:            userID,
			ExternalAccountID: p.ExternalAccountID,
			Platform:          types.NormalizePlatform(string(p.Platform)),
			Username:          p.Username,
			Name:              p.Name,
			IsActive:          true,
			CreatedAt:         s.now().UTC(),
		}
		if err := s.store.Upsert(ctx, &account); err != nil {
			return nil, err
		}
		linked = append(linked, account)
	}

	s.logger.InfoContext(ctx, "accounts linked",
		"user_id", userID,
		"count", len(linked),
	)
	return linked, nil
}

// SyncFromProvider is the degraded-mode linking path: some provider flows
// report success only as a human-readable message. The platform and
// username are parsed out of the message and mirrored like a normal link.
func (s *Service) SyncFromProvider(ctx context.Context, userID, message string) (*types.SocialAccount, error) {
	platform, username, err := parseSyncMessage(message)
	if err != nil {
		return nil, err
	}

	account := types.SocialAccount{
		ID:                uuid.New().String(),
		UserID:            userID,
		ExternalAccountID: fmt.Sprintf("sync:%s:%s", platform, username),
		Platform:          platform,
		Username:          username,
		IsActive:          true,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.Upsert(ctx, &account); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account synced from provider message",
		"user_id", userID,
		"platform", platform,
		"username", username,
	)
	return &account, nil
}

// List returns the user's linked accounts, active ones only.
func (s *Service) List(ctx context.Context, userID string) ([]types.SocialAccount, error) {
	return s.store.ListByUser(ctx, userID, true)
}

// Disconnect unlinks an account. The provider-side unlink is best-effort;
// the local deactivation is what stops future posts from targeting it.
func (s *Service) Disconnect(ctx context.Context, userID, accountID string) error {
	account, err := s.store.GetByID(ctx, accountID, userID)
	if err != nil {
		return err
	}

	if err := s.provider.Unlink(ctx, account.ExternalAccountID); err != nil {
		s.logger.WarnContext(ctx, "provider unlink failed, deactivating locally anyway",
			"user_id", userID,
			"account_id", accountID,
			"error", err,
		)
	}

	return s.store.Deactivate(ctx, accountID, userID)
}

// parseSyncMessage extracts the platform and username from a provider
// success message such as "Successfully connected Instagram account
// @brand.co". The platform is the first known platform name found; the
// username is the first @-prefixed token.
func parseSyncMessage(message string) (types.Platform, string, error) {
	var platform types.Platform
	var username string

	for _, word := range strings.Fields(message) {
		trimmed := strings.Trim(word, ".,!:;()")
		if platform == "" {
			if p := types.NormalizePlatform(trimmed); types.ValidPlatform(p) {
				platform = p
				continue
			}
		}
		if username == "" && strings.HasPrefix(trimmed, "@") && len(trimmed) > 1 {
			username = strings.TrimPrefix(trimmed, "@")
		}
	}

	if platform == "" || username == "" {
		return "", "", types.NewAppError(
			types.ErrCodeValidationInvalidPlatform,
			"could not determine platform and username from provider message",
			nil,
		)
	}
	return platform, username, nil
}
