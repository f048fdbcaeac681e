// Package auth implements signup, login, and bearer-token session
// management.
package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"bannerly/internal/db"
	"bannerly/internal/types"
)

// bcryptCost is the bcrypt cost factor used for password hashing.
const bcryptCost = 12

// minPasswordLength is enforced at the service layer so every entry point
// (API signup, future invite flows) shares the rule.
const minPasswordLength = 8

// UserStore defines the user data access needed by the Service.
type UserStore interface {
	Create(ctx context.Context, u *types.User) error
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	GetByID(ctx context.Context, id string) (*types.User, error)
	Delete(ctx context.Context, id string) error
}

// SessionStore defines the session data access needed by the Service.
type SessionStore interface {
	Create(ctx context.Context, s *db.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*db.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) error
}

// CreditGranter is the slice of the credit ledger the Service needs to
// grant signup credits.
type CreditGranter interface {
	Add(ctx context.Context, userID string, amount int, kind types.TransactionKind, description string) error
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

// bcryptHasher is the production implementation of PasswordHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Users              UserStore
	Sessions           SessionStore
	Credits            CreditGranter
	SessionTTL         time.Duration
	SignupGrantCredits int

	// Hasher, TokenGen, Now, and Logger default to production
	// implementations when nil.
	Hasher   PasswordHasher
	TokenGen TokenGenerator
	Now      func() time.Time
	Logger   *slog.Logger
}

// Service implements signup, login, logout, and account deletion.
type Service struct {
	users      UserStore
	sessions   SessionStore
	credits    CreditGranter
	sessionTTL time.Duration
	grant      int
	hasher     PasswordHasher
	tokenGen   TokenGenerator
	now        func() time.Time
	logger     *slog.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	tokenGen := cfg.TokenGen
	if tokenGen == nil {
		tokenGen = &CryptoTokenGenerator{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Service{
		users:      cfg.Users,
		sessions:   cfg.Sessions,
		credits:    cfg.Credits,
		sessionTTL: ttl,
		grant:      cfg.SignupGrantCredits,
		hasher:     hasher,
		tokenGen:   tokenGen,
		now:        now,
		logger:     logger,
	}
}

// Signup registers a new account, grants the signup credits, and opens a
// session. Returns the user and the raw bearer token.
func (s *Service) Signup(ctx context.Context, email, password string) (*types.User, string, error) {
	email = CanonicalizeEmail(email)
	if len(password) < minPasswordLength {
		return nil, "", types.NewAppError(
			types.ErrCodeValidationMissingField,
			"password must be at least 8 characters",
			nil,
		)
	}

	passwordHash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	user := &types.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}

	// The account exists regardless of what happens below; grant and
	// session failures must not orphan a signup.
	if s.grant > 0 {
		if grantErr := s.credits.Add(ctx, user.ID, s.grant, types.TxKindSubscription, "signup grant"); grantErr != nil {
			s.logger.ErrorContext(ctx, "failed to grant signup credits",
				"user_id", user.ID,
				"error", grantErr,
			)
		}
	}

	token, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "user signed up", "user_id", user.ID)

	return user, token, nil
}

// Login verifies credentials and opens a session. User-not-found and wrong
// password both return the same invalid-credentials error so the endpoint
// cannot be used to enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password string) (*types.User, string, error) {
	email = CanonicalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeNotFoundUser {
			return nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
		}
		return nil, "", err
	}

	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, password); err != nil {
		return nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
	}

	token, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	// Opportunistic cleanup; a missed sweep is harmless.
	if cleanupErr := s.sessions.DeleteExpired(ctx); cleanupErr != nil {
		s.logger.WarnContext(ctx, "failed to clean expired sessions", "error", cleanupErr)
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)

	return user, token, nil
}

// Logout invalidates the session behind the given raw token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.DeleteByTokenHash(ctx, HashToken(token))
}

// DeleteAccount removes the user row (dependent rows cascade) and all of
// the user's sessions.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "account deleted", "user_id", userID)
	return nil
}

// createSession issues a new bearer token and persists its hash.
func (s *Service) createSession(ctx context.Context, userID string) (string, error) {
	token, err := s.tokenGen.GenerateToken()
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate session token", err)
	}

	now := s.now().UTC()
	session := &db.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", err
	}

	return token, nil
}

// CanonicalizeEmail normalizes email addresses for consistent lookups.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
