package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"bannerly/internal/types"
)

// TokenGenerator abstracts the entropy source for bearer tokens.
type TokenGenerator interface {
	GenerateToken() (string, error)
}

// CryptoTokenGenerator is the production TokenGenerator using crypto/rand.
type CryptoTokenGenerator struct{}

// GenerateToken returns 32 random bytes hex-encoded (64 hex chars).
func (g *CryptoTokenGenerator) GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken produces a hex-encoded SHA-256 hash of a raw token. Only the
// hash is stored, so a leaked sessions table does not leak usable tokens.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// Authenticator resolves bearer tokens into request actors. It satisfies
// core.Authenticator.
type Authenticator struct {
	sessions SessionStore
	now      func() time.Time
}

// NewAuthenticator creates an Authenticator over the given session store.
func NewAuthenticator(store SessionStore) *Authenticator {
	return &Authenticator{
		sessions: store,
		now:      time.Now,
	}
}

// ResolveToken maps a raw bearer token to an Actor. An unknown token yields
// auth_token_invalid; a known but expired one yields auth_token_expired.
func (a *Authenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	sess, err := a.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}

	if a.now().After(sess.ExpiresAt) {
		return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "session has expired", nil)
	}

	return &types.Actor{ID: sess.UserID, Type: types.ActorTypeUser}, nil
}
