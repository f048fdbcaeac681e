package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenByteLength is the number of random bytes generated for internal
// secrets. 32 bytes = 256 bits of entropy, hex-encoded to a 64-character
// string, which comfortably satisfies the admin key requirement enforced
// by the API's config validation.
const tokenByteLength = 32

// GenerateSecureToken produces a cryptographically secure random token
// suitable for use as an admin API key or other high-privilege internal
// secret. The token is read from crypto/rand and encoded as a lowercase
// hex string (64 characters).
//
// Generated values are never displayed to the operator; SSMManager logs
// only the path and value length.
func GenerateSecureToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	n, err := rand.Read(buf)
	if err != nil {
		return "", fmt.Errorf("generating secure token: crypto/rand failed: %w", err)
	}
	if n != tokenByteLength {
		return "", fmt.Errorf("generating secure token: expected %d random bytes, got %d", tokenByteLength, n)
	}

	return hex.EncodeToString(buf), nil
}

// GenerateInternalSecrets generates all internally-created secrets required
// by the bootstrap process. These do not come from external vendors; they
// are created locally using cryptographic randomness.
//
// Returns a map of SSM category/key paths to generated values. The caller
// writes them to SSM via SSMManager.PutSecret.
func GenerateInternalSecrets() (map[string]string, error) {
	adminAPIKey, err := GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("generating admin API key: %w", err)
	}

	return map[string]string{
		"security/admin_api_key": adminAPIKey,
	}, nil
}
