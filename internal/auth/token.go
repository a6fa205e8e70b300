// Package auth issues and verifies the API server's bearer token. One
// token guards the whole HTTP surface; only its bcrypt hash is stored.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// TokenPrefix marks ekb secret tokens so they are recognizable in
	// configs and logs.
	TokenPrefix = "ekb_sk_" // #nosec G101 // prefix pattern, not a credential

	// TokenPrefixLength is how many leading secret characters survive
	// masking.
	TokenPrefixLength = 8

	// TokenLength is the random secret size in bytes before hex encoding.
	TokenLength = 32

	bcryptCost = 12
)

// GenerateToken returns a fresh bearer token.
// Format: ekb_sk_<64 hex chars>.
func GenerateToken() (string, error) {
	bytes := make([]byte, TokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(bytes), nil
}

// HashToken creates a bcrypt hash of the token's secret part.
func HashToken(token string) (string, error) {
	secret := strings.TrimPrefix(token, TokenPrefix)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}

// VerifyToken reports whether a presented token matches a stored hash.
func VerifyToken(token, hash string) bool {
	secret := strings.TrimPrefix(token, TokenPrefix)
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// IsValidTokenFormat checks prefix, length, and hex encoding without
// touching the hash.
func IsValidTokenFormat(token string) bool {
	if !strings.HasPrefix(token, TokenPrefix) {
		return false
	}
	secret := strings.TrimPrefix(token, TokenPrefix)
	if len(secret) != TokenLength*2 {
		return false
	}
	_, err := hex.DecodeString(secret)
	return err == nil
}

// MaskToken returns a display-safe form of a token.
// Example: ekb_sk_a1b2c3d4****...****
func MaskToken(token string) string {
	if len(token) < len(TokenPrefix)+TokenPrefixLength {
		return "****"
	}
	return token[:len(TokenPrefix)+TokenPrefixLength] + "****...****"
}
