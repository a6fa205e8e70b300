package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Issue generates a token, stores its hash at path, and returns the raw
// token. The raw value is shown once; afterwards only the hash exists.
func Issue(path string) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	hash, err := HashToken(token)
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("create token directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(hash+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write token hash: %w", err)
	}
	return token, nil
}

// Verifier checks bearer tokens against a stored hash. A zero Verifier
// accepts everything, for servers that run without auth.
type Verifier struct {
	hash string
}

// LoadVerifier reads a token hash file written by Issue.
func LoadVerifier(path string) (*Verifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token hash: %w", err)
	}
	hash := strings.TrimSpace(string(data))
	if hash == "" {
		return nil, fmt.Errorf("token hash file %s is empty", path)
	}
	return &Verifier{hash: hash}, nil
}

// Enabled reports whether the verifier enforces a token.
func (v *Verifier) Enabled() bool {
	return v != nil && v.hash != ""
}

// Verify checks a presented bearer token.
func (v *Verifier) Verify(token string) bool {
	if !v.Enabled() {
		return true
	}
	if !IsValidTokenFormat(token) {
		return false
	}
	return VerifyToken(token, v.hash)
}
