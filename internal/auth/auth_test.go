package auth

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(token, TokenPrefix) {
		t.Errorf("token missing prefix: %q", token)
	}
	if !IsValidTokenFormat(token) {
		t.Errorf("generated token should validate: %q", token)
	}

	other, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	if token == other {
		t.Error("tokens must be unique")
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	hash, err := HashToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyToken(token, hash) {
		t.Error("token should verify against its own hash")
	}
	if VerifyToken(TokenPrefix+strings.Repeat("0", TokenLength*2), hash) {
		t.Error("wrong token must not verify")
	}
}

func TestIsValidTokenFormat(t *testing.T) {
	cases := []struct {
		token string
		want  bool
	}{
		{TokenPrefix + strings.Repeat("ab", TokenLength), true},
		{"wrong_" + strings.Repeat("ab", TokenLength), false},
		{TokenPrefix + "short", false},
		{TokenPrefix + strings.Repeat("zz", TokenLength), false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsValidTokenFormat(tc.token); got != tc.want {
			t.Errorf("IsValidTokenFormat(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
}

func TestMaskToken(t *testing.T) {
	token := TokenPrefix + strings.Repeat("ab", TokenLength)
	masked := MaskToken(token)
	if !strings.HasPrefix(masked, TokenPrefix+"abababab") || !strings.HasSuffix(masked, "****...****") {
		t.Errorf("unexpected mask: %q", masked)
	}
	if MaskToken("x") != "****" {
		t.Errorf("short input should be fully masked")
	}
}

func TestIssueAndLoadVerifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "api_token")

	token, err := Issue(path)
	if err != nil {
		t.Fatal(err)
	}

	v, err := LoadVerifier(path)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Enabled() {
		t.Error("loaded verifier should enforce the token")
	}
	if !v.Verify(token) {
		t.Error("issued token should verify")
	}
	if v.Verify(TokenPrefix + strings.Repeat("00", TokenLength)) {
		t.Error("unknown token must not verify")
	}
}

func TestNilVerifierAcceptsAll(t *testing.T) {
	var v *Verifier
	if !v.Verify("anything") {
		t.Error("disabled auth should accept any token")
	}
}
