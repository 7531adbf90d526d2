// Package pkce generates Proof Key for Code Exchange pairs (RFC 7636, S256).
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Method is the only challenge method supported (plain is deliberately not).
const Method = "S256"

// Generate returns a fresh (verifier, challenge) pair. The verifier is 32
// random bytes base64url-encoded (43 chars, within the 43..128 RFC range);
// the challenge is base64url(sha256(verifier)).
func Generate() (verifier, challenge string, err error) {
	var b [32]byte
	if _, err = rand.Read(b[:]); err != nil {
		return "", "", fmt.Errorf("pkce: random verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(b[:])
	challenge = Challenge(verifier)
	return verifier, challenge, nil
}

// Challenge derives the S256 challenge for a given verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
