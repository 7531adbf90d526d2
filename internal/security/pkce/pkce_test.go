package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	v1, c1, err := Generate()
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if len(v1) != 43 {
		t.Fatalf("verifier length = %d, want 43", len(v1))
	}

	sum := sha256.Sum256([]byte(v1))
	if want := base64.RawURLEncoding.EncodeToString(sum[:]); c1 != want {
		t.Fatalf("challenge mismatch: got %q want %q", c1, want)
	}

	v2, _, err := Generate()
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if v1 == v2 {
		t.Fatalf("two verifiers identical")
	}
}
