package secretbox

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testKey(seed byte) []byte {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	return raw
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()
	box, err := New(testKey(1))
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	for _, msg := range []string{"", "hola mundo ✓ — secreto", "a", strings.Repeat("tok", 500)} {
		ct, err := box.Encrypt(msg)
		if err != nil {
			t.Fatalf("Encrypt err: %v", err)
		}
		pt, err := box.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt err: %v", err)
		}
		if pt != msg {
			t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
		}
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	t.Parallel()
	box, _ := New(testKey(7))

	a, _ := box.Encrypt("same input")
	b, _ := box.Encrypt("same input")
	if a == b {
		t.Fatalf("two encryptions produced identical output (nonce reuse)")
	}
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	t.Parallel()
	box, _ := New(testKey(100))

	ct, err := box.Encrypt("top secret")
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	parts := strings.Split(ct, "|")
	if len(parts) != 2 {
		t.Fatalf("unexpected ct format")
	}
	// corromper un byte del ciphertext (base64 -> bytes -> flip -> base64)
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	for i := range bs {
		mutated := make([]byte, len(bs))
		copy(mutated, bs)
		mutated[i] ^= 0x01
		corrupted := parts[0] + "|" + base64.StdEncoding.EncodeToString(mutated)
		if _, err := box.Decrypt(corrupted); err == nil {
			t.Fatalf("expected auth error flipping byte %d, got nil", i)
		}
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	t.Parallel()
	a, _ := New(testKey(1))
	b, _ := New(testKey(2))

	ct, _ := a.Encrypt("cross-key")
	if _, err := b.Decrypt(ct); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto, got %v", err)
	}
}

func TestDecrypt_MalformedBlob(t *testing.T) {
	t.Parallel()
	box, _ := New(testKey(9))

	for _, blob := range []string{"", "sin-separador", "a|b|c", "!!!|###"} {
		if _, err := box.Decrypt(blob); err == nil {
			t.Fatalf("expected error for blob %q", blob)
		}
	}
}

func TestParseKey_Formats(t *testing.T) {
	t.Parallel()
	raw := testKey(3)

	for name, enc := range map[string]string{
		"base64":    base64.StdEncoding.EncodeToString(raw),
		"base64raw": base64.RawStdEncoding.EncodeToString(raw),
		"raw":       string(raw),
	} {
		got, err := ParseKey(enc)
		if err != nil {
			t.Fatalf("%s: ParseKey err: %v", name, err)
		}
		if string(got) != string(raw) {
			t.Fatalf("%s: key mismatch", name)
		}
	}

	if _, err := ParseKey("demasiado-corta"); err == nil {
		t.Fatalf("expected error for short key")
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	t.Parallel()
	a := DeriveKey("passphrase", []byte("salt-salt"))
	b := DeriveKey("passphrase", []byte("salt-salt"))
	c := DeriveKey("passphrase", []byte("otra-sal"))
	if string(a) != string(b) {
		t.Fatalf("same inputs produced different keys")
	}
	if string(a) == string(c) {
		t.Fatalf("different salts produced same key")
	}
	if len(a) != 32 {
		t.Fatalf("derived key length = %d, want 32", len(a))
	}
}
