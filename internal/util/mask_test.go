package util

import (
	"strings"
	"testing"
)

func TestMaskToken(t *testing.T) {
	t.Parallel()
	secret := "ya29.a0AfH6SMBx7mUvWq"

	got := MaskToken(secret)
	if strings.Contains(got, secret[4:]) {
		t.Fatalf("masked token leaks the secret: %q", got)
	}
	if !strings.HasPrefix(got, "ya29") {
		t.Fatalf("masked token = %q, want the first 4 chars as prefix", got)
	}

	if got := MaskToken("corto"); got != "****" {
		t.Fatalf("short token = %q, want fully masked", got)
	}
	if got := MaskToken("   "); got != "" {
		t.Fatalf("blank token = %q, want empty", got)
	}
}

func TestMaskURL(t *testing.T) {
	t.Parallel()
	if got := MaskURL("https://api.example.com/pins?access_token=abc123"); got != "https://api.example.com/pins?…" {
		t.Fatalf("MaskURL = %q", got)
	}
	if got := MaskURL("https://api.example.com/pins"); got != "https://api.example.com/pins" {
		t.Fatalf("MaskURL sin query = %q", got)
	}
}
