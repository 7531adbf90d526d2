// Package oauthstate implements the signed, stateless OAuth state parameter.
//
// The state travels through the platform redirect as
// base64url(json)|base64url(hmac-sha256) so the callback can be validated
// without server-side session storage. The PKCE verifier rides inside the
// signed payload for platforms that mandate PKCE.
package oauthstate

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// MaxAge is how long a state remains acceptable after issuance.
const MaxAge = 10 * time.Minute

// Errors for state validation.
var (
	ErrStateInvalid = errors.New("invalid state token")
	ErrStateExpired = errors.New("state token expired")
	ErrStateReplay  = errors.New("state token already used")
)

// State is the payload carried through the OAuth redirect round-trip.
type State struct {
	UserID       string `json:"uid"`
	Platform     string `json:"platform"`
	IssuedAt     int64  `json:"iat"`
	Nonce        string `json:"nonce"`
	PKCEVerifier string `json:"pkce,omitempty"`
}

// ReplayGuard marks nonces as used. Implementations are expected to expire
// entries on their own (cache TTL >= MaxAge).
type ReplayGuard interface {
	// MarkUsed returns false if the nonce was already marked.
	MarkUsed(nonce string, ttl time.Duration) bool
}

// Codec signs and validates states with an HMAC-SHA256 shared secret.
type Codec struct {
	secret []byte
	guard  ReplayGuard // nil => replay within MaxAge is accepted
	now    func() time.Time
}

// NewCodec creates a Codec. guard may be nil to skip single-use enforcement.
func NewCodec(secret []byte, guard ReplayGuard) *Codec {
	return &Codec{secret: secret, guard: guard, now: time.Now}
}

// Encode signs the state and returns the wire form. IssuedAt and Nonce are
// filled in if zero/empty.
func (c *Codec) Encode(st State) (string, error) {
	if st.IssuedAt == 0 {
		st.IssuedAt = c.now().UTC().Unix()
	}
	if st.Nonce == "" {
		st.Nonce = newNonce()
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	data := base64.RawURLEncoding.EncodeToString(payload)
	return data + "|" + base64.RawURLEncoding.EncodeToString(c.sign(data)), nil
}

// Decode verifies the signature (constant time), the age and — when a
// ReplayGuard is configured — single use. Returns ErrStateInvalid,
// ErrStateExpired or ErrStateReplay.
func (c *Codec) Decode(raw string) (*State, error) {
	data, sig, ok := strings.Cut(raw, "|")
	if !ok || data == "" || sig == "" {
		return nil, ErrStateInvalid
	}
	gotSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, ErrStateInvalid
	}
	if !hmac.Equal(gotSig, c.sign(data)) {
		return nil, ErrStateInvalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrStateInvalid
	}
	var st State
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, ErrStateInvalid
	}
	if st.UserID == "" || st.Platform == "" || st.Nonce == "" {
		return nil, ErrStateInvalid
	}

	age := c.now().UTC().Sub(time.Unix(st.IssuedAt, 0))
	if age < 0 || age >= MaxAge {
		return nil, ErrStateExpired
	}

	if c.guard != nil {
		if !c.guard.MarkUsed(st.Nonce, MaxAge) {
			return nil, ErrStateReplay
		}
	}
	return &st, nil
}

func (c *Codec) sign(data string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func newNonce() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
