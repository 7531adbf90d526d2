// Package oauth implements the OAuth 2.0 flows against every supported
// platform: authorization URL construction, code exchange, refresh,
// revocation and profile fetch. Each platform returns its own response
// shape; everything is normalized here into TokenSet/Profile so raw platform
// JSON never crosses this boundary.
package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dropDatabas3/crosspost/internal/platform"
	"github.com/dropDatabas3/crosspost/internal/security/oauthstate"
)

// ErrRefreshNotSupported is returned when the registry marks a platform as
// not issuing refresh tokens.
var ErrRefreshNotSupported = errors.New("oauth: refresh not supported by platform")

// TokenExchangeError is a non-success response from a token endpoint. Body
// carries the platform's raw error text for diagnostics.
type TokenExchangeError struct {
	Platform string
	Status   int
	Body     string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("oauth: %s token endpoint returned %d: %s", e.Platform, e.Status, e.Body)
}

// TokenSet is the canonical token record every platform response maps to.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt nil => the platform issued a non-expiring token.
	ExpiresAt *time.Time
	Scopes    []string
}

// Profile is the normalized platform-side identity of the connected account.
type Profile struct {
	AccountID   string
	DisplayName string
	AvatarURL   string
	// Targets carries platform-specific publishing-target discovery results
	// (facebook page id, instagram business account id, linkedin person URN).
	Targets map[string]string
}

// AuthorizationRequest is the result of GenerateAuthorizationURL.
type AuthorizationRequest struct {
	URL string
	// PKCEVerifier is set when the platform mandates PKCE. It also travels
	// inside the signed state, so callers normally don't need to hold it.
	PKCEVerifier string
}

// Service drives the OAuth flows. Construct once and share; it is stateless
// apart from the injected registry and state codec.
type Service struct {
	reg   *platform.Registry
	state *oauthstate.Codec
	http  *http.Client
}

// New creates the service. httpClient nil means a 10s-timeout default.
func New(reg *platform.Registry, state *oauthstate.Codec, httpClient *http.Client) *Service {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Service{reg: reg, state: state, http: httpClient}
}

// ValidateOAuthState verifies the signed state from a platform redirect.
// Returns nil (and the reason) if the signature is invalid, the state is
// older than 10 minutes, or — with a replay guard configured — already used.
func (s *Service) ValidateOAuthState(raw string) (*oauthstate.State, error) {
	return s.state.Decode(raw)
}
