package oauth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dropDatabas3/crosspost/internal/security/oauthstate"
	"github.com/dropDatabas3/crosspost/internal/security/pkce"
)

// GenerateAuthorizationURL builds the platform's authorize URL for a user.
// The signed state carries the PKCE verifier (when the platform mandates
// PKCE) so the callback can complete the exchange statelessly.
func (s *Service) GenerateAuthorizationURL(platformName, userID string) (*AuthorizationRequest, error) {
	def, err := s.reg.Get(platformName)
	if err != nil {
		return nil, err
	}

	st := oauthstate.State{UserID: userID, Platform: platformName}

	var verifier, challenge string
	if def.OAuth.PKCERequired {
		verifier, challenge, err = pkce.Generate()
		if err != nil {
			return nil, err
		}
		st.PKCEVerifier = verifier
	}

	signed, err := s.state.Encode(st)
	if err != nil {
		return nil, fmt.Errorf("oauth: sign state: %w", err)
	}

	u, err := url.Parse(def.OAuth.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("oauth: %s auth url: %w", platformName, err)
	}
	q := u.Query()
	q.Set(def.ClientIDParam(), def.Credentials.ClientID)
	q.Set("redirect_uri", def.Credentials.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(def.OAuth.Scopes, " "))
	q.Set("state", signed)
	if def.OAuth.PKCERequired {
		q.Set("code_challenge", challenge)
		q.Set("code_challenge_method", pkce.Method)
	}
	for k, v := range def.OAuth.ExtraAuthParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	return &AuthorizationRequest{URL: u.String(), PKCEVerifier: verifier}, nil
}
