package oauth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/crosspost/internal/platform"
)

// Each platform answers its token endpoint with a different shape. One typed
// struct per arm; the switch below maps every arm onto TokenSet so no raw
// map escapes this package.

type standardTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`

	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type tiktokTokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	OpenID           string `json:"open_id"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	Scope            string `json:"scope"`
	TokenType        string `json:"token_type"`

	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	LogID            string `json:"log_id"`
}

type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`

	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type linkedinTokenResponse struct {
	AccessToken           string `json:"access_token"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshToken          string `json:"refresh_token"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
	Scope                 string `json:"scope"`

	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// normalizeTokens maps one platform's token response body onto TokenSet.
func normalizeTokens(def platform.Definition, body []byte) (*TokenSet, error) {
	switch def.Name {
	case platform.TikTok:
		var tr tiktokTokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return nil, fmt.Errorf("oauth: %s: decode token response: %w", def.Name, err)
		}
		if tr.Error != "" {
			return nil, &TokenExchangeError{Platform: def.Name, Status: 200, Body: tr.Error + ": " + tr.ErrorDescription}
		}
		return buildTokenSet(tr.AccessToken, tr.RefreshToken, tr.ExpiresIn, tr.Scope, def.Name)

	case platform.Facebook, platform.Instagram:
		var tr facebookTokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return nil, fmt.Errorf("oauth: %s: decode token response: %w", def.Name, err)
		}
		if tr.Error != nil {
			return nil, &TokenExchangeError{Platform: def.Name, Status: 200, Body: tr.Error.Message}
		}
		// Graph tokens have no refresh token; long-lived tokens expire and
		// require re-auth.
		return buildTokenSet(tr.AccessToken, "", tr.ExpiresIn, "", def.Name)

	case platform.LinkedIn:
		var tr linkedinTokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return nil, fmt.Errorf("oauth: %s: decode token response: %w", def.Name, err)
		}
		if tr.Error != "" {
			return nil, &TokenExchangeError{Platform: def.Name, Status: 200, Body: tr.Error + ": " + tr.ErrorDescription}
		}
		return buildTokenSet(tr.AccessToken, tr.RefreshToken, tr.ExpiresIn, tr.Scope, def.Name)

	default: // discord, reddit, pinterest: standard OAuth2 shape
		var tr standardTokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return nil, fmt.Errorf("oauth: %s: decode token response: %w", def.Name, err)
		}
		if tr.Error != "" {
			return nil, &TokenExchangeError{Platform: def.Name, Status: 200, Body: tr.Error + ": " + tr.ErrorDescription}
		}
		return buildTokenSet(tr.AccessToken, tr.RefreshToken, tr.ExpiresIn, tr.Scope, def.Name)
	}
}

func buildTokenSet(access, refresh string, expiresIn int64, scope, platformName string) (*TokenSet, error) {
	if access == "" {
		return nil, &TokenExchangeError{Platform: platformName, Status: 200, Body: "response carried no access_token"}
	}
	ts := &TokenSet{AccessToken: access, RefreshToken: refresh}
	if expiresIn > 0 {
		t := time.Now().UTC().Add(time.Duration(expiresIn) * time.Second)
		ts.ExpiresAt = &t
	}
	if scope != "" {
		// reddit separa con coma, el resto con espacio
		sep := " "
		if strings.Contains(scope, ",") && !strings.Contains(scope, " ") {
			sep = ","
		}
		for _, sc := range strings.Split(scope, sep) {
			if sc = strings.TrimSpace(sc); sc != "" {
				ts.Scopes = append(ts.Scopes, sc)
			}
		}
	}
	return ts, nil
}
