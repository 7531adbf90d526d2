package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/crosspost/internal/platform"
)

// ExchangeCode exchanges an authorization code for tokens, using the
// platform's parameter naming, and normalizes the response.
func (s *Service) ExchangeCode(ctx context.Context, platformName, code, pkceVerifier string) (*TokenSet, error) {
	def, err := s.reg.Get(platformName)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", def.Credentials.RedirectURI)
	if pkceVerifier != "" {
		form.Set("code_verifier", pkceVerifier)
	}

	body, status, err := s.tokenRequest(ctx, def, form)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, &TokenExchangeError{Platform: platformName, Status: status, Body: string(body)}
	}
	return normalizeTokens(def, body)
}

// RefreshAccessToken runs the refresh grant and normalizes the response.
// Fails with ErrRefreshNotSupported when the registry says the platform does
// not issue refresh tokens.
func (s *Service) RefreshAccessToken(ctx context.Context, platformName, refreshToken string) (*TokenSet, error) {
	def, err := s.reg.Get(platformName)
	if err != nil {
		return nil, err
	}
	if !def.OAuth.RefreshSupported {
		return nil, fmt.Errorf("%w: %s", ErrRefreshNotSupported, platformName)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	body, status, err := s.tokenRequest(ctx, def, form)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, &TokenExchangeError{Platform: platformName, Status: status, Body: string(body)}
	}
	return normalizeTokens(def, body)
}

// RevokeToken best-effort revokes an access token. Platforms without a
// revoke endpoint are trivially successful.
func (s *Service) RevokeToken(ctx context.Context, platformName, accessToken string) (bool, error) {
	def, err := s.reg.Get(platformName)
	if err != nil {
		return false, err
	}
	if def.OAuth.RevokeURL == "" {
		return true, nil
	}

	form := url.Values{}
	form.Set("token", accessToken)
	if def.OAuth.AuthStyle == platform.AuthStyleBasic {
		form.Set("token_type_hint", "access_token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, def.OAuth.RevokeURL, strings.NewReader(s.withClientAuth(def, form).Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if def.OAuth.AuthStyle == platform.AuthStyleBasic {
		req.SetBasicAuth(def.Credentials.ClientID, def.Credentials.ClientSecret)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode/100 == 2, nil
}

// tokenRequest posts the form to the token endpoint with the platform's
// client-auth style applied.
func (s *Service) tokenRequest(ctx context.Context, def platform.Definition, form url.Values) ([]byte, int, error) {
	if def.OAuth.AuthStyle != platform.AuthStyleBasic {
		form = s.withClientAuth(def, form)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, def.OAuth.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if def.OAuth.AuthStyle == platform.AuthStyleBasic {
		req.SetBasicAuth(def.Credentials.ClientID, def.Credentials.ClientSecret)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("oauth: %s token request: %w", def.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("oauth: %s token response: %w", def.Name, err)
	}
	return body, resp.StatusCode, nil
}

// withClientAuth adds client id/secret as form fields, respecting the
// platform's parameter naming (tiktok uses client_key).
func (s *Service) withClientAuth(def platform.Definition, form url.Values) url.Values {
	form.Set(def.ClientIDParam(), def.Credentials.ClientID)
	form.Set("client_secret", def.Credentials.ClientSecret)
	return form
}
