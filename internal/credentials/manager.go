// Package credentials owns the lifecycle of stored OAuth connections:
// encrypt-at-rest persistence, transparent access-token refresh and
// revocation on disconnect. Plaintext tokens exist only in memory inside
// this package and in the adapters that receive them; they never reach
// logs or storage.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/crosspost/internal/domain/repository"
	"github.com/dropDatabas3/crosspost/internal/oauth"
	"github.com/dropDatabas3/crosspost/internal/observability/logger"
	"github.com/dropDatabas3/crosspost/internal/security/secretbox"
	"github.com/dropDatabas3/crosspost/internal/util"
)

// RefreshBuffer is how long before expiry a token is refreshed proactively.
const RefreshBuffer = 5 * time.Minute

var (
	// ErrNotConnected indicates the user never connected the platform (or
	// disconnected it).
	ErrNotConnected = errors.New("credentials: platform not connected")

	// ErrConnectionInactive indicates the connection exists but was
	// deactivated, typically after a failed refresh. The user must
	// re-authorize.
	ErrConnectionInactive = errors.New("credentials: connection inactive, re-authorization required")

	// ErrTokenExpired indicates the access token expired and the platform
	// offers no refresh path.
	ErrTokenExpired = errors.New("credentials: access token expired and not refreshable")
)

// OAuthClient is the slice of the OAuth service the manager depends on.
type OAuthClient interface {
	RefreshAccessToken(ctx context.Context, platformName, refreshToken string) (*oauth.TokenSet, error)
	RevokeToken(ctx context.Context, platformName, accessToken string) (bool, error)
	FetchUserProfile(ctx context.Context, platformName, accessToken string) (*oauth.Profile, error)
}

// Manager stores connections with tokens encrypted at rest and hands out
// valid plaintext access tokens, refreshing behind the scenes when needed.
type Manager struct {
	repo  repository.ConnectionRepository
	box   *secretbox.Box
	oauth OAuthClient

	// Collapses concurrent refreshes of the same (user, platform) pair
	// into a single upstream call.
	group singleflight.Group
}

// New creates a Manager.
func New(repo repository.ConnectionRepository, box *secretbox.Box, oauthClient OAuthClient) *Manager {
	return &Manager{repo: repo, box: box, oauth: oauthClient}
}

// StoreConnection encrypts the token set and upserts the connection for the
// (user, platform) pair. A re-connect overwrites the previous connection and
// reactivates it.
func (m *Manager) StoreConnection(ctx context.Context, userID, platformName string, ts *oauth.TokenSet, profile *oauth.Profile) (*repository.OAuthConnection, error) {
	accessEnc, err := m.box.Encrypt(ts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("credentials: encrypt access token: %w", err)
	}
	refreshEnc := ""
	if ts.RefreshToken != "" {
		if refreshEnc, err = m.box.Encrypt(ts.RefreshToken); err != nil {
			return nil, fmt.Errorf("credentials: encrypt refresh token: %w", err)
		}
	}

	input := repository.UpsertConnectionInput{
		UserID:          userID,
		Platform:        platformName,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		ExpiresAt:       ts.ExpiresAt,
		Scopes:          ts.Scopes,
	}
	if profile != nil {
		input.AccountID = profile.AccountID
		input.DisplayName = profile.DisplayName
		input.AvatarURL = profile.AvatarURL
	}

	conn, err := m.repo.Upsert(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("credentials: store connection: %w", err)
	}
	logger.L().Info("connection stored",
		logger.UserID(userID),
		logger.Platform(platformName),
		logger.Bool("has_refresh", conn.HasRefreshToken()),
	)
	return conn, nil
}

// GetValidAccessToken returns a decrypted access token guaranteed to be valid
// for at least RefreshBuffer (when the platform reports expiry). Tokens inside
// the buffer are refreshed first; concurrent callers for the same pair share
// one refresh.
func (m *Manager) GetValidAccessToken(ctx context.Context, userID, platformName string) (string, error) {
	conn, err := m.getActive(ctx, userID, platformName)
	if err != nil {
		return "", err
	}

	if !conn.ExpiresWithin(RefreshBuffer) {
		return m.box.Decrypt(conn.AccessTokenEnc)
	}

	if conn.HasRefreshToken() {
		ts, err := m.refresh(ctx, userID, platformName, RefreshBuffer)
		if err != nil {
			return "", err
		}
		return ts.AccessToken, nil
	}

	// Inside the buffer with no refresh path: hand out the current token
	// while it still works, fail once it is actually gone.
	if conn.IsExpired() {
		return "", fmt.Errorf("%w (%s)", ErrTokenExpired, platformName)
	}
	return m.box.Decrypt(conn.AccessTokenEnc)
}

// RefreshTokens forces a refresh regardless of expiry and returns the updated
// connection. Fails with ErrRefreshNotSupported semantics for platforms
// without a refresh token.
func (m *Manager) RefreshTokens(ctx context.Context, userID, platformName string) (*repository.OAuthConnection, error) {
	conn, err := m.getActive(ctx, userID, platformName)
	if err != nil {
		return nil, err
	}
	if !conn.HasRefreshToken() {
		return nil, fmt.Errorf("credentials: %s: %w", platformName, oauth.ErrRefreshNotSupported)
	}
	if _, err := m.refresh(ctx, userID, platformName, forceRefresh); err != nil {
		return nil, err
	}
	return m.repo.Get(ctx, userID, platformName)
}

// Disconnect revokes the access token at the platform (best effort) and
// deletes the stored connection. Revocation failures are logged, never fatal:
// local cleanup must not depend on platform availability.
func (m *Manager) Disconnect(ctx context.Context, userID, platformName string) error {
	conn, err := m.repo.Get(ctx, userID, platformName)
	if err != nil {
		if repository.IsNotFound(err) {
			return fmt.Errorf("%w (%s)", ErrNotConnected, platformName)
		}
		return fmt.Errorf("credentials: disconnect: %w", err)
	}

	if access, derr := m.box.Decrypt(conn.AccessTokenEnc); derr == nil {
		if _, rerr := m.oauth.RevokeToken(ctx, platformName, access); rerr != nil {
			logger.L().Warn("token revocation failed, deleting connection anyway",
				logger.UserID(userID),
				logger.Platform(platformName),
				logger.Err(rerr),
			)
		}
	}

	if err := m.repo.Delete(ctx, userID, platformName); err != nil && !repository.IsNotFound(err) {
		return fmt.Errorf("credentials: delete connection: %w", err)
	}
	logger.L().Info("connection removed", logger.UserID(userID), logger.Platform(platformName))
	return nil
}

// GetConnection returns the stored connection for the pair, tokens still
// encrypted. Maps absence to ErrNotConnected.
func (m *Manager) GetConnection(ctx context.Context, userID, platformName string) (*repository.OAuthConnection, error) {
	conn, err := m.repo.Get(ctx, userID, platformName)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w (%s)", ErrNotConnected, platformName)
		}
		return nil, fmt.Errorf("credentials: load connection: %w", err)
	}
	return conn, nil
}

// Health describes the state of a stored connection without exposing tokens.
type Health struct {
	Connected    bool       `json:"connected"`
	Active       bool       `json:"active"`
	TokenValid   bool       `json:"tokenValid"`
	AccountID    string     `json:"accountId,omitempty"`
	DisplayName  string     `json:"displayName,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	NeedsRefresh bool       `json:"needsRefresh"`
	LastError    string     `json:"lastError,omitempty"`
}

// CheckConnectionHealth reports whether the pair is connected, active, and
// whether the token actually works: it resolves a valid access token and
// performs one lightweight profile fetch against the platform. That round
// trip is what catches tokens that are unexpired locally but were revoked
// server-side. A missing connection is a valid health state, not an error.
func (m *Manager) CheckConnectionHealth(ctx context.Context, userID, platformName string) (*Health, error) {
	conn, err := m.repo.Get(ctx, userID, platformName)
	if err != nil {
		if repository.IsNotFound(err) {
			return &Health{}, nil
		}
		return nil, fmt.Errorf("credentials: health check: %w", err)
	}
	h := &Health{
		Connected:    true,
		Active:       conn.Active,
		AccountID:    conn.AccountID,
		DisplayName:  conn.DisplayName,
		ExpiresAt:    conn.ExpiresAt,
		NeedsRefresh: conn.ExpiresWithin(RefreshBuffer),
		LastError:    conn.LastError,
	}
	if !conn.Active {
		return h, nil
	}

	access, err := m.GetValidAccessToken(ctx, userID, platformName)
	if err != nil {
		// Refresh failures already deactivated the connection.
		h.Active = false
		h.LastError = err.Error()
		return h, nil
	}

	if _, err := m.oauth.FetchUserProfile(ctx, platformName, access); err != nil {
		// Unexpired token rejected upstream: revoked server-side.
		if serr := m.repo.SetInactive(ctx, userID, platformName, err.Error()); serr != nil {
			logger.L().Error("deactivate after failed health check", logger.UserID(userID), logger.Platform(platformName), logger.Err(serr))
		}
		logger.L().Warn("health check rejected upstream, connection deactivated",
			logger.UserID(userID),
			logger.Platform(platformName),
			logger.String("token", util.MaskToken(access)),
			logger.Err(err),
		)
		h.Active = false
		h.LastError = err.Error()
		return h, nil
	}

	h.TokenValid = true
	return h, nil
}

// getActive loads the connection and maps absence/inactivity to the package
// sentinels.
func (m *Manager) getActive(ctx context.Context, userID, platformName string) (*repository.OAuthConnection, error) {
	conn, err := m.repo.Get(ctx, userID, platformName)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w (%s)", ErrNotConnected, platformName)
		}
		return nil, fmt.Errorf("credentials: load connection: %w", err)
	}
	if !conn.Active {
		return nil, fmt.Errorf("%w (%s: %s)", ErrConnectionInactive, platformName, conn.LastError)
	}
	return conn, nil
}

// forceRefresh makes refresh skip the still-fresh short circuit.
const forceRefresh time.Duration = -1

// refresh performs the actual token refresh once per in-flight
// (user, platform) pair. window widens the "expiring soon" test for batch
// passes; forceRefresh refreshes unconditionally. On upstream failure the
// connection is deactivated so subsequent calls fail fast until the user
// re-authorizes.
func (m *Manager) refresh(ctx context.Context, userID, platformName string, window time.Duration) (*oauth.TokenSet, error) {
	key := userID + "|" + platformName
	v, err, _ := m.group.Do(key, func() (any, error) {
		// Re-read: a flight that just finished may have stored fresh
		// tokens already.
		conn, err := m.repo.Get(ctx, userID, platformName)
		if err != nil {
			return nil, fmt.Errorf("credentials: refresh load: %w", err)
		}
		if window != forceRefresh && !conn.ExpiresWithin(window) {
			access, err := m.box.Decrypt(conn.AccessTokenEnc)
			if err != nil {
				return nil, err
			}
			return &oauth.TokenSet{AccessToken: access, ExpiresAt: conn.ExpiresAt, Scopes: conn.Scopes}, nil
		}

		refreshTok, err := m.box.Decrypt(conn.RefreshTokenEnc)
		if err != nil {
			return nil, fmt.Errorf("credentials: decrypt refresh token: %w", err)
		}

		ts, err := m.oauth.RefreshAccessToken(ctx, platformName, refreshTok)
		if err != nil {
			if serr := m.repo.SetInactive(ctx, userID, platformName, err.Error()); serr != nil {
				logger.L().Error("deactivate after failed refresh", logger.UserID(userID), logger.Platform(platformName), logger.Err(serr))
			}
			logger.L().Warn("token refresh failed, connection deactivated",
				logger.UserID(userID),
				logger.Platform(platformName),
				logger.String("refreshToken", util.MaskToken(refreshTok)),
				logger.Err(err),
			)
			return nil, fmt.Errorf("credentials: refresh %s: %w", platformName, err)
		}

		// Platforms that do not rotate refresh tokens omit the field in
		// the response; keep the stored one in that case.
		if ts.RefreshToken == "" {
			ts.RefreshToken = refreshTok
		}

		accessEnc, err := m.box.Encrypt(ts.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("credentials: encrypt refreshed access token: %w", err)
		}
		refreshEnc, err := m.box.Encrypt(ts.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("credentials: encrypt refreshed refresh token: %w", err)
		}
		if err := m.repo.UpdateTokens(ctx, userID, platformName, accessEnc, refreshEnc, ts.ExpiresAt); err != nil {
			return nil, fmt.Errorf("credentials: persist refreshed tokens: %w", err)
		}

		logger.L().Debug("token refreshed", logger.UserID(userID), logger.Platform(platformName))
		return ts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth.TokenSet), nil
}
