package credentials

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/crosspost/internal/domain/repository"
	"github.com/dropDatabas3/crosspost/internal/oauth"
	"github.com/dropDatabas3/crosspost/internal/platform"
	"github.com/dropDatabas3/crosspost/internal/security/secretbox"
	"github.com/dropDatabas3/crosspost/internal/store/memory"
)

type stubOAuth struct {
	mu           sync.Mutex
	refreshCalls atomic.Int64
	refreshDelay time.Duration
	refreshErr   error
	refreshTS    *oauth.TokenSet

	revokeCalls atomic.Int64
	revokeErr   error

	profileCalls atomic.Int64
	profileErr   error
}

func (s *stubOAuth) RefreshAccessToken(ctx context.Context, platformName, refreshToken string) (*oauth.TokenSet, error) {
	s.refreshCalls.Add(1)
	if s.refreshDelay > 0 {
		time.Sleep(s.refreshDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	ts := *s.refreshTS
	return &ts, nil
}

func (s *stubOAuth) RevokeToken(ctx context.Context, platformName, accessToken string) (bool, error) {
	s.revokeCalls.Add(1)
	if s.revokeErr != nil {
		return false, s.revokeErr
	}
	return true, nil
}

func (s *stubOAuth) FetchUserProfile(ctx context.Context, platformName, accessToken string) (*oauth.Profile, error) {
	s.profileCalls.Add(1)
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	return &oauth.Profile{AccountID: "acc-1", DisplayName: "u/dev"}, nil
}

func newManager(t *testing.T, stub *stubOAuth) (*Manager, *memory.Store, *secretbox.Box) {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	box, err := secretbox.New(key)
	require.NoError(t, err)
	repo := memory.New()
	return New(repo, box, stub), repo, box
}

func ptrTime(t time.Time) *time.Time { return &t }

func seedConnection(t *testing.T, m *Manager, expiresAt *time.Time, refreshToken string) {
	t.Helper()
	_, err := m.StoreConnection(context.Background(), "u1", platform.Reddit, &oauth.TokenSet{
		AccessToken:  "access-inicial-123456",
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Scopes:       []string{"identity", "submit"},
	}, &oauth.Profile{AccountID: "acc-1", DisplayName: "u/dev"})
	require.NoError(t, err)
}

func TestStoreConnection_EncryptsAtRest(t *testing.T) {
	t.Parallel()
	m, repo, box := newManager(t, &stubOAuth{})
	seedConnection(t, m, ptrTime(time.Now().Add(time.Hour)), "refresh-inicial-123456")

	conn, err := repo.Get(context.Background(), "u1", platform.Reddit)
	require.NoError(t, err)
	require.NotEqual(t, "access-inicial-123456", conn.AccessTokenEnc)
	require.NotEqual(t, "refresh-inicial-123456", conn.RefreshTokenEnc)

	plain, err := box.Decrypt(conn.AccessTokenEnc)
	require.NoError(t, err)
	require.Equal(t, "access-inicial-123456", plain)
	require.Equal(t, "acc-1", conn.AccountID)
	require.True(t, conn.Active)
}

func TestGetValidAccessToken_FreshTokenNoRefresh(t *testing.T) {
	t.Parallel()
	stub := &stubOAuth{}
	m, _, _ := newManager(t, stub)
	seedConnection(t, m, ptrTime(time.Now().Add(time.Hour)), "refresh-inicial-123456")

	tok, err := m.GetValidAccessToken(context.Background(), "u1", platform.Reddit)
	require.NoError(t, err)
	require.Equal(t, "access-inicial-123456", tok)
	require.EqualValues(t, 0, stub.refreshCalls.Load())
}

func TestGetValidAccessToken_RefreshesInsideBuffer(t *testing.T) {
	t.Parallel()
	stub := &stubOAuth{refreshTS: &oauth.TokenSet{
		AccessToken:  "access-nuevo-abcdef",
		RefreshToken: "refresh-nuevo-abcdef",
		ExpiresAt:    ptrTime(time.Now().Add(2 * time.Hour)),
	}}
	m, repo, box := newManager(t, stub)
	seedConnection(t, m, ptrTime(time.Now().Add(time.Minute)), "refresh-inicial-123456")

	tok, err := m.GetValidAccessToken(context.Background(), "u1", platform.Reddit)
	require.NoError(t, err)
	require.Equal(t, "access-nuevo-abcdef", tok)
	require.EqualValues(t, 1, stub.refreshCalls.Load())

	// Persisted and re-encrypted
	conn, err := repo.Get(context.Background(), "u1", platform.Reddit)
	require.NoError(t, err)
	access, err := box.Decrypt(conn.AccessTokenEnc)
	require.NoError(t, err)
	require.Equal(t, "access-nuevo-abcdef", access)
	refresh, err := box.Decrypt(conn.RefreshTokenEnc)
	require.NoError(t, err)
	require.Equal(t, "refresh-nuevo-abcdef", refresh)
}

func TestGetValidAccessToken_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	t.Parallel()
	stub := &stubOAuth{refreshTS: &oauth.TokenSet{
		AccessToken: "access-nuevo-abcdef",
		// sin refresh token: la plataforma no rota
		ExpiresAt: ptrTime(time.Now().Add(2 * time.Hour)),
	}}
	m, repo, box := newManager(t, stub)
	seedConnection(t, m, ptrTime(time.Now().Add(time.Minute)), "refresh-inicial-123456")

	_, err := m.GetValidAccessToken(context.Background(), "u1", platform.Reddit)
	require.NoError(t, err)

	conn, err := repo.Get(context.Background(), "u1", platform.Reddit)
	require.NoError(t, err)
	refresh, err := box.Decrypt(conn.RefreshTokenEnc)
	require.NoError(t, err)
	require.Equal(t, "refresh-inicial-123456", refresh)
}

func TestGetValidAccessToken_FailedRefreshDeactivates(t *testing.T) {
	t.Parallel()
	stub := &stubOAuth{refreshErr: errors.New("invalid_grant")}
	m, repo, _ := newManager(t, stub)
	seedConnection(t, m, ptrTime(time.Now().Add(time.Minute)), "refresh-inicial-123456")

	_, err := m.GetValidAccessToken(context.Background(), "u1", platform.Reddit)
	require.Error(t, err)

	conn, err := repo.Get(context.Background(), "u1", platform.Reddit)
	require.NoError(t, err)
	require.False(t, conn.Active)
	require.Contains(t, conn.LastError, "invalid_grant")

	// Subsequent calls fail fast with the inactive sentinel.
	_, err = m.GetValidAccessToken(context.Background(), "u1", platform.Reddit)
	require.ErrorIs(t, err, ErrConnectionInactive)
}

func TestGetValidAccessToken_SingleflightCollapsesConcurrentRefreshes(t *testing.T) {
	t.Parallel()
	stub := &stubOAuth{
		refreshDelay: 50 * time.Millisecond,
		refreshTS: &oauth.TokenSet{
			AccessToken:  "access-nuevo-abcdef",
			RefreshToken: "refresh-nuevo-abcdef",
			ExpiresAt:    ptrTime(time.Now().Add(2 * time.Hour)),
		},
	}
	m, _, _ := newManager(t, stub)
	seedConnection(t, m, ptrTime(time.Now().Add(time.Minute)), "refresh-inicial-123456")

	const callers = 10
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.GetValidAccessToken(context.Background(), "u1", platform.Reddit)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "access-nuevo-abcdef", tokens[i])
	}
	require.EqualValues(t, 1, stub.refreshCalls.Load(), "concurrent refreshes must collapse into one upstream call")
}

func TestGetValidAccessToken_ExpiredWithoutRefreshPath(t *testing.T) {
	t.Parallel()
	m, _, _ := newManager(t, &stubOAuth{})
	seedConnection(t, m, ptrTime(time.Now().Add(-time.Minute)), "")

	_, err := m.GetValidAccessToken(context.Background(), "u1", platform.Reddit)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestGetValidAccessToken_NotConnected(t *testing.T) {
	t.Parallel()
	m, _, _ := newManager(t, &stubOAuth{})
	_, err := m.GetValidAccessToken(context.Background(), "nadie", platform.Reddit)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestRefreshTokens_ForcesRefreshOnFreshToken(t *testing.T) {
	t.Parallel()
	stub := &stubOAuth{refreshTS: &oauth.TokenSet{
		AccessToken:  "access-nuevo-abcdef",
		RefreshToken: "refresh-nuevo-abcdef",
		ExpiresAt:    ptrTime(time.Now().Add(3 * time.Hour)),
	}}
	m, _, _ := newManager(t, stub)
	seedConnection(t, m, ptrTime(time.Now().Add(time.Hour)), "refresh-inicial-123456")

	conn, err := m.RefreshTokens(context.Background(), "u1", platform.Reddit)
	require.NoError(t, err)
	require.EqualValues(t, 1, stub.refreshCalls.Load())
	require.True(t, conn.ExpiresAt.After(time.Now().Add(2*time.Hour)))
}

func TestRefreshTokens_NoRefreshToken(t *testing.T) {
	t.Parallel()
	m, _, _ := newManager(t, &stubOAuth{})
	seedConnection(t, m, ptrTime(time.Now().Add(time.Hour)), "")

	_, err := m.RefreshTokens(context.Background(), "u1", platform.Reddit)
	require.ErrorIs(t, err, oauth.ErrRefreshNotSupported)
}

func TestDisconnect_RevokesAndDeletes(t *testing.T) {
	t.Parallel()
	stub := &stubOAuth{}
	m, repo, _ := newManager(t, stub)
	seedConnection(t, m, ptrTime(time.Now().Add(time.Hour)), "refresh-inicial-123456")

	require.NoError(t, m.Disconnect(context.Background(), "u1", platform.Reddit))
	require.EqualValues(t, 1, stub.revokeCalls.Load())

	_, err := repo.Get(context.Background(), "u1", platform.Reddit)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDisconnect_RevocationFailureStillDeletes(t *testing.T) {
	t.Parallel()
	stub := &stubOAuth{revokeErr: errors.New("platform down")}
	m, repo, _ := newManager(t, stub)
	seedConnection(t, m, ptrTime(time.Now().Add(time.Hour)), "refresh-inicial-123456")

	require.NoError(t, m.Disconnect(context.Background(), "u1", platform.Reddit))

	_, err := repo.Get(context.Background(), "u1", platform.Reddit)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDisconnect_NotConnected(t *testing.T) {
	t.Parallel()
	m, _, _ := newManager(t, &stubOAuth{})
	err := m.Disconnect(context.Background(), "nadie", platform.Reddit)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestCheckConnectionHealth(t *testing.T) {
	t.Parallel()
	stub := &stubOAuth{}
	m, repo, _ := newManager(t, stub)

	h, err := m.CheckConnectionHealth(context.Background(), "u1", platform.Reddit)
	require.NoError(t, err)
	require.False(t, h.Connected)
	require.EqualValues(t, 0, stub.profileCalls.Load())

	seedConnection(t, m, ptrTime(time.Now().Add(time.Hour)), "refresh-inicial-123456")
	h, err = m.CheckConnectionHealth(context.Background(), "u1", platform.Reddit)
	require.NoError(t, err)
	require.True(t, h.Connected)
	require.True(t, h.Active)
	require.True(t, h.TokenValid)
	require.False(t, h.NeedsRefresh)
	require.Equal(t, "acc-1", h.AccountID)
	require.EqualValues(t, 1, stub.profileCalls.Load())

	require.NoError(t, repo.SetInactive(context.Background(), "u1", platform.Reddit, "invalid_grant"))
	h, err = m.CheckConnectionHealth(context.Background(), "u1", platform.Reddit)
	require.NoError(t, err)
	require.True(t, h.Connected)
	require.False(t, h.Active)
	require.False(t, h.TokenValid)
	require.Equal(t, "invalid_grant", h.LastError)
	// Inactive connections skip the upstream check.
	require.EqualValues(t, 1, stub.profileCalls.Load())
}

func TestCheckConnectionHealth_DetectsServerSideRevocation(t *testing.T) {
	t.Parallel()
	stub := &stubOAuth{profileErr: errors.New("401 invalid_token")}
	m, repo, _ := newManager(t, stub)

	// Token fresco y sin expirar: localmente se ve sano, pero la plataforma
	// ya lo revocó.
	seedConnection(t, m, ptrTime(time.Now().Add(time.Hour)), "refresh-inicial-123456")

	h, err := m.CheckConnectionHealth(context.Background(), "u1", platform.Reddit)
	require.NoError(t, err)
	require.True(t, h.Connected)
	require.False(t, h.Active)
	require.False(t, h.TokenValid)
	require.Contains(t, h.LastError, "invalid_token")
	require.EqualValues(t, 1, stub.profileCalls.Load())
	require.EqualValues(t, 0, stub.refreshCalls.Load())

	// La desactivación persiste: los siguientes usos fallan rápido.
	conn, err := repo.Get(context.Background(), "u1", platform.Reddit)
	require.NoError(t, err)
	require.False(t, conn.Active)
	_, err = m.GetValidAccessToken(context.Background(), "u1", platform.Reddit)
	require.ErrorIs(t, err, ErrConnectionInactive)
}

func TestRefreshExpiringTokens_Batch(t *testing.T) {
	t.Parallel()
	stub := &stubOAuth{refreshTS: &oauth.TokenSet{
		AccessToken:  "access-nuevo-abcdef",
		RefreshToken: "refresh-nuevo-abcdef",
		ExpiresAt:    ptrTime(time.Now().Add(48 * time.Hour)),
	}}
	m, repo, _ := newManager(t, stub)

	ctx := context.Background()
	for _, uc := range []struct {
		user      string
		expiresIn time.Duration
		refresh   string
	}{
		{"u1", 2 * time.Hour, "refresh-a-123456789"},  // dentro de la ventana
		{"u2", 2 * time.Hour, "refresh-b-123456789"},  // dentro de la ventana
		{"u3", 72 * time.Hour, "refresh-c-123456789"}, // fuera de la ventana
		{"u4", 2 * time.Hour, ""},                     // sin refresh token
	} {
		_, err := m.StoreConnection(ctx, uc.user, platform.Reddit, &oauth.TokenSet{
			AccessToken:  "access-" + uc.user + "-123456",
			RefreshToken: uc.refresh,
			ExpiresAt:    ptrTime(time.Now().Add(uc.expiresIn)),
		}, nil)
		require.NoError(t, err)
	}

	res, err := m.RefreshExpiringTokens(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, res.Scanned)
	require.Equal(t, 2, res.Refreshed)
	require.Equal(t, 0, res.Failed)

	conn, err := repo.Get(ctx, "u1", platform.Reddit)
	require.NoError(t, err)
	require.True(t, conn.ExpiresAt.After(time.Now().Add(24*time.Hour)))
}
