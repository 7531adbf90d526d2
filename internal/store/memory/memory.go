// Package memory implementa ConnectionRepository en memoria.
// Para desarrollo sin base de datos y para tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/crosspost/internal/domain/repository"
)

type Store struct {
	mu    sync.RWMutex
	conns map[string]*repository.OAuthConnection // key: userID|platform
}

func New() *Store {
	return &Store{conns: make(map[string]*repository.OAuthConnection)}
}

func key(userID, platform string) string { return userID + "|" + platform }

// clone evita que el caller mute estado interno.
func clone(c *repository.OAuthConnection) *repository.OAuthConnection {
	cp := *c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		cp.ExpiresAt = &t
	}
	if c.LastErrorTime != nil {
		t := *c.LastErrorTime
		cp.LastErrorTime = &t
	}
	cp.Scopes = append([]string(nil), c.Scopes...)
	return &cp
}

func (s *Store) Upsert(ctx context.Context, in repository.UpsertConnectionInput) (*repository.OAuthConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	k := key(in.UserID, in.Platform)

	c, ok := s.conns[k]
	if !ok {
		c = &repository.OAuthConnection{
			ID:        uuid.NewString(),
			UserID:    in.UserID,
			Platform:  in.Platform,
			CreatedAt: now,
		}
		s.conns[k] = c
	}
	c.AccountID = in.AccountID
	c.DisplayName = in.DisplayName
	c.AvatarURL = in.AvatarURL
	c.AccessTokenEnc = in.AccessTokenEnc
	c.RefreshTokenEnc = in.RefreshTokenEnc
	c.ExpiresAt = in.ExpiresAt
	c.Scopes = append([]string(nil), in.Scopes...)
	c.Active = true
	c.LastError = ""
	c.LastErrorTime = nil
	c.UpdatedAt = now

	return clone(c), nil
}

func (s *Store) Get(ctx context.Context, userID, platform string) (*repository.OAuthConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conns[key(userID, platform)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(c), nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]*repository.OAuthConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*repository.OAuthConnection
	for _, c := range s.conns {
		if c.UserID == userID {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

func (s *Store) ListExpiring(ctx context.Context, within time.Duration) ([]*repository.OAuthConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := time.Now().Add(within)
	var out []*repository.OAuthConnection
	for _, c := range s.conns {
		if !c.Active || c.RefreshTokenEnc == "" || c.ExpiresAt == nil {
			continue
		}
		if c.ExpiresAt.Before(limit) || c.ExpiresAt.Equal(limit) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	return out, nil
}

func (s *Store) UpdateTokens(ctx context.Context, userID, platform, accessTokenEnc, refreshTokenEnc string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[key(userID, platform)]
	if !ok {
		return repository.ErrNotFound
	}
	c.AccessTokenEnc = accessTokenEnc
	c.RefreshTokenEnc = refreshTokenEnc
	c.ExpiresAt = expiresAt
	c.Active = true
	c.LastError = ""
	c.LastErrorTime = nil
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SetInactive(ctx context.Context, userID, platform, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[key(userID, platform)]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	c.Active = false
	c.LastError = lastError
	c.LastErrorTime = &now
	c.UpdatedAt = now
	return nil
}

func (s *Store) Delete(ctx context.Context, userID, platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(userID, platform)
	if _, ok := s.conns[k]; !ok {
		return repository.ErrNotFound
	}
	delete(s.conns, k)
	return nil
}
