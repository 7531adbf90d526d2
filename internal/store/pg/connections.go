package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/crosspost/internal/domain/repository"
)

const connCols = `id, user_id, platform, account_id, display_name, avatar_url,
	access_token_enc, refresh_token_enc, expires_at, scopes, active,
	last_error, last_error_time, created_at, updated_at`

// Upsert crea o pisa la conexión del par (user, platform).
// ON CONFLICT sobre el unique (user_id, platform); last-writer-wins.
func (s *Store) Upsert(ctx context.Context, in repository.UpsertConnectionInput) (*repository.OAuthConnection, error) {
	const q = `
		INSERT INTO oauth_connections
			(user_id, platform, account_id, display_name, avatar_url,
			 access_token_enc, refresh_token_enc, expires_at, scopes,
			 active, last_error, last_error_time, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,TRUE,'',NULL,NOW(),NOW())
		ON CONFLICT (user_id, platform) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			access_token_enc = EXCLUDED.access_token_enc,
			refresh_token_enc = EXCLUDED.refresh_token_enc,
			expires_at = EXCLUDED.expires_at,
			scopes = EXCLUDED.scopes,
			active = TRUE,
			last_error = '',
			last_error_time = NULL,
			updated_at = NOW()
		RETURNING ` + connCols
	row := s.pool.QueryRow(ctx, q,
		in.UserID, in.Platform, in.AccountID, in.DisplayName, in.AvatarURL,
		in.AccessTokenEnc, in.RefreshTokenEnc, in.ExpiresAt, in.Scopes)
	return scanConnection(row)
}

// Get busca la conexión de (user, platform). ErrNotFound si no existe.
func (s *Store) Get(ctx context.Context, userID, platform string) (*repository.OAuthConnection, error) {
	const q = `SELECT ` + connCols + ` FROM oauth_connections WHERE user_id=$1 AND platform=$2`
	c, err := scanConnection(s.pool.QueryRow(ctx, q, userID, platform))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return c, err
}

// ListByUser retorna todas las conexiones del usuario, plataformas ordenadas.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*repository.OAuthConnection, error) {
	const q = `SELECT ` + connCols + ` FROM oauth_connections WHERE user_id=$1 ORDER BY platform`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConnections(rows)
}

// ListExpiring retorna conexiones activas con refresh token que expiran
// dentro de la ventana.
func (s *Store) ListExpiring(ctx context.Context, within time.Duration) ([]*repository.OAuthConnection, error) {
	const q = `SELECT ` + connCols + ` FROM oauth_connections
		WHERE active AND refresh_token_enc <> ''
		  AND expires_at IS NOT NULL AND expires_at <= NOW() + $1::interval
		ORDER BY expires_at`
	rows, err := s.pool.Query(ctx, q, within.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConnections(rows)
}

// UpdateTokens pisa los tokens cifrados tras un refresh.
func (s *Store) UpdateTokens(ctx context.Context, userID, platform, accessTokenEnc, refreshTokenEnc string, expiresAt *time.Time) error {
	const q = `UPDATE oauth_connections SET
			access_token_enc=$3, refresh_token_enc=$4, expires_at=$5,
			active=TRUE, last_error='', last_error_time=NULL, updated_at=NOW()
		WHERE user_id=$1 AND platform=$2`
	ct, err := s.pool.Exec(ctx, q, userID, platform, accessTokenEnc, refreshTokenEnc, expiresAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetInactive desactiva la conexión y registra el último error.
func (s *Store) SetInactive(ctx context.Context, userID, platform, lastError string) error {
	const q = `UPDATE oauth_connections SET
			active=FALSE, last_error=$3, last_error_time=NOW(), updated_at=NOW()
		WHERE user_id=$1 AND platform=$2`
	ct, err := s.pool.Exec(ctx, q, userID, platform, lastError)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete borra la conexión.
func (s *Store) Delete(ctx context.Context, userID, platform string) error {
	const q = `DELETE FROM oauth_connections WHERE user_id=$1 AND platform=$2`
	ct, err := s.pool.Exec(ctx, q, userID, platform)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanConnection(row rowScanner) (*repository.OAuthConnection, error) {
	var c repository.OAuthConnection
	err := row.Scan(
		&c.ID, &c.UserID, &c.Platform, &c.AccountID, &c.DisplayName, &c.AvatarURL,
		&c.AccessTokenEnc, &c.RefreshTokenEnc, &c.ExpiresAt, &c.Scopes, &c.Active,
		&c.LastError, &c.LastErrorTime, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectConnections(rows pgx.Rows) ([]*repository.OAuthConnection, error) {
	var out []*repository.OAuthConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
