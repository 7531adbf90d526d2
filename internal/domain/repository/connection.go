package repository

import (
	"context"
	"time"
)

// OAuthConnection representa la conexión OAuth de un usuario con una
// plataforma. Los campos *Enc guardan los tokens cifrados (secretbox);
// nunca viajan en claro fuera del TokenManager ni aparecen en logs.
type OAuthConnection struct {
	ID       string
	UserID   string
	Platform string

	// Identidad del lado de la plataforma.
	AccountID   string
	DisplayName string
	AvatarURL   string

	AccessTokenEnc  string
	RefreshTokenEnc string // vacío si la plataforma no emite refresh token

	// ExpiresAt nil => token sin expiración.
	ExpiresAt *time.Time
	Scopes    []string

	Active        bool
	LastError     string
	LastErrorTime *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpired indica si el access token ya expiró.
func (c *OAuthConnection) IsExpired() bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*c.ExpiresAt)
}

// ExpiresWithin indica si el token expira dentro de la ventana dada.
func (c *OAuthConnection) ExpiresWithin(d time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(d).After(*c.ExpiresAt)
}

// HasRefreshToken indica si hay refresh token almacenado.
func (c *OAuthConnection) HasRefreshToken() bool {
	return c.RefreshTokenEnc != ""
}

// UpsertConnectionInput contiene los datos para crear/sobrescribir una
// conexión. La unicidad es por (user_id, platform): un upsert pisa la
// conexión previa del mismo par.
type UpsertConnectionInput struct {
	UserID   string
	Platform string

	AccountID   string
	DisplayName string
	AvatarURL   string

	AccessTokenEnc  string
	RefreshTokenEnc string
	ExpiresAt       *time.Time
	Scopes          []string
}

// ConnectionRepository define la persistencia de OAuthConnection.
// Invariante: a lo sumo una conexión activa por (user_id, platform).
type ConnectionRepository interface {
	// Upsert crea o sobrescribe la conexión del par (user, platform).
	// Retorna la conexión persistida.
	Upsert(ctx context.Context, input UpsertConnectionInput) (*OAuthConnection, error)

	// Get busca la conexión de un par (user, platform).
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, userID, platform string) (*OAuthConnection, error)

	// ListByUser retorna todas las conexiones de un usuario.
	ListByUser(ctx context.Context, userID string) ([]*OAuthConnection, error)

	// ListExpiring retorna conexiones activas con refresh token cuyo
	// expires_at cae dentro de la ventana dada. Para el refresh batch.
	ListExpiring(ctx context.Context, within time.Duration) ([]*OAuthConnection, error)

	// UpdateTokens pisa los tokens cifrados y el expiry tras un refresh.
	// Last-writer-wins: el refresh concurrente se serializa arriba
	// (singleflight en el TokenManager).
	UpdateTokens(ctx context.Context, userID, platform, accessTokenEnc, refreshTokenEnc string, expiresAt *time.Time) error

	// SetInactive desactiva la conexión y registra el último error.
	SetInactive(ctx context.Context, userID, platform, lastError string) error

	// Delete borra la conexión. Retorna ErrNotFound si no existe.
	Delete(ctx context.Context, userID, platform string) error
}
