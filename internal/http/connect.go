package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/crosspost/internal/credentials"
	"github.com/dropDatabas3/crosspost/internal/domain/repository"
	"github.com/dropDatabas3/crosspost/internal/metrics"
	"github.com/dropDatabas3/crosspost/internal/oauth"
	"github.com/dropDatabas3/crosspost/internal/observability/logger"
	"github.com/dropDatabas3/crosspost/internal/platform"
	"github.com/dropDatabas3/crosspost/internal/security/oauthstate"
)

// handleConnectStart arranca el flujo OAuth: genera la URL de autorización
// firmada (con PKCE si la plataforma lo exige) y la devuelve al caller.
func (a *API) handleConnectStart(w http.ResponseWriter, r *http.Request) {
	platformName := chi.URLParam(r, "platform")
	userID := UserID(r.Context())

	ar, err := a.OAuth.GenerateAuthorizationURL(platformName, userID)
	if err != nil {
		if errors.Is(err, platform.ErrUnsupportedPlatform) {
			WriteError(w, http.StatusNotFound, "unsupported_platform", platformName)
			return
		}
		logger.L().Error("authorization url", logger.Platform(platformName), logger.Err(err))
		WriteError(w, http.StatusInternalServerError, "oauth_error", "could not build authorization URL")
		return
	}

	metrics.ObserveOAuthFlow(platformName, "start")
	WriteJSON(w, http.StatusOK, map[string]string{"authorizationUrl": ar.URL})
}

// handleConnectCallback cierra el flujo: valida el state firmado, canjea el
// code, trae el perfil y guarda la conexión cifrada. El user id sale del
// state, no de un bearer: el redirect llega del navegador.
func (a *API) handleConnectCallback(w http.ResponseWriter, r *http.Request) {
	platformName := chi.URLParam(r, "platform")
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		WriteError(w, http.StatusBadRequest, "authorization_denied", q.Get("error_description"))
		return
	}
	code := q.Get("code")
	rawState := q.Get("state")
	if code == "" || rawState == "" {
		WriteError(w, http.StatusBadRequest, "invalid_callback", "missing code or state")
		return
	}

	st, err := a.OAuth.ValidateOAuthState(rawState)
	if err != nil {
		switch {
		case errors.Is(err, oauthstate.ErrStateExpired):
			WriteError(w, http.StatusBadRequest, "state_expired", "restart the connect flow")
		case errors.Is(err, oauthstate.ErrStateReplay):
			WriteError(w, http.StatusBadRequest, "state_replayed", "state already used")
		default:
			WriteError(w, http.StatusBadRequest, "state_invalid", "state signature rejected")
		}
		return
	}
	if st.Platform != platformName {
		WriteError(w, http.StatusBadRequest, "state_invalid", "state platform mismatch")
		return
	}

	ctx := r.Context()
	ts, err := a.OAuth.ExchangeCode(ctx, platformName, code, st.PKCEVerifier)
	if err != nil {
		logger.L().Warn("code exchange failed", logger.Platform(platformName), logger.Err(err))
		WriteError(w, http.StatusBadGateway, "exchange_failed", "platform rejected the authorization code")
		return
	}

	// El perfil es parte del alta: sin account id no hay target de
	// publicación en varias plataformas.
	profile, err := a.OAuth.FetchUserProfile(ctx, platformName, ts.AccessToken)
	if err != nil {
		logger.L().Warn("profile fetch failed", logger.Platform(platformName), logger.Err(err))
		profile = nil
	}

	conn, err := a.Creds.StoreConnection(ctx, st.UserID, platformName, ts, profile)
	if err != nil {
		logger.L().Error("store connection", logger.Platform(platformName), logger.Err(err))
		WriteError(w, http.StatusInternalServerError, "storage_error", "could not persist the connection")
		return
	}

	metrics.ObserveOAuthFlow(platformName, "callback")
	WriteJSON(w, http.StatusOK, connectionView(conn))
}

// connectionView es la proyección pública de una conexión: nunca incluye
// tokens, ni siquiera cifrados.
type connectionDTO struct {
	Platform    string     `json:"platform"`
	AccountID   string     `json:"accountId,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	Active      bool       `json:"active"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Scopes      []string   `json:"scopes,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	ConnectedAt time.Time  `json:"connectedAt"`
}

func connectionView(c *repository.OAuthConnection) connectionDTO {
	return connectionDTO{
		Platform:    c.Platform,
		AccountID:   c.AccountID,
		DisplayName: c.DisplayName,
		AvatarURL:   c.AvatarURL,
		Active:      c.Active,
		ExpiresAt:   c.ExpiresAt,
		Scopes:      c.Scopes,
		LastError:   c.LastError,
		ConnectedAt: c.CreatedAt,
	}
}

func (a *API) handleListConnections(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	conns, err := a.Repo.ListByUser(r.Context(), userID)
	if err != nil {
		logger.L().Error("list connections", logger.UserID(userID), logger.Err(err))
		WriteError(w, http.StatusInternalServerError, "storage_error", "could not list connections")
		return
	}
	out := make([]connectionDTO, 0, len(conns))
	for _, c := range conns {
		out = append(out, connectionView(c))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"connections": out})
}

func (a *API) handleConnectionHealth(w http.ResponseWriter, r *http.Request) {
	platformName := chi.URLParam(r, "platform")
	h, err := a.Creds.CheckConnectionHealth(r.Context(), UserID(r.Context()), platformName)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "storage_error", "could not check connection")
		return
	}
	WriteJSON(w, http.StatusOK, h)
}

func (a *API) handleRefreshConnection(w http.ResponseWriter, r *http.Request) {
	platformName := chi.URLParam(r, "platform")
	userID := UserID(r.Context())

	conn, err := a.Creds.RefreshTokens(r.Context(), userID, platformName)
	metrics.ObserveRefresh(platformName, err == nil)
	if err != nil {
		switch {
		case errors.Is(err, credentials.ErrNotConnected):
			WriteError(w, http.StatusNotFound, "not_connected", platformName)
		case errors.Is(err, oauth.ErrRefreshNotSupported):
			WriteError(w, http.StatusConflict, "refresh_not_supported", platformName)
		case errors.Is(err, credentials.ErrConnectionInactive):
			WriteError(w, http.StatusConflict, "connection_inactive", "re-authorization required")
		default:
			WriteError(w, http.StatusBadGateway, "refresh_failed", "platform rejected the refresh")
		}
		return
	}
	WriteJSON(w, http.StatusOK, connectionView(conn))
}

func (a *API) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	platformName := chi.URLParam(r, "platform")
	userID := UserID(r.Context())

	if err := a.Creds.Disconnect(r.Context(), userID, platformName); err != nil {
		if errors.Is(err, credentials.ErrNotConnected) {
			WriteError(w, http.StatusNotFound, "not_connected", platformName)
			return
		}
		logger.L().Error("disconnect", logger.UserID(userID), logger.Platform(platformName), logger.Err(err))
		WriteError(w, http.StatusInternalServerError, "storage_error", "could not disconnect")
		return
	}
	metrics.ObserveOAuthFlow(platformName, "revoke")
	w.WriteHeader(http.StatusNoContent)
}
