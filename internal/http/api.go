// Package http expone la API REST del servicio: ciclo de vida de conexiones
// OAuth y operaciones de publicación.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/crosspost/internal/credentials"
	"github.com/dropDatabas3/crosspost/internal/domain/repository"
	"github.com/dropDatabas3/crosspost/internal/metrics"
	"github.com/dropDatabas3/crosspost/internal/oauth"
	"github.com/dropDatabas3/crosspost/internal/platform"
	"github.com/dropDatabas3/crosspost/internal/publish/orchestrator"
	"github.com/dropDatabas3/crosspost/internal/rate"
)

// API agrupa las dependencias de los handlers.
type API struct {
	OAuth    *oauth.Service
	Creds    *credentials.Manager
	Orch     *orchestrator.Service
	Registry *platform.Registry
	Repo     repository.ConnectionRepository

	Limiter    rate.MultiLimiter
	AuthSecret []byte

	// Budget para endpoints sin plataforma en el path.
	DefaultBudget platform.RateBudget
}

// Router arma el router chi con la cadena de middlewares estándar.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(WithRequestID)
	r.Use(WithRecover)
	r.Use(WithLogging)

	r.Get("/healthz", a.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// El callback OAuth llega por redirect del navegador, sin bearer.
	r.Get("/api/v1/connect/{platform}/callback", a.handleConnectCallback)

	r.Group(func(r chi.Router) {
		r.Use(WithAuth(a.AuthSecret))
		r.Use(WithRateLimit(a.Limiter, a.Registry, a.defaultBudget()))

		r.Get("/api/v1/platforms", a.handleListPlatforms)

		r.Post("/api/v1/connect/{platform}", a.handleConnectStart)
		r.Get("/api/v1/connections", a.handleListConnections)
		r.Get("/api/v1/connections/{platform}/health", a.handleConnectionHealth)
		r.Post("/api/v1/connections/{platform}/refresh", a.handleRefreshConnection)
		r.Delete("/api/v1/connections/{platform}", a.handleDisconnect)

		r.Post("/api/v1/publish", a.handlePublish)
		r.Post("/api/v1/publish/carousel", a.handlePublishCarousel)

		r.Post("/api/v1/schedule", a.handleSchedulePost)
		r.Get("/api/v1/schedule", a.handleListScheduled)
		r.Delete("/api/v1/schedule/{id}", a.handleCancelScheduled)

		r.Post("/api/v1/analytics", a.handleMultiAnalytics)
		r.Get("/api/v1/analytics/{platform}/{postId}", a.handleAnalytics)
		r.Delete("/api/v1/posts/{platform}/{postId}", a.handleDeletePost)
	})

	return r
}

func (a *API) defaultBudget() platform.RateBudget {
	if a.DefaultBudget.Requests > 0 {
		return a.DefaultBudget
	}
	return platform.RateBudget{Requests: 120, Window: time.Minute}
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleListPlatforms(w http.ResponseWriter, r *http.Request) {
	type info struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
		MaxCaption  int    `json:"maxCaptionLen"`
		MaxCarousel int    `json:"maxCarouselItems,omitempty"`
	}
	names := a.Registry.Names()
	out := make([]info, 0, len(names))
	for _, name := range names {
		def, err := a.Registry.Get(name)
		if err != nil {
			continue
		}
		out = append(out, info{
			Name:        def.Name,
			DisplayName: def.DisplayName,
			MaxCaption:  def.Caps.MaxCaptionLen,
			MaxCarousel: def.Caps.MaxCarouselItems,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"platforms": out})
}
