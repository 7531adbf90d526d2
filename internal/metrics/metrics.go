// Package metrics expone los contadores prometheus del servicio.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crosspost",
		Name:      "publish_total",
		Help:      "Publicaciones por plataforma y resultado.",
	}, []string{"platform", "outcome"})

	publishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crosspost",
		Name:      "publish_duration_seconds",
		Help:      "Duración de la publicación por plataforma.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"platform"})

	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crosspost",
		Name:      "token_refresh_total",
		Help:      "Refresh de tokens por plataforma y resultado.",
	}, []string{"platform", "outcome"})

	oauthFlowTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crosspost",
		Name:      "oauth_flow_total",
		Help:      "Flujos OAuth iniciados/completados por plataforma.",
	}, []string{"platform", "step"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crosspost",
		Name:      "http_requests_total",
		Help:      "Requests HTTP por ruta y status.",
	}, []string{"method", "path", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crosspost",
		Name:      "http_request_duration_seconds",
		Help:      "Latencia HTTP por ruta.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	scheduledGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "crosspost",
		Name:      "scheduled_posts_pending",
		Help:      "Posts programados pendientes de disparo.",
	})
)

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// ObservePublish registra el resultado y la duración de una publicación.
func ObservePublish(platform string, success bool, d time.Duration) {
	publishTotal.WithLabelValues(platform, outcome(success)).Inc()
	publishDuration.WithLabelValues(platform).Observe(d.Seconds())
}

// ObserveRefresh registra el resultado de un refresh de token.
func ObserveRefresh(platform string, success bool) {
	refreshTotal.WithLabelValues(platform, outcome(success)).Inc()
}

// ObserveOAuthFlow registra un paso de un flujo OAuth ("start", "callback",
// "revoke").
func ObserveOAuthFlow(platform, step string) {
	oauthFlowTotal.WithLabelValues(platform, step).Inc()
}

// ObserveHTTP registra una request HTTP atendida.
func ObserveHTTP(method, path string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// ScheduledPending actualiza el gauge de posts programados.
func ScheduledPending(n int) {
	scheduledGauge.Set(float64(n))
}

// Handler expone el endpoint /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
