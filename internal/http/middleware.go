package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/crosspost/internal/metrics"
	"github.com/dropDatabas3/crosspost/internal/observability/logger"
	"github.com/dropDatabas3/crosspost/internal/platform"
	"github.com/dropDatabas3/crosspost/internal/rate"
)

type ctxKey int

const ctxKeyUserID ctxKey = iota

// UserID extrae el user id autenticado del contexto. Vacío si el request no
// pasó por WithAuth.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserID).(string)
	return v
}

// ─────────────── Request ID ───────────────

func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			var b [16]byte
			_, _ = rand.Read(b[:])
			rid = hex.EncodeToString(b[:])
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

// ─────────────── Recover de pánicos ───────────────

func WithRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.L().Error("panic recovered",
					logger.RequestID(w.Header().Get("X-Request-ID")),
					logger.Path(r.URL.Path),
					logger.Any("panic", rec),
				)
				WriteError(w, http.StatusInternalServerError, "internal_error", "panic recover")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ─────────────── Logging ───────────────

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)

		metrics.ObserveHTTP(r.Method, r.URL.Path, rec.status, dur)
		logger.L().Info("http",
			logger.RequestID(w.Header().Get("X-Request-ID")),
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(rec.status),
			logger.Int("bytes", rec.bytes),
			logger.DurationMs(dur.Milliseconds()),
			logger.ClientIP(clientIP(r)),
		)
	})
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// ─────────────── Auth Bearer ───────────────

// WithAuth valida un bearer JWT HS256 emitido por la capa de identidad y
// deja el subject como user id en el contexto.
func WithAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(raw, "Bearer ") {
				w.Header().Set("WWW-Authenticate", `Bearer realm="crosspost"`)
				WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			tokenStr := strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))

			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid || claims.Subject == "" {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ─────────────── Rate Limit ───────────────

// WithRateLimit aplica el presupuesto de la plataforma del path (si hay) o
// el budget por defecto, keyeado por usuario autenticado o IP.
func WithRateLimit(limiter rate.MultiLimiter, reg *platform.Registry, fallback platform.RateBudget) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			budget := fallback
			if name := platformFromPath(r.URL.Path); name != "" {
				if def, err := reg.Get(name); err == nil {
					budget = def.Budget
				}
			}

			identifier := UserID(r.Context())
			if identifier == "" {
				identifier = clientIP(r)
			}

			res, err := limiter.AllowWithBudget(r.Context(), identifier, r.URL.Path, budget)
			if err != nil {
				// Backend caído: dejar pasar antes que cortar el servicio.
				logger.L().Warn("rate limit backend error", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if res.WindowTTL > 0 {
				resetAt := time.Now().Add(res.WindowTTL).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
			}
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				}
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "demasiadas solicitudes")
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}

// platformFromPath saca el nombre de plataforma de rutas tipo
// /api/v1/connect/{platform}/... y /api/v1/publish/{platform}.
func platformFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if (p == "connect" || p == "publish" || p == "connections" || p == "analytics" || p == "posts") && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}
