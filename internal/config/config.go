package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PlatformConfig son las credenciales de app registradas en cada red.
// Las URLs son overrides opcionales (útiles en tests o proxies regionales).
type PlatformConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`

	AuthURL    string `yaml:"auth_url"`
	TokenURL   string `yaml:"token_url"`
	RevokeURL  string `yaml:"revoke_url"`
	APIBaseURL string `yaml:"api_base_url"`
}

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Auth struct {
		// Secreto HS256 para validar los bearer tokens de la API.
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Security struct {
		// base64(32 bytes): cifra tokens OAuth en reposo.
		SecretBoxMasterKey string `yaml:"secretbox_master_key"`
		// Firma HMAC del state OAuth. Si falta, se usa el master key.
		StateSecret string `yaml:"state_secret"`
	} `yaml:"security"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		// Presupuesto global por usuario cuando la plataforma no define uno.
		Window      string `yaml:"window"`
		MaxRequests int    `yaml:"max_requests"`
	} `yaml:"rate"`

	Refresh struct {
		// Cada cuánto corre el barrido de refresh proactivo.
		Interval string `yaml:"interval"`
		// Ventana de expiración que cubre cada barrido.
		Window string `yaml:"window"`
	} `yaml:"refresh"`

	Platforms map[string]PlatformConfig `yaml:"platforms"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadOrDefault carga el YAML si existe; si no, arranca con defaults + env.
// Permite correr el binario sólo con variables de entorno.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	var c Config
	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "crosspost"
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 120
	}
	if c.Refresh.Interval == "" {
		c.Refresh.Interval = "15m"
	}
	if c.Refresh.Window == "" {
		c.Refresh.Window = "1h"
	}
	if c.Platforms == nil {
		c.Platforms = map[string]PlatformConfig{}
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}
	if v, ok := getEnvStr("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvStr("CACHE_MEMORY_DEFAULT_TTL"); ok {
		c.Cache.Memory.DefaultTTL = v
	}

	// AUTH
	if v, ok := getEnvStr("AUTH_JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}

	// SECURITY
	if v, ok := getEnvStr("SECRETBOX_MASTER_KEY"); ok {
		c.Security.SecretBoxMasterKey = v
	}
	if v, ok := getEnvStr("OAUTH_STATE_SECRET"); ok {
		c.Security.StateSecret = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}

	// REFRESH
	if v, ok := getEnvStr("REFRESH_INTERVAL"); ok {
		c.Refresh.Interval = v
	}
	if v, ok := getEnvStr("REFRESH_WINDOW"); ok {
		c.Refresh.Window = v
	}

	// PLATFORMS: <PLATFORM>_CLIENT_ID / _CLIENT_SECRET / _REDIRECT_URI
	// (INSTAGRAM_CLIENT_ID=..., REDDIT_CLIENT_SECRET=..., etc.)
	for _, name := range []string{"instagram", "tiktok", "linkedin", "discord", "reddit", "facebook", "pinterest"} {
		pc := c.Platforms[name]
		prefix := strings.ToUpper(name)
		touched := false
		if v, ok := getEnvStr(prefix + "_CLIENT_ID"); ok {
			pc.ClientID = v
			touched = true
		}
		if v, ok := getEnvStr(prefix + "_CLIENT_SECRET"); ok {
			pc.ClientSecret = v
			touched = true
		}
		if v, ok := getEnvStr(prefix + "_REDIRECT_URI"); ok {
			pc.RedirectURI = v
			touched = true
		}
		if touched {
			pc.Enabled = true
			c.Platforms[name] = pc
		}
	}
}

// Validate valida duraciones y combinaciones imposibles. Los secretos se
// validan donde se usan (cmd/serve exige master key, por ejemplo).
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"rate.window":                        c.Rate.Window,
		"refresh.interval":                   c.Refresh.Interval,
		"refresh.window":                     c.Refresh.Window,
		"cache.memory.default_ttl":           c.Cache.Memory.DefaultTTL,
		"storage.postgres.conn_max_lifetime": c.Storage.Postgres.ConnMaxLifetime,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("config: storage.driver=postgres requiere storage.dsn")
		}
	default:
		return fmt.Errorf("config: storage.driver desconocido %q", c.Storage.Driver)
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			return fmt.Errorf("config: cache.kind=redis requiere cache.redis.addr")
		}
	default:
		return fmt.Errorf("config: cache.kind desconocido %q", c.Cache.Kind)
	}
	return nil
}

// Dur parsea una duración ya validada; el fallback cubre los campos vacíos.
func Dur(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
