package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/crosspost/internal/cache"
	"github.com/dropDatabas3/crosspost/internal/config"
	"github.com/dropDatabas3/crosspost/internal/credentials"
	"github.com/dropDatabas3/crosspost/internal/domain/repository"
	httpapi "github.com/dropDatabas3/crosspost/internal/http"
	"github.com/dropDatabas3/crosspost/internal/oauth"
	"github.com/dropDatabas3/crosspost/internal/observability/logger"
	"github.com/dropDatabas3/crosspost/internal/platform"
	"github.com/dropDatabas3/crosspost/internal/publish"
	"github.com/dropDatabas3/crosspost/internal/publish/orchestrator"
	"github.com/dropDatabas3/crosspost/internal/rate"
	"github.com/dropDatabas3/crosspost/internal/security/oauthstate"
	"github.com/dropDatabas3/crosspost/internal/security/secretbox"
	"github.com/dropDatabas3/crosspost/internal/store/memory"
	"github.com/dropDatabas3/crosspost/internal/store/pg"
	"github.com/dropDatabas3/crosspost/migrations"
)

func main() {
	var (
		configPath = envOr("CONFIG_PATH", "configs/config.yaml")
		envFile    = envOr("ENV_FILE", ".env")
	)

	root := &cobra.Command{
		Use:   "crosspost",
		Short: "Motor de publicación cruzada en redes sociales",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if _, err := os.Stat(envFile); err == nil {
					_ = godotenv.Load(envFile)
				}
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "ruta a config.yaml (env CONFIG_PATH)")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "ruta a .env (se carga si existe)")

	// serve: API HTTP + barrido de refresh en background
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta la API HTTP y el refresco proactivo de tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	// refresh: barrido one-shot (útil en cron)
	var refreshWindow string
	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresca los tokens que expiran dentro de la ventana dada y termina",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			if refreshWindow != "" {
				cfg.Refresh.Window = refreshWindow
			}
			return runRefresh(cfg)
		},
	}
	refreshCmd.Flags().StringVar(&refreshWindow, "window", "", "ventana de expiración a cubrir (ej. 1h; default config)")

	// migrate: aplica las migraciones embebidas sobre postgres
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de postgres y termina",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			return runMigrate(cfg)
		},
	}

	// encrypt: sella un secreto con la clave maestra (útil para seeds/fixtures)
	encryptCmd := &cobra.Command{
		Use:   "encrypt [plaintext]",
		Short: "Cifra un valor con la clave maestra y lo imprime",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			box, err := openBox(cfg)
			if err != nil {
				return err
			}
			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				b, err := io.ReadAll(os.Stdin)
				if err != nil {
					return err
				}
				plain = strings.TrimRight(string(b), "\n")
			}
			out, err := box.Encrypt(plain)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}

	// keygen: clave maestra para secretbox
	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Genera una clave maestra (base64 de 32 bytes) para cifrar tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := make([]byte, 32)
			if _, err := rand.Read(key); err != nil {
				return err
			}
			fmt.Println(base64.StdEncoding.EncodeToString(key))
			return nil
		},
	}

	root.AddCommand(serveCmd, refreshCmd, migrateCmd, encryptCmd, keygenCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// deps agrupa lo que comparten serve y refresh.
type deps struct {
	repo  repository.ConnectionRepository
	cache cache.Client
	creds *credentials.Manager
	oauth *oauth.Service
	reg   *platform.Registry
	close func()
}

func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	box, err := openBox(cfg)
	if err != nil {
		return nil, err
	}

	reg, err := platform.NewRegistry(platformOverrides(cfg))
	if err != nil {
		return nil, err
	}

	cc, err := cache.New(cache.Config{
		Driver: cfg.Cache.Kind,
		Addr:   cfg.Cache.Redis.Addr,
		DB:     cfg.Cache.Redis.DB,
		Prefix: cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	var (
		repo    repository.ConnectionRepository
		closeFn = func() { _ = cc.Close() }
	)
	switch cfg.Storage.Driver {
	case "memory":
		repo = memory.New()
	case "postgres":
		store, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{
			MaxConns:        cfg.Storage.Postgres.MaxOpenConns,
			ConnMaxLifetime: config.Dur(cfg.Storage.Postgres.ConnMaxLifetime, 30*time.Minute),
		})
		if err != nil {
			_ = cc.Close()
			return nil, fmt.Errorf("storage: %w", err)
		}
		repo = store
		closeFn = func() {
			store.Close()
			_ = cc.Close()
		}
	default:
		_ = cc.Close()
		return nil, fmt.Errorf("storage: driver desconocido %q", cfg.Storage.Driver)
	}

	codec := oauthstate.NewCodec(stateSecret(cfg), &cache.StateGuard{Client: cc})
	oauthSvc := oauth.New(reg, codec, nil)
	creds := credentials.New(repo, box, oauthSvc)

	return &deps{repo: repo, cache: cc, creds: creds, oauth: oauthSvc, reg: reg, close: closeFn}, nil
}

func openBox(cfg *config.Config) (*secretbox.Box, error) {
	if raw := strings.TrimSpace(cfg.Security.SecretBoxMasterKey); raw != "" {
		key, err := secretbox.ParseKey(raw)
		if err != nil {
			return nil, err
		}
		return secretbox.New(key)
	}
	return secretbox.NewFromEnv()
}

// stateSecret firma el state OAuth. Si no hay uno dedicado reutilizamos la
// master key: sólo se usa como clave HMAC, nunca viaja en claro.
func stateSecret(cfg *config.Config) []byte {
	if s := strings.TrimSpace(cfg.Security.StateSecret); s != "" {
		return []byte(s)
	}
	return []byte(cfg.Security.SecretBoxMasterKey)
}

func platformOverrides(cfg *config.Config) map[string][]platform.Override {
	out := make(map[string][]platform.Override, len(cfg.Platforms))
	for name, pc := range cfg.Platforms {
		if !pc.Enabled {
			continue
		}
		ovs := []platform.Override{
			platform.WithCredentials(platform.Credentials{
				ClientID:     pc.ClientID,
				ClientSecret: pc.ClientSecret,
				RedirectURI:  pc.RedirectURI,
			}),
		}
		if pc.AuthURL != "" || pc.TokenURL != "" || pc.RevokeURL != "" {
			ovs = append(ovs, platform.WithOAuthURLs(pc.AuthURL, pc.TokenURL, pc.RevokeURL))
		}
		if pc.APIBaseURL != "" {
			ovs = append(ovs, platform.WithAPIBaseURL(pc.APIBaseURL))
		}
		out[name] = ovs
	}
	return out
}

func buildLimiter(cfg *config.Config) rate.MultiLimiter {
	if cfg.Rate.Enabled && strings.EqualFold(cfg.Cache.Kind, "redis") {
		rc := rdb.NewClient(&rdb.Options{
			Addr: cfg.Cache.Redis.Addr,
			DB:   cfg.Cache.Redis.DB,
		})
		return rate.NewMultiRedisLimiter(rc, cfg.Cache.Redis.Prefix+":rl")
	}
	return rate.NewMemoryLimiter()
}

func runServe(cfg *config.Config) error {
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       envOr("LOG_LEVEL", "info"),
		ServiceName: "crosspost",
	})
	defer func() { _ = logger.Sync() }()

	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		return errors.New("AUTH_JWT_SECRET faltante: la API no puede validar bearer tokens")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	// Migraciones idempotentes en cada arranque.
	if store, ok := d.repo.(*pg.Store); ok {
		if err := store.RunMigrations(ctx, migrations.PostgresFS, migrations.PostgresDir); err != nil {
			return err
		}
	}

	adapters, err := publish.NewAdapters(d.reg, d.creds, d.cache)
	if err != nil {
		return err
	}
	orch := orchestrator.New(adapters)

	api := &httpapi.API{
		OAuth:      d.oauth,
		Creds:      d.creds,
		Orch:       orch,
		Registry:   d.reg,
		Repo:       d.repo,
		Limiter:    buildLimiter(cfg),
		AuthSecret: []byte(jwtSecret),
		DefaultBudget: platform.RateBudget{
			Requests: cfg.Rate.MaxRequests,
			Window:   config.Dur(cfg.Rate.Window, time.Minute),
		},
	}

	srv := httpapi.NewServer(cfg.Server.Addr, api.Router())

	// Barrido de refresh proactivo.
	interval := config.Dur(cfg.Refresh.Interval, 15*time.Minute)
	window := config.Dur(cfg.Refresh.Window, time.Hour)
	go refreshLoop(ctx, d.creds, interval, window)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.L().Info("crosspost up",
		logger.String("addr", cfg.Server.Addr),
		logger.String("storage", cfg.Storage.Driver),
		logger.String("cache", cfg.Cache.Kind),
		logger.Int("platforms", len(d.reg.Names())),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L().Warn("shutdown forzado", logger.Err(err))
		return err
	}
	logger.L().Info("bye")
	return nil
}

func refreshLoop(ctx context.Context, creds *credentials.Manager, interval, window time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			res, err := creds.RefreshExpiringTokens(ctx, window)
			if err != nil {
				logger.L().Warn("barrido de refresh incompleto", logger.Err(err))
				continue
			}
			if res.Scanned > 0 {
				logger.L().Info("barrido de refresh",
					logger.Int("scanned", res.Scanned),
					logger.Int("refreshed", res.Refreshed),
					logger.Int("failed", res.Failed),
				)
			}
		}
	}
}

func runMigrate(cfg *config.Config) error {
	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("migrate requiere storage.driver=postgres (actual: %s)", cfg.Storage.Driver)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{})
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RunMigrations(ctx, migrations.PostgresFS, migrations.PostgresDir); err != nil {
		return err
	}
	fmt.Println("migraciones aplicadas")
	return nil
}

func runRefresh(cfg *config.Config) error {
	logger.Init(logger.Config{Env: cfg.App.Env, Level: envOr("LOG_LEVEL", "info"), ServiceName: "crosspost"})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	window := config.Dur(cfg.Refresh.Window, time.Hour)
	res, err := d.creds.RefreshExpiringTokens(ctx, window)
	if err != nil {
		return err
	}
	fmt.Printf("scanned=%d refreshed=%d failed=%d\n", res.Scanned, res.Refreshed, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d refresh fallidos", res.Failed)
	}
	return nil
}
