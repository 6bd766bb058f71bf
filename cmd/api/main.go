// Command api runs the moderation authority service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/snailscoop/modauthority/internal/credcache"
	"github.com/snailscoop/modauthority/internal/credential"
	"github.com/snailscoop/modauthority/internal/history"
	"github.com/snailscoop/modauthority/internal/httpapi"
	"github.com/snailscoop/modauthority/internal/migrate"
	"github.com/snailscoop/modauthority/internal/moderation"
	"github.com/snailscoop/modauthority/internal/obs"
	"github.com/snailscoop/modauthority/internal/platform"
	"github.com/snailscoop/modauthority/internal/platform/remote"
	"github.com/snailscoop/modauthority/internal/stake"
	"github.com/snailscoop/modauthority/internal/store/pg"
)

var version = "dev"

func main() {
	cfg := loadConfig()
	obs.Init()

	store, err := pg.Open(cfg.pgDSN)
	if err != nil {
		fatal("open postgres", err)
	}
	defer store.Close()

	if cfg.migrationsDir != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := migrate.Up(ctx, store.DB(), cfg.migrationsDir); err != nil {
			cancel()
			fatal("apply migrations", err)
		}
		cancel()
	}

	var recorder moderation.HistoryRecorder = history.Noop{}
	if cfg.redisURL != "" {
		rec, err := history.New(cfg.redisURL)
		if err != nil {
			fatal("connect redis", err)
		}
		defer rec.Close()
		recorder = rec
	}

	gateway := remote.New(cfg.platformURL, cfg.platformToken)
	directory := platform.NewDirectory(
		platform.IDStrategy{},
		platform.UsernameStrategy{Resolve: gateway.UserByUsername},
	)

	var issuer credential.Issuer
	if cfg.issuerURL != "" {
		issuer = credential.NewClient(cfg.issuerURL, cfg.issuerAPIKey)
	}

	cache := credcache.New(store.Assignments(), 0, 0)
	gate := moderation.NewFeatureGate(store.Flags())

	var resolverOpts []moderation.ResolverOption
	if cfg.stakeURL != "" {
		resolverOpts = append(resolverOpts,
			moderation.WithStakeVerifier(stake.NewVerifier(cfg.stakeURL, cfg.stakeMinAmount)))
	}
	resolver := moderation.NewResolver(gateway, issuer, cache, gate, resolverOpts...)
	gate.BindAuthority(resolver)

	notifier := moderation.NewNotifier(gateway, store.Assignments())
	audit := moderation.NewAuditTrail(store.Actions(), recorder, notifier)

	var execOpts []moderation.ExecutorOption
	if issuer != nil {
		execOpts = append(execOpts, moderation.WithIssuer(issuer, cfg.issuerDID))
	}
	executor := moderation.NewExecutor(resolver, gateway, audit, cache, execOpts...)
	appeals := moderation.NewAppealWorkflow(store.Appeals(), audit, resolver, gateway, notifier)

	api := httpapi.New(httpapi.Config{
		ReadyProbe: httpapi.ReadyProbe{DB: store.DB()},
		Version:    version,
		Resolver:   resolver,
		Executor:   executor,
		Audit:      audit,
		Gate:       gate,
		Appeals:    appeals,
		Directory:  directory,
		AuthSecret: cfg.authSecret,
	})

	srv := &http.Server{
		Addr:              cfg.addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.LogEvent("server_starting", map[string]any{"addr": cfg.addr, "version": version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("serve", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		obs.LogEvent("shutdown_error", map[string]any{"error": err.Error()})
	}
	obs.LogEvent("server_stopped", nil)
}

type config struct {
	addr           string
	pgDSN          string
	redisURL       string
	platformURL    string
	platformToken  string
	issuerURL      string
	issuerAPIKey   string
	issuerDID      string
	stakeURL       string
	stakeMinAmount int64
	authSecret     string
	migrationsDir  string
}

func loadConfig() config {
	cfg := config{
		addr:           env("MODAUTH_ADDR", ":8080"),
		pgDSN:          env("MODAUTH_PG_DSN", ""),
		redisURL:       env("MODAUTH_REDIS_URL", ""),
		platformURL:    env("MODAUTH_PLATFORM_URL", ""),
		platformToken:  env("MODAUTH_PLATFORM_TOKEN", ""),
		issuerURL:      env("MODAUTH_ISSUER_URL", ""),
		issuerAPIKey:   env("MODAUTH_ISSUER_API_KEY", ""),
		issuerDID:      env("MODAUTH_ISSUER_DID", ""),
		stakeURL:       env("MODAUTH_STAKE_URL", ""),
		stakeMinAmount: envInt64("MODAUTH_STAKE_MIN_AMOUNT", 1_000_000),
		authSecret:     env("MODAUTH_AUTH_SECRET", ""),
		migrationsDir:  env("MODAUTH_MIGRATIONS_DIR", ""),
	}
	if cfg.pgDSN == "" {
		fatal("config", errors.New("MODAUTH_PG_DSN is required"))
	}
	if cfg.platformURL == "" {
		fatal("config", errors.New("MODAUTH_PLATFORM_URL is required"))
	}
	return cfg
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		fatal("config", errors.New(key+" must be an integer"))
	}
	return n
}

func fatal(stage string, err error) {
	obs.LogEvent("fatal", map[string]any{"stage": stage, "error": err.Error()})
	os.Exit(1)
}
