package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"app_insights/internal/adapters/discovery"
	server "app_insights/internal/adapters/http_server"
	"app_insights/internal/adapters/observability"
	redisad "app_insights/internal/adapters/redis"
	"app_insights/internal/app"
	"app_insights/internal/shared"
	mysqlrepo "app_insights/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()
	if err := cache.Ping(ctx); err != nil {
		// reads still work uncached
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable")
	}

	disc, err := discovery.New(discovery.Config{
		BaseURL:     cfg.DiscoveryURL,
		Username:    cfg.DiscoveryUser,
		Password:    cfg.DiscoveryPass,
		Version:     cfg.DiscoveryVersion,
		Environment: cfg.DiscoveryEnvironment,
		Collection:  cfg.DiscoveryCollection,
		RPS:         cfg.DiscoveryRPS,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Discovery client")
	}

	// deps
	repo := mysqlrepo.New(db)
	q := app.NewInsightsService(repo, disc, cache, cfg.CacheTTL, cfg.Stopwords, clockwork.NewRealClock())

	// http
	srv := server.New(server.DefaultTimeout)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
