package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"app_insights/internal/adapters/cloudant"
	"app_insights/internal/adapters/discovery"
	"app_insights/internal/adapters/observability"
	redisad "app_insights/internal/adapters/redis"
	"app_insights/internal/app"
	"app_insights/internal/domain"
	"app_insights/internal/shared"
	mysqlrepo "app_insights/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	log.Info().
		Str("discovery", cfg.DiscoveryURL).
		Str("collection", cfg.DiscoveryCollection).
		Int("workers", cfg.Workers).
		Str("schedule", cfg.Schedule).
		Msg("ingestor starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	if cfg.MySQLMigrate {
		if err := mysqlrepo.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
		log.Info().Msg("migrations applied")
	}

	repo := mysqlrepo.New(db)

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
	if err := disc.Setup(ctx); err != nil {
		log.Fatal().Err(err).Msg("discovery setup failed")
	}

	// The catalog is optional; without it the ingestor refreshes what MySQL
	// already knows.
	var catalog domain.AppCatalog
	if cfg.CloudantUser != "" {
		cl, err := cloudant.New(cfg.CloudantURL, cfg.CloudantUser, cfg.CloudantPass, cfg.CloudantDB, cfg.CloudantRPS)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Cloudant client")
		}
		if err := cl.Authorize(ctx); err != nil {
			log.Fatal().Err(err).Msg("cloudant authorization failed")
		}
		catalog = cl
	} else {
		log.Warn().Msg("CLOUDANT_USERNAME not set; catalog sync and write-back disabled")
	}

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()

	ing := app.NewRefreshService(disc, catalog, repo, cache, cfg.Stopwords, cfg.CloudantWriteback, clockwork.NewRealClock())
	r := app.NewRunner(ing, cfg.Workers)
	run := func() { _, _, _ = r.Run(ctx) }

	if cfg.Schedule == "" {
		run()
		return
	}

	c := cron.New(cron.WithLogger(cronLogger{}))
	if _, err := c.AddFunc(cfg.Schedule, run); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Schedule).Msg("invalid INGEST_SCHEDULE")
	}
	c.Start()
	log.Info().Str("schedule", cfg.Schedule).Msg("ingestor scheduled")

	<-ctx.Done()
	log.Info().Msg("shutting down; waiting for the running refresh")
	<-c.Stop().Done()
}

// cronLogger routes cron's own messages into zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
