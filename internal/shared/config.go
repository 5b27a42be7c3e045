package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv       string
	LogLevel     string
	HTTPAddr     string
	MetricsAddr  string
	MySQLDSN     string
	MySQLMigrate bool
	RedisAddr    string
	RedisDB      int
	RedisPass    string
	CacheTTL     time.Duration

	DiscoveryURL         string
	DiscoveryUser        string
	DiscoveryPass        string
	DiscoveryVersion     string
	DiscoveryEnvironment string
	DiscoveryCollection  string
	DiscoveryRPS         int

	CloudantURL       string
	CloudantUser      string
	CloudantPass      string
	CloudantDB        string
	CloudantRPS       int
	CloudantWriteback bool

	Workers   int
	Schedule  string // cron spec; empty runs the ingestor once
	Stopwords []string
}

// Load reads the environment, after merging a .env file when one exists.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env")
	}

	c := Config{
		AppEnv:       env("APP_ENV", "prod"),
		LogLevel:     env("LOG_LEVEL", "info"),
		HTTPAddr:     env("HTTP_ADDR", ":8080"),
		MetricsAddr:  env("METRICS_ADDR", ""),
		MySQLDSN:     env("MYSQL_DSN", "root:root@tcp(localhost:3306)/insights?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC"),
		MySQLMigrate: boolean("MYSQL_MIGRATE", true),
		RedisAddr:    env("REDIS_ADDR", "localhost:6379"),
		RedisDB:      atoi("REDIS_DB", 0),
		RedisPass:    env("REDIS_PASSWORD", ""),
		CacheTTL:     time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,

		DiscoveryURL:         env("DISCOVERY_URL", "https://gateway.watsonplatform.net/discovery/api"),
		DiscoveryUser:        env("DISCOVERY_USERNAME", ""),
		DiscoveryPass:        env("DISCOVERY_PASSWORD", ""),
		DiscoveryVersion:     env("DISCOVERY_VERSION", "2017-02-14"),
		DiscoveryEnvironment: env("DISCOVERY_ENVIRONMENT", "byod"),
		DiscoveryCollection:  env("DISCOVERY_COLLECTION", "compiled_reviews_v4"),
		DiscoveryRPS:         atoi("DISCOVERY_RPS", 5),

		CloudantURL:       env("CLOUDANT_URL", ""),
		CloudantUser:      env("CLOUDANT_USERNAME", ""),
		CloudantPass:      env("CLOUDANT_PASSWORD", ""),
		CloudantDB:        env("CLOUDANT_DB", "app_db"),
		CloudantRPS:       atoi("CLOUDANT_RPS", 3),
		CloudantWriteback: boolean("CLOUDANT_WRITEBACK", true),

		Workers:   atoi("INGEST_WORKERS", 4),
		Schedule:  env("INGEST_SCHEDULE", ""),
		Stopwords: list("KEYWORD_STOPWORDS", []string{"app"}),
	}
	if c.DiscoveryUser == "" {
		log.Warn().Msg("DISCOVERY_USERNAME is empty")
	}
	if c.CloudantUser == "" {
		log.Warn().Msg("CLOUDANT_USERNAME is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
	}
	return def
}

func boolean(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// list splits a comma-separated value; an explicitly empty list needs "-".
func list(k string, def []string) []string {
	v := os.Getenv(k)
	switch v {
	case "":
		return def
	case "-":
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
