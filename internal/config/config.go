package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dustin/Linkstat/internal/logging"
)

type Config struct {
	ListenAddr          string
	DBPath              string
	DBMaxConnections    int
	DBQueryTimeout      time.Duration
	LogLevel            logging.Level
	LogFormat           logging.Format
	MaxMindDBPath       string
	GeoAPIURL           string
	GeoTimeout          time.Duration
	GeoCacheSize        int
	GeoCacheTTL         time.Duration
	GeoFailureTTL       time.Duration
	Timezone            string
	DashboardWindowDays int
	TopLinksLimit       int
	StatsEventLimit     int
	RecentEventsLimit   int
	RecordTimeout       time.Duration
	DataRetentionDays   int
	RateLimitPerMinute  int
	MaxRequestBodyBytes int64
	TrustProxyHeaders   bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		ListenAddr:          getEnv("LISTEN_ADDR", ":8405"),
		DBPath:              getEnv("DB_PATH", "./data/linkstat.db"),
		DBMaxConnections:    getEnvInt("DB_MAX_CONNECTIONS", 1),
		DBQueryTimeout:      getEnvDuration("DB_QUERY_TIMEOUT", 30*time.Second),
		LogLevel:            logging.ParseLevel(getEnv("LOG_LEVEL", "INFO")),
		LogFormat:           logging.ParseFormat(getEnv("LOG_FORMAT", "text")),
		MaxMindDBPath:       os.Getenv("MAXMIND_DB_PATH"),
		GeoAPIURL:           getEnvAllowEmpty("GEO_API_URL", "http://ip-api.com"),
		GeoTimeout:          getEnvDuration("GEO_TIMEOUT", 2*time.Second),
		GeoCacheSize:        getEnvInt("GEO_CACHE_SIZE", 10000),
		GeoCacheTTL:         getEnvDuration("GEO_CACHE_TTL", time.Hour),
		GeoFailureTTL:       getEnvDuration("GEO_FAILURE_TTL", 5*time.Minute),
		Timezone:            getEnv("ANALYTICS_TIMEZONE", "UTC"),
		DashboardWindowDays: getEnvInt("DASHBOARD_WINDOW_DAYS", 30),
		TopLinksLimit:       getEnvInt("TOP_LINKS_LIMIT", 5),
		StatsEventLimit:     getEnvInt("STATS_EVENT_LIMIT", 10000),
		RecentEventsLimit:   getEnvInt("RECENT_EVENTS_LIMIT", 100),
		RecordTimeout:       getEnvDuration("RECORD_TIMEOUT", 5*time.Second),
		DataRetentionDays:   getEnvInt("DATA_RETENTION_DAYS", 0),
		RateLimitPerMinute:  getEnvInt("RATE_LIMIT_PER_MINUTE", 0),
		MaxRequestBodyBytes: getEnvInt64("MAX_REQUEST_BODY_BYTES", 64<<10),
		TrustProxyHeaders:   getEnvBool("TRUST_PROXY_HEADERS", true),
	}
}

// Location returns the analytics timezone. Unknown zone names fall back to UTC.
func (c Config) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "UTC") {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		slog.Warn("invalid analytics timezone, using UTC", "timezone", c.Timezone, "error", err)
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvAllowEmpty distinguishes an unset variable from one explicitly set to "".
func getEnvAllowEmpty(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		slog.Warn("invalid bool environment variable", "key", key, "value", val, "error", err)
		return def
	}
	return parsed
}

func getEnvInt(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("invalid int environment variable", "key", key, "value", val, "error", err)
		return def
	}
	return parsed
}

func getEnvInt64(key string, def int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		slog.Warn("invalid int64 environment variable", "key", key, "value", val, "error", err)
		return def
	}
	return parsed
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("invalid duration environment variable", "key", key, "value", val, "error", err)
		return def
	}
	return parsed
}
