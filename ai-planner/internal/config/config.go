package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
)

type Config struct {
	Addr        string
	Store       string
	DatabaseURL string
	DataDir     string

	CatalogFile  string
	RateCardFile string

	DenyRegions   []string
	MaxDimensions map[string]float64

	KafkaBrokers   []string
	KafkaTopic     string
	S3Bucket       string
	S3Prefix       string
	EventWorkers   int
	EventQueueSize int

	JWTSecret  string
	JWTIssuer  string
	WriteScope string

	RetentionMaxRecords int
	RetentionMaxAge     time.Duration
	RetentionInterval   time.Duration

	LogLevel  string
	LogFormat string
}

const (
	defaultAddr              = ":8070"
	defaultKafkaTopic        = "ai-planner.plans"
	defaultWriteScope        = "planner:write"
	defaultRetentionInterval = time.Hour
)

func Load() (Config, error) {
	cfg := Config{
		Addr:                getEnv("PLANNER_ADDR", defaultAddr),
		DatabaseURL:         firstNonEmpty(os.Getenv("PLANNER_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		DataDir:             os.Getenv("PLANNER_DATA_DIR"),
		CatalogFile:         os.Getenv("PLANNER_CATALOG_FILE"),
		RateCardFile:        os.Getenv("PLANNER_RATE_CARD_FILE"),
		DenyRegions:         parseCSV(os.Getenv("PLANNER_DENY_REGIONS")),
		KafkaBrokers:        parseCSV(os.Getenv("PLANNER_KAFKA_BROKERS")),
		KafkaTopic:          getEnv("PLANNER_KAFKA_TOPIC", defaultKafkaTopic),
		S3Bucket:            os.Getenv("PLANNER_S3_BUCKET"),
		S3Prefix:            os.Getenv("PLANNER_S3_PREFIX"),
		EventWorkers:        getInt("PLANNER_EVENT_WORKERS", 4),
		EventQueueSize:      getInt("PLANNER_EVENT_QUEUE_SIZE", 256),
		JWTSecret:           os.Getenv("PLANNER_JWT_SECRET"),
		JWTIssuer:           os.Getenv("PLANNER_JWT_ISSUER"),
		WriteScope:          getEnv("PLANNER_WRITE_SCOPE", defaultWriteScope),
		RetentionMaxRecords: getInt("PLANNER_RETENTION_MAX_RECORDS", 0),
		RetentionMaxAge:     getDuration("PLANNER_RETENTION_MAX_AGE", 0),
		RetentionInterval:   getDuration("PLANNER_RETENTION_INTERVAL", defaultRetentionInterval),
		LogLevel:            getEnv("PLANNER_LOG_LEVEL", "info"),
		LogFormat:           getEnv("PLANNER_LOG_FORMAT", "text"),
	}

	maxDims, err := parseLimits(os.Getenv("PLANNER_MAX_DIMENSIONS"))
	if err != nil {
		return Config{}, fmt.Errorf("PLANNER_MAX_DIMENSIONS: %w", err)
	}
	cfg.MaxDimensions = maxDims

	cfg.Store = strings.ToLower(os.Getenv("PLANNER_STORE"))
	if cfg.Store == "" {
		switch {
		case cfg.DatabaseURL != "":
			cfg.Store = StorePostgres
		case cfg.DataDir != "":
			cfg.Store = StoreFile
		default:
			cfg.Store = StoreMemory
		}
	}
	switch cfg.Store {
	case StoreMemory:
	case StoreFile:
		if cfg.DataDir == "" {
			return Config{}, fmt.Errorf("PLANNER_DATA_DIR required for file store")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL or PLANNER_DATABASE_URL required for postgres store")
		}
	default:
		return Config{}, fmt.Errorf("unknown PLANNER_STORE %q", cfg.Store)
	}

	if cfg.RetentionMaxRecords < 0 || cfg.RetentionMaxAge < 0 {
		return Config{}, fmt.Errorf("retention limits must not be negative")
	}
	if os.Getenv("NODE_ENV") == "production" && cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("PLANNER_JWT_SECRET required in production")
	}
	return cfg, nil
}

// RetentionEnabled reports whether any retention limit is configured.
func (c Config) RetentionEnabled() bool {
	return c.RetentionMaxRecords > 0 || c.RetentionMaxAge > 0
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func parseCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseLimits reads "cpu=64,memory=512".
func parseLimits(v string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, pair := range parseCSV(v) {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected name=value, got %q", pair)
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid limit for %s: %q", strings.TrimSpace(name), raw)
		}
		out[strings.TrimSpace(name)] = n
	}
	return out, nil
}
