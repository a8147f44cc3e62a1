package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store and queue drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverInline   = "inline"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	DBMaxConns  int
	JWTSecret   string
	GeoIPDBPath string
	LogLevel    string

	StoreDriver string
	QueueDriver string
	RedisURL    string
	QueueName   string

	ReplicateToken      string
	ReplicateBaseURL    string
	ReplicateWebhookURL string
	WebhookSecret       string
	ProviderRPS         float64
	ProviderBurst       int
	RetryMaxAttempts    int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration

	StoragePath       string
	StorageBaseURL    string
	StartingCredits   int
	WorkerConcurrency int
	WorkerDrain       time.Duration
	CORSOrigins       []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),
		LogLevel:    os.Getenv("LOG_LEVEL"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		QueueDriver: strings.ToLower(getEnv("QUEUE_DRIVER", DriverRedis)),
		RedisURL:    os.Getenv("REDIS_URL"),
		QueueName:   getEnv("QUEUE_NAME", "spritegen:tasks"),

		ReplicateToken:      os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:    getEnv("REPLICATE_BASE_URL", "https://api.replicate.com"),
		ReplicateWebhookURL: os.Getenv("REPLICATE_WEBHOOK_URL"),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		ProviderRPS:         getEnvFloat("PROVIDER_REQUESTS_PER_SECOND", 5),
		ProviderBurst:       getEnvInt("PROVIDER_BURST", 1),
		RetryMaxAttempts:    getEnvInt("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:      getEnvDuration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:       getEnvDuration("RETRY_MAX_DELAY", time.Minute),

		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		StartingCredits:   getEnvInt("STARTING_CREDITS", 100),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerDrain:       getEnvDuration("WORKER_DRAIN_TIMEOUT", 2*time.Minute),
		CORSOrigins:       splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.QueueDriver {
	case DriverRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when QUEUE_DRIVER=redis")
		}
	case DriverInline:
	default:
		return nil, fmt.Errorf("unsupported QUEUE_DRIVER %q", cfg.QueueDriver)
	}

	if cfg.StartingCredits < 0 {
		return nil, fmt.Errorf("STARTING_CREDITS must not be negative")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("1500ms") or bare seconds ("2").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
