package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends selectable through STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBolt     = "bolt"
)

// DevJWTSigningKey is used when JWT_SIGNING_KEY is unset outside production.
const DevJWTSigningKey = "dev-secret-key-change-in-production"

// Server captures process-level configuration.
type Server struct {
	Addr           string
	Environment    string
	LogLevel       string
	Deployer       string
	StoreBackend   string
	TrustedProxies string
	ShutdownGrace  time.Duration
	RequestTimeout time.Duration
	// TraceSampleRatio enables OpenTelemetry tracing when positive.
	TraceSampleRatio float64

	JWT      JWTConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Bolt     BoltConfig
	Kafka    KafkaConfig
	Clock    ClockConfig
}

// JWTConfig configures caller token validation.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
	TokenTTL   time.Duration
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// AutoMigrate applies the embedded schema on start.
	AutoMigrate bool
}

// RedisConfig configures the go-redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
	LockTTL      time.Duration
}

// BoltConfig configures the single-file bbolt store.
type BoltConfig struct {
	Path    string
	Timeout time.Duration
}

// KafkaConfig configures audit publishing. Empty Brokers disables Kafka.
type KafkaConfig struct {
	Brokers         string
	AuditTopic      string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// ClockConfig configures the logical clock. A zero Genesis yields a fixed
// clock at StartHeight.
type ClockConfig struct {
	StartHeight   uint64
	Genesis       time.Time
	BlockInterval time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var errs []error
	cfg := Server{
		Addr:             envOr("AIDREG_ADDR", ":8080"),
		Environment:      envOr("AIDREG_ENV", "dev"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		Deployer:         strings.TrimSpace(os.Getenv("REGISTRY_DEPLOYER")),
		StoreBackend:     strings.ToLower(envOr("STORE_BACKEND", BackendMemory)),
		TrustedProxies:   os.Getenv("TRUSTED_PROXIES"),
		ShutdownGrace:    durationEnv("SHUTDOWN_GRACE", 10*time.Second, &errs),
		RequestTimeout:   durationEnv("REQUEST_TIMEOUT", 30*time.Second, &errs),
		TraceSampleRatio: floatEnv("TRACE_SAMPLE_RATIO", 0, &errs),
		JWT: JWTConfig{
			SigningKey: os.Getenv("JWT_SIGNING_KEY"),
			Issuer:     envOr("JWT_ISSUER", "aidreg"),
			Audience:   envOr("JWT_AUDIENCE", "aidreg-api"),
			TokenTTL:   durationEnv("JWT_TOKEN_TTL", 15*time.Minute, &errs),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    intEnv("DATABASE_MAX_OPEN_CONNS", 25, &errs),
			MaxIdleConns:    intEnv("DATABASE_MAX_IDLE_CONNS", 5, &errs),
			ConnMaxLifetime: durationEnv("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute, &errs),
			AutoMigrate:     boolEnv("DATABASE_AUTO_MIGRATE", true, &errs),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intEnv("REDIS_POOL_SIZE", 10, &errs),
			MinIdleConns: intEnv("REDIS_MIN_IDLE_CONNS", 2, &errs),
			DialTimeout:  durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second, &errs),
			ReadTimeout:  durationEnv("REDIS_READ_TIMEOUT", 3*time.Second, &errs),
			WriteTimeout: durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second, &errs),
			KeyPrefix:    envOr("REDIS_KEY_PREFIX", "aidreg"),
			LockTTL:      durationEnv("REDIS_LOCK_TTL", 5*time.Second, &errs),
		},
		Bolt: BoltConfig{
			Path:    envOr("BOLT_PATH", "aidreg.db"),
			Timeout: durationEnv("BOLT_OPEN_TIMEOUT", time.Second, &errs),
		},
		Kafka: KafkaConfig{
			Brokers:         os.Getenv("KAFKA_BROKERS"),
			AuditTopic:      envOr("AUDIT_TOPIC", "aidreg.audit"),
			Acks:            envOr("KAFKA_ACKS", "all"),
			Retries:         intEnv("KAFKA_RETRIES", 3, &errs),
			DeliveryTimeout: durationEnv("KAFKA_DELIVERY_TIMEOUT", 30*time.Second, &errs),
		},
		Clock: ClockConfig{
			BlockInterval: durationEnv("CLOCK_BLOCK_INTERVAL", 10*time.Minute, &errs),
		},
	}

	if raw := os.Getenv("CLOCK_START_HEIGHT"); raw != "" {
		h, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CLOCK_START_HEIGHT: %w", err))
		}
		cfg.Clock.StartHeight = h
	}
	if raw := os.Getenv("CLOCK_GENESIS"); raw != "" {
		g, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("CLOCK_GENESIS: %w", err))
		}
		cfg.Clock.Genesis = g
	}
	if cfg.JWT.SigningKey == "" && !cfg.IsProduction() {
		cfg.JWT.SigningKey = DevJWTSigningKey
	}

	if err := errors.Join(errs...); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production settings.
func (s Server) IsProduction() bool {
	return s.Environment == "prod" || s.Environment == "production"
}

// Validate rejects inconsistent settings.
func (s Server) Validate() error {
	var errs []error
	if s.Deployer == "" {
		errs = append(errs, errors.New("REGISTRY_DEPLOYER is required"))
	}
	if s.JWT.SigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY is required in production"))
	}
	if s.IsProduction() && s.JWT.SigningKey == DevJWTSigningKey {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must not use the development default in production"))
	}
	switch s.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if s.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendRedis:
		if s.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
		if s.Redis.LockTTL <= 0 {
			errs = append(errs, errors.New("REDIS_LOCK_TTL must be positive for the redis backend"))
		}
	case BackendBolt:
		if s.Bolt.Path == "" {
			errs = append(errs, errors.New("BOLT_PATH is required for the bolt backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", s.StoreBackend))
	}
	if !s.Clock.Genesis.IsZero() && s.Clock.BlockInterval <= 0 {
		errs = append(errs, errors.New("CLOCK_BLOCK_INTERVAL must be positive when CLOCK_GENESIS is set"))
	}
	if s.TraceSampleRatio < 0 || s.TraceSampleRatio > 1 {
		errs = append(errs, errors.New("TRACE_SAMPLE_RATIO must be between 0 and 1"))
	}
	if s.Kafka.Brokers != "" && s.Kafka.AuditTopic == "" {
		errs = append(errs, errors.New("AUDIT_TOPIC is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func intEnv(key string, fallback int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func floatEnv(key string, fallback float64, errs *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func boolEnv(key string, fallback bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}
