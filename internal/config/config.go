package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Nats       NatsConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Presence   PresenceConfig
	Realtime   RealtimeConfig
	Telemetry  TelemetryConfig
	Storage    StorageConfig
	DeadLetter DeadLetterConfig
	Queue      QueueConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NatsConfig holds the pub/sub transport settings. An empty URL selects
// the in-process event channel.
type NatsConfig struct {
	URL           string
	SubjectPrefix string
	ClientName    string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level          string
	FilePath       string
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
}

// AuthConfig defines session token parameters.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// PresenceConfig holds heartbeat cadences and liveness thresholds.
type PresenceConfig struct {
	HeartbeatInterval      time.Duration
	AwayAfter              time.Duration
	OfflineThreshold       time.Duration
	ViewerRefreshInterval  time.Duration
	ViewerWindow           time.Duration
	ViewerSweepInterval    time.Duration
	SubscriberBufferEvents int
}

// RealtimeConfig controls the SockJS gateway.
type RealtimeConfig struct {
	Addr   string
	Prefix string
}

// TelemetryConfig controls tracing and metrics export.
type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
	OTLPInsecure bool
}

// StorageConfig configures the voice-note blob store.
type StorageConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignTTL      time.Duration
}

// DeadLetterConfig points at the local dead-letter database.
type DeadLetterConfig struct {
	Path string
}

// QueueConfig sizes the best-effort task queue.
type QueueConfig struct {
	Workers     int
	Buffer      int
	TaskTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-realtime"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "helpdesk"),
		},
		Nats: NatsConfig{
			URL:           os.Getenv("NATS_URL"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "helpdesk"),
			ClientName:    getEnv("NATS_CLIENT_NAME", "helpdesk-realtime"),
		},
		Logger: LoggerConfig{
			Level:          getEnv("LOG_LEVEL", "info"),
			FilePath:       os.Getenv("LOG_FILE_PATH"),
			FileMaxSizeMB:  getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 100),
			FileMaxBackups: getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5),
			FileMaxAgeDays: getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 14),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:    getEnv("AUTH_JWT_ISSUER", ""),
			TokenTTL:  time.Duration(getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 60)) * time.Minute,
		},
		Presence: PresenceConfig{
			HeartbeatInterval:      getEnvAsSeconds("PRESENCE_HEARTBEAT_SECONDS", 15),
			AwayAfter:              getEnvAsSeconds("PRESENCE_AWAY_AFTER_SECONDS", 120),
			OfflineThreshold:       getEnvAsSeconds("PRESENCE_OFFLINE_THRESHOLD_SECONDS", 60),
			ViewerRefreshInterval:  getEnvAsSeconds("PRESENCE_VIEWER_REFRESH_SECONDS", 30),
			ViewerWindow:           getEnvAsSeconds("PRESENCE_VIEWER_WINDOW_SECONDS", 90),
			ViewerSweepInterval:    getEnvAsSeconds("PRESENCE_VIEWER_SWEEP_SECONDS", 60),
			SubscriberBufferEvents: getEnvAsInt("REALTIME_SUBSCRIBER_BUFFER", 64),
		},
		Realtime: RealtimeConfig{
			Addr:   getEnv("REALTIME_ADDR", "0.0.0.0:8081"),
			Prefix: getEnv("REALTIME_PREFIX", "/realtime"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "helpdesk-realtime"),
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			OTLPInsecure: getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
		Storage: StorageConfig{
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          os.Getenv("S3_BUCKET"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			UsePathStyle:    getEnvAsBool("S3_USE_PATH_STYLE", true),
			PresignTTL:      getEnvAsSeconds("S3_PRESIGN_TTL_SECONDS", 900),
		},
		DeadLetter: DeadLetterConfig{
			Path: getEnv("DEADLETTER_SQLITE_PATH", "deadletter.db"),
		},
		Queue: QueueConfig{
			Workers:     getEnvAsInt("QUEUE_WORKERS", 4),
			Buffer:      getEnvAsInt("QUEUE_BUFFER", 256),
			TaskTimeout: getEnvAsSeconds("QUEUE_TASK_TIMEOUT_SECONDS", 10),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	p := c.Presence
	if p.HeartbeatInterval <= 0 || p.ViewerRefreshInterval <= 0 {
		return fmt.Errorf("presence intervals must be positive")
	}
	if p.OfflineThreshold <= p.HeartbeatInterval {
		return fmt.Errorf("PRESENCE_OFFLINE_THRESHOLD_SECONDS must exceed the heartbeat interval")
	}
	if p.ViewerWindow <= p.ViewerRefreshInterval {
		return fmt.Errorf("PRESENCE_VIEWER_WINDOW_SECONDS must exceed the viewer refresh interval")
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("QUEUE_WORKERS must be positive")
	}
	if !strings.HasPrefix(c.Realtime.Prefix, "/") {
		return fmt.Errorf("REALTIME_PREFIX must start with /")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Enabled reports whether a blob bucket is configured.
func (s StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * time.Second
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
