package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Razorpay     RazorpayConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Retry        RetryConfig
	BoardingPass BoardingPassConfig
	Reconciler   ReconcilerConfig
	Assistant    AssistantConfig
	Migrations   MigrationsConfig
}

type ServerConfig struct {
	Port            string
	Mode            string // "dev" or "prod"
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxLifetime     time.Duration
	ConnectAttempts int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	BookingConfirmed      string
	BookingReconciliation string
	PassengerCheckedIn    string
}

type RazorpayConfig struct {
	KeyID          string
	KeySecret      string
	BaseURL        string
	Currency       string
	RequestTimeout time.Duration
	RequestsPerSec float64
	OrderTTL       time.Duration
}

type AuthConfig struct {
	OIDCIssuer string
	JWTSecret  string
}

type RateLimitConfig struct {
	Enabled     bool
	Window      time.Duration
	MaxRequests int
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

type BoardingPassConfig struct {
	QRSecret string
	FontPath string
}

type ReconcilerConfig struct {
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
}

type AssistantConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type MigrationsConfig struct {
	Dir         string
	AutoMigrate bool
	SeedData    bool
}

var ErrMissingConfig = errors.New("missing required configuration")

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8084"),
			Mode:            getEnv("MODE", "prod"),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 5*time.Second),
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("POSTGRES_DSN", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:     time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			ConnectAttempts: getEnvInt("DB_CONNECT_ATTEMPTS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "booking-reconciler"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				BookingConfirmed:      getEnv("KAFKA_TOPIC_BOOKING_CONFIRMED", "booking.confirmed"),
				BookingReconciliation: getEnv("KAFKA_TOPIC_RECONCILIATION", "booking.reconciliation"),
				PassengerCheckedIn:    getEnv("KAFKA_TOPIC_CHECKED_IN", "passenger.checked_in"),
			},
		},
		Razorpay: RazorpayConfig{
			KeyID:          getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:      getEnv("RAZORPAY_KEY_SECRET", ""),
			BaseURL:        getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
			Currency:       getEnv("RAZORPAY_CURRENCY", "INR"),
			RequestTimeout: getEnvDuration("RAZORPAY_TIMEOUT", 10*time.Second),
			RequestsPerSec: getEnvFloat("RAZORPAY_RPS", 5),
			OrderTTL:       getEnvDuration("ORDER_TTL", 30*time.Minute),
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			JWTSecret:  getEnv("JWT_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getEnvBool("RATE_LIMIT_ENABLED", true),
			Window:      getEnvDuration("RATE_LIMIT_WINDOW", 2*time.Second),
			MaxRequests: getEnvInt("RATE_LIMIT_MAX", 1),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		},
		BoardingPass: BoardingPassConfig{
			QRSecret: getEnv("QR_SECRET_KEY", ""),
			FontPath: getEnv("BOARDING_PASS_FONT", ""),
		},
		Reconciler: ReconcilerConfig{
			Interval:    getEnvDuration("RECONCILE_INTERVAL", time.Minute),
			MaxAttempts: getEnvInt("RECONCILE_MAX_ATTEMPTS", 5),
			BatchSize:   getEnvInt("RECONCILE_BATCH_SIZE", 50),
		},
		Assistant: AssistantConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("ASSISTANT_MODEL", "gpt-4o-mini"),
			BaseURL: getEnv("ASSISTANT_BASE_URL", "https://api.openai.com"),
		},
		Migrations: MigrationsConfig{
			Dir:         getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate: getEnvBool("AUTO_MIGRATE", true),
			SeedData:    getEnvBool("SEED_DATA", false),
		},
	}
}

// DevMode reports whether per-IP throttling and similar production guards are off.
func (c *Config) DevMode() bool {
	return strings.EqualFold(c.Server.Mode, "dev")
}

// Validate checks the values the booking service cannot start without.
// Razorpay credentials are not checked here: order creation reports them per request.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.DSN == "" {
		missing = append(missing, "POSTGRES_DSN")
	}
	if c.Redis.Addr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if c.Auth.OIDCIssuer == "" && c.Auth.JWTSecret == "" {
		missing = append(missing, "OIDC_ISSUER or JWT_SECRET")
	}
	if c.BoardingPass.QRSecret == "" {
		missing = append(missing, "QR_SECRET_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
