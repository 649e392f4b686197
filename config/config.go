// config/config.go
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Flutterwave FlutterwaveConfig
	App         AppConfig
	Auth        AuthConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type FlutterwaveConfig struct {
	PublicKey   string
	SecretKey   string
	WebhookHash string // matched against the verif-hash header
	BaseURL     string
	Timeout     time.Duration
}

// InsecureWebhooks is true when no webhook hash is configured and incoming
// notifications cannot be authenticated.
func (f FlutterwaveConfig) InsecureWebhooks() bool {
	return f.WebhookHash == ""
}

type AppConfig struct {
	BaseURL         string // used to build default redirect targets
	DefaultCurrency string
	TxRefPrefix     string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func Load(logger *zap.Logger) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "donations"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 20)),
		},
		Flutterwave: FlutterwaveConfig{
			PublicKey:   getEnv("FLW_PUBLIC_KEY", ""),
			SecretKey:   getEnv("FLW_SECRET_KEY", ""),
			WebhookHash: getEnv("FLW_WEBHOOK_HASH", ""),
			BaseURL:     getEnv("FLW_BASE_URL", "https://api.flutterwave.com"),
			Timeout:     getEnvDuration("FLW_TIMEOUT", 30*time.Second),
		},
		App: AppConfig{
			BaseURL:         strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),
			DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", "ZMW")),
			TxRefPrefix:     getEnv("TX_REF_PREFIX", "dnt"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "redis:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{"kafka:9092"}),
			Topic:   getEnv("KAFKA_TOPIC", "donation-events"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
		},
	}

	if err := cfg.validate(logger); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate(logger *zap.Logger) error {
	if c.Flutterwave.SecretKey == "" {
		if c.IsProduction() {
			return errors.New("FLW_SECRET_KEY is required in production")
		}
		logger.Warn("FLW_SECRET_KEY not set; payment gateway calls will be rejected")
	}

	if c.Flutterwave.InsecureWebhooks() {
		logger.Warn("FLW_WEBHOOK_HASH not set; webhooks will be accepted without authentication (not recommended in production)")
	}

	if c.Auth.JWTSecret == "" {
		if c.IsProduction() {
			return errors.New("JWT_SECRET is required in production")
		}
		logger.Warn("JWT_SECRET not set; authenticated routes will reject every request")
	}

	if c.App.TxRefPrefix == "" || strings.ContainsAny(c.App.TxRefPrefix, " /?&#") {
		return errors.New("TX_REF_PREFIX must be a non-empty url-safe string")
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
		boolVal, err := strconv.ParseBool(value)
		if err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intVal, err := strconv.Atoi(value)
		if err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
