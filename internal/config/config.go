package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                       string        `mapstructure:"PORT"`
	Env                        string        `mapstructure:"ENV"`
	DatabaseURL                string        `mapstructure:"DATABASE_URL"`
	DBMaxConns                 int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns                 int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret                  string        `mapstructure:"JWT_SECRET"`
	JWTIssuer                  string        `mapstructure:"JWT_ISSUER"`
	AccessTokenTTL             time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	CORSOrigins                []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS               float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst             int           `mapstructure:"RATE_LIMIT_BURST"`
	RedisURL                   string        `mapstructure:"REDIS_URL"`
	AppointmentCacheTTL        time.Duration `mapstructure:"APPOINTMENT_CACHE_TTL"`
	KafkaBrokers               []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic                 string        `mapstructure:"KAFKA_TOPIC"`
	BlobBackend                string        `mapstructure:"BLOB_BACKEND"`
	S3Bucket                   string        `mapstructure:"S3_BUCKET"`
	S3Endpoint                 string        `mapstructure:"S3_ENDPOINT"`
	BlobPublicBaseURL          string        `mapstructure:"BLOB_PUBLIC_BASE_URL"`
	CallAppID                  string        `mapstructure:"CALL_APP_ID"`
	CallTokenURL               string        `mapstructure:"CALL_TOKEN_URL"`
	CallTokenTTL               time.Duration `mapstructure:"CALL_TOKEN_TTL"`
	CompletionSweepSchedule    string        `mapstructure:"COMPLETION_SWEEP_SCHEDULE"`
	BookingEnforceAvailability bool          `mapstructure:"BOOKING_ENFORCE_AVAILABILITY"`
}

// devJWTSecret signs tokens when ENV=development and JWT_SECRET is unset.
const devJWTSecret = "telehealth-development-secret"

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("JWT_ISSUER", "telehealth")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:8081")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("APPOINTMENT_CACHE_TTL", "30s")
	v.SetDefault("KAFKA_TOPIC", "appointment-events")
	v.SetDefault("BLOB_BACKEND", "memory")
	v.SetDefault("BLOB_PUBLIC_BASE_URL", "/api/v1/blobs")
	v.SetDefault("CALL_TOKEN_TTL", "1h")
	v.SetDefault("COMPLETION_SWEEP_SCHEDULE", "5 0 * * *")
	v.SetDefault("BOOKING_ENFORCE_AVAILABILITY", false)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"JWT_SECRET", "JWT_ISSUER", "ACCESS_TOKEN_TTL", "CORS_ORIGINS",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REDIS_URL", "APPOINTMENT_CACHE_TTL",
		"KAFKA_BROKERS", "KAFKA_TOPIC", "BLOB_BACKEND", "S3_BUCKET", "S3_ENDPOINT",
		"BLOB_PUBLIC_BASE_URL", "CALL_APP_ID", "CALL_TOKEN_URL", "CALL_TOKEN_TTL",
		"COMPLETION_SWEEP_SCHEDULE", "BOOKING_ENFORCE_AVAILABILITY",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.JWTSecret == "" {
		log.Println("WARNING: JWT_SECRET is not set; using the built-in development secret.")
		cfg.JWTSecret = devJWTSecret
	}

	return cfg, nil
}

// splitList normalises comma separated env values that viper hands back as a
// single element slice.
func splitList(parsed []string, raw string) []string {
	if len(parsed) > 1 {
		return parsed
	}
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.IsProduction() && c.JWTSecret == devJWTSecret {
		return fmt.Errorf("JWT_SECRET must not be the development secret in production")
	}

	switch c.BlobBackend {
	case "memory":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND is \"s3\"")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be \"memory\" or \"s3\", got %q", c.BlobBackend)
	}

	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if c.AppointmentCacheTTL < 0 {
		return fmt.Errorf("APPOINTMENT_CACHE_TTL must not be negative")
	}

	return nil
}
