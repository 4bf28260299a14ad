package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Recaptcha RecaptchaConfig `mapstructure:"recaptcha"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Camera    CameraConfig    `mapstructure:"camera"`
	Parking   ParkingConfig   `mapstructure:"parking"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
	WebhookToken string   `mapstructure:"webhook_token"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RabbitMQConfig struct {
	URL   string `mapstructure:"url"`
	Queue string `mapstructure:"queue"`
}

type RecaptchaConfig struct {
	Secret         string        `mapstructure:"secret"`
	VerifyURL      string        `mapstructure:"verify_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ScoreThreshold float64       `mapstructure:"score_threshold"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type CameraConfig struct {
	Model string `mapstructure:"model"`
}

type ParkingConfig struct {
	PendingWindowMinutes     int   `mapstructure:"pending_window_minutes"`
	FullParkingDurationHours int   `mapstructure:"full_parking_duration_hours"`
	DefaultOrgID             int64 `mapstructure:"default_org_id"`
	SweepIntervalMinutes     int   `mapstructure:"sweep_interval_minutes"`
	EventRetentionDays       int   `mapstructure:"event_retention_days"`
}

func (p ParkingConfig) PendingWindow() time.Duration {
	return time.Duration(p.PendingWindowMinutes) * time.Minute
}

func (p ParkingConfig) FullParkingDuration() time.Duration {
	return time.Duration(p.FullParkingDurationHours) * time.Hour
}

func (p ParkingConfig) SweepInterval() time.Duration {
	return time.Duration(p.SweepIntervalMinutes) * time.Minute
}

type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Capacity       int           `mapstructure:"capacity"`
	RefillTokens   int           `mapstructure:"refill_tokens"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
	TTL            time.Duration `mapstructure:"ttl"`
}

// Load reads config.yaml (optional) and PARKING_* environment variables.
// Environment keys replace dots with underscores: PARKING_DATABASE_HOST.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "parking")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("recaptcha.verify_url", "https://www.google.com/recaptcha/api/siteverify")
	v.SetDefault("recaptcha.timeout", 5*time.Second)
	v.SetDefault("recaptcha.score_threshold", 0.5)
	v.SetDefault("rabbitmq.queue", "notifications.registration")
	v.SetDefault("parking.pending_window_minutes", 30)
	v.SetDefault("parking.full_parking_duration_hours", 24)
	v.SetDefault("parking.default_org_id", 1)
	v.SetDefault("parking.sweep_interval_minutes", 5)
	v.SetDefault("parking.event_retention_days", 30)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.capacity", 5)
	v.SetDefault("rate_limit.refill_tokens", 1)
	v.SetDefault("rate_limit.refill_interval", 10*time.Second)
	v.SetDefault("rate_limit.ttl", 10*time.Minute)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/parking-alpr")

	v.SetEnvPrefix("PARKING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
