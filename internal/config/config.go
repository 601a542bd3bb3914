package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DBConfig — подключение к PostgreSQL.
type DBConfig struct {
	Host            string `envconfig:"DB_HOST" default:"postgres"`
	Port            int    `envconfig:"DB_PORT" default:"5432"`
	User            string `envconfig:"DB_USER" default:"booking"`
	Password        string `envconfig:"DB_PASSWORD" default:"booking"`
	Name            string `envconfig:"DB_NAME" default:"booking_db"`
	SSLMode         string `envconfig:"DB_SSLMODE" default:"disable"`
	TimeZone        string `envconfig:"DB_TIMEZONE" default:"UTC"`
	MaxOpenConns    int    `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifeTime int    `envconfig:"DB_CONN_MAX_LIFETIME_MIN" default:"30"` // минут
}

type RedisConfig struct {
	URL    string `envconfig:"REDIS_URL" default:"redis://redis:6379/0"`
	Prefix string `envconfig:"REDIS_SEQUENCE_PREFIX" default:"court-booking:seq:"`
}

type RabbitConfig struct {
	// пустой URL отключает публикацию событий
	URL      string `envconfig:"RABBIT_URL"`
	Exchange string `envconfig:"BOOKING_EXCHANGE" default:"court-booking.exchange"`
}

type TracingConfig struct {
	// пустой endpoint отключает экспорт трассировок
	Endpoint    string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `envconfig:"OTEL_SERVICE_NAME" default:"court-booking"`
}

// VenueConfig — настройки площадки, которые передаются в движок явно.
type VenueConfig struct {
	TimeZone           string `envconfig:"VENUE_TIMEZONE" default:"UTC"`
	MaxSpanMonths      int    `envconfig:"RECURRING_MAX_SPAN_MONTHS" default:"3"`
	AdvanceBookingDays int    `envconfig:"ADVANCE_BOOKING_DAYS" default:"0"`
}

type Config struct {
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	GRPCAddr    string `envconfig:"CORE_GRPC_ADDR" default:":50051"`

	// postgres | redis
	SequenceBackend string `envconfig:"SEQUENCE_BACKEND" default:"postgres"`

	DB      DBConfig
	Redis   RedisConfig
	Rabbit  RabbitConfig
	Tracing TracingConfig
	Venue   VenueConfig
}

// Load читает .env (если есть) и переменные окружения.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	// минимальная валидация
	if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
		return fmt.Errorf("invalid DB config: host/user/name must not be empty")
	}
	switch c.SequenceBackend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("invalid SEQUENCE_BACKEND %q: want postgres or redis", c.SequenceBackend)
	}
	if c.Venue.MaxSpanMonths <= 0 {
		return fmt.Errorf("RECURRING_MAX_SPAN_MONTHS must be positive")
	}
	if c.Venue.AdvanceBookingDays < 0 {
		return fmt.Errorf("ADVANCE_BOOKING_DAYS must not be negative")
	}
	if _, err := c.Venue.Location(); err != nil {
		return err
	}
	return nil
}

// Location: часовой пояс площадки, от него зависит «сегодня».
func (v VenueConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(v.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid VENUE_TIMEZONE %q: %w", v.TimeZone, err)
	}
	return loc, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}
