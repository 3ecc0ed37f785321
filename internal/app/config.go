package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"
)

const (
	// StorageDriverMemory — in-memory хранилище, состояние живёт до остановки процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres — PostgreSQL через pgx.
	StorageDriverPostgres = "postgres"
)

// Log-форматы для cmd/storefront.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config описывает настройки запуска витрины.
// Каждое поле читается из переменной окружения STOREFRONT_*; .env подхватывается, если есть.
type Config struct {
	// HTTPAddr — адрес HTTP API каталога и заказов.
	HTTPAddr string `conf:"default::8080,env:STOREFRONT_HTTP_ADDR"`
	// MetricsAddr — служебный listener: /metrics, /healthz, /livez, /readyz.
	MetricsAddr string `conf:"default::9090,env:STOREFRONT_METRICS_ADDR"`
	// GRPCAddr — gRPC health-сервер; пустая строка выключает его.
	GRPCAddr string `conf:"default::50051,env:STOREFRONT_GRPC_ADDR"`

	StorageDriver       string `conf:"default:memory,enum:memory|postgres,env:STOREFRONT_STORAGE_DRIVER"`
	PostgresDSN         string `conf:"env:STOREFRONT_POSTGRES_DSN,noprint"`
	PostgresAutoMigrate bool   `conf:"default:true,env:STOREFRONT_POSTGRES_AUTO_MIGRATE"`

	// RedisURL включает read-through кэш каталога; пусто означает "без кэша".
	RedisURL string        `conf:"env:STOREFRONT_REDIS_URL,noprint"`
	CacheTTL time.Duration `conf:"default:5m,env:STOREFRONT_CACHE_TTL"`

	// KafkaBrokers — список брокеров через запятую; пусто означает публикацию в лог.
	KafkaBrokers  string `conf:"env:STOREFRONT_KAFKA_BROKERS"`
	KafkaClientID string `conf:"default:storefront,env:STOREFRONT_KAFKA_CLIENT_ID"`
	KafkaTopic    string `conf:"default:storefront.order.events,env:STOREFRONT_KAFKA_TOPIC"`
	KafkaDLQTopic string `conf:"default:storefront.dlq,env:STOREFRONT_KAFKA_DLQ_TOPIC"`

	OutboxPollInterval time.Duration `conf:"default:1s,env:STOREFRONT_OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `conf:"default:100,env:STOREFRONT_OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `conf:"default:3,env:STOREFRONT_OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `conf:"default:100ms,env:STOREFRONT_OUTBOX_RETRY_DELAY"`

	// StrictPairing отклоняет любой фильм, встречающийся в заказе нечётное число раз.
	StrictPairing bool `conf:"default:false,env:STOREFRONT_STRICT_PAIRING"`

	CORSAllowedOrigins string `conf:"default:*,env:STOREFRONT_CORS_ALLOWED_ORIGINS"`
	OrderRateLimit     int    `conf:"default:120,env:STOREFRONT_ORDER_RATE_LIMIT"`
	Development        bool   `conf:"default:false,env:STOREFRONT_DEVELOPMENT"`

	LogLevel  string `conf:"default:info,env:STOREFRONT_LOG_LEVEL"`
	LogFormat string `conf:"default:text,enum:text|json,env:STOREFRONT_LOG_FORMAT"`
}

// DefaultConfig возвращает значения, совпадающие с defaults в тегах conf.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		GRPCAddr:            ":50051",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		CacheTTL:            5 * time.Minute,
		KafkaClientID:       "storefront",
		KafkaTopic:          "storefront.order.events",
		KafkaDLQTopic:       "storefront.dlq",
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    100 * time.Millisecond,
		CORSAllowedOrigins:  "*",
		OrderRateLimit:      120,
		LogLevel:            "info",
		LogFormat:           LogFormatText,
	}
}

// ErrHelpWanted возвращается LoadConfig, когда запрошен --help; usage уже в тексте ошибки.
var ErrHelpWanted = conf.ErrHelpWanted

// LoadConfig читает .env (если есть), затем переменные окружения и флаги командной строки.
func LoadConfig() (Config, error) {
	var cfg Config
	_ = godotenv.Load()

	help, err := conf.Parse("", &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			return Config{}, fmt.Errorf("%w\n%s", ErrHelpWanted, help)
		}
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность полей, которую нельзя выразить тегами.
func (c Config) Validate() error {
	var errs []string

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, "STOREFRONT_POSTGRES_DSN is required for postgres storage")
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.HTTPAddr == "" {
		errs = append(errs, "STOREFRONT_HTTP_ADDR must not be empty")
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, "STOREFRONT_OUTBOX_POLL_INTERVAL must be positive")
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, "STOREFRONT_OUTBOX_BATCH_SIZE must be positive")
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, "STOREFRONT_OUTBOX_MAX_ATTEMPTS must be positive")
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, "STOREFRONT_OUTBOX_RETRY_DELAY must not be negative")
	}
	if c.OrderRateLimit < 0 {
		errs = append(errs, "STOREFRONT_ORDER_RATE_LIMIT must not be negative")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
}

// Brokers разбирает KafkaBrokers, отбрасывая пустые элементы и пробелы.
func (c Config) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
