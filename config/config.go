package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" envDefault:"clover-api"`
	Version                       string   `env:"APP_VERSION" envDefault:"dev"`
	Port                          int      `env:"PORT" envDefault:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" envDefault:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" envDefault:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" envDefault:"60"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" envDefault:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" envDefault:"10"`
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" envDefault:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" envDefault:"64000"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" envDefault:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" envDefault:"GET,POST"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" envDefault:"5"`

	// PostgreSQL
	DatabaseDriver              string        `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseHost                string        `env:"DB_HOST" envDefault:"localhost"`
	DatabasePort                string        `env:"DB_PORT" envDefault:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" envDefault:""`
	DatabasePassword            string        `env:"DB_PASSWORD" envDefault:""`
	DatabaseName                string        `env:"DB_NAME" envDefault:"clover"`
	DatabaseSSLMode             string        `env:"DB_SSL_MODE" envDefault:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" envDefault:"db/pg"`
	DatabaseMigrationVersion    int           `env:"DB_MIGRATION_VERSION" envDefault:"0"`
	DatabaseMigrationForce      int           `env:"DB_MIGRATION_FORCE" envDefault:"0"`
	DatabaseMigrateOnStart      bool          `env:"DB_MIGRATE_ON_START" envDefault:"true"`

	// Graph database (Memgraph). Projection is off when the host is empty.
	GraphDBHost     string `env:"GRAPH_DB_HOST" envDefault:""`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" envDefault:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" envDefault:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" envDefault:""`

	// Redis. Locking and caching are off when the host is empty.
	RedisHost       string        `env:"REDIS_HOST" envDefault:""`
	RedisPort       int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	LockTTL         time.Duration `env:"LOCK_TTL" envDefault:"5m"`
	LockWait        time.Duration `env:"LOCK_WAIT" envDefault:"10s"`
	SummaryCacheTTL time.Duration `env:"SUMMARY_CACHE_TTL" envDefault:"60s"`

	// Auth
	AuthEnabled   bool   `env:"AUTH_ENABLED" envDefault:"false"`
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" envDefault:""`
	AuthClientID  string `env:"AUTH_CLIENT_ID" envDefault:""`

	// Kafka
	KafkaBrokers         []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" envDefault:"false"`
	SourceSyncTopic      string   `env:"SOURCE_SYNC_TOPIC" envDefault:"source.synced"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"clover-sync-consumer"`
	KafkaHandlerAttempts int      `env:"KAFKA_HANDLER_ATTEMPTS" envDefault:"5"`
	KafkaRetryBackoffMs  int      `env:"KAFKA_RETRY_BACKOFF_MS" envDefault:"500"`
	KafkaProducerEnabled bool     `env:"KAFKA_PRODUCER_ENABLED" envDefault:"false"`
	KafkaOutputTopic     string   `env:"KAFKA_OUTPUT_TOPIC" envDefault:"resolution-events"`
	KafkaBatchSize       int      `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	KafkaBatchTimeout    int      `env:"KAFKA_BATCH_TIMEOUT_MS" envDefault:"100"`
	KafkaRequiredAcks    int      `env:"KAFKA_REQUIRED_ACKS" envDefault:"1"`
	KafkaCompression     string   `env:"KAFKA_COMPRESSION" envDefault:"snappy"`

	// Tracing
	OtelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OtelProtocol string `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc"`
	OtelInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`

	// Resolution
	CandidateChunkSize    int               `env:"CANDIDATE_CHUNK_SIZE" envDefault:"500"`
	AutoApplyEnabled      bool              `env:"AUTO_APPLY_ENABLED" envDefault:"true"`
	AutoApplyThreshold    float64           `env:"AUTO_APPLY_THRESHOLD" envDefault:"0.90"`
	CommonNameThreshold   int               `env:"COMMON_NAME_THRESHOLD" envDefault:"3"`
	SourceLoadConcurrency int               `env:"SOURCE_LOAD_CONCURRENCY" envDefault:"3"`
	SourcePriority        []string          `env:"SOURCE_PRIORITY" envDefault:"crm_contacts,ecom_customers,mailing_subscribers"`
	SourceTables          map[string]string `env:"SOURCE_TABLES" envKeyValSeparator:":" envDefault:"crm_contacts:contacts,ecom_customers:customers,mailing_subscribers:subscribers"`
}

// Load reads an optional .env file, then the environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.CandidateChunkSize < 1 {
		errs = append(errs, errors.New("CANDIDATE_CHUNK_SIZE must be positive"))
	}
	if c.AutoApplyThreshold <= 0 || c.AutoApplyThreshold > 1 {
		errs = append(errs, errors.New("AUTO_APPLY_THRESHOLD must be in (0, 1]"))
	}
	if c.CommonNameThreshold < 0 {
		errs = append(errs, errors.New("COMMON_NAME_THRESHOLD must not be negative"))
	}
	if c.SourceLoadConcurrency < 1 {
		errs = append(errs, errors.New("SOURCE_LOAD_CONCURRENCY must be positive"))
	}
	if c.KafkaHandlerAttempts < 1 {
		errs = append(errs, errors.New("KAFKA_HANDLER_ATTEMPTS must be positive"))
	}
	if c.AuthEnabled && (c.AuthIssuerURL == "" || c.AuthClientID == "") {
		errs = append(errs, errors.New("AUTH_ISSUER_URL and AUTH_CLIENT_ID are required when AUTH_ENABLED"))
	}
	for _, name := range c.SourcePriority {
		if !models.Source(name).Valid() {
			errs = append(errs, fmt.Errorf("SOURCE_PRIORITY: unknown source %q", name))
		}
	}
	for name := range c.SourceTables {
		if !models.Source(name).Valid() {
			errs = append(errs, fmt.Errorf("SOURCE_TABLES: unknown source %q", name))
		}
	}
	switch strings.ToLower(c.OtelProtocol) {
	case "grpc", "http":
	default:
		errs = append(errs, fmt.Errorf("unsupported OTEL_EXPORTER_OTLP_PROTOCOL %q", c.OtelProtocol))
	}
	return errors.Join(errs...)
}

// Priority is the source order used when merging presentation rows. Sources missing from
// SOURCE_PRIORITY follow in their default order.
func (c Config) Priority() []models.Source {
	seen := make(map[models.Source]bool, len(models.Sources))
	priority := make([]models.Source, 0, len(models.Sources))
	for _, name := range c.SourcePriority {
		source := models.Source(strings.TrimSpace(name))
		if !source.Valid() || seen[source] {
			continue
		}
		seen[source] = true
		priority = append(priority, source)
	}
	for _, source := range models.Sources {
		if !seen[source] {
			priority = append(priority, source)
		}
	}
	return priority
}

// Tables maps each source onto its table name. A source mapped to an empty name is
// treated as not configured.
func (c Config) Tables() map[models.Source]string {
	tables := make(map[models.Source]string, len(c.SourceTables))
	for name, table := range c.SourceTables {
		tables[models.Source(strings.TrimSpace(name))] = strings.TrimSpace(table)
	}
	return tables
}
