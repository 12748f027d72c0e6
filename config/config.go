package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	AppName                       string   `mapstructure:"APP_NAME"`
	Port                          int      `mapstructure:"PORT"`
	LogLevel                      string   `mapstructure:"LOG_LEVEL"`
	PrettyLogs                    bool     `mapstructure:"PRETTY_LOGS"`
	HttpServerWriteTimeoutSeconds int      `mapstructure:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS"`
	HttpServerReadTimeoutSeconds  int      `mapstructure:"HTTP_SERVER_READ_TIMEOUT_SECONDS"`
	HttpServerIdleTimeoutSeconds  int      `mapstructure:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS"`
	MaxHeaderBytes                int      `mapstructure:"HTTP_SERVER_MAX_HEADER_BYTES"`
	AllowOrigins                  []string `mapstructure:"HTTP_SERVER_ALLOW_ORIGINS"`
	AllowMethods                  []string `mapstructure:"HTTP_SERVER_ALLOW_METHODS"`
	MaxUploadBytes                int64    `mapstructure:"HTTP_SERVER_MAX_UPLOAD_BYTES"`
	StartupMaxAttempts            int      `mapstructure:"STARTUP_MAX_ATTEMPTS"`

	// memory keeps everything in-process; postgres uses the DB_* settings
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`

	// PostgreSQL
	DatabaseDriver                string        `mapstructure:"DB_DRIVER"`
	DatabaseHost                  string        `mapstructure:"DB_HOST"`
	DatabasePort                  string        `mapstructure:"DB_PORT"`
	DatabaseUserName              string        `mapstructure:"DB_USER_NAME"`
	DatabasePassword              string        `mapstructure:"DB_PASSWORD"`
	DatabaseName                  string        `mapstructure:"DB_NAME"`
	DatabaseSSLMode               string        `mapstructure:"DB_SSL_MODE"`
	DatabaseMaxOpenConns          int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DatabaseMaxIdleConns          int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DatabaseConnMaxLifetime       time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DatabaseMigrationFolderPath   string        `mapstructure:"DB_MIGRATION_FOLDER_PATH"`
	DatabaseMigrationVersion      int           `mapstructure:"DB_MIGRATION_VERSION"`
	DatabaseMigrationForce        int           `mapstructure:"DB_MIGRATION_FORCE"`
	DatabaseMigrationAutoRollback bool          `mapstructure:"DB_MIGRATION_AUTO_ROLLBACK"`

	// Redis (distributed run lock)
	RedisEnabled  bool   `mapstructure:"REDIS_ENABLED"`
	RedisHost     string `mapstructure:"REDIS_HOST"`
	RedisPort     int    `mapstructure:"REDIS_PORT"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Runs
	RunLockTTL               time.Duration `mapstructure:"RUN_LOCK_TTL"`
	RunTimeout               time.Duration `mapstructure:"RUN_TIMEOUT"`
	AutoMatchThreshold       float64       `mapstructure:"MATCH_AUTOMATCH_THRESHOLD"`
	ValidationRatioTolerance float64       `mapstructure:"VALIDATION_RATIO_TOLERANCE"`

	// Kafka
	KafkaEnabled         bool     `mapstructure:"KAFKA_ENABLED"`
	KafkaBrokers         []string `mapstructure:"KAFKA_BROKERS"`
	KafkaRunRequestTopic string   `mapstructure:"KAFKA_RUN_REQUEST_TOPIC"`
	KafkaConsumerGroup   string   `mapstructure:"KAFKA_CONSUMER_GROUP"`
	KafkaEventsTopic     string   `mapstructure:"KAFKA_EVENTS_TOPIC"`
	KafkaBatchSize       int      `mapstructure:"KAFKA_BATCH_SIZE"`
	KafkaBatchTimeout    int      `mapstructure:"KAFKA_BATCH_TIMEOUT_MS"`
	KafkaRequiredAcks    int      `mapstructure:"KAFKA_REQUIRED_ACKS"`
	KafkaCompression     string   `mapstructure:"KAFKA_COMPRESSION"`

	// Uploaded file storage
	BlobBackend            string `mapstructure:"BLOB_BACKEND"`
	BlobLocalDir           string `mapstructure:"BLOB_LOCAL_DIR"`
	BlobGCSBucket          string `mapstructure:"BLOB_GCS_BUCKET"`
	BlobGCSCredentialsJSON string `mapstructure:"BLOB_GCS_CREDENTIALS_JSON"`

	// Tracing
	TracingEnabled bool   `mapstructure:"TRACING_ENABLED"`
	OTLPEndpoint   string `mapstructure:"OTLP_ENDPOINT"`
	OTLPProtocol   string `mapstructure:"OTLP_PROTOCOL"`
	OTLPInsecure   bool   `mapstructure:"OTLP_INSECURE"`
}

var defaults = map[string]any{
	"APP_NAME":                          "fern-api",
	"PORT":                              3004,
	"LOG_LEVEL":                         "info",
	"PRETTY_LOGS":                       false,
	"HTTP_SERVER_WRITE_TIMEOUT_SECONDS": 60,
	"HTTP_SERVER_READ_TIMEOUT_SECONDS":  60,
	"HTTP_SERVER_IDLE_TIMEOUT_SECONDS":  10,
	"HTTP_SERVER_MAX_HEADER_BYTES":      64000, // 64KB
	"HTTP_SERVER_ALLOW_ORIGINS":         "*",
	"HTTP_SERVER_ALLOW_METHODS":         "GET,POST,PUT,DELETE",
	"HTTP_SERVER_MAX_UPLOAD_BYTES":      256 << 20,
	"STARTUP_MAX_ATTEMPTS":              5,

	"STORAGE_BACKEND": "memory",

	"DB_DRIVER":                  "postgres",
	"DB_HOST":                    "",
	"DB_PORT":                    "5432",
	"DB_USER_NAME":               "",
	"DB_PASSWORD":                "",
	"DB_NAME":                    "fern",
	"DB_SSL_MODE":                "disable",
	"DB_MAX_OPEN_CONNS":          25,
	"DB_MAX_IDLE_CONNS":          10,
	"DB_CONN_MAX_LIFETIME":       "10s",
	"DB_MIGRATION_FOLDER_PATH":   "db/pg",
	"DB_MIGRATION_VERSION":       0,
	"DB_MIGRATION_FORCE":         0,
	"DB_MIGRATION_AUTO_ROLLBACK": true,

	"REDIS_ENABLED":  false,
	"REDIS_HOST":     "localhost",
	"REDIS_PORT":     6379,
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"RUN_LOCK_TTL":               "10m",
	"RUN_TIMEOUT":                "5m",
	"MATCH_AUTOMATCH_THRESHOLD":  0.5,
	"VALIDATION_RATIO_TOLERANCE": 0.0001,

	"KAFKA_ENABLED":           false,
	"KAFKA_BROKERS":           "localhost:9092",
	"KAFKA_RUN_REQUEST_TOPIC": "reconciliation-requests",
	"KAFKA_CONSUMER_GROUP":    "fern-consumer",
	"KAFKA_EVENTS_TOPIC":      "reconciliation-events",
	"KAFKA_BATCH_SIZE":        100,
	"KAFKA_BATCH_TIMEOUT_MS":  100,
	"KAFKA_REQUIRED_ACKS":     1,
	"KAFKA_COMPRESSION":       "snappy",

	"BLOB_BACKEND":              "local",
	"BLOB_LOCAL_DIR":            "data/uploads",
	"BLOB_GCS_BUCKET":           "",
	"BLOB_GCS_CREDENTIALS_JSON": "",

	"TRACING_ENABLED": false,
	"OTLP_ENDPOINT":   "localhost:4317",
	"OTLP_PROTOCOL":   "grpc",
	"OTLP_INSECURE":   true,
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to decode configuration")
	}

	return cfg, nil
}
