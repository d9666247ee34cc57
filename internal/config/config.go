package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for our application
type Config struct {
	Port                      string
	Origin                    string
	Environment               string
	LogLevel                  string
	JWTSecret                 string
	JWTRefreshSecret          string
	JWTExpirationMinutes      int
	JWTRefreshExpirationHours int
	Database                  DatabaseConfig
	Storage                   StorageConfig
	Notify                    NotifyConfig
	SearchScopeMode           string
	MaxAudioBytes             int
	FirstSuperuser            SuperuserConfig
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	DSN      string
	LogLevel string
}

// StorageConfig selects where voice recordings are kept
type StorageConfig struct {
	Driver   string
	Path     string
	S3Bucket string
	S3Prefix string
}

// NotifyConfig selects the push notification transport
type NotifyConfig struct {
	Driver         string
	TimeoutSeconds int
	SQSQueueName   string
	KafkaBrokers   []string
	KafkaTopic     string
}

// SuperuserConfig is the account created on startup when set
type SuperuserConfig struct {
	Email    string
	Password string
	FullName string
}

// Search scope modes.
const (
	SearchScopeRole = "role"
	SearchScopeSelf = "self"
)

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	dbConfig := DatabaseConfig{
		Driver:   strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "3306"),
		Username: getEnv("DB_USERNAME", "root"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "dictation"),
		LogLevel: getEnv("DB_LOG_LEVEL", "warn"),
	}

	dsn, err := buildDSN(dbConfig)
	if err != nil {
		return nil, err
	}
	dbConfig.DSN = getEnv("DB_DSN", dsn)

	storageConfig := StorageConfig{
		Driver:   strings.ToLower(getEnv("STORAGE_DRIVER", "local")),
		Path:     getEnv("STORAGE_PATH", "./data/voices"),
		S3Bucket: getEnv("S3_BUCKET", ""),
		S3Prefix: getEnv("S3_PREFIX", "voices"),
	}
	if storageConfig.Driver == "s3" && storageConfig.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
	}

	notifyTimeout, err := strconv.Atoi(getEnv("NOTIFY_TIMEOUT_SECONDS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_TIMEOUT_SECONDS: %w", err)
	}
	notifyConfig := NotifyConfig{
		Driver:         strings.ToLower(getEnv("NOTIFY_DRIVER", "log")),
		TimeoutSeconds: notifyTimeout,
		SQSQueueName:   getEnv("SQS_QUEUE_NAME", ""),
		KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "dictation-notifications"),
	}
	switch notifyConfig.Driver {
	case "log", "sns":
	case "sqs":
		if notifyConfig.SQSQueueName == "" {
			return nil, fmt.Errorf("SQS_QUEUE_NAME is required when NOTIFY_DRIVER=sqs")
		}
	case "kafka":
		if len(notifyConfig.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("KAFKA_BROKERS is required when NOTIFY_DRIVER=kafka")
		}
	default:
		return nil, fmt.Errorf("unsupported NOTIFY_DRIVER %q", notifyConfig.Driver)
	}

	jwtExpMinutes, err := strconv.Atoi(getEnv("JWT_EXPIRATION_MINUTES", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION_MINUTES: %w", err)
	}

	jwtRefreshExpHours, err := strconv.Atoi(getEnv("JWT_REFRESH_EXPIRATION_HOURS", "168")) // 7 days
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_REFRESH_EXPIRATION_HOURS: %w", err)
	}

	maxAudioBytes, err := strconv.Atoi(getEnv("MAX_AUDIO_BYTES", strconv.Itoa(20<<20)))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_AUDIO_BYTES: %w", err)
	}

	scopeMode := strings.ToLower(getEnv("SEARCH_SCOPE_MODE", SearchScopeRole))
	if scopeMode != SearchScopeRole && scopeMode != SearchScopeSelf {
		return nil, fmt.Errorf("invalid SEARCH_SCOPE_MODE %q", scopeMode)
	}

	return &Config{
		Port:                      getEnv("PORT", "3001"),
		Origin:                    getEnv("ORIGIN", "http://localhost:4200"),
		Environment:               getEnv("NODE_ENV", "development"),
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
		JWTSecret:                 getEnv("JWT_SECRET", "default_jwt_secret"),
		JWTRefreshSecret:          getEnv("JWT_REFRESH_SECRET", "default_refresh_secret"),
		JWTExpirationMinutes:      jwtExpMinutes,
		JWTRefreshExpirationHours: jwtRefreshExpHours,
		Database:                  dbConfig,
		Storage:                   storageConfig,
		Notify:                    notifyConfig,
		SearchScopeMode:           scopeMode,
		MaxAudioBytes:             maxAudioBytes,
		FirstSuperuser: SuperuserConfig{
			Email:    getEnv("FIRST_SUPERUSER_EMAIL", ""),
			Password: getEnv("FIRST_SUPERUSER_PASSWORD", ""),
			FullName: getEnv("FIRST_SUPERUSER_NAME", "Administrator"),
		},
	}, nil
}

func buildDSN(db DatabaseConfig) (string, error) {
	switch db.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			db.Username, db.Password, db.Host, db.Port, db.Name), nil
	case "postgres":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			db.Host, db.Port, db.Username, db.Password, db.Name), nil
	case "sqlite":
		return db.Name + ".db", nil
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", db.Driver)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
