// Package config provides configuration handling for flowsync.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Auth configuration
	Auth AuthConfig `json:"auth"`

	// Scheduler configuration
	Scheduler SchedulerConfig `json:"scheduler"`

	// Templates configuration
	Templates TemplatesConfig `json:"templates"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Host to bind to
	Host string `json:"host"`

	// Port to listen on
	Port int `json:"port"`

	// TLS configuration
	TLS TLSConfig `json:"tls"`
}

// TLSConfig contains TLS settings
type TLSConfig struct {
	// Enabled indicates whether TLS is enabled
	Enabled bool `json:"enabled"`

	// CertFile is the path to the certificate file
	CertFile string `json:"cert_file"`

	// KeyFile is the path to the key file
	KeyFile string `json:"key_file"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Type of storage to use
	Type string `json:"type"` // "memory", "dynamodb", "postgresql"

	// DynamoDB configuration
	DynamoDB DynamoDBConfig `json:"dynamodb"`

	// Postgres configuration
	Postgres PostgresConfig `json:"postgres"`
}

// DynamoDBConfig contains DynamoDB settings
type DynamoDBConfig struct {
	// Region is the AWS region
	Region string `json:"region"`

	// Endpoint is the DynamoDB endpoint (for local development)
	Endpoint string `json:"endpoint"`

	// TablePrefix is the prefix for all tables
	TablePrefix string `json:"table_prefix"`
}

// PostgresConfig contains PostgreSQL settings
type PostgresConfig struct {
	// Host is the database host
	Host string `json:"host"`

	// Port is the database port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// User is the database user
	User string `json:"user"`

	// Password is the database password
	Password string `json:"password"`

	// SSLMode is the SSL mode
	SSLMode string `json:"ssl_mode"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	// JWTSecret is the secret for signing JWT tokens
	JWTSecret string `json:"jwt_secret"`

	// TokenExpiration is the token expiration time in hours
	TokenExpiration int `json:"token_expiration"`

	// EncryptionKey is the hex-encoded key for encrypting integration credentials
	EncryptionKey string `json:"encryption_key"`

	// RateLimitAttempts is the failed-authentication budget per client
	// within the rate-limit window
	RateLimitAttempts int `json:"rate_limit_attempts"`

	// RateLimitWindowSeconds is the rate-limit window in seconds
	RateLimitWindowSeconds int `json:"rate_limit_window_seconds"`
}

// SchedulerConfig contains sync scheduler settings
type SchedulerConfig struct {
	// Enabled indicates whether the sync scheduler runs
	Enabled bool `json:"enabled"`

	// RedisAddr is the Redis address for schedule persistence
	RedisAddr string `json:"redis_addr"`

	// RedisPassword is the Redis password
	RedisPassword string `json:"redis_password"`

	// RedisDB is the Redis database number
	RedisDB int `json:"redis_db"`
}

// TemplatesConfig contains template catalog settings
type TemplatesConfig struct {
	// Directory holds YAML catalog files seeded at startup
	Directory string `json:"directory"`

	// AutoSeed indicates whether to seed the catalog on startup
	AutoSeed bool `json:"auto_seed"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	// Level is the logging level
	Level string `json:"level"` // "debug", "info", "warn", "error"

	// Format is the log format
	Format string `json:"format"` // "json", "text"

	// Output is the log output
	Output string `json:"output"` // "stdout", "stderr", "file"

	// FilePath is the path to the log file
	FilePath string `json:"file_path"`
}

// LoadConfig loads the configuration from a file and applies environment
// variable overrides
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()

	return &config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	config := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
			TLS: TLSConfig{
				Enabled: false,
			},
		},
		Storage: StorageConfig{
			Type: "memory",
			DynamoDB: DynamoDBConfig{
				Region:      "us-west-2",
				TablePrefix: "flowsync_",
			},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "flowsync",
				User:     "flowsync",
				SSLMode:  "disable",
			},
		},
		Auth: AuthConfig{
			TokenExpiration:        24,
			RateLimitAttempts:      100,
			RateLimitWindowSeconds: 60,
		},
		Scheduler: SchedulerConfig{
			Enabled:   false,
			RedisAddr: "localhost:6379",
		},
		Templates: TemplatesConfig{
			Directory: "./templates",
			AutoSeed:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}

	config.applyEnvOverrides()

	return config
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvOverrides layers FLOWSYNC_* environment variables over the
// loaded values so deployments can avoid putting secrets in the file
func (c *Config) applyEnvOverrides() {
	setString(&c.Server.Host, "FLOWSYNC_HOST")
	setInt(&c.Server.Port, "FLOWSYNC_PORT")

	setString(&c.Storage.Type, "FLOWSYNC_STORAGE_TYPE")
	setString(&c.Storage.Postgres.Host, "FLOWSYNC_POSTGRES_HOST")
	setInt(&c.Storage.Postgres.Port, "FLOWSYNC_POSTGRES_PORT")
	setString(&c.Storage.Postgres.Database, "FLOWSYNC_POSTGRES_DATABASE")
	setString(&c.Storage.Postgres.User, "FLOWSYNC_POSTGRES_USER")
	setString(&c.Storage.Postgres.Password, "FLOWSYNC_POSTGRES_PASSWORD")
	setString(&c.Storage.DynamoDB.Region, "FLOWSYNC_DYNAMODB_REGION")
	setString(&c.Storage.DynamoDB.Endpoint, "FLOWSYNC_DYNAMODB_ENDPOINT")
	setString(&c.Storage.DynamoDB.TablePrefix, "FLOWSYNC_DYNAMODB_TABLE_PREFIX")

	setString(&c.Auth.JWTSecret, "FLOWSYNC_JWT_SECRET")
	setString(&c.Auth.EncryptionKey, "FLOWSYNC_ENCRYPTION_KEY")
	setInt(&c.Auth.RateLimitAttempts, "FLOWSYNC_AUTH_RATE_LIMIT_ATTEMPTS")
	setInt(&c.Auth.RateLimitWindowSeconds, "FLOWSYNC_AUTH_RATE_LIMIT_WINDOW")

	setString(&c.Scheduler.RedisAddr, "FLOWSYNC_REDIS_ADDR")
	setString(&c.Scheduler.RedisPassword, "FLOWSYNC_REDIS_PASSWORD")

	setString(&c.Templates.Directory, "FLOWSYNC_TEMPLATES_DIR")

	setString(&c.Logging.Level, "FLOWSYNC_LOG_LEVEL")
	setString(&c.Logging.Format, "FLOWSYNC_LOG_FORMAT")
}

func setString(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func setInt(target *int, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}
