package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for ekaya-graphsink.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, client secrets) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	Connector ConnectorConfig `yaml:"connector"`
	SQLServer SQLServerConfig `yaml:"sqlserver"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Logging   LoggingConfig   `yaml:"logging"`
	Retry     RetryConfig     `yaml:"retry"`

	// MigrationsPath points at the bookkeeping migrations directory.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// ConnectorConfig selects the container layout the connector writes to.
type ConnectorConfig struct {
	Schema      string `yaml:"schema" env:"GRAPHSINK_SCHEMA" env-default:"dbo"`
	StreamMode  string `yaml:"stream_mode" env:"GRAPHSINK_STREAM_MODE" env-default:"Sync"`
	NarrowTypes bool   `yaml:"narrow_types" env:"GRAPHSINK_NARROW_TYPES" env-default:"false"`

	// ContainerFile is a YAML container definition (name + declared properties).
	ContainerFile string `yaml:"container_file" env:"GRAPHSINK_CONTAINER_FILE" env-default:"container.yaml"`

	StreamIDStr   string `yaml:"stream_id" env:"GRAPHSINK_STREAM_ID" env-default:""`
	ProviderIDStr string `yaml:"provider_id" env:"GRAPHSINK_PROVIDER_ID" env-default:""`

	// Parsed from the string fields above (not from config file).
	StreamID   uuid.UUID `yaml:"-"`
	ProviderID uuid.UUID `yaml:"-"`
}

// Mode returns the configured stream mode.
func (c *ConnectorConfig) Mode() models.StreamMode {
	return models.StreamMode(c.StreamMode)
}

// SQLServerConfig holds the target SQL Server connection.
type SQLServerConfig struct {
	Host                   string `yaml:"host" env:"MSSQL_HOST" env-default:"localhost"`
	Port                   int    `yaml:"port" env:"MSSQL_PORT" env-default:"1433"`
	Database               string `yaml:"database" env:"MSSQL_DATABASE" env-default:"graphsink"`
	AuthMethod             string `yaml:"auth_method" env:"MSSQL_AUTH_METHOD" env-default:"sql"`
	User                   string `yaml:"user" env:"MSSQL_USER" env-default:"sa"`
	Password               string `yaml:"-" env:"MSSQL_PASSWORD"` // Secret - not in YAML
	TenantID               string `yaml:"tenant_id" env:"MSSQL_TENANT_ID" env-default:""`
	ClientID               string `yaml:"client_id" env:"MSSQL_CLIENT_ID" env-default:""`
	ClientSecret           string `yaml:"-" env:"MSSQL_CLIENT_SECRET"` // Secret - not in YAML
	Encrypt                bool   `yaml:"encrypt" env:"MSSQL_ENCRYPT" env-default:"true"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate" env:"MSSQL_TRUST_SERVER_CERTIFICATE" env-default:"false"`
	ConnectionTimeout      int    `yaml:"connection_timeout" env:"MSSQL_CONNECTION_TIMEOUT" env-default:"30"`
	MaxOpenConns           int    `yaml:"max_open_conns" env:"MSSQL_MAX_OPEN_CONNS" env-default:"10"`
}

// ConfigMap returns the connection settings in the generic form adapter
// factories accept.
func (c *SQLServerConfig) ConfigMap() map[string]any {
	m := map[string]any{
		"host":                     c.Host,
		"port":                     c.Port,
		"database":                 c.Database,
		"auth_method":              c.AuthMethod,
		"encrypt":                  c.Encrypt,
		"trust_server_certificate": c.TrustServerCertificate,
		"connection_timeout":       c.ConnectionTimeout,
		"max_open_conns":           c.MaxOpenConns,
	}
	switch c.AuthMethod {
	case "service_principal":
		m["tenant_id"] = c.TenantID
		m["client_id"] = c.ClientID
		m["client_secret"] = c.ClientSecret
	default:
		m["user"] = c.User
		m["password"] = c.Password
	}
	return m
}

// KafkaConfig holds the snapshot topic consumer settings.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	Topic    string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"graph-snapshots"`
	GroupID  string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"ekaya-graphsink"`
	MinBytes int      `yaml:"min_bytes" env:"KAFKA_MIN_BYTES" env-default:"1"`
	MaxBytes int      `yaml:"max_bytes" env:"KAFKA_MAX_BYTES" env-default:"10485760"`

	// RateLimit caps applied snapshots per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" env:"KAFKA_RATE_LIMIT" env-default:"0"`
	Burst     int     `yaml:"burst" env:"KAFKA_BURST" env-default:"1"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT" env-default:"false"`
}

// RetryConfig controls retries of transient SQL failures in the stream consumer.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" env:"RETRY_MAX_RETRIES" env-default:"3"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"RETRY_INITIAL_DELAY" env-default:"100ms"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"RETRY_MAX_DELAY" env-default:"5s"`
}

// Load reads configuration from path with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := &Config{
		Version: version,
	}

	// Load config from YAML file with environment variable overrides
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.SQLServer.Host = ResolveHostForDocker(cfg.SQLServer.Host)
	for i, broker := range cfg.Kafka.Brokers {
		cfg.Kafka.Brokers[i] = ResolveAddrForDocker(broker)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	var err error
	if c.Connector.StreamID, err = parseOptionalUUID(c.Connector.StreamIDStr); err != nil {
		return fmt.Errorf("stream_id: %w", err)
	}
	if c.Connector.ProviderID, err = parseOptionalUUID(c.Connector.ProviderIDStr); err != nil {
		return fmt.Errorf("provider_id: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if !c.Connector.Mode().IsValid() {
		return fmt.Errorf("stream_mode must be Sync or EventStream, got %q", c.Connector.StreamMode)
	}
	if c.Connector.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if c.Kafka.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}

func parseOptionalUUID(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(value)
}
