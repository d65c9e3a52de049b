package mssql

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
)

// Authentication methods.
const (
	AuthMethodSQL              = "sql"
	AuthMethodServicePrincipal = "service_principal"
)

// DefaultAppName identifies the connector's sessions in sys.dm_exec_sessions.
const DefaultAppName = "ekaya-graphsink"

// Config contains the connection settings of the target database.
type Config struct {
	Host     string
	Port     int
	Database string
	AppName  string

	// AuthMethod is AuthMethodSQL or AuthMethodServicePrincipal.
	AuthMethod string

	Username string
	Password string

	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
	MaxOpenConns           int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// settings reads typed values out of a generic config map.
type settings map[string]any

func (s settings) str(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

func (s settings) nonEmpty(keys ...string) string {
	for _, k := range keys {
		if v, ok := s.str(k); ok && v != "" {
			return v
		}
	}
	return ""
}

// integer accepts JSON numbers as well as Go ints.
func (s settings) integer(key string, fallback int) int {
	switch n := s[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return fallback
	}
}

// boolean accepts bools and the strings "true", "false" and "strict".
func (s settings) boolean(key string, fallback bool) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "strict"
	default:
		return fallback
	}
}

func (s settings) required(key, method string) (string, error) {
	v, ok := s.str(key)
	if !ok {
		return "", apperrors.InvalidArgument(key, "is required for "+method+" authentication")
	}
	return v, nil
}

// FromMap creates a Config from the generic map produced by the configuration
// layer. The auth method is detected from the credentials when not given.
func FromMap(config map[string]any) (*Config, error) {
	s := settings(config)

	cfg := &Config{
		Host:                   s.nonEmpty("host"),
		Port:                   s.integer("port", DefaultPort()),
		Database:               s.nonEmpty("database"),
		AppName:                s.nonEmpty("app_name"),
		AuthMethod:             s.nonEmpty("auth_method"),
		Encrypt:                s.boolean("encrypt", true),
		TrustServerCertificate: s.boolean("trust_server_certificate", false),
		ConnectionTimeout:      s.integer("connection_timeout", DefaultConnectionTimeout()),
		MaxOpenConns:           s.integer("max_open_conns", 0),
	}
	if cfg.Host == "" {
		return nil, apperrors.InvalidArgument("host", "is required")
	}
	if cfg.Database == "" {
		return nil, apperrors.InvalidArgument("database", "is required")
	}
	if cfg.AppName == "" {
		cfg.AppName = DefaultAppName
	}

	if cfg.AuthMethod == "" {
		switch {
		case s["client_id"] != nil:
			cfg.AuthMethod = AuthMethodServicePrincipal
		case s.nonEmpty("username", "user") != "":
			cfg.AuthMethod = AuthMethodSQL
		default:
			return nil, apperrors.InvalidArgument("auth method", "could not auto-detect auth method; no credentials provided")
		}
	}

	var err error
	switch cfg.AuthMethod {
	case AuthMethodSQL:
		if cfg.Username = s.nonEmpty("username", "user"); cfg.Username == "" {
			return nil, apperrors.InvalidArgument("username", "is required for sql authentication")
		}
		cfg.Password, _ = s.str("password")
	case AuthMethodServicePrincipal:
		if cfg.TenantID, err = s.required("tenant_id", cfg.AuthMethod); err != nil {
			return nil, err
		}
		if cfg.ClientID, err = s.required("client_id", cfg.AuthMethod); err != nil {
			return nil, err
		}
		if cfg.ClientSecret, err = s.required("client_secret", cfg.AuthMethod); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: invalid auth method %q (must be sql or service_principal)",
			apperrors.ErrUnrecognizedEnumValue, cfg.AuthMethod)
	}

	return cfg, nil
}

// Validate checks that the config can open a connection with its auth method.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return apperrors.InvalidArgument("host", "is required")
	case c.Database == "":
		return apperrors.InvalidArgument("database", "is required")
	case c.Port <= 0 || c.Port > 65535:
		return apperrors.InvalidArgument("port", fmt.Sprintf("is invalid: %d", c.Port))
	}

	switch c.AuthMethod {
	case AuthMethodSQL:
		if c.Username == "" {
			return apperrors.InvalidArgument("username", "is required for sql authentication")
		}
	case AuthMethodServicePrincipal:
		if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
			return apperrors.InvalidArgument("tenant_id, client_id and client_secret", "are required for service principal authentication")
		}
	default:
		return fmt.Errorf("%w: invalid auth method %q", apperrors.ErrUnrecognizedEnumValue, c.AuthMethod)
	}
	return nil
}
