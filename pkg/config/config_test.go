package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
env: "test"
connector:
  schema: "graph"
  stream_mode: "Sync"
sqlserver:
  host: "db.example.com"
  database: "graphdb"
  user: "sink"
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  topic: "snapshots"
`)

	t.Setenv("GRAPHSINK_STREAM_MODE", "EventStream")
	t.Setenv("MSSQL_PASSWORD", "from-env")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Connector.Mode() != models.StreamModeEventStream {
		t.Errorf("expected StreamMode=EventStream (from env), got %s", cfg.Connector.StreamMode)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.Connector.Schema != "graph" {
		t.Errorf("expected Schema=graph (from yaml), got %s", cfg.Connector.Schema)
	}
	if cfg.SQLServer.Host != "db.example.com" {
		t.Errorf("expected SQLServer.Host=db.example.com (from yaml), got %s", cfg.SQLServer.Host)
	}
	if cfg.SQLServer.Password != "from-env" {
		t.Errorf("expected password from env, got %q", cfg.SQLServer.Password)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected Logging.Level=debug (from env), got %s", cfg.Logging.Level)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Topic != "snapshots" {
		t.Errorf("unexpected kafka config: %+v", cfg.Kafka)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: test\n"), "dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Connector.Schema != "dbo" {
		t.Errorf("expected default schema dbo, got %s", cfg.Connector.Schema)
	}
	if cfg.Connector.Mode() != models.StreamModeSync {
		t.Errorf("expected default mode Sync, got %s", cfg.Connector.StreamMode)
	}
	if cfg.SQLServer.Port != 1433 {
		t.Errorf("expected default port 1433, got %d", cfg.SQLServer.Port)
	}
	if !cfg.SQLServer.Encrypt {
		t.Error("expected encrypt to default to true")
	}
	if cfg.Retry.InitialDelay != 100*time.Millisecond || cfg.Retry.MaxDelay != 5*time.Second {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.MigrationsPath != "migrations" {
		t.Errorf("expected default migrations path, got %s", cfg.MigrationsPath)
	}
	if cfg.Connector.StreamID != uuid.Nil {
		t.Errorf("expected nil stream id, got %s", cfg.Connector.StreamID)
	}
}

func TestLoad_ParsesIdentifiers(t *testing.T) {
	streamID := uuid.New()
	path := writeConfig(t, "connector:\n  stream_id: \""+streamID.String()+"\"\n")

	cfg, err := Load(path, "dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Connector.StreamID != streamID {
		t.Errorf("expected stream id %s, got %s", streamID, cfg.Connector.StreamID)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad mode", "connector:\n  stream_mode: Batch\n", "stream_mode"},
		{"bad stream id", "connector:\n  stream_id: nope\n", "stream_id"},
		{"negative rate", "kafka:\n  rate_limit: -1\n", "rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), "dev")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error to mention %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "dev")
	if err == nil {
		t.Fatal("expected error when config file is missing")
	}
}

func TestSQLServerConfig_ConfigMap(t *testing.T) {
	sqlAuth := SQLServerConfig{Host: "db", Port: 1433, Database: "g", AuthMethod: "sql", User: "u", Password: "p"}
	m := sqlAuth.ConfigMap()
	if m["user"] != "u" || m["password"] != "p" {
		t.Errorf("expected sql credentials in map, got %v", m)
	}
	if _, ok := m["client_id"]; ok {
		t.Error("did not expect service principal fields for sql auth")
	}

	sp := SQLServerConfig{Host: "db", Port: 1433, Database: "g", AuthMethod: "service_principal", TenantID: "t", ClientID: "c", ClientSecret: "s"}
	m = sp.ConfigMap()
	if m["client_id"] != "c" || m["tenant_id"] != "t" || m["client_secret"] != "s" {
		t.Errorf("expected service principal fields in map, got %v", m)
	}
	if _, ok := m["user"]; ok {
		t.Error("did not expect user for service principal auth")
	}
}
