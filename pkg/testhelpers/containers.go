package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SQLServerImage is the SQL Server image used by integration tests.
const SQLServerImage = "mcr.microsoft.com/mssql/server:2022-latest"

const (
	testUser     = "sa"
	testPassword = "GraphSink_test_Pa55"
	testDatabase = "graphsink_test"
)

// TestDB holds a shared SQL Server container and a pool on its test database.
type TestDB struct {
	Container testcontainers.Container
	DB        *sql.DB
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
}

// ConfigMap returns connection settings in the form the executor registry accepts.
func (t *TestDB) ConfigMap() map[string]any {
	return map[string]any{
		"host":                     t.Host,
		"port":                     t.Port,
		"database":                 t.Database,
		"user":                     t.User,
		"password":                 t.Password,
		"encrypt":                  false,
		"trust_server_certificate": true,
	}
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared SQL Server container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        SQLServerImage,
		ExposedPorts: []string{"1433/tcp"},
		Env: map[string]string{
			"ACCEPT_EULA":       "Y",
			"MSSQL_SA_PASSWORD": testPassword,
			"MSSQL_PID":         "Developer",
		},
		WaitingFor: wait.ForLog("SQL Server is now ready for client connections").
			WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "1433")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	master, err := sql.Open("sqlserver", connString(host, port.Int(), "master"))
	if err != nil {
		return nil, fmt.Errorf("failed to open master connection: %w", err)
	}
	defer master.Close()

	// The server accepts logins slightly after the ready message.
	var pingErr error
	for i := 0; i < 20; i++ {
		if pingErr = master.PingContext(ctx); pingErr == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if pingErr != nil {
		return nil, fmt.Errorf("failed to reach test server: %w", pingErr)
	}

	if _, err := master.ExecContext(ctx, fmt.Sprintf("IF DB_ID(N'%[1]s') IS NULL CREATE DATABASE [%[1]s];", testDatabase)); err != nil {
		return nil, fmt.Errorf("failed to create test database: %w", err)
	}

	db, err := sql.Open("sqlserver", connString(host, port.Int(), testDatabase))
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping test database: %w", err)
	}

	return &TestDB{
		Container: container,
		DB:        db,
		Host:      host,
		Port:      port.Int(),
		User:      testUser,
		Password:  testPassword,
		Database:  testDatabase,
	}, nil
}

func connString(host string, port int, database string) string {
	query := url.Values{}
	query.Add("database", database)
	query.Add("encrypt", "disable")
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(testUser), url.QueryEscape(testPassword), host, port, query.Encode())
}
