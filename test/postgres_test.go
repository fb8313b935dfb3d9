package test

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/database"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	postgresUser     = "callboard"
	postgresPassword = "secret"
	postgresDB       = "callboard"
)

// startPostgres runs a throwaway postgres, applies the migrations and returns
// a connection. The test is skipped when docker is not reachable.
func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("integration test")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	pool.MaxWait = 2 * time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15",
		Env: []string{
			"POSTGRES_PASSWORD=" + postgresPassword,
			"POSTGRES_USER=" + postgresUser,
			"POSTGRES_DB=" + postgresDB,
		},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})

	host, port := splitHostPort(resource.GetHostPort("5432/tcp"))
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, postgresUser, postgresPassword, postgresDB, port,
	)

	var dbConn *gorm.DB

	require.NoError(t, pool.Retry(func() error {
		var err error

		dbConn, err = database.Open(dsn)

		return err
	}))

	t.Cleanup(func() {
		sqlDB, err := dbConn.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	applyMigrations(t, host, port)

	return dbConn
}

func applyMigrations(t *testing.T, host, port string) {
	t.Helper()

	migrationsDir, err := filepath.Abs(filepath.Join("..", "migrations"))
	require.NoError(t, err)

	dbURL := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(postgresUser, postgresPassword),
		Host:     net.JoinHostPort(host, port),
		Path:     postgresDB,
		RawQuery: "sslmode=disable",
	}

	migrator, err := migrate.New("file://"+filepath.ToSlash(migrationsDir), dbURL.String())
	require.NoError(t, err)

	defer migrator.Close()

	err = migrator.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}
}

func splitHostPort(hostPort string) (string, string) {
	host := "localhost"

	if !strings.Contains(hostPort, ":") {
		return host, hostPort
	}

	parsedHost, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		parts := strings.Split(hostPort, ":")
		return host, parts[len(parts)-1]
	}

	if parsedHost != "" && parsedHost != "0.0.0.0" {
		host = parsedHost
	}

	return host, port
}
