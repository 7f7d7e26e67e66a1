package app

import (
	"context"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	require.NoError(t, err)

	require.NotNil(t, deps.store)
	require.NotNil(t, deps.outboxRepo)
	require.NotNil(t, deps.idempotencyRepo)
	require.NoError(t, deps.ping(context.Background()))
	require.NoError(t, deps.closeFn())
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	require.ErrorContains(t, err, "dsn is required")
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("BAKERY_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer deps.close(log.WithField("test", "postgres-init"))

	require.NotNil(t, deps.store)
	require.NotNil(t, deps.outboxRepo)
	require.NotNil(t, deps.idempotencyRepo)
	require.NoError(t, deps.ping(context.Background()))
}
