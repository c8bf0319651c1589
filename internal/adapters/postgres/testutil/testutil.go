package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/harborline/idemgate/internal/adapters/postgres"
)

// OpenPool connects to the database named by IDEMGATE_TEST_DATABASE_URL and
// skips the test when the variable is unset, so integration tests are a
// no-op on machines without Postgres.
func OpenPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("IDEMGATE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("IDEMGATE_TEST_DATABASE_URL not set; skipping postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, dsn, postgres.PoolOptions{HealthCheckWait: 5 * time.Second})
	if err != nil {
		t.Fatalf("open postgres pool: %v", err)
	}
	t.Cleanup(pool.Close)

	// Isolation between runs. Schema creation itself is the store's job.
	_, _ = pool.Exec(ctx, `DROP TABLE IF EXISTS idempotency_records`)
	return pool
}
