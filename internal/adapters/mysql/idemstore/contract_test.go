package idemstore

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/harborline/idemgate/internal/adapters/contracttest"
	"github.com/harborline/idemgate/internal/idempotency"
	"github.com/harborline/idemgate/internal/logging"
	platformclock "github.com/harborline/idemgate/internal/platform/clock"
	idemstoreport "github.com/harborline/idemgate/internal/ports/out/idemstore"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("IDEMGATE_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("IDEMGATE_TEST_MYSQL_DSN not set; skipping mysql integration test")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping mysql: %v", err)
	}
	_, _ = db.ExecContext(ctx, `DROP TABLE IF EXISTS idempotency_records`)
	return db
}

func TestContract_MySQLIdempotencyStore(t *testing.T) {
	db := openTestDB(t)

	contracttest.RunIdempotencyStore(t, func(t *testing.T) (idemstoreport.Store, contracttest.CleanupFunc) {
		t.Helper()
		return NewStore(db, platformclock.NewSystemClock(), logging.NewNopLogger()), nil
	})
}

func TestStore_ConcurrentMarkProcessedSingleWinner(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, platformclock.NewSystemClock(), logging.NewNopLogger())
	ctx := context.Background()

	key := idempotency.NewRequestKey("POST", "/orders", "race-key")
	now := time.Now().UTC()

	const writers = 8
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			rec := idempotency.Record{
				StatusCode:  201,
				Body:        `{"order":{"orderId":"o-race"}}`,
				ContentType: "application/json",
				CreatedAt:   now,
				ExpiresAt:   now.Add(time.Hour),
			}
			if err := store.MarkProcessed(ctx, key, rec); err != nil {
				t.Errorf("MarkProcessed: %v", err)
			}
		}()
	}
	wg.Wait()

	var count int
	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM idempotency_records
		WHERE route = ? AND method = ? AND idem_key = ?
	`, key.Route, key.Method, key.Key).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("row count = %d, want exactly 1", count)
	}
}
