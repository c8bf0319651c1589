package idemstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/harborline/idemgate/internal/adapters/contracttest"
	"github.com/harborline/idemgate/internal/adapters/postgres/testutil"
	"github.com/harborline/idemgate/internal/idempotency"
	"github.com/harborline/idemgate/internal/logging"
	platformclock "github.com/harborline/idemgate/internal/platform/clock"
	idemstoreport "github.com/harborline/idemgate/internal/ports/out/idemstore"
)

func TestContract_PostgresIdempotencyStore(t *testing.T) {
	pool := testutil.OpenPool(t)

	contracttest.RunIdempotencyStore(t, func(t *testing.T) (idemstoreport.Store, contracttest.CleanupFunc) {
		t.Helper()
		return NewStore(pool, platformclock.NewSystemClock(), logging.NewNopLogger()), nil
	})
}

// N concurrent writers for the same key must produce exactly one row and
// zero errors; the unique constraint arbitrates, not in-process locks.
func TestStore_ConcurrentMarkProcessedSingleWinner(t *testing.T) {
	pool := testutil.OpenPool(t)
	store := NewStore(pool, platformclock.NewSystemClock(), logging.NewNopLogger())
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
	if err := pool.QueryRow(ctx, `
		SELECT count(*) FROM idempotency_records
		WHERE route = $1 AND method = $2 AND idem_key = $3
	`, key.Route, key.Method, key.Key).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("row count = %d, want exactly 1", count)
	}

	ok, rec, err := store.IsProcessed(ctx, key)
	if err != nil || !ok || rec == nil {
		t.Fatalf("IsProcessed = (%v, %+v, %v), want processed", ok, rec, err)
	}
}

func TestStore_ExpiredRowIsReplaced(t *testing.T) {
	pool := testutil.OpenPool(t)
	store := NewStore(pool, platformclock.NewSystemClock(), logging.NewNopLogger())
	ctx := context.Background()

	key := idempotency.NewRequestKey("POST", "/orders", "reuse-after-expiry")
	now := time.Now().UTC()

	stale := idempotency.Record{
		StatusCode:  201,
		Body:        `{"attempt":1}`,
		ContentType: "application/json",
		CreatedAt:   now.Add(-2 * time.Hour),
		ExpiresAt:   now.Add(-time.Hour),
	}
	if err := store.MarkProcessed(ctx, key, stale); err != nil {
		t.Fatalf("MarkProcessed(stale): %v", err)
	}
	if ok, _, err := store.IsProcessed(ctx, key); err != nil || ok {
		t.Fatalf("IsProcessed(stale) = (%v, %v), want not processed", ok, err)
	}

	fresh := stale
	fresh.Body = `{"attempt":2}`
	fresh.CreatedAt = now
	fresh.ExpiresAt = now.Add(time.Hour)
	if err := store.MarkProcessed(ctx, key, fresh); err != nil {
		t.Fatalf("MarkProcessed(fresh): %v", err)
	}

	ok, rec, err := store.IsProcessed(ctx, key)
	if err != nil || !ok || rec == nil {
		t.Fatalf("IsProcessed(fresh) = (%v, %+v, %v), want processed", ok, rec, err)
	}
	if rec.Body != fresh.Body {
		t.Fatalf("Body = %q, want the replacement record", rec.Body)
	}
}
