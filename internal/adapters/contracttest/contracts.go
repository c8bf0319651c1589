package contracttest

import (
	"context"
	"testing"
	"time"

	"github.com/harborline/idemgate/internal/idempotency"
	idemstoreport "github.com/harborline/idemgate/internal/ports/out/idemstore"
)

type CleanupFunc = func()

// StoreFactory builds a fresh store for one contract run.
type StoreFactory func(t *testing.T) (idemstoreport.Store, CleanupFunc)

// RunIdempotencyStore exercises the behavior every store backend must share:
// round-trip, absence for unknown keys, expired-equals-absent, benign
// duplicate writes and per-key independence. Backend-specific guarantees
// (the relational single-winner race) live in the adapters' own tests.
func RunIdempotencyStore(t *testing.T, newStore StoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := idempotency.NewRequestKey("POST", "/orders", "contract-key-1")
	rec := idempotency.Record{
		StatusCode:  201,
		Body:        `{"order":{"orderId":"o-1"}}`,
		ContentType: "application/json",
		RequestHash: "d6b0ab7f",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}

	// Unknown key reads as not processed.
	if ok, got, err := store.IsProcessed(ctx, key); err != nil {
		t.Fatalf("IsProcessed(unknown): %v", err)
	} else if ok || got != nil {
		t.Fatalf("IsProcessed(unknown) = (%v, %+v), want (false, nil)", ok, got)
	}

	// Round-trip.
	if err := store.MarkProcessed(ctx, key, rec); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	ok, got, err := store.IsProcessed(ctx, key)
	if err != nil {
		t.Fatalf("IsProcessed: %v", err)
	}
	if !ok || got == nil {
		t.Fatalf("IsProcessed = (%v, %+v), want processed with record", ok, got)
	}
	if got.StatusCode != rec.StatusCode || got.Body != rec.Body || got.ContentType != rec.ContentType {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, rec)
	}

	// Duplicate writes never error and the key stays processed.
	if err := store.MarkProcessed(ctx, key, rec); err != nil {
		t.Fatalf("MarkProcessed(duplicate): %v", err)
	}
	if ok, got, err := store.IsProcessed(ctx, key); err != nil || !ok || got == nil {
		t.Fatalf("IsProcessed after duplicate = (%v, %+v, %v), want processed", ok, got, err)
	}

	// Different keys against the same endpoint are independent.
	other := idempotency.NewRequestKey("POST", "/orders", "contract-key-2")
	otherRec := rec
	otherRec.Body = `{"order":{"orderId":"o-2"}}`
	if err := store.MarkProcessed(ctx, other, otherRec); err != nil {
		t.Fatalf("MarkProcessed(other): %v", err)
	}
	if _, got, err := store.IsProcessed(ctx, other); err != nil || got == nil || got.Body != otherRec.Body {
		t.Fatalf("IsProcessed(other) = (%+v, %v), want second record", got, err)
	}
	if _, got, err := store.IsProcessed(ctx, key); err != nil || got == nil || got.Body != rec.Body {
		t.Fatalf("IsProcessed(key) after other write = (%+v, %v), want first record intact", got, err)
	}

	// The same raw key scoped to a different method or route is a new key.
	scoped := idempotency.NewRequestKey("PUT", "/orders", "contract-key-1")
	if ok, _, err := store.IsProcessed(ctx, scoped); err != nil || ok {
		t.Fatalf("IsProcessed(different method) = (%v, %v), want not processed", ok, err)
	}

	// A re-cased key is the same key on every backend.
	recased := idempotency.NewRequestKey("POST", "/orders", "CONTRACT-KEY-1")
	if ok, got, err := store.IsProcessed(ctx, recased); err != nil || !ok || got == nil {
		t.Fatalf("IsProcessed(re-cased key) = (%v, %+v, %v), want processed", ok, got, err)
	}

	// An expired record reads as absent.
	expiredKey := idempotency.NewRequestKey("POST", "/orders", "contract-key-expired")
	expiredRec := rec
	expiredRec.CreatedAt = now.Add(-2 * time.Hour)
	expiredRec.ExpiresAt = now.Add(-time.Hour)
	if err := store.MarkProcessed(ctx, expiredKey, expiredRec); err != nil {
		t.Fatalf("MarkProcessed(expired): %v", err)
	}
	if ok, got, err := store.IsProcessed(ctx, expiredKey); err != nil {
		t.Fatalf("IsProcessed(expired): %v", err)
	} else if ok || got != nil {
		t.Fatalf("IsProcessed(expired) = (%v, %+v), want (false, nil)", ok, got)
	}
}
