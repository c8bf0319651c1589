package idemstore

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/oapi-codegen/nullable"
	"github.com/redis/go-redis/v9"

	"github.com/harborline/idemgate/internal/idempotency"
	clockport "github.com/harborline/idemgate/internal/ports/out/clock"
)

// Store is a Redis implementation of idemstore.Store.
//
// It is TTL-based and best-effort: there is no insert-if-absent, so two
// concurrent first-requests for the same key can both pass IsProcessed and
// both write. The last write wins without corruption. This backend suppresses
// duplicates that arrive after the first request completed; use the
// relational stores when exactly-once under true concurrency is required.
type Store struct {
	client redis.Cmdable
	prefix string
	clock  clockport.Clock
	log    *log.Logger
}

func NewStore(client redis.Cmdable, keyPrefix string, clock clockport.Clock, logger *log.Logger) *Store {
	return &Store{
		client: client,
		prefix: keyPrefix,
		clock:  clock,
		log:    logger,
	}
}

// wireRecord is the compact serialized form of a cached response.
// Body is nullable so an absent body and an empty-string body stay
// distinguishable on the wire.
type wireRecord struct {
	StatusCode  int                       `json:"status"`
	Body        nullable.Nullable[string] `json:"body,omitempty"`
	ContentType string                    `json:"contentType,omitempty"`
	RequestHash string                    `json:"requestHash,omitempty"`
	CreatedAt   time.Time                 `json:"createdAt"`
	ExpiresAt   time.Time                 `json:"expiresAt"`
}

func (s *Store) IsProcessed(ctx context.Context, key idempotency.RequestKey) (bool, *idempotency.Record, error) {
	cacheKey := s.cacheKey(key)

	raw, err := s.client.Get(ctx, cacheKey).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil, nil
		}
		return false, nil, err
	}

	rec, err := decodeRecord([]byte(raw))
	if err != nil {
		// A corrupted entry must never block a retried request. Drop it and
		// report the key as unseen.
		s.log.Printf("warn: idempotency cache entry %s is unreadable, discarding: %v", cacheKey, err)
		s.client.Del(ctx, cacheKey)
		return false, nil, nil
	}

	if rec.IsExpired(s.clock.Now()) {
		// Evict now instead of waiting for Redis TTL eviction, so an
		// expired-but-resident record cannot be replayed.
		s.client.Del(ctx, cacheKey)
		return false, nil, nil
	}
	return true, &rec, nil
}

func (s *Store) MarkProcessed(ctx context.Context, key idempotency.RequestKey, rec idempotency.Record) error {
	ttl := rec.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.cacheKey(key), payload, ttl).Err()
}

func (s *Store) cacheKey(key idempotency.RequestKey) string {
	return s.prefix + sanitizeCacheKey(key.Composite())
}

// sanitizeCacheKey strips characters cache providers commonly disallow in
// keys and upper-cases the rest for consistency. Validated idempotency keys
// cannot contain these characters, so this is a second fence, not the gate.
func sanitizeCacheKey(composite string) string {
	var b strings.Builder
	b.Grow(len(composite))
	for _, r := range composite {
		switch r {
		case '\n', '\r', '/', '\\', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

func encodeRecord(rec idempotency.Record) ([]byte, error) {
	w := wireRecord{
		StatusCode:  rec.StatusCode,
		ContentType: rec.ContentType,
		RequestHash: rec.RequestHash,
		CreatedAt:   rec.CreatedAt.UTC(),
		ExpiresAt:   rec.ExpiresAt.UTC(),
	}
	if rec.HasBody() {
		w.Body = nullable.NewNullableWithValue(rec.Body)
	}
	return json.Marshal(w)
}

func decodeRecord(data []byte) (idempotency.Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return idempotency.Record{}, err
	}
	rec := idempotency.Record{
		StatusCode:  w.StatusCode,
		ContentType: w.ContentType,
		RequestHash: w.RequestHash,
		CreatedAt:   w.CreatedAt,
		ExpiresAt:   w.ExpiresAt,
	}
	if w.Body.IsSpecified() && !w.Body.IsNull() {
		body, err := w.Body.Get()
		if err != nil {
			return idempotency.Record{}, err
		}
		rec.Body = body
	}
	return rec, nil
}
