package idemstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/harborline/idemgate/internal/adapters/postgres"
	"github.com/harborline/idemgate/internal/idempotency"
	clockport "github.com/harborline/idemgate/internal/ports/out/clock"
)

// Store is a Postgres implementation of idemstore.Store.
//
// Exactly-once under concurrency is delegated to the datastore: the
// (route, method, idem_key) unique constraint arbitrates concurrent writers,
// and the losing insert is treated as a benign outcome rather than an error.
type Store struct {
	pool  *pgxpool.Pool
	clock clockport.Clock
	log   *log.Logger

	// Schema setup runs at most once per store instance. The flag is only
	// set after a successful probe so a transient failure stays retryable.
	schemaReady atomic.Bool
	schemaMu    sync.Mutex
}

func NewStore(pool *pgxpool.Pool, clock clockport.Clock, logger *log.Logger) *Store {
	return &Store{pool: pool, clock: clock, log: logger}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS idempotency_records (
	route        text NOT NULL,
	method       text NOT NULL,
	idem_key     text NOT NULL,
	status_code  integer NOT NULL CHECK (status_code BETWEEN 100 AND 599),
	body         text,
	content_type text NOT NULL DEFAULT '',
	request_hash text NOT NULL DEFAULT '',
	created_at   timestamptz NOT NULL,
	expires_at   timestamptz NOT NULL,
	CONSTRAINT idempotency_records_key_unique UNIQUE (route, method, idem_key)
);
CREATE INDEX IF NOT EXISTS idempotency_records_expires_at_idx
	ON idempotency_records (expires_at);
CREATE INDEX IF NOT EXISTS idempotency_records_route_created_idx
	ON idempotency_records (route, created_at);
`

func (s *Store) ensureSchema(ctx context.Context) error {
	if s.schemaReady.Load() {
		return nil
	}
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady.Load() {
		return nil
	}
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure idempotency schema: %w", err)
	}
	s.schemaReady.Store(true)
	return nil
}

func (s *Store) IsProcessed(ctx context.Context, key idempotency.RequestKey) (bool, *idempotency.Record, error) {
	if s.pool == nil {
		return false, nil, errors.New("nil postgres pool")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return false, nil, err
	}

	row := s.pool.QueryRow(ctx, `
		SELECT status_code, body, content_type, request_hash, created_at, expires_at
		FROM idempotency_records
		WHERE route = $1
		  AND method = $2
		  AND idem_key = $3
		  AND expires_at > $4
	`,
		key.Route,
		key.Method,
		key.Key,
		s.clock.Now(),
	)

	var (
		rec  idempotency.Record
		body *string
	)
	if err := row.Scan(&rec.StatusCode, &body, &rec.ContentType, &rec.RequestHash, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil, nil
		}
		return false, nil, err
	}
	if body != nil {
		rec.Body = *body
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	return true, &rec, nil
}

func (s *Store) MarkProcessed(ctx context.Context, key idempotency.RequestKey, rec idempotency.Record) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	var body *string
	if rec.HasBody() {
		body = &rec.Body
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// A fresh run of the same key is only legal once the prior record
		// expired; clear it so the insert below can take its place.
		if _, err := tx.Exec(ctx, `
			DELETE FROM idempotency_records
			WHERE route = $1 AND method = $2 AND idem_key = $3 AND expires_at <= $4
		`, key.Route, key.Method, key.Key, s.clock.Now()); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO idempotency_records (
				route, method, idem_key,
				status_code, body, content_type, request_hash,
				created_at, expires_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			key.Route,
			key.Method,
			key.Key,
			rec.StatusCode,
			body,
			rec.ContentType,
			rec.RequestHash,
			rec.CreatedAt.UTC(),
			rec.ExpiresAt.UTC(),
		)
		return err
	})
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
			// Another in-flight request already recorded this key. Its row is
			// authoritative; discarding ours is the expected race resolution.
			s.log.Printf("info: idempotency record for %s already written by a concurrent request", key.Composite())
			return nil
		}
		return err
	}
	return nil
}
