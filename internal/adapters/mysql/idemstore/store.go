package idemstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/go-sql-driver/mysql"

	"github.com/harborline/idemgate/internal/idempotency"
	clockport "github.com/harborline/idemgate/internal/ports/out/clock"
)

// MySQL duplicate-entry error number.
const duplicateEntryErrNo = 1062

// Store is a MySQL implementation of idemstore.Store, for deployments that
// already run MySQL instead of Postgres. Semantics match the Postgres store:
// the unique composite key arbitrates concurrent writers and the losing
// insert is discarded without error.
type Store struct {
	db    *sql.DB
	clock clockport.Clock
	log   *log.Logger

	schemaReady atomic.Bool
	schemaMu    sync.Mutex
}

func NewStore(db *sql.DB, clock clockport.Clock, logger *log.Logger) *Store {
	return &Store{db: db, clock: clock, log: logger}
}

// MySQL runs one statement per Exec, so the DDL is split.
//
// The unique key indexes only the first 191 characters of route to stay
// inside InnoDB's utf8mb4 index-width limit. Route templates that agree on
// their first 191 characters would share an idempotency keyspace; templates
// that long do not occur in practice.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS idempotency_records (
		route        VARCHAR(512) NOT NULL,
		method       VARCHAR(16) NOT NULL,
		idem_key     VARCHAR(256) NOT NULL,
		status_code  INT NOT NULL,
		body         TEXT NULL,
		content_type VARCHAR(256) NOT NULL DEFAULT '',
		request_hash VARCHAR(64) NOT NULL DEFAULT '',
		created_at   DATETIME(6) NOT NULL,
		expires_at   DATETIME(6) NOT NULL,
		UNIQUE KEY idempotency_records_key_unique (route(191), method, idem_key),
		KEY idempotency_records_expires_at_idx (expires_at),
		KEY idempotency_records_route_created_idx (route(191), created_at),
		CONSTRAINT idempotency_records_status_chk CHECK (status_code BETWEEN 100 AND 599)
	)`,
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if s.schemaReady.Load() {
		return nil
	}
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady.Load() {
		return nil
	}
	for _, stmt := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure idempotency schema: %w", err)
		}
	}
	s.schemaReady.Store(true)
	return nil
}

func (s *Store) IsProcessed(ctx context.Context, key idempotency.RequestKey) (bool, *idempotency.Record, error) {
	if s.db == nil {
		return false, nil, errors.New("nil mysql handle")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return false, nil, err
	}

	var (
		rec  idempotency.Record
		body sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT status_code, body, content_type, request_hash, created_at, expires_at
		FROM idempotency_records
		WHERE route = ? AND method = ? AND idem_key = ? AND expires_at > ?
	`,
		key.Route, key.Method, key.Key, s.clock.Now().UTC(),
	).Scan(&rec.StatusCode, &body, &rec.ContentType, &rec.RequestHash, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil, nil
		}
		return false, nil, err
	}
	if body.Valid {
		rec.Body = body.String
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	return true, &rec, nil
}

func (s *Store) MarkProcessed(ctx context.Context, key idempotency.RequestKey, rec idempotency.Record) error {
	if s.db == nil {
		return errors.New("nil mysql handle")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	var body sql.NullString
	if rec.HasBody() {
		body = sql.NullString{String: rec.Body, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Clear an expired row so its key can be reused.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM idempotency_records
		WHERE route = ? AND method = ? AND idem_key = ? AND expires_at <= ?
	`, key.Route, key.Method, key.Key, s.clock.Now().UTC()); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO idempotency_records (
			route, method, idem_key,
			status_code, body, content_type, request_hash,
			created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		key.Route, key.Method, key.Key,
		rec.StatusCode, body, rec.ContentType, rec.RequestHash,
		rec.CreatedAt.UTC(), rec.ExpiresAt.UTC(),
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == duplicateEntryErrNo {
			s.log.Printf("info: idempotency record for %s already written by a concurrent request", key.Composite())
			return nil
		}
		return err
	}
	return tx.Commit()
}
