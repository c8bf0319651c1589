package idemstore

import (
	"context"

	"github.com/harborline/idemgate/internal/idempotency"
)

// Store persists completed responses keyed by (method, route, idempotency key)
// so duplicate submissions can be detected and answered without re-running
// the handler.
//
// Backend contract:
//   - IsProcessed returns (false, nil, nil) both when no record exists and
//     when a record exists but is expired. Expired records are treated as
//     absent, not surfaced.
//   - MarkProcessed must tolerate a concurrent insert of the same key by
//     another in-flight request: the losing writer returns nil and its
//     record is discarded, never an error and never corrupted state.
//
// Infrastructure failures are returned as errors; the filter decides the
// fail-open/fail-safe policy, not the store.
type Store interface {
	IsProcessed(ctx context.Context, key idempotency.RequestKey) (bool, *idempotency.Record, error)
	MarkProcessed(ctx context.Context, key idempotency.RequestKey, rec idempotency.Record) error
}
