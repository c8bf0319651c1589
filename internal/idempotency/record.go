package idempotency

import "time"

// Record is the persisted snapshot of a completed response, replayable for
// duplicate requests until it expires.
//
// Body may be empty: handlers that return no payload (e.g. 204) are cached
// with status and content type only. Records are immutable once stored; a
// fresh run of the same key only happens after the prior record expired.
type Record struct {
	StatusCode  int
	Body        string
	ContentType string
	// RequestHash is an optional sha256 fingerprint of the request body that
	// produced this response, recorded for future reuse-mismatch detection.
	RequestHash string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// IsExpired reports whether the record should be treated as absent.
// Expiry is evaluated lazily at every read; nothing sweeps records eagerly.
func (r Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// HasBody reports whether the record carries a response payload.
func (r Record) HasBody() bool {
	return r.Body != ""
}
