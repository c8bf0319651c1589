package idempotency

import (
	"fmt"
	"time"
)

// ConflictMode selects what a duplicate request receives.
type ConflictMode string

const (
	// ConflictModeCachedResult replays the original response to duplicates.
	ConflictModeCachedResult ConflictMode = "cached-result"
	// ConflictModeConflictResponse rejects duplicates with 409.
	ConflictModeConflictResponse ConflictMode = "conflict-response"
)

// DefaultHeaderName follows the IETF idempotency-key-header draft.
const DefaultHeaderName = "Idempotency-Key"

const (
	defaultCacheKeyPrefix = "idempotency:"
	defaultExpiration     = 24 * time.Hour
	defaultMinCacheable   = 200
	defaultMaxCacheable   = 299
)

// Options is the process-wide idempotency configuration. It is read-only
// after startup; validate it once during wiring, before traffic arrives.
type Options struct {
	// HeaderName is the request header carrying the idempotency key.
	HeaderName string

	// CacheKeyPrefix namespaces entries in shared cache backends.
	CacheKeyPrefix string

	// Expiration is how long a stored response remains replayable.
	Expiration time.Duration

	// ConflictMode selects replay vs. explicit 409 for duplicates.
	ConflictMode ConflictMode

	// MaxKeyLength bounds the accepted key length after trimming.
	MaxKeyLength int

	// MinCacheableStatus and MaxCacheableStatus bound the inclusive range of
	// response status codes eligible for caching.
	MinCacheableStatus int
	MaxCacheableStatus int

	// AdditionalCacheableStatuses lists codes outside the range that are
	// still cacheable (e.g. 303 for POST-redirect flows).
	AdditionalCacheableStatuses []int
}

// DefaultOptions returns the configuration used when nothing is overridden:
// Idempotency-Key header, 24h expiry, replay duplicates, cache 2xx only.
func DefaultOptions() Options {
	return Options{
		HeaderName:         DefaultHeaderName,
		CacheKeyPrefix:     defaultCacheKeyPrefix,
		Expiration:         defaultExpiration,
		ConflictMode:       ConflictModeCachedResult,
		MaxKeyLength:       DefaultMaxKeyLength,
		MinCacheableStatus: defaultMinCacheable,
		MaxCacheableStatus: defaultMaxCacheable,
	}
}

// Validate rejects misconfiguration eagerly. Call it once at startup so a
// bad deployment fails before serving traffic, not on the first write.
func (o Options) Validate() error {
	if o.HeaderName == "" {
		return fmt.Errorf("idempotency options: header name is required")
	}
	if o.Expiration <= 0 {
		return fmt.Errorf("idempotency options: expiration must be positive, got %s", o.Expiration)
	}
	if o.MaxKeyLength <= 0 {
		return fmt.Errorf("idempotency options: max key length must be positive, got %d", o.MaxKeyLength)
	}
	switch o.ConflictMode {
	case ConflictModeCachedResult, ConflictModeConflictResponse:
	default:
		return fmt.Errorf("idempotency options: unknown conflict mode %q", o.ConflictMode)
	}
	if o.MinCacheableStatus < 100 || o.MinCacheableStatus > 599 {
		return fmt.Errorf("idempotency options: min cacheable status %d outside 100..599", o.MinCacheableStatus)
	}
	if o.MaxCacheableStatus < 100 || o.MaxCacheableStatus > 599 {
		return fmt.Errorf("idempotency options: max cacheable status %d outside 100..599", o.MaxCacheableStatus)
	}
	if o.MinCacheableStatus > o.MaxCacheableStatus {
		return fmt.Errorf("idempotency options: min cacheable status %d exceeds max %d",
			o.MinCacheableStatus, o.MaxCacheableStatus)
	}
	for _, code := range o.AdditionalCacheableStatuses {
		if code < 100 || code > 599 {
			return fmt.Errorf("idempotency options: additional cacheable status %d outside 100..599", code)
		}
	}
	return nil
}

// IsCacheableStatus reports whether a response with the given status code
// should be persisted for replay. Error responses fall outside the default
// range on purpose: a failed first attempt must stay retryable.
func (o Options) IsCacheableStatus(code int) bool {
	if code >= o.MinCacheableStatus && code <= o.MaxCacheableStatus {
		return true
	}
	for _, extra := range o.AdditionalCacheableStatuses {
		if code == extra {
			return true
		}
	}
	return false
}
