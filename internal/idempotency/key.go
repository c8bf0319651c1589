package idempotency

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxKeyLength bounds client-supplied keys unless configured otherwise.
const DefaultMaxKeyLength = 256

// Validation failures for a client-supplied idempotency key.
// These are client input errors; the filter maps them to 400 responses.
var (
	ErrKeyMissing      = errors.New("idempotency key missing")
	ErrKeyTooLong      = errors.New("idempotency key too long")
	ErrKeyInvalidChars = errors.New("idempotency key contains invalid characters")
)

// ValidateKey trims surrounding whitespace from a raw header value and checks
// length and character set. It returns the trimmed key on success.
//
// Allowed characters are alphanumerics, hyphen and underscore. Anything else
// (newlines, slashes, control characters) is rejected before the value can
// reach a store, so a hostile header can never become a cache-key fragment.
func ValidateKey(raw string, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxKeyLength
	}
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", ErrKeyMissing
	}
	if len(key) > maxLength {
		return "", fmt.Errorf("%w: %d characters exceeds limit of %d", ErrKeyTooLong, len(key), maxLength)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return "", ErrKeyInvalidChars
		}
	}
	return key, nil
}

// RequestKey identifies one logical attempt of one endpoint operation.
//
// All three parts are case-normalized, so neither a route matched as
// "/Orders" vs "/orders" nor a retried key resent in a different case can
// dodge deduplication. Route is the route template (e.g.
// "/orders/{orderID}/capture"), never the resolved path, so all requests to
// the same logical endpoint share a keyspace.
type RequestKey struct {
	Method string
	Route  string
	Key    string
}

// NewRequestKey builds a normalized RequestKey. key must already be validated.
func NewRequestKey(method, route, key string) RequestKey {
	return RequestKey{
		Method: strings.ToUpper(strings.TrimSpace(method)),
		Route:  strings.ToUpper(strings.TrimSpace(route)),
		Key:    strings.ToUpper(key),
	}
}

// Composite renders the single-string lookup form used by cache backends:
// "{METHOD}:{ROUTE}_{key}". Relational backends persist the parts as columns
// instead and never parse this string back.
func (k RequestKey) Composite() string {
	return k.Method + ":" + k.Route + "_" + k.Key
}
