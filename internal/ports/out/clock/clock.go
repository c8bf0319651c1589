package clock

import "time"

// Clock provides time to the filter and stores. Expiry decisions all flow
// through it, so tests can drive a record past its TTL deterministically.
type Clock interface {
	Now() time.Time
}
