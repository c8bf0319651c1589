package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/harborline/idemgate/internal/idempotency"
	clockport "github.com/harborline/idemgate/internal/ports/out/clock"
	"github.com/harborline/idemgate/internal/ports/out/idemstore"
)

// Response marker headers set by the filter.
const (
	// HeaderIdempotencyStatus is "created" on a freshly processed request and
	// "cached" on a replayed duplicate.
	HeaderIdempotencyStatus = "Idempotency-Status"
	// HeaderIdempotencyExpires communicates when the stored result will no
	// longer be honored.
	HeaderIdempotencyExpires = "Idempotency-Expires"

	idempotencyStatusCreated = "created"
	idempotencyStatusCached  = "cached"
)

// Request bodies larger than this are not fingerprinted. The hash is an
// optional diagnostic, not worth unbounded buffering.
const maxFingerprintBody = 1 << 20

// Filter intercepts mutating requests on endpoints that opt into idempotency.
//
// It validates the Idempotency-Key header, asks the store whether the
// composite (method, route, key) was already processed, and either replays
// the stored response, rejects the duplicate, or runs the downstream handler
// and persists its result. The store is only ever read and written here; the
// filter is the sole component that invokes business logic.
//
// Store read failures are fail-open (the operation runs without
// deduplication) and store write failures are fail-safe (the computed
// response is returned even though caching it failed).
type Filter struct {
	opts  idempotency.Options
	store idemstore.Store
	clock clockport.Clock
	log   *log.Logger
}

// NewFilter validates opts eagerly and returns the configured filter.
func NewFilter(opts idempotency.Options, store idemstore.Store, clock clockport.Clock, logger *log.Logger) (*Filter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("idempotency filter: nil store")
	}
	if clock == nil {
		return nil, errors.New("idempotency filter: nil clock")
	}
	if logger == nil {
		return nil, errors.New("idempotency filter: nil logger")
	}
	return &Filter{opts: opts, store: store, clock: clock, log: logger}, nil
}

// Handler wraps next with idempotency semantics. Endpoints wrapped by it
// require a valid key on every request.
func (f *Filter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := idempotency.ValidateKey(r.Header.Get(f.opts.HeaderName), f.opts.MaxKeyLength)
		if err != nil {
			f.rejectInvalidKey(w, r, err)
			return
		}

		reqKey := idempotency.NewRequestKey(r.Method, f.routeTemplate(r), key)

		processed, rec, err := f.store.IsProcessed(r.Context(), reqKey)
		if err != nil {
			// Fail open: an unhealthy store must not block the operation.
			f.log.Printf("warn: idempotency lookup for %s failed, proceeding without deduplication: %v",
				reqKey.Composite(), err)
			processed, rec = false, nil
		}

		if processed {
			f.answerDuplicate(w, r, reqKey, rec)
			return
		}

		f.executeAndPersist(w, r, reqKey, next)
	})
}

// routeTemplate returns the matched chi route pattern, so deduplication is
// scoped per logical endpoint regardless of path parameter values. Outside a
// chi routing context it falls back to the raw path.
func (f *Filter) routeTemplate(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func (f *Filter) rejectInvalidKey(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, idempotency.ErrKeyMissing):
		writeError(w, r, http.StatusBadRequest, "IDEMPOTENCY_KEY_REQUIRED",
			fmt.Sprintf("The %s header is required for this operation.", f.opts.HeaderName))
	case errors.Is(err, idempotency.ErrKeyTooLong):
		writeError(w, r, http.StatusBadRequest, "IDEMPOTENCY_KEY_TOO_LONG",
			fmt.Sprintf("The %s header must be at most %d characters.", f.opts.HeaderName, f.opts.MaxKeyLength))
	default:
		writeError(w, r, http.StatusBadRequest, "IDEMPOTENCY_KEY_INVALID",
			fmt.Sprintf("The %s header may only contain letters, digits, hyphens and underscores.", f.opts.HeaderName))
	}
}

// answerDuplicate handles a key the store has already seen. The downstream
// handler is never invoked on this path.
func (f *Filter) answerDuplicate(w http.ResponseWriter, r *http.Request, key idempotency.RequestKey, rec *idempotency.Record) {
	if f.opts.ConflictMode == idempotency.ConflictModeConflictResponse {
		writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_CONFLICT",
			"A request with this Idempotency-Key has already been processed for this endpoint.")
		return
	}

	if rec == nil {
		// Processed but no replayable response: inconsistent metadata.
		// Rejecting is safer than re-running a side effect.
		f.log.Printf("warn: idempotency record for %s has no cached response, answering conflict", key.Composite())
		writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_CONFLICT",
			"A request with this Idempotency-Key has already been processed for this endpoint.")
		return
	}

	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(HeaderIdempotencyStatus, idempotencyStatusCached)
	w.Header().Set(HeaderIdempotencyExpires, rec.ExpiresAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(rec.StatusCode)
	if rec.HasBody() {
		_, _ = io.WriteString(w, rec.Body)
	}
}

// executeAndPersist runs the real handler and, for cacheable outcomes,
// records the response for future duplicates.
func (f *Filter) executeAndPersist(w http.ResponseWriter, r *http.Request, key idempotency.RequestKey, next http.Handler) {
	requestHash := f.fingerprintRequest(r)

	recorder := newResponseRecorder()
	// The filter's only invocation of business logic.
	next.ServeHTTP(recorder, r)

	if f.opts.IsCacheableStatus(recorder.statusCode) {
		now := f.clock.Now()
		rec := idempotency.Record{
			StatusCode:  recorder.statusCode,
			ContentType: recorder.contentType(),
			RequestHash: requestHash,
			CreatedAt:   now,
			ExpiresAt:   now.Add(f.opts.Expiration),
		}
		// A whitespace-only payload is stored as no body, matching the
		// empty-body handling elsewhere in the pipeline.
		if body := recorder.body.String(); strings.TrimSpace(body) != "" {
			rec.Body = body
		}

		if err := f.store.MarkProcessed(r.Context(), key, rec); err != nil {
			// Fail safe: the handler already ran; its response is returned
			// even though a future duplicate will be reprocessed.
			f.log.Printf("warn: persisting idempotency record for %s failed: %v", key.Composite(), err)
		}

		recorder.header.Set(HeaderIdempotencyStatus, idempotencyStatusCreated)
		recorder.header.Set(HeaderIdempotencyExpires, rec.ExpiresAt.UTC().Format(http.TimeFormat))
	}

	recorder.flush(w)
}

// fingerprintRequest hashes the request body for the stored record, restoring
// the body for the downstream handler. Bodies of unknown length (chunked
// transfer reports -1) or over the cap are skipped; the hash is optional
// metadata and never worth handing the handler a partial body.
func (f *Filter) fingerprintRequest(r *http.Request) string {
	if r.Body == nil || r.ContentLength <= 0 || r.ContentLength > maxFingerprintBody {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFingerprintBody+1))
	if err != nil || len(body) > maxFingerprintBody {
		// The handler still gets everything read so far plus the unread rest.
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
		return ""
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) == 0 {
		return ""
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
