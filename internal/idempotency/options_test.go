package idempotency

import (
	"strings"
	"testing"
	"time"
)

func TestOptions_ValidateDefaults(t *testing.T) {
	t.Parallel()

	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("DefaultOptions().Validate()=%v", err)
	}
}

func TestOptions_ValidateRejectsMisconfiguration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Options)
		wantSub string
	}{
		{"empty header", func(o *Options) { o.HeaderName = "" }, "header name"},
		{"zero expiration", func(o *Options) { o.Expiration = 0 }, "expiration"},
		{"negative expiration", func(o *Options) { o.Expiration = -time.Hour }, "expiration"},
		{"zero key length", func(o *Options) { o.MaxKeyLength = 0 }, "max key length"},
		{"unknown mode", func(o *Options) { o.ConflictMode = "replay-maybe" }, "conflict mode"},
		{"min above max", func(o *Options) { o.MinCacheableStatus = 300; o.MaxCacheableStatus = 204 }, "exceeds max"},
		{"min out of range", func(o *Options) { o.MinCacheableStatus = 99 }, "outside 100..599"},
		{"max out of range", func(o *Options) { o.MaxCacheableStatus = 600 }, "outside 100..599"},
		{"bad extra code", func(o *Options) { o.AdditionalCacheableStatuses = []int{302, 42} }, "additional cacheable"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mutate(&opts)
			err := opts.Validate()
			if err == nil {
				t.Fatalf("Validate() accepted %s", tc.name)
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("Validate() err=%q, want substring %q", err, tc.wantSub)
			}
		})
	}
}

func TestOptions_IsCacheableStatus(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.AdditionalCacheableStatuses = []int{303}

	cases := map[int]bool{
		200: true,
		201: true,
		204: true,
		299: true,
		300: false,
		303: true, // explicitly added
		400: false,
		409: false,
		500: false,
		199: false,
	}
	for code, want := range cases {
		if got := opts.IsCacheableStatus(code); got != want {
			t.Fatalf("IsCacheableStatus(%d)=%v, want %v", code, got, want)
		}
	}
}
