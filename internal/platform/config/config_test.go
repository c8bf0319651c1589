package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harborline/idemgate/internal/idempotency"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != BackendMemory {
		t.Fatalf("Backend=%q, want memory", cfg.Backend)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port=%q, want 8080", cfg.Port)
	}
	if cfg.Idempotency.HeaderName != idempotency.DefaultHeaderName {
		t.Fatalf("HeaderName=%q", cfg.Idempotency.HeaderName)
	}
	if cfg.Idempotency.Expiration != 24*time.Hour {
		t.Fatalf("Expiration=%s, want 24h", cfg.Idempotency.Expiration)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("IDEMPOTENCY_BACKEND", BackendRedis)
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("IDEMPOTENCY_HEADER", "X-Request-Token")
	t.Setenv("IDEMPOTENCY_EXPIRATION", "90m")
	t.Setenv("IDEMPOTENCY_CONFLICT_MODE", string(idempotency.ConflictModeConflictResponse))
	t.Setenv("IDEMPOTENCY_CACHEABLE_EXTRA", "303, 308")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.Backend != BackendRedis || cfg.RedisAddr != "redis.internal:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Idempotency.HeaderName != "X-Request-Token" {
		t.Fatalf("HeaderName=%q", cfg.Idempotency.HeaderName)
	}
	if cfg.Idempotency.Expiration != 90*time.Minute {
		t.Fatalf("Expiration=%s", cfg.Idempotency.Expiration)
	}
	if cfg.Idempotency.ConflictMode != idempotency.ConflictModeConflictResponse {
		t.Fatalf("ConflictMode=%q", cfg.Idempotency.ConflictMode)
	}
	if len(cfg.Idempotency.AdditionalCacheableStatuses) != 2 ||
		cfg.Idempotency.AdditionalCacheableStatuses[0] != 303 ||
		cfg.Idempotency.AdditionalCacheableStatuses[1] != 308 {
		t.Fatalf("extra codes=%v", cfg.Idempotency.AdditionalCacheableStatuses)
	}
}

func TestLoad_YAMLFileUnderEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idemgate.yaml")
	content := `
port: "7070"
backend: postgres
postgresDSN: postgres://app@db/idem
idempotency:
  conflictMode: conflict-response
  expiration: 12h
  maxKeyLength: 64
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("IDEMGATE_CONFIG", path)
	// Environment wins over the file.
	t.Setenv("PORT", "7171")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7171" {
		t.Fatalf("Port=%q, want env override 7171", cfg.Port)
	}
	if cfg.Backend != BackendPostgres || cfg.PostgresDSN != "postgres://app@db/idem" {
		t.Fatalf("unexpected backend config: %+v", cfg)
	}
	if cfg.Idempotency.Expiration != 12*time.Hour || cfg.Idempotency.MaxKeyLength != 64 {
		t.Fatalf("unexpected idempotency options: %+v", cfg.Idempotency)
	}
}

func TestLoad_FailsFastOnMisconfiguration(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"IDEMPOTENCY_BACKEND": "etcd"}},
		{"postgres without dsn", map[string]string{"IDEMPOTENCY_BACKEND": BackendPostgres}},
		{"mysql without dsn", map[string]string{"IDEMPOTENCY_BACKEND": BackendMySQL}},
		{"bad expiration", map[string]string{"IDEMPOTENCY_EXPIRATION": "soon"}},
		{"bad conflict mode", map[string]string{"IDEMPOTENCY_CONFLICT_MODE": "maybe"}},
		{"inverted status range", map[string]string{
			"IDEMPOTENCY_CACHEABLE_MIN": "300",
			"IDEMPOTENCY_CACHEABLE_MAX": "204",
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("Load accepted %s", tc.name)
			}
		})
	}
}
