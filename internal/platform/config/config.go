package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/harborline/idemgate/internal/idempotency"
)

// Backend names accepted by IDEMPOTENCY_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
)

// Config is the process configuration for the demo API. It is resolved once
// at startup (YAML file, then environment on top) and validated before any
// traffic is served.
type Config struct {
	Port    string
	Backend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PostgresDSN string
	MySQLDSN    string

	Idempotency idempotency.Options
}

// fileConfig mirrors Config for the optional YAML file. Durations are
// strings ("24h") so operators write them the way Go parses them.
type fileConfig struct {
	Port    string `yaml:"port"`
	Backend string `yaml:"backend"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	PostgresDSN string `yaml:"postgresDSN"`
	MySQLDSN    string `yaml:"mysqlDSN"`

	Idempotency struct {
		HeaderName         string `yaml:"headerName"`
		CacheKeyPrefix     string `yaml:"cacheKeyPrefix"`
		Expiration         string `yaml:"expiration"`
		ConflictMode       string `yaml:"conflictMode"`
		MaxKeyLength       int    `yaml:"maxKeyLength"`
		MinCacheableStatus int    `yaml:"minCacheableStatus"`
		MaxCacheableStatus int    `yaml:"maxCacheableStatus"`
		ExtraCacheable     []int  `yaml:"extraCacheableStatuses"`
	} `yaml:"idempotency"`
}

// Load resolves configuration. A `.env` file is honored for local
// development; IDEMGATE_CONFIG may name a YAML file whose values sit below
// the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:        "8080",
		Backend:     BackendMemory,
		RedisAddr:   "localhost:6379",
		Idempotency: idempotency.DefaultOptions(),
	}

	if path := os.Getenv("IDEMGATE_CONFIG"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setIfNotEmpty(&cfg.Port, fc.Port)
	setIfNotEmpty(&cfg.Backend, fc.Backend)
	setIfNotEmpty(&cfg.RedisAddr, fc.Redis.Addr)
	setIfNotEmpty(&cfg.RedisPassword, fc.Redis.Password)
	if fc.Redis.DB != 0 {
		cfg.RedisDB = fc.Redis.DB
	}
	setIfNotEmpty(&cfg.PostgresDSN, fc.PostgresDSN)
	setIfNotEmpty(&cfg.MySQLDSN, fc.MySQLDSN)

	setIfNotEmpty(&cfg.Idempotency.HeaderName, fc.Idempotency.HeaderName)
	setIfNotEmpty(&cfg.Idempotency.CacheKeyPrefix, fc.Idempotency.CacheKeyPrefix)
	if fc.Idempotency.Expiration != "" {
		d, err := time.ParseDuration(fc.Idempotency.Expiration)
		if err != nil {
			return fmt.Errorf("config file: idempotency.expiration must be a duration (e.g. 24h): %w", err)
		}
		cfg.Idempotency.Expiration = d
	}
	if fc.Idempotency.ConflictMode != "" {
		cfg.Idempotency.ConflictMode = idempotency.ConflictMode(fc.Idempotency.ConflictMode)
	}
	if fc.Idempotency.MaxKeyLength != 0 {
		cfg.Idempotency.MaxKeyLength = fc.Idempotency.MaxKeyLength
	}
	if fc.Idempotency.MinCacheableStatus != 0 {
		cfg.Idempotency.MinCacheableStatus = fc.Idempotency.MinCacheableStatus
	}
	if fc.Idempotency.MaxCacheableStatus != 0 {
		cfg.Idempotency.MaxCacheableStatus = fc.Idempotency.MaxCacheableStatus
	}
	if len(fc.Idempotency.ExtraCacheable) > 0 {
		cfg.Idempotency.AdditionalCacheableStatuses = fc.Idempotency.ExtraCacheable
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setIfNotEmpty(&cfg.Port, os.Getenv("PORT"))
	setIfNotEmpty(&cfg.Backend, os.Getenv("IDEMPOTENCY_BACKEND"))
	setIfNotEmpty(&cfg.RedisAddr, os.Getenv("REDIS_ADDR"))
	setIfNotEmpty(&cfg.RedisPassword, os.Getenv("REDIS_PASSWORD"))
	setIfNotEmpty(&cfg.PostgresDSN, os.Getenv("DATABASE_URL"))
	setIfNotEmpty(&cfg.MySQLDSN, os.Getenv("MYSQL_DSN"))

	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB must be an integer: %w", err)
		}
		cfg.RedisDB = n
	}

	setIfNotEmpty(&cfg.Idempotency.HeaderName, os.Getenv("IDEMPOTENCY_HEADER"))
	setIfNotEmpty(&cfg.Idempotency.CacheKeyPrefix, os.Getenv("IDEMPOTENCY_CACHE_PREFIX"))

	if v := os.Getenv("IDEMPOTENCY_EXPIRATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("IDEMPOTENCY_EXPIRATION must be a duration (e.g. 24h): %w", err)
		}
		cfg.Idempotency.Expiration = d
	}
	if v := os.Getenv("IDEMPOTENCY_CONFLICT_MODE"); v != "" {
		cfg.Idempotency.ConflictMode = idempotency.ConflictMode(v)
	}
	if v := os.Getenv("IDEMPOTENCY_MAX_KEY_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("IDEMPOTENCY_MAX_KEY_LENGTH must be an integer: %w", err)
		}
		cfg.Idempotency.MaxKeyLength = n
	}
	if v := os.Getenv("IDEMPOTENCY_CACHEABLE_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("IDEMPOTENCY_CACHEABLE_MIN must be an integer: %w", err)
		}
		cfg.Idempotency.MinCacheableStatus = n
	}
	if v := os.Getenv("IDEMPOTENCY_CACHEABLE_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("IDEMPOTENCY_CACHEABLE_MAX must be an integer: %w", err)
		}
		cfg.Idempotency.MaxCacheableStatus = n
	}
	if v := os.Getenv("IDEMPOTENCY_CACHEABLE_EXTRA"); v != "" {
		extra, err := parseStatusList(v)
		if err != nil {
			return err
		}
		cfg.Idempotency.AdditionalCacheableStatuses = extra
	}
	return nil
}

// Validate fails fast on misconfiguration, including backend-specific
// requirements like a DSN for the relational stores.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("backend %q requires REDIS_ADDR", c.Backend)
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("backend %q requires DATABASE_URL", c.Backend)
		}
	case BackendMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("backend %q requires MYSQL_DSN", c.Backend)
		}
	default:
		return fmt.Errorf("unknown idempotency backend %q", c.Backend)
	}
	return c.Idempotency.Validate()
}

func parseStatusList(v string) ([]int, error) {
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("IDEMPOTENCY_CACHEABLE_EXTRA: %q is not an integer", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
