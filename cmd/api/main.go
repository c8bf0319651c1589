package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harborline/idemgate/internal/adapters/httpapi"
	memidemstore "github.com/harborline/idemgate/internal/adapters/memory/idemstore"
	mysqlidemstore "github.com/harborline/idemgate/internal/adapters/mysql/idemstore"
	postgres "github.com/harborline/idemgate/internal/adapters/postgres"
	pgidemstore "github.com/harborline/idemgate/internal/adapters/postgres/idemstore"
	redisidemstore "github.com/harborline/idemgate/internal/adapters/redis/idemstore"
	"github.com/harborline/idemgate/internal/app/orders"
	"github.com/harborline/idemgate/internal/logging"
	platformclock "github.com/harborline/idemgate/internal/platform/clock"
	"github.com/harborline/idemgate/internal/platform/config"
	idemstoreport "github.com/harborline/idemgate/internal/ports/out/idemstore"
)

func main() {
	logger := logging.NewStdLogger("idemgate ")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	clk := platformclock.NewSystemClock()

	var (
		store   idemstoreport.Store
		cleanup func()
	)
	switch cfg.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cleanup = func() { _ = client.Close() }
		store = redisidemstore.NewStore(client, cfg.Idempotency.CacheKeyPrefix, clk, logger)
	case config.BackendPostgres:
		pool, err := postgres.NewPool(context.Background(), cfg.PostgresDSN, postgres.PoolOptions{
			HealthCheckWait: 10 * time.Second,
		})
		if err != nil {
			logger.Fatalf("invalid postgres config: %v", err)
		}
		cleanup = pool.Close
		store = pgidemstore.NewStore(pool, clk, logger)
	case config.BackendMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			logger.Fatalf("invalid mysql config: %v", err)
		}
		cleanup = func() { _ = db.Close() }
		store = mysqlidemstore.NewStore(db, clk, logger)
	default:
		store = memidemstore.NewStore(clk)
	}
	if cleanup != nil {
		defer cleanup()
	}

	filter, err := httpapi.NewFilter(cfg.Idempotency, store, clk, logger)
	if err != nil {
		logger.Fatalf("invalid idempotency options: %v", err)
	}

	ordersSvc := orders.NewService(clk)
	handler := httpapi.NewRouter(httpapi.NewServer(ordersSvc), filter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("api listening on :%s (backend=%s, conflict-mode=%s)",
			cfg.Port, cfg.Backend, cfg.Idempotency.ConflictMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
