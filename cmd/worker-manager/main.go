// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"retail-chat-workers/internal/bootstrap"
	"retail-chat-workers/internal/common/camunda"
	"retail-chat-workers/internal/common/config"
	"retail-chat-workers/internal/common/database"
	"retail-chat-workers/internal/common/logger"
	"retail-chat-workers/internal/common/observability"
	hct "retail-chat-workers/internal/workers/ai-conversation/handle-chat-turn"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra := bootstrap.Infra{}
	var checks []readinessCheck

	// --- Redis: conversation context store ---
	rdb := database.NewRedis(cfg.Database.Redis)
	defer rdb.Close()
	if err := retryWithBackoff(func() error { return rdb.Ping(ctx) }, 3, time.Second, zapLog, "Redis connection"); err != nil {
		zapLog.Warn("redis unavailable, context store starts on process memory", zap.Error(err))
	}
	// the client reconnects by itself; the store falls back per call
	infra.Redis = rdb.Client
	checks = append(checks, readinessCheck{name: "redis", check: rdb.Ping})

	// --- Elasticsearch: semantic product search ---
	if len(cfg.Database.Elasticsearch.Addresses) > 0 {
		esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch client config invalid", zap.Error(err))
		}
		if err := retryWithBackoff(func() error { return esClient.Ping(ctx) }, 3, time.Second, zapLog, "Elasticsearch connection"); err != nil {
			zapLog.Warn("elasticsearch unavailable, searches fall back to the catalog", zap.Error(err))
		}
		infra.Elasticsearch = esClient.Client
		checks = append(checks, readinessCheck{name: "elasticsearch", check: esClient.Ping})
	}

	// --- PostgreSQL: catalog snapshot source ---
	if cfg.Catalog.Source == config.CatalogSourcePostgres {
		var pg *database.PostgresClient
		err := retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Error("postgres unavailable, catalog snapshot is empty", zap.Error(err))
		} else {
			defer pg.Close()
			infra.Postgres = pg.DB
		}
	}

	container, err := bootstrap.Build(ctx, cfg, infra, obs, log)
	if err != nil {
		zapLog.Fatal("pipeline wiring failed", zap.Error(err))
	}

	go container.Limiter.Run(ctx, config.GetSeconds(cfg.RateLimit.SweepInterval))

	// --- Zeebe job worker ---
	var chatWorker *camunda.Worker
	if config.IsWorkerEnabled(cfg, hct.TaskType) && cfg.Camunda.BrokerAddress != "" {
		var zeebe *camunda.Client
		chatWorker, zeebe = startWorker(cfg, container, obs, log, zapLog)
		if zeebe != nil {
			defer zeebe.Close()
			checks = append(checks, readinessCheck{name: "zeebe", check: zeebe.HealthCheck})
		}
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", hct.TaskType))
	}

	// --- Health, metrics and chat HTTP server ---
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           newServer(container.Orchestrator, checks, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if chatWorker != nil {
		chatWorker.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(cfg *config.Config, container *bootstrap.Container, obs *observability.Observability, log logger.Logger, zapLog *zap.Logger) (*camunda.Worker, *camunda.Client) {
	var client *camunda.Client
	err := retryWithBackoff(func() error {
		var err error
		client, err = camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Error("zeebe unavailable, chat turns are served over HTTP only", zap.Error(err))
		return nil, nil
	}

	if len(cfg.Camunda.DeployResources) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		keys, err := client.DeployResources(ctx, cfg.Camunda.DeployResources...)
		cancel()
		if err != nil {
			zapLog.Warn("process deployment failed, serving already deployed versions", zap.Error(err))
		} else {
			zapLog.Info("processes deployed", zap.Strings("resources", cfg.Camunda.DeployResources), zap.Int64s("keys", keys))
		}
	}

	wcfg := hct.LoadConfig(cfg)
	handler := hct.NewHandler(wcfg, container.Orchestrator, obs, log)
	w := camunda.NewWorker(client.GetClient(), hct.TaskType, wcfg.MaxJobsActive, wcfg.Timeout, handler, log)

	zapLog.Info("worker started",
		zap.String("taskType", hct.TaskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Duration("timeout", wcfg.Timeout),
	)
	return w, client
}
