// Package bootstrap builds every pipeline service object once from
// configuration and wires them into the orchestrator.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"

	"retail-chat-workers/internal/chat/genai"
	"retail-chat-workers/internal/chat/intent"
	"retail-chat-workers/internal/chat/orchestrator"
	"retail-chat-workers/internal/chat/ratelimit"
	"retail-chat-workers/internal/chat/safety"
	"retail-chat-workers/internal/chat/scoring"
	"retail-chat-workers/internal/chat/search"
	"retail-chat-workers/internal/chat/session"
	"retail-chat-workers/internal/common/config"
	"retail-chat-workers/internal/common/logger"
	"retail-chat-workers/internal/common/observability"
	"retail-chat-workers/internal/common/validation"
)

// Infra carries the connections the caller managed to open. Any of them
// may be nil; the matching component then runs on its fallback tier.
type Infra struct {
	Redis         redis.Cmdable
	Elasticsearch *elasticsearch.Client
	Postgres      *sql.DB
	// Generator overrides the client built from apis.genai.
	Generator genai.Client
}

// Container holds the wired pipeline and the parts main needs to manage.
type Container struct {
	Orchestrator *orchestrator.Orchestrator
	Limiter      *ratelimit.Limiter
	Store        *session.Store
	Gateway      *search.Gateway
	Catalog      *search.Catalog
	Obs          *observability.Observability
}

// Build wires the pipeline. Only configuration errors are returned; an
// unreachable dependency degrades instead.
func Build(ctx context.Context, cfg *config.Config, infra Infra, obs *observability.Observability, log logger.Logger) (*Container, error) {
	filter, err := safety.NewFilter()
	if err != nil {
		return nil, fmt.Errorf("safety filter: %w", err)
	}

	generator := infra.Generator
	if generator == nil {
		generator, err = genai.New(cfg.APIs.GenAI)
		if err != nil {
			return nil, err
		}
	}

	extractor, err := intent.NewExtractor(generator, intent.Config{
		Timeout:     config.GetDuration(cfg.APIs.GenAI.Timeout),
		Temperature: cfg.APIs.GenAI.Temperature,
		MaxTokens:   cfg.APIs.GenAI.MaxTokens,
	}, log)
	if err != nil {
		return nil, err
	}

	catalog := loadCatalog(ctx, cfg.Catalog, infra.Postgres, log)

	var backend search.Backend
	if infra.Elasticsearch != nil {
		backend = search.NewElasticsearchBackend(infra.Elasticsearch, cfg.Database.Elasticsearch.Index)
	} else {
		log.Warn("no search service configured, every search uses the catalog snapshot", nil)
	}
	gateway := search.NewGateway(backend, catalog, search.Config{
		CacheTTL:          config.GetSeconds(cfg.Search.CacheTTL),
		CacheShards:       cfg.Search.CacheShards,
		Concurrency:       cfg.Search.Concurrency,
		OverFetchFactor:   cfg.Search.OverFetchFactor,
		NativePriceFilter: cfg.Search.NativePriceFilter,
		Timeout:           config.GetDuration(cfg.Search.Timeout),
	}, log)

	scorer := scoring.NewScorer(gateway, scoring.Config{
		Weights:               cfg.Scoring.Weights,
		Threshold:             cfg.Scoring.Threshold,
		AlternativePenalty:    cfg.Scoring.AlternativePenalty,
		MaxAlternativeQueries: cfg.Scoring.MaxAlternativeQueries,
		MaxRecommendations:    cfg.Pipeline.MaxRecommendations,
	}, log)

	store := session.NewStore(infra.Redis, session.Config{
		TTL:           config.GetSeconds(cfg.Pipeline.ContextTTL),
		HistoryWindow: cfg.Pipeline.HistoryWindow,
		OpTimeout:     config.GetDuration(cfg.Pipeline.ContextOpTimeout),
		KeyPrefix:     cfg.Pipeline.ContextKeyPrefix,
		MemoryMax:     cfg.Pipeline.ContextMemoryMax,
	}, log)

	limiter := ratelimit.New(ratelimit.Config{
		PerMinute: cfg.RateLimit.PerMinute,
		PerHour:   cfg.RateLimit.PerHour,
	})

	orch, err := orchestrator.New(orchestrator.Deps{
		Validator: validation.NewStructValidator(),
		Safety:    filter,
		Limiter:   limiter,
		Store:     store,
		Extractor: extractor,
		Search:    gateway,
		Scorer:    scorer,
		Generator: generator,
		Catalog:   catalog,
		Audit:     logger.NewAuditLogger(cfg.Logging.AuditPath),
		Obs:       obs,
	}, orchestrator.Config{
		TurnTimeout:        config.GetDuration(cfg.Pipeline.TurnTimeout),
		MaxMessageLength:   cfg.Pipeline.MaxMessageLength,
		MaxRecommendations: cfg.Pipeline.MaxRecommendations,
		SearchMaxResults:   cfg.Search.MaxResults,
		Temperature:        cfg.APIs.GenAI.Temperature,
		MaxTokens:          cfg.APIs.GenAI.MaxTokens,
	}, log)
	if err != nil {
		return nil, err
	}

	return &Container{
		Orchestrator: orch,
		Limiter:      limiter,
		Store:        store,
		Gateway:      gateway,
		Catalog:      catalog,
		Obs:          obs,
	}, nil
}

// loadCatalog reads the snapshot once. A postgres source without a
// connection falls back to SnapshotPath when one is set; a failed load
// leaves an empty catalog so the fallback tier answers with an apology.
func loadCatalog(ctx context.Context, cfg config.CatalogConfig, db *sql.DB, log logger.Logger) *search.Catalog {
	var (
		catalog *search.Catalog
		err     error
	)
	switch {
	case cfg.Source == config.CatalogSourceFile:
		catalog, err = search.LoadCatalogFromFile(cfg.SnapshotPath)
	case db != nil:
		catalog, err = search.LoadCatalogFromDB(ctx, db, cfg.Table)
	default:
		err = fmt.Errorf("catalog source %q has no connection", cfg.Source)
	}
	if err != nil && cfg.Source == config.CatalogSourcePostgres && cfg.SnapshotPath != "" {
		log.Warn("catalog table unavailable, reading snapshot file", map[string]interface{}{
			"path":  cfg.SnapshotPath,
			"error": err.Error(),
		})
		catalog, err = search.LoadCatalogFromFile(cfg.SnapshotPath)
	}
	if err != nil {
		log.Error("catalog snapshot unavailable", map[string]interface{}{
			"source": cfg.Source,
			"error":  err.Error(),
		})
		return search.NewCatalog(nil)
	}

	log.Info("catalog snapshot loaded", map[string]interface{}{
		"source":   cfg.Source,
		"products": catalog.Len(),
	})
	return catalog
}
