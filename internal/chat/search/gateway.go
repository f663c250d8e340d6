// Package search fronts the semantic product search service with a result
// cache, a bound on concurrent outbound calls and a catalog-scan fallback.
package search

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	apperrors "retail-chat-workers/internal/common/errors"
	"retail-chat-workers/internal/common/logger"
	"retail-chat-workers/internal/common/metrics"
	"retail-chat-workers/internal/models"
)

var ErrInvalidMaxResults = errors.New("max_results must be positive")

// Result sources.
const (
	SourceService = "service"
	SourceCache   = "cache"
	SourceCatalog = "catalog"
)

// Backend is the semantic search service. An empty result is not an error.
type Backend interface {
	Search(ctx context.Context, query string, filter *models.SearchFilter, limit int) ([]models.ProductHit, error)
}

// Result is either a service answer or, when Fault is set, a catalog scan
// taken because the service could not answer.
type Result struct {
	Hits          []models.ProductHit
	Source        string
	LowConfidence bool
	Fault         error
}

// Degraded reports whether the catalog served instead of the service.
func (r Result) Degraded() bool {
	return r.Fault != nil
}

type Config struct {
	CacheTTL          time.Duration
	CacheShards       int
	Concurrency       int
	OverFetchFactor   int
	NativePriceFilter bool
	Timeout           time.Duration
}

type Gateway struct {
	backend Backend
	catalog *Catalog
	shards  []*cache.Cache
	sem     *semaphore.Weighted
	flight  singleflight.Group
	config  Config
	logger  logger.Logger
}

// NewGateway builds a gateway. backend may be nil, in which case every
// search is served from the catalog.
func NewGateway(backend Backend, catalog *Catalog, cfg Config, log logger.Logger) *Gateway {
	if cfg.CacheShards <= 0 {
		cfg.CacheShards = 16
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.OverFetchFactor <= 0 {
		cfg.OverFetchFactor = 3
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	shards := make([]*cache.Cache, cfg.CacheShards)
	for i := range shards {
		shards[i] = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}

	return &Gateway{
		backend: backend,
		catalog: catalog,
		shards:  shards,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		config:  cfg,
		logger:  log.WithFields(map[string]interface{}{"component": "search"}),
	}
}

// Catalog exposes the snapshot used for fallback scans.
func (g *Gateway) Catalog() *Catalog {
	return g.catalog
}

// Search returns up to maxResults hits. Only invalid arguments produce an
// error; service failures come back as a degraded Result.
func (g *Gateway) Search(ctx context.Context, query string, filter *models.SearchFilter, maxResults int) (Result, error) {
	if maxResults <= 0 {
		return Result{}, apperrors.NewInvalidArgumentError(ErrInvalidMaxResults)
	}
	if err := filter.Validate(); err != nil {
		return Result{}, apperrors.NewInvalidArgumentError(err)
	}

	key := cacheKey(query, filter, maxResults)
	shard := g.shard(key)
	if v, ok := shard.Get(key); ok {
		metrics.SearchCacheRequests.WithLabelValues("hit").Inc()
		return Result{Hits: copyHits(v.([]models.ProductHit)), Source: SourceCache}, nil
	}
	metrics.SearchCacheRequests.WithLabelValues("miss").Inc()

	if g.backend == nil {
		return g.fallback(query, filter, maxResults, errors.New("no search backend configured")), nil
	}

	// identical concurrent misses share one outbound call
	ch := g.flight.DoChan(key, func() (interface{}, error) {
		hits, err := g.fetch(context.WithoutCancel(ctx), query, filter, maxResults)
		if err != nil {
			return nil, err
		}
		shard.Set(key, hits, cache.DefaultExpiration)
		return hits, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return g.fallback(query, filter, maxResults, res.Err), nil
		}
		return Result{Hits: copyHits(res.Val.([]models.ProductHit)), Source: SourceService}, nil
	case <-ctx.Done():
		return g.fallback(query, filter, maxResults, ctx.Err()), nil
	}
}

func (g *Gateway) fetch(ctx context.Context, query string, filter *models.SearchFilter, maxResults int) ([]models.ProductHit, error) {
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	// callers queue here rather than fail
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for search slot: %w", err)
	}
	defer g.sem.Release(1)

	metrics.SearchOutboundInflight.Inc()
	defer metrics.SearchOutboundInflight.Dec()

	limit := maxResults
	remote := filter
	localPrice := filter.HasPriceRange() && !g.config.NativePriceFilter
	if localPrice {
		limit = maxResults * g.config.OverFetchFactor
		stripped := *filter
		stripped.PriceMin, stripped.PriceMax = nil, nil
		remote = &stripped
	}

	hits, err := g.backend.Search(ctx, query, remote, limit)
	if err != nil {
		metrics.SearchOutbound.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.SearchOutbound.WithLabelValues("ok").Inc()

	if localPrice {
		kept := hits[:0:0]
		for _, h := range hits {
			if filter.MatchesPrice(h.Price) {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits, nil
}

func (g *Gateway) fallback(query string, filter *models.SearchFilter, maxResults int, cause error) Result {
	metrics.ChatFallbacks.WithLabelValues("search").Inc()
	hits := g.catalog.Scan(query, filter, maxResults)
	g.logger.Warn("search service unavailable, scanned catalog", map[string]interface{}{
		"error":       cause.Error(),
		"catalogHits": len(hits),
	})
	return Result{
		Hits:          hits,
		Source:        SourceCatalog,
		LowConfidence: true,
		Fault:         apperrors.NewSearchUnavailableError(cause),
	}
}

func (g *Gateway) shard(key string) *cache.Cache {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return g.shards[h.Sum32()%uint32(len(g.shards))]
}

func cacheKey(query string, filter *models.SearchFilter, maxResults int) string {
	var b strings.Builder
	b.WriteString(strings.Join(strings.Fields(strings.ToLower(query)), " "))
	fmt.Fprintf(&b, "|n=%d", maxResults)
	if filter != nil {
		if filter.PriceMin != nil {
			fmt.Fprintf(&b, "|min=%.2f", *filter.PriceMin)
		}
		if filter.PriceMax != nil {
			fmt.Fprintf(&b, "|max=%.2f", *filter.PriceMax)
		}
		if filter.Category != "" {
			b.WriteString("|cat=" + strings.ToLower(filter.Category))
		}
		if filter.Color != "" {
			b.WriteString("|color=" + strings.ToLower(filter.Color))
		}
	}
	return b.String()
}

func copyHits(hits []models.ProductHit) []models.ProductHit {
	out := make([]models.ProductHit, len(hits))
	copy(out, hits)
	return out
}
