package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "retail-chat-workers/internal/common/errors"
	"retail-chat-workers/internal/common/logger"
	"retail-chat-workers/internal/models"
)

// ==========================
// Fake search service
// ==========================

type fakeBackend struct {
	mu       sync.Mutex
	hits     []models.ProductHit
	err      error
	delay    time.Duration
	calls    int32
	inflight int32
	peak     int32
	lastLim  int
	lastFil  *models.SearchFilter
}

func (f *fakeBackend) Search(ctx context.Context, query string, filter *models.SearchFilter, limit int) ([]models.ProductHit, error) {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}

	f.mu.Lock()
	f.lastLim = limit
	f.lastFil = filter
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > limit {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func createTestConfig() Config {
	return Config{
		CacheTTL:        time.Minute,
		CacheShards:     4,
		Concurrency:     5,
		OverFetchFactor: 3,
		Timeout:         time.Second,
	}
}

func testCatalog() *Catalog {
	return NewCatalog([]models.ProductHit{
		{ID: "c1", Name: "Classic Red Roses", Price: 450, Category: "bouquet", Flowers: []string{"rose"}, Colors: []string{"red"}, Available: true},
		{ID: "c2", Name: "Sunny Sunflowers", Price: 300, Category: "bouquet", Flowers: []string{"sunflower"}, Colors: []string{"yellow"}, Available: true},
		{ID: "c3", Name: "White Lily Vase", Price: 900, Category: "arrangement", Flowers: []string{"lily"}, Colors: []string{"white"}, Available: false},
	})
}

func hitsWithPrices(prices ...float64) []models.ProductHit {
	out := make([]models.ProductHit, len(prices))
	for i, p := range prices {
		out[i] = models.ProductHit{ID: fmt.Sprintf("p%d", i), Name: "Rose box", Price: p, Available: true, SimilarityScore: 0.9}
	}
	return out
}

func fptr(v float64) *float64 { return &v }

// ==========================
// Tests
// ==========================

func TestGateway_InvalidArguments(t *testing.T) {
	g := NewGateway(&fakeBackend{}, nil, createTestConfig(), logger.NewTestLogger(t))

	_, err := g.Search(context.Background(), "roses", nil, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
	assert.ErrorIs(t, err, ErrInvalidMaxResults)

	_, err = g.Search(context.Background(), "roses", &models.SearchFilter{PriceMin: fptr(900), PriceMax: fptr(100)}, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvertedPriceRange)
}

func TestGateway_CachesIdenticalQueries(t *testing.T) {
	backend := &fakeBackend{hits: hitsWithPrices(100, 200)}
	g := NewGateway(backend, nil, createTestConfig(), logger.NewTestLogger(t))
	ctx := context.Background()

	first, err := g.Search(ctx, "Red  Roses", nil, 5)
	require.NoError(t, err)
	second, err := g.Search(ctx, "red roses", nil, 5)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&backend.calls))
	assert.Equal(t, SourceService, first.Source)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, first.Hits, second.Hits)

	// a different limit is a different key
	_, err = g.Search(ctx, "red roses", nil, 4)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&backend.calls))
}

func TestGateway_CacheExpires(t *testing.T) {
	backend := &fakeBackend{hits: hitsWithPrices(100)}
	cfg := createTestConfig()
	cfg.CacheTTL = 50 * time.Millisecond
	g := NewGateway(backend, nil, cfg, logger.NewTestLogger(t))

	_, _ = g.Search(context.Background(), "tulips", nil, 3)
	time.Sleep(80 * time.Millisecond)
	res, err := g.Search(context.Background(), "tulips", nil, 3)

	require.NoError(t, err)
	assert.Equal(t, SourceService, res.Source)
	assert.Equal(t, int32(2), atomic.LoadInt32(&backend.calls))
}

func TestGateway_CachedHitsAreCopies(t *testing.T) {
	g := NewGateway(&fakeBackend{hits: hitsWithPrices(100)}, nil, createTestConfig(), logger.NewTestLogger(t))

	first, _ := g.Search(context.Background(), "roses", nil, 3)
	first.Hits[0].Name = "mutated"
	second, _ := g.Search(context.Background(), "roses", nil, 3)

	assert.Equal(t, "Rose box", second.Hits[0].Name)
}

func TestGateway_BoundsConcurrentOutboundCalls(t *testing.T) {
	backend := &fakeBackend{hits: hitsWithPrices(100), delay: 40 * time.Millisecond}
	cfg := createTestConfig()
	cfg.Concurrency = 2
	cfg.Timeout = 2 * time.Second
	g := NewGateway(backend, nil, cfg, logger.NewTestLogger(t))

	const callers = 7
	var wg sync.WaitGroup
	results := make([]Result, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = g.Search(context.Background(), fmt.Sprintf("query %d", i), nil, 3)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&backend.peak), int32(2))
	assert.Equal(t, int32(callers), atomic.LoadInt32(&backend.calls))
	for _, r := range results {
		assert.Equal(t, SourceService, r.Source, "excess callers wait instead of failing")
	}
}

func TestGateway_CoalescesConcurrentIdenticalQueries(t *testing.T) {
	backend := &fakeBackend{hits: hitsWithPrices(100), delay: 50 * time.Millisecond}
	g := NewGateway(backend, nil, createTestConfig(), logger.NewTestLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := g.Search(context.Background(), "peonies", nil, 3)
			assert.NoError(t, err)
			assert.Len(t, res.Hits, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&backend.calls))
}

func TestGateway_OverFetchesForPriceFilter(t *testing.T) {
	backend := &fakeBackend{hits: hitsWithPrices(900, 450, 1200, 300, 700, 480, 200, 650, 100)}
	g := NewGateway(backend, nil, createTestConfig(), logger.NewTestLogger(t))

	filter := &models.SearchFilter{PriceMax: fptr(500), Color: "red"}
	res, err := g.Search(context.Background(), "roses", filter, 3)
	require.NoError(t, err)

	assert.Equal(t, 9, backend.lastLim)
	require.NotNil(t, backend.lastFil)
	assert.Nil(t, backend.lastFil.PriceMax)
	assert.Equal(t, "red", backend.lastFil.Color)

	require.Len(t, res.Hits, 3)
	for _, h := range res.Hits {
		assert.LessOrEqual(t, h.Price, 500.0)
	}
	assert.Equal(t, []float64{450, 300, 480}, []float64{res.Hits[0].Price, res.Hits[1].Price, res.Hits[2].Price})
	assert.Equal(t, fptr(500), filter.PriceMax, "caller filter is untouched")
}

func TestGateway_NativePriceFilter(t *testing.T) {
	backend := &fakeBackend{hits: hitsWithPrices(100, 200, 300, 400)}
	cfg := createTestConfig()
	cfg.NativePriceFilter = true
	g := NewGateway(backend, nil, cfg, logger.NewTestLogger(t))

	_, err := g.Search(context.Background(), "roses", &models.SearchFilter{PriceMax: fptr(500)}, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, backend.lastLim)
	assert.Equal(t, fptr(500), backend.lastFil.PriceMax)
}

func TestGateway_EmptyResultIsNotAFault(t *testing.T) {
	g := NewGateway(&fakeBackend{}, testCatalog(), createTestConfig(), logger.NewTestLogger(t))

	res, err := g.Search(context.Background(), "cactus", nil, 3)
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
	assert.False(t, res.Degraded())
	assert.Equal(t, SourceService, res.Source)
}

func TestGateway_FallsBackToCatalog(t *testing.T) {
	tests := []struct {
		name    string
		backend Backend
		ctx     func() (context.Context, context.CancelFunc)
	}{
		{"service error", &fakeBackend{err: errors.New("connection refused")}, nil},
		{"no backend", nil, nil},
		{"caller deadline", &fakeBackend{delay: time.Second}, func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(context.Background(), 30*time.Millisecond)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway(tt.backend, testCatalog(), createTestConfig(), logger.NewTestLogger(t))
			ctx, cancel := context.Background(), context.CancelFunc(func() {})
			if tt.ctx != nil {
				ctx, cancel = tt.ctx()
			}
			defer cancel()

			start := time.Now()
			res, err := g.Search(ctx, "red roses under 500", nil, 3)
			require.NoError(t, err)

			assert.Less(t, time.Since(start), 500*time.Millisecond)
			assert.True(t, res.Degraded())
			assert.True(t, res.LowConfidence)
			assert.Equal(t, SourceCatalog, res.Source)
			assert.True(t, apperrors.IsCode(res.Fault, apperrors.ErrCodeSearchUnavailable))
			require.NotEmpty(t, res.Hits)
			assert.Equal(t, "c1", res.Hits[0].ID)
		})
	}
}

func TestGateway_FallbackIsNotCached(t *testing.T) {
	backend := &fakeBackend{err: errors.New("down")}
	g := NewGateway(backend, testCatalog(), createTestConfig(), logger.NewTestLogger(t))

	_, _ = g.Search(context.Background(), "roses", nil, 3)
	backend.err = nil
	backend.hits = hitsWithPrices(100)
	res, err := g.Search(context.Background(), "roses", nil, 3)

	require.NoError(t, err)
	assert.Equal(t, SourceService, res.Source)
	assert.Equal(t, int32(2), atomic.LoadInt32(&backend.calls))
}

func TestCacheKey_Normalization(t *testing.T) {
	a := cacheKey("  Red   ROSES ", &models.SearchFilter{PriceMax: fptr(500), Color: "Red"}, 3)
	b := cacheKey("red roses", &models.SearchFilter{PriceMax: fptr(500.0), Color: "red"}, 3)
	c := cacheKey("red roses", &models.SearchFilter{PriceMin: fptr(500)}, 3)

	assert.Equal(t, a, b)
	assert.NotEqual(t, b, c)
}
