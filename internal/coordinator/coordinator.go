// Package coordinator implements the search orchestration described in
// spec §4.9: cache probe, per-system circuit-breaker gate, errgroup-based
// concurrent fan-out bounded by a per-host limiter and retry engine, nested
// timeouts, outcome collection, aggregation, and cache population.
package coordinator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/adapter"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/aggregate"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/breaker"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/health"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/limiter"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/logging"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/metrics"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/retry"
)

// SearchError is one per-system failure recorded on a SearchResult.
type SearchError struct {
	SystemID   string
	SystemName string
	Protocol   string
	ErrorType  string
	Message    string
	Timestamp  time.Time
}

// SearchResult is the coordinator's output for one search, per spec §3.
type SearchResult struct {
	SearchID         string
	ISBN             string
	NormalizedISBN13 string
	StartedAt        time.Time
	CompletedAt      time.Time
	Holdings         []adapter.Holding
	Errors           []SearchError
	SystemsSearched  int
	SystemsSucceeded int
	SystemsFailed    int
	SystemsTimedOut  int
	IsPartial        bool
	FromCache        bool
}

// System is the subset of registry.LibrarySystem the coordinator needs: an
// id and the adapters registered for it. Kept narrow so this package
// doesn't import internal/registry directly.
type System struct {
	ID       string
	Name     string
	Adapters []adapter.Adapter
}

// SystemSource supplies the enabled systems to search. Implemented by
// *registry.Registry via a small shim (registrySource) in main.go.
type SystemSource interface {
	EnabledSystems() []System
}

// Cache is the narrow search-result cache contract the coordinator needs.
type Cache interface {
	Get(ctx context.Context, isbn13 string, out any) (bool, error)
	Set(ctx context.Context, isbn13 string, value any) error
}

// Config bounds the coordinator's timeouts and concurrency.
type Config struct {
	PerSystemTimeout time.Duration
	GlobalTimeout    time.Duration
	MaxPerHost       int64
}

// DefaultConfig matches spec.md's suggested defaults.
func DefaultConfig() Config {
	return Config{
		PerSystemTimeout: 8 * time.Second,
		GlobalTimeout:    15 * time.Second,
		MaxPerHost:       4,
	}
}

// Coordinator ties together the registry, per-system circuit breakers, the
// per-host limiter, the retry engine, the health tracker, the cache, and
// metrics to implement Search.
type Coordinator struct {
	systems SystemSource
	cache   Cache
	health  *health.Tracker
	metrics *metrics.CoordinatorMetrics
	breakerMetrics *metrics.BreakerMetrics
	cacheMetrics   *metrics.CacheMetrics
	cfg     Config

	limiter *limiter.Limiter

	mu       sync.Mutex
	breakers map[string]*breaker.Breaker
}

// New constructs a Coordinator. cache, ht, cm, bm and cacheM may be nil in
// tests.
func New(systems SystemSource, cache Cache, ht *health.Tracker, cm *metrics.CoordinatorMetrics, bm *metrics.BreakerMetrics, cacheM *metrics.CacheMetrics, cfg Config) *Coordinator {
	return &Coordinator{
		systems:        systems,
		cache:          cache,
		health:         ht,
		metrics:        cm,
		breakerMetrics: bm,
		cacheMetrics:   cacheM,
		cfg:            cfg,
		limiter:        limiter.New(cfg.MaxPerHost),
		breakers:       map[string]*breaker.Breaker{},
	}
}

func (c *Coordinator) breakerFor(systemID string) *breaker.Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.breakers[systemID]
	if !ok {
		b = breaker.New()
		c.breakers[systemID] = b
	}
	return b
}

type taskOutcome struct {
	systemID   string
	systemName string
	protocol   string
	holdings   []adapter.Holding
	err        error
	timedOut   bool
	finishedAt time.Time
}

// Search runs the full coordinator pipeline for isbn13 (already normalized
// and validated by the caller) under searchID.
func (c *Coordinator) Search(ctx context.Context, isbn13, searchID string) (SearchResult, error) {
	start := time.Now()
	ctx = logging.WithSearchID(ctx, searchID)

	var cached SearchResult
	if c.cache != nil {
		hit, err := c.cache.Get(ctx, isbn13, &cached)
		if err == nil && hit {
			if c.cacheMetrics != nil {
				c.cacheMetrics.HitInc()
			}
			cached.SearchID = searchID
			cached.FromCache = true
			if c.metrics != nil {
				c.metrics.SearchCompleted("from_cache", time.Since(start))
			}
			return cached, nil
		}
		if c.cacheMetrics != nil {
			c.cacheMetrics.MissInc()
		}
	}

	systems := c.systems.EnabledSystems()

	globalCtx, cancel := context.WithTimeout(ctx, c.cfg.GlobalTimeout)
	defer cancel()

	outcomes := make([]taskOutcome, 0, len(systems))
	var outcomesMu sync.Mutex
	skipped := 0

	g, gctx := errgroup.WithContext(globalCtx)
	for _, sys := range systems {
		sys := sys
		a := primaryAdapter(sys)
		if a == nil {
			continue
		}

		b := c.breakerFor(sys.ID)
		before := b.State()
		open := b.IsOpen()
		if after := b.State(); after != before && c.breakerMetrics != nil {
			c.breakerMetrics.Transition(sys.ID, string(after))
		}
		if open {
			skipped++
			if c.metrics != nil {
				c.metrics.SystemOutcome(sys.ID, a.Protocol(), "circuit_open")
			}
			continue
		}

		g.Go(func() error {
			outcome := c.searchSystem(gctx, sys.ID, sys.Name, a, isbn13)
			outcomesMu.Lock()
			outcomes = append(outcomes, outcome)
			outcomesMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var holdings []adapter.Holding
	var errs []SearchError
	succeeded, failed, timedOut := 0, 0, 0

	for _, o := range outcomes {
		switch {
		case o.err == nil:
			succeeded++
			holdings = append(holdings, o.holdings...)
		case o.timedOut:
			timedOut++
			errs = append(errs, SearchError{
				SystemID: o.systemID, SystemName: o.systemName, Protocol: o.protocol,
				ErrorType: "timeout", Message: o.err.Error(), Timestamp: o.finishedAt,
			})
		default:
			failed++
			errs = append(errs, SearchError{
				SystemID: o.systemID, SystemName: o.systemName, Protocol: o.protocol,
				ErrorType: string(adapter.TypeOf(o.err)), Message: o.err.Error(), Timestamp: o.finishedAt,
			})
		}
	}

	agg := aggregate.Aggregate(holdings)

	result := SearchResult{
		SearchID:         searchID,
		NormalizedISBN13: isbn13,
		StartedAt:        start,
		CompletedAt:      time.Now(),
		Holdings:         agg.Holdings,
		Errors:           errs,
		SystemsSearched:  len(systems),
		SystemsSucceeded: succeeded,
		SystemsFailed:    failed + skipped,
		SystemsTimedOut:  timedOut,
		IsPartial:        failed > 0 || timedOut > 0 || skipped > 0,
		FromCache:        false,
	}

	if c.cache != nil {
		_ = c.cache.Set(ctx, isbn13, result)
	}

	outcomeLabel := "complete"
	if result.IsPartial {
		outcomeLabel = "partial"
	}
	if c.metrics != nil {
		c.metrics.SearchCompleted(outcomeLabel, time.Since(start))
	}

	return result, nil
}

func primaryAdapter(sys System) adapter.Adapter {
	if len(sys.Adapters) == 0 {
		return nil
	}
	return sys.Adapters[0]
}

// searchSystem runs one system's search under its per-host limiter slot and
// the retry engine, bounded by the per-system timeout, recording breaker and
// health outcomes.
func (c *Coordinator) searchSystem(ctx context.Context, systemID, systemName string, a adapter.Adapter, isbn13 string) taskOutcome {
	sysCtx, cancel := context.WithTimeout(ctx, c.cfg.PerSystemTimeout)
	defer cancel()

	b := c.breakerFor(systemID)
	start := time.Now()

	policy := retry.DefaultPolicy(adapter.Retryable)
	outcome, err := limiter.Run(sysCtx, c.limiter, systemID, func() (adapter.SearchOutcome, error) {
		return retry.Do(sysCtx, policy, func(rctx context.Context) (adapter.SearchOutcome, error) {
			return a.Search(rctx, isbn13)
		})
	})
	elapsed := time.Since(start)
	finishedAt := time.Now()

	to := taskOutcome{systemID: systemID, systemName: systemName, protocol: a.Protocol(), finishedAt: finishedAt}

	if err != nil {
		classified := adapter.Classify(err)
		timedOut := adapter.TypeOf(classified) == adapter.ErrorTypeTimeout
		to.err = classified
		to.timedOut = timedOut

		beforeState := b.State()
		b.RecordFailure()
		if after := b.State(); after != beforeState && c.breakerMetrics != nil {
			c.breakerMetrics.Transition(systemID, string(after))
		}
		if c.health != nil {
			c.health.RecordFailure(systemID, elapsed, finishedAt, classified.Error())
		}

		label := string(adapter.TypeOf(classified))
		if timedOut {
			label = "timeout"
		}
		if c.metrics != nil {
			c.metrics.SystemOutcome(systemID, a.Protocol(), label)
		}
		return to
	}

	to.holdings = outcome.Holdings
	beforeSuccess := b.State()
	b.RecordSuccess()
	if after := b.State(); after != beforeSuccess && c.breakerMetrics != nil {
		c.breakerMetrics.Transition(systemID, string(after))
	}
	if c.health != nil {
		c.health.RecordSuccess(systemID, elapsed, finishedAt)
	}
	if c.metrics != nil {
		c.metrics.SystemOutcome(systemID, a.Protocol(), "success")
	}
	return to
}
