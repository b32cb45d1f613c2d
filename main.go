package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/stampede"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/cachestore"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/coordinator"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/health"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/isbn"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/logging"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/metrics"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/registry"
)

// cli contains our command-line flags.
type cli struct {
	Serve     server    `cmd:"" help:"Run an HTTP server."`
	WarmCache warmCache `cmd:"" help:"Warm the search-result cache for a list of ISBNs."`
}

type server struct {
	logconfig

	Port      int    `default:"8788" help:"Port to serve traffic on."`
	ConfigDir string `required:"" help:"Directory of library-system YAML configs."`
	RPM       int    `default:"60" help:"Maximum upstream requests per minute, shared by all systems."`
}

type warmCache struct {
	logconfig

	ConfigDir string   `required:"" help:"Directory of library-system YAML configs."`
	ISBNs     []string `arg:"" help:"ISBNs to warm the cache for."`
}

type logconfig struct {
	Verbose bool `help:"increase log verbosity"`
}

func (c *logconfig) Run() error {
	logging.SetVerbose(c.Verbose)
	return nil
}

// registrySource adapts *registry.Registry to coordinator.SystemSource.
type registrySource struct{ reg *registry.Registry }

func (s registrySource) EnabledSystems() []coordinator.System {
	ids := s.reg.EnabledSystemIDs()
	out := make([]coordinator.System, 0, len(ids))
	for _, id := range ids {
		name := id
		if sys, ok := s.reg.System(id); ok {
			name = sys.Name
		}
		out = append(out, coordinator.System{ID: id, Name: name, Adapters: s.reg.Adapters(id)})
	}
	return out
}

// wired bundles everything build constructs, shared by serve and warm-cache.
type wired struct {
	ctrl    *coordinator.Coordinator
	reg     *registry.Registry
	health  *health.Tracker
	promReg *prometheus.Registry
}

func build(configDir string, rpm int) (*wired, error) {
	client := newThrottledClient(float64(rpm) / 60)

	healthCache, err := cachestore.NewRistrettoHealthCache(1e4, 1<<24)
	if err != nil {
		return nil, fmt.Errorf("building health cache: %w", err)
	}
	ht := health.NewWithStore(healthCache)

	reg, failures, err := registry.LoadSystems(configDir, client, os.LookupEnv, buildAdapter)
	if err != nil {
		return nil, fmt.Errorf("loading library systems: %w", err)
	}
	for name, ferr := range failures {
		slog.Warn("skipping library system", "name", name, "err", ferr)
	}

	searchCache, err := cachestore.NewRistrettoSearchCache(1e7, 1<<28, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("building search cache: %w", err)
	}

	promReg := metrics.New()
	cm := metrics.NewCoordinatorMetrics(promReg)
	bm := metrics.NewBreakerMetrics(promReg)
	cacheM := metrics.NewCacheMetrics(promReg)

	ctrl := coordinator.New(registrySource{reg}, searchCache, ht, cm, bm, cacheM, coordinator.DefaultConfig())

	return &wired{ctrl: ctrl, reg: reg, health: ht, promReg: promReg}, nil
}

func (s *server) Run() error {
	_ = s.logconfig.Run()

	w, err := build(s.ConfigDir, s.RPM)
	if err != nil {
		return err
	}
	promReg := w.promReg

	h := newHandler(w.ctrl, w.reg, w.health)
	metricsHandler := promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
	mux := newMux(h, metricsHandler)

	mux = stampede.Handler(1024, 0)(mux)       // Coalesce requests to the same resource.
	mux = middleware.RequestSize(1 << 20)(mux) // Limit request bodies.
	mux = middleware.RedirectSlashes(mux)      // Normalize paths for caching.
	mux = requestlogger{}.Wrap(mux)            // Log requests.
	mux = middleware.RequestID(mux)            // Include a request ID header.
	mux = middleware.Recoverer(mux)            // Recover from panics.
	mux = metrics.Instrument(promReg, mux)     // Record request latency/status.

	addr := fmt.Sprintf(":%d", s.Port)
	httpServer := &http.Server{
		Handler:  mux,
		Addr:     addr,
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	}

	slog.Info("listening on " + addr)
	return httpServer.ListenAndServe()
}

func (w *warmCache) Run() error {
	_ = w.logconfig.Run()
	ctx := context.Background()

	built, err := build(w.ConfigDir, 60)
	if err != nil {
		return err
	}

	for _, raw := range w.ISBNs {
		parsed := isbn.Parse(raw)
		if !parsed.OK {
			log(ctx).Warn("skipping invalid isbn", "isbn", raw, "reason", parsed.Reason)
			continue
		}

		searchID := uuid.NewString()
		result, err := built.ctrl.Search(ctx, parsed.ISBN13, searchID)
		if err != nil {
			log(ctx).Error("warm failed", "isbn", raw, "err", err)
			continue
		}
		log(ctx).Info("warmed cache", "isbn", raw, "holdings", len(result.Holdings))
	}

	return nil
}

func main() {
	kctx := kong.Parse(&cli{})
	err := kctx.Run()
	if err != nil {
		log(context.Background()).Error("fatal", "err", err)
		os.Exit(1)
	}
}

func init() {
	// Limit our memory to 90% of the cgroup (or system) memory limit. This
	// affects cache sizes.
	_, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithLogger(slog.Default()),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)
	if err != nil {
		panic(err)
	}
}

// log returns the process logger, enriched with a searchId field if ctx
// carries one via logging.WithSearchID.
func log(ctx context.Context) *slog.Logger {
	return logging.Log(ctx)
}

// requestlogger logs each request's method, path, status, and duration.
type requestlogger struct{}

func (requestlogger) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log(r.Context()).Info("request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
	})
}
