package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors holds the Prometheus instruments of the service. Each instance
// owns its registry so tests can create as many as they like.
type Collectors struct {
	registry *prometheus.Registry

	solves          *prometheus.CounterVec
	solveDuration   *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	plansPerRun     prometheus.Histogram
	runDuration     prometheus.Histogram
	llmRequests     *prometheus.CounterVec
	llmTokens       *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	ingestedItems   *prometheus.CounterVec
	bundleCacheHits *prometheus.CounterVec
}

// NewCollectors registers every instrument on a fresh registry, together
// with the Go runtime and process collectors.
func NewCollectors() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collectors{
		registry: reg,
		solves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fuelstack_solves_total",
			Help: "MIP solves by resulting status.",
		}, []string{"status"}),
		solveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fuelstack_solve_duration_seconds",
			Help:    "Wall-clock time of a single MIP solve.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"status"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fuelstack_optimization_runs_total",
			Help: "Optimization runs by stop reason.",
		}, []string{"stop_reason"}),
		plansPerRun: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fuelstack_plans_per_run",
			Help:    "Number of plans returned per run.",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fuelstack_run_duration_seconds",
			Help:    "Wall-clock time of an optimization run.",
			Buckets: prometheus.ExponentialBuckets(0.005, 3, 8),
		}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fuelstack_llm_requests_total",
			Help: "Language model requests by agent and outcome.",
		}, []string{"agent", "outcome"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fuelstack_llm_tokens_total",
			Help: "Language model tokens by agent and kind.",
		}, []string{"agent", "kind"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fuelstack_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fuelstack_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		ingestedItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fuelstack_ingested_items_total",
			Help: "Candidate items stored by ingestion, by tier.",
		}, []string{"tier"}),
		bundleCacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fuelstack_bundle_cache_lookups_total",
			Help: "Bundle cache lookups by result.",
		}, []string{"result"}),
	}
}

// Registry exposes the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveSolve records one MIP solve.
func (c *Collectors) ObserveSolve(status string, elapsed time.Duration) {
	c.solves.WithLabelValues(status).Inc()
	c.solveDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveRun records the end of an optimization run.
func (c *Collectors) ObserveRun(stopReason string, plans int, elapsed time.Duration) {
	c.runs.WithLabelValues(stopReason).Inc()
	c.plansPerRun.Observe(float64(plans))
	c.runDuration.Observe(elapsed.Seconds())
}

// ObserveLLM records a language model call.
func (c *Collectors) ObserveLLM(agent string, promptTokens, completionTokens int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.llmRequests.WithLabelValues(agent, outcome).Inc()
	c.llmTokens.WithLabelValues(agent, "prompt").Add(float64(promptTokens))
	c.llmTokens.WithLabelValues(agent, "completion").Add(float64(completionTokens))
}

// ObserveIngested counts stored candidate items by tier name.
func (c *Collectors) ObserveIngested(tier string, n int) {
	c.ingestedItems.WithLabelValues(tier).Add(float64(n))
}

// ObserveBundleCache counts a cache hit or miss.
func (c *Collectors) ObserveBundleCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.bundleCacheHits.WithLabelValues(result).Inc()
}

// Middleware instruments HTTP handlers mounted on a chi router, labelling
// by route pattern rather than raw path.
func (c *Collectors) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
