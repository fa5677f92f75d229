// Package metrics exposes Prometheus counters for the unit engine and the
// HTTP layer on a private registry.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"unitrack/internal/core/apperror"
	"unitrack/internal/domain/units"
	"unitrack/internal/infrastructure/http/v1/handlers"
)

const namespace = "unitrack"

// Metrics holds the collectors. Create one per process.
type Metrics struct {
	registry *prometheus.Registry

	unitsCreated     prometheus.Counter
	unitsDistributed prometheus.Counter
	operations       *prometheus.CounterVec
	degraded         prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		unitsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_created_total",
			Help:      "Units materialized from received stock.",
		}),
		unitsDistributed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_distributed_total",
			Help:      "Quantity taken out by FIFO distribution.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_operations_total",
			Help:      "Engine calls by operation and outcome code.",
		}, []string{"operation", "outcome"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_allocations_total",
			Help:      "Batch allocations that fell back to a colliding prefix or a clock sequence.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.unitsCreated,
		m.unitsDistributed,
		m.operations,
		m.degraded,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency by route pattern, so
// path parameters do not explode the label set.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Code
	}
	return apperror.CodeInternal
}

// InstrumentEngine wraps engine so creations and distributions are counted.
// Replayed calls count as operations but not as moved stock.
func (m *Metrics) InstrumentEngine(engine handlers.UnitEngine) handlers.UnitEngine {
	return &instrumentedEngine{UnitEngine: engine, m: m}
}

type instrumentedEngine struct {
	handlers.UnitEngine
	m *Metrics
}

func (e *instrumentedEngine) CreateUnits(ctx context.Context, data units.ProductData, facilityID, userID string) (*units.CreateResult, error) {
	res, err := e.UnitEngine.CreateUnits(ctx, data, facilityID, userID)
	e.m.operations.WithLabelValues("create_units", outcome(err)).Inc()
	if err == nil && !res.Replayed {
		e.m.unitsCreated.Add(float64(len(res.Units)))
		if res.Batch.Degraded {
			e.m.degraded.Inc()
		}
	}
	return res, err
}

func (e *instrumentedEngine) Distribute(ctx context.Context, req units.DistributionRequest) (*units.DistributionResult, error) {
	res, err := e.UnitEngine.Distribute(ctx, req)
	e.m.operations.WithLabelValues("distribute", outcome(err)).Inc()
	if err == nil && !res.Replayed {
		e.m.unitsDistributed.Add(float64(res.Distributed))
	}
	return res, err
}

func (e *instrumentedEngine) ChangeStatus(ctx context.Context, req units.ChangeStatusRequest) (*units.Unit, error) {
	u, err := e.UnitEngine.ChangeStatus(ctx, req)
	e.m.operations.WithLabelValues("change_status", outcome(err)).Inc()
	return u, err
}
