package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lqq",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lqq",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lqq",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Discovery metrics
	FacilityFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lqq",
		Subsystem: "discovery",
		Name:      "facility_fetches_total",
		Help:      "Remote facility fetches by outcome (ok, error, stale)",
	}, []string{"outcome"})

	FacilityFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lqq",
		Subsystem: "discovery",
		Name:      "facility_fetch_duration_seconds",
		Help:      "Latency of remote facility fetches",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	DistanceCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lqq",
		Subsystem: "distance_cache",
		Name:      "hits_total",
		Help:      "Distance lookups served from the cache",
	})

	DistanceCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lqq",
		Subsystem: "distance_cache",
		Name:      "misses_total",
		Help:      "Distance lookups that had to be computed",
	})

	DistanceCacheClears = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lqq",
		Subsystem: "distance_cache",
		Name:      "clears_total",
		Help:      "Times a full distance cache was emptied",
	})

	CameraCommandsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lqq",
		Subsystem: "discovery",
		Name:      "camera_commands_dropped_total",
		Help:      "Camera commands dropped because the map surface was not ready",
	}, []string{"command"})

	LocationAcquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lqq",
		Subsystem: "discovery",
		Name:      "location_acquisitions_total",
		Help:      "Location acquisition attempts by final status",
	}, []string{"status"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lqq",
		Subsystem: "ws",
		Name:      "active_sessions",
		Help:      "Current number of discovery sessions",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lqq",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lqq",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lqq",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lqq",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lqq",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// PoolStat is the subset of pgxpool.Stat used for pool gauges.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// UpdateDBPoolMetrics updates database pool gauges from pool stats.
func UpdateDBPoolMetrics(s PoolStat) {
	DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(s.IdleConns()))
	DBPoolConnsOpen.Set(float64(s.TotalConns()))
}
