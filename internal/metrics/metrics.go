// Package metrics provides Prometheus instrumentation for the war server.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warclan",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "warclan",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TreasuryDebitsTotal counts ledger debits by purchase type and result.
	TreasuryDebitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warclan",
			Name:      "treasury_debits_total",
			Help:      "Total treasury debit attempts by purchase type and result.",
		},
		[]string{"purchase_type", "result"},
	)

	// TreasuryRefundsTotal counts ledger refunds.
	TreasuryRefundsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "warclan",
		Name:      "treasury_refunds_total",
		Help:      "Total treasury refunds applied.",
	})

	// MissilesResolvedTotal counts missile terminal transitions by outcome.
	MissilesResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warclan",
			Name:      "missiles_resolved_total",
			Help:      "Total missiles reaching a terminal status, by outcome.",
		},
		[]string{"outcome"},
	)

	// InterceptionAttemptsTotal counts interception rolls by result.
	InterceptionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warclan",
			Name:      "interception_attempts_total",
			Help:      "Total defense interception rolls by result.",
		},
		[]string{"result"},
	)

	// MissionsResolvedTotal counts spy mission resolutions by outcome.
	MissionsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warclan",
			Name:      "missions_resolved_total",
			Help:      "Total spy missions resolved, by outcome.",
		},
		[]string{"outcome"},
	)

	// VotesResolvedTotal counts vote terminal transitions by outcome.
	VotesResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warclan",
			Name:      "votes_resolved_total",
			Help:      "Total clan votes reaching a terminal status, by outcome.",
		},
		[]string{"outcome"},
	)

	// SweepRunsTotal counts scheduler sweeps by family and result.
	SweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warclan",
			Name:      "sweep_runs_total",
			Help:      "Total scheduler sweep runs by entity family and result.",
		},
		[]string{"family", "result"},
	)

	// SweepDuration observes sweep latency by family.
	SweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "warclan",
			Name:      "sweep_duration_seconds",
			Help:      "Scheduler sweep duration in seconds.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"family"},
	)

	// SweepItemsTotal counts items processed by sweeps, by family and result.
	SweepItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warclan",
			Name:      "sweep_items_total",
			Help:      "Total entities processed by scheduler sweeps.",
		},
		[]string{"family", "result"},
	)

	// ActiveWebSocketClients tracks connected event stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "warclan",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warclan", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warclan", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warclan", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TreasuryDebitsTotal,
		TreasuryRefundsTotal,
		MissilesResolvedTotal,
		InterceptionAttemptsTotal,
		MissionsResolvedTotal,
		VotesResolvedTotal,
		SweepRunsTotal,
		SweepDuration,
		SweepItemsTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// statusBucket groups status codes to keep label cardinality low.
func statusBucket(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// Handler returns the /metrics endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
