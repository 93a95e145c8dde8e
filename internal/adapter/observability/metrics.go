package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of completion API requests by outcome",
		},
		[]string{"operation", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Completion API request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	TipTasksEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tip_tasks_enqueued_total",
			Help: "Total number of tip-generation tasks enqueued",
		},
	)
	TipRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tip_runs_total",
			Help: "Total number of tip-generation runs by outcome",
		},
		[]string{"outcome"},
	)
	TipsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tips_written_total",
			Help: "Total number of AiTip rows written by source",
		},
		[]string{"source"},
	)
	DocumentFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_fetch_total",
			Help: "Total number of document fetch attempts by outcome",
		},
		[]string{"outcome"},
	)
	FinalizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finalizations_total",
			Help: "Total number of evaluation finalizations by status tier",
		},
		[]string{"status"},
	)
)

// InitMetrics registers all collectors with the default registry. Call once
// per process.
func InitMetrics() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AIRequestsTotal,
		AIRequestDuration,
		TipTasksEnqueuedTotal,
		TipRunsTotal,
		TipsWrittenTotal,
		DocumentFetchTotal,
		FinalizationsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and durations keyed by the chi
// route pattern.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
