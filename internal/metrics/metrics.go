package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CalendarLoads counts finished load cycles by resulting state.
	CalendarLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_calendar_loads_total",
		Help: "Total number of calendar load cycles by resulting state.",
	}, []string{"state"})

	// CalendarFetches counts upstream requests by source (api, feed) and outcome.
	CalendarFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_calendar_fetch_total",
		Help: "Total number of upstream calendar requests.",
	}, []string{"source", "outcome"})

	calendarFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_calendar_fetch_duration_seconds",
		Help:    "Histogram of upstream calendar request latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ObserveFetch records one upstream request that began at start.
func ObserveFetch(source string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	CalendarFetches.WithLabelValues(source, outcome).Inc()
	calendarFetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}

// Middleware records request metrics labelled by chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			// The pattern is only complete once routing has happened.
			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
