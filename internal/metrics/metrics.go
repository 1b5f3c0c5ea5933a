// Package metrics provides the Prometheus collectors for HTTP traffic and
// database queries, registered on a registry owned by the caller.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	dbQueries    *prometheus.CounterVec
	dbDuration   *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
		}, []string{"method", "route", "code"}),
		dbQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "db_query_total",
			Help: "Total number of database queries",
		}, []string{"operation"}),
		dbDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 1},
		}, []string{"operation"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.dbQueries, m.dbDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware records request count and latency per route pattern. The
// route label uses echo's registered path to keep cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			code := strconv.Itoa(status)
			method := c.Request().Method

			m.httpRequests.WithLabelValues(method, route, code).Inc()
			m.httpDuration.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// ObserveQuery starts timing a query and returns the function that stops
// the timer. The operation label is the statement's first keyword.
//
//	defer r.metrics.ObserveQuery(q)()
func (m *Metrics) ObserveQuery(query string) func() {
	if m == nil {
		return func() {}
	}
	op := Operation(query)
	start := time.Now()
	return func() {
		m.dbDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		m.dbQueries.WithLabelValues(op).Inc()
	}
}

// Operation returns the upper-cased first word of a SQL statement.
func Operation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}
