// Package metrics collects Prometheus metrics for the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the API exports.
type Collector struct {
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   prometheus.Gauge
	authEvents *prometheus.CounterVec
	emails     *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "natours_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "natours_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "natours_http_requests_in_flight",
			Help: "HTTP requests being served.",
		}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "natours_auth_events_total",
			Help: "Authentication events by type and outcome.",
		}, []string{"event", "outcome"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "natours_emails_total",
			Help: "Outbound emails by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(c.requests, c.duration, c.inFlight, c.authEvents, c.emails)
	return c
}

// RecordRequest records a finished HTTP request.
func (c *Collector) RecordRequest(method, route string, statusCode int, elapsed time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordAuthEvent records a login, signup or password event.
func (c *Collector) RecordAuthEvent(event string, success bool) {
	if c == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.authEvents.WithLabelValues(event, outcome).Inc()
}

// RecordEmail records an outbound email attempt.
func (c *Collector) RecordEmail(err error) {
	if c == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	c.emails.WithLabelValues(outcome).Inc()
}

// Middleware records every request that passes through echo. It must wrap
// the request logger so that errors are already answered when it reads the
// status. Unmatched routes share one label.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			c.inFlight.Inc()
			defer c.inFlight.Dec()

			start := time.Now()
			err := next(ctx)

			// errors are normally written by an inner error handling middleware
			status := ctx.Response().Status
			if err != nil && !ctx.Response().Committed {
				status = http.StatusInternalServerError
				if httpErr, ok := err.(*echo.HTTPError); ok {
					status = httpErr.Code
				}
			}

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}

			c.RecordRequest(ctx.Request().Method, route, status, time.Since(start))
			return err
		}
	}
}

// Handler serves the metrics gathered by gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
