package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce     sync.Once
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
)

// Metrics records request counts, latency and in-flight gauge. Uses the
// templated route path to keep label cardinality bounded.
func Metrics() echo.MiddlewareFunc {
	metricsOnce.Do(func() {
		requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "barpilot_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"})
		requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "barpilot_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method"})
		inFlight = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "barpilot_http_in_flight_requests",
			Help: "Requests currently being served.",
		})
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			inFlight.Inc()
			err := next(c)
			inFlight.Dec()

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			requestsTotal.WithLabelValues(route, method, strconv.Itoa(c.Response().Status)).Inc()
			requestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
