package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	logins       *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
)

// InitMetrics registers collectors with the default registry. Idempotent.
func InitMetrics() {
	initOnce.Do(func() {
		httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"})

		httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		logins = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_auth_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"})

		refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_auth_token_refreshes_total",
			Help: "Refresh-token rotations by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(httpRequests, httpDuration, logins, refreshes)
	})
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	InitMetrics()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveLogin counts a login attempt outcome ("success" or "failure").
func ObserveLogin(outcome string) {
	InitMetrics()
	logins.WithLabelValues(outcome).Inc()
}

// ObserveRefresh counts a refresh outcome ("rotated" or "rejected").
func ObserveRefresh(outcome string) {
	InitMetrics()
	refreshes.WithLabelValues(outcome).Inc()
}
