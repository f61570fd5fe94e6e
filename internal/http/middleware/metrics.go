package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTP collectors share the stored_messages_http prefix. The route label is
// the matched template (or "unmatched") to keep cardinality bounded.
var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stored_messages",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stored_messages",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method", "route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stored_messages",
		Subsystem: "http",
		Name:      "requests_inflight",
		Help:      "HTTP requests currently being served.",
	})

	httpRateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stored_messages",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected with 429 by route.",
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, httpInflight, httpRateLimited)
}

// Metrics records request count, latency and in-flight gauge for every
// request that passes through it.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := routeLabel(c)
		method := c.Request.Method
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
