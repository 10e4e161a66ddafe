package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry with the HTTP and job series.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	JobRuns             *prometheus.CounterVec
	JobDuration         *prometheus.HistogramVec
	WebsocketClients    prometheus.GaugeFunc
}

// NewMetrics registers every collector under namespace. connected may be nil.
func NewMetrics(namespace string, connected func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Total number of scheduled job runs",
		}, []string{"job", "status"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled jobs in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
	reg.MustRegister(m.HTTPRequestsTotal, m.HTTPRequestDuration, m.JobRuns, m.JobDuration)

	if connected != nil {
		m.WebsocketClients = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connected_users",
			Help:      "Distinct users with an open websocket",
		}, func() float64 { return float64(connected()) })
		reg.MustRegister(m.WebsocketClients)
	}
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records one sample per request, labelled by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordJob counts a job run with status "success" or "error".
func (m *Metrics) RecordJob(job string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}
