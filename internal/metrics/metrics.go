package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bucketdash"

// Metrics owns a private registry. All recording methods are safe on a nil receiver.
type Metrics struct {
	reg *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	uploads       *prometheus.CounterVec
	compensations *prometheus.CounterVec
	batchOutcomes *prometheus.CounterVec
	folderBatches *prometheus.CounterVec
	listings      *prometheus.CounterVec
	backend       *prometheus.HistogramVec
}

// New creates a Metrics instance with a fresh registry and registers collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploads by result.",
		}, []string{"result"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Compensating deletes by operation and result.",
		}, []string{"operation", "result"}),
		batchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_delete_items_total",
			Help:      "Batch delete sub-operations by target and outcome.",
		}, []string{"target", "outcome"}),
		folderBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "folder_delete_batches_total",
			Help:      "Recursive folder delete pages by result.",
		}, []string{"result"}),
		listings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_total",
			Help:      "Listing pages served by pagination mode.",
		}, []string{"mode"}),
		backend: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Latency of object store and metadata store calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "op", "result"}),
	}
	reg.MustRegister(
		m.requests, m.latency,
		m.uploads, m.compensations, m.batchOutcomes, m.folderBatches, m.listings, m.backend,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latency by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Upload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) Compensation(operation string, ok bool) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(operation, okLabel(ok)).Inc()
}

func (m *Metrics) BatchItems(target, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.batchOutcomes.WithLabelValues(target, outcome).Add(float64(n))
}

func (m *Metrics) FolderBatch(ok bool) {
	if m == nil {
		return
	}
	m.folderBatches.WithLabelValues(okLabel(ok)).Inc()
}

func (m *Metrics) Listing(mode string) {
	if m == nil {
		return
	}
	m.listings.WithLabelValues(mode).Inc()
}

// ObserveBackend records one call started at start.
func (m *Metrics) ObserveBackend(backend, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.backend.WithLabelValues(backend, op, okLabel(err == nil)).Observe(time.Since(start).Seconds())
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
