// internal/utils/metrics.go
package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one server instance.
// Each instance owns its registry, so tests can build several side by side.
type Metrics struct {
	Registry *prometheus.Registry

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	HTTPRequests      *prometheus.CounterVec
	UploadedBytes     prometheus.Counter
	IndexRebuilds     prometheus.Counter
	EventClients      prometheus.Gauge
}

// NewMetrics 创建并注册所有指标
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "story_engine_operations_total",
			Help: "Content store operations partitioned by operation and outcome.",
		}, []string{"operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "story_engine_operation_duration_seconds",
			Help:    "Latency of content store operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "story_engine_http_requests_total",
			Help: "HTTP requests partitioned by method, route and status code.",
		}, []string{"method", "route", "status"}),
		UploadedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "story_engine_media_uploaded_bytes_total",
			Help: "Decoded bytes written by media uploads.",
		}),
		IndexRebuilds: factory.NewCounter(prometheus.CounterOpts{
			Name: "story_engine_index_rebuilds_total",
			Help: "Number of times index.json was regenerated.",
		}),
		EventClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "story_engine_event_clients",
			Help: "Connected change-feed websocket clients.",
		}),
	}
}

// RegisterCacheStats exposes hit and miss counters read from stats.
func (m *Metrics) RegisterCacheStats(stats func() (hits, misses uint64)) {
	factory := promauto.With(m.Registry)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "story_engine_document_cache_hits_total",
		Help: "Document cache hits.",
	}, func() float64 {
		hits, _ := stats()
		return float64(hits)
	})
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "story_engine_document_cache_misses_total",
		Help: "Document cache misses.",
	}, func() float64 {
		_, misses := stats()
		return float64(misses)
	})
}

// ObserveOperation records the outcome and latency of one operation.
// outcome is "ok" or an error type such as "not_found".
func (m *Metrics) ObserveOperation(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
