package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "eagledocs"

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the cache
// and the retrieval/generation pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	chatTurns         *prometheus.CounterVec
	generationLatency *prometheus.HistogramVec
	gateDecisions     *prometheus.CounterVec
	retrievalLatency  prometheus.Histogram
	uploads           *prometheus.CounterVec
	reindexJobs       *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	chatTurns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "chat_turns_total",
		Help:      "Chat turns by mode (blocking, stream) and outcome",
	}, []string{"mode", "outcome"})

	generationLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "generation_duration_seconds",
		Help:      "Generative backend call latency",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"backend", "operation", "status"})

	gateDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "gate_decisions_total",
		Help:      "Relevance gate outcomes by policy",
	}, []string{"policy", "outcome"})

	retrievalLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "retrieval_duration_seconds",
		Help:      "Time spent building course context",
		Buckets:   prometheus.DefBuckets,
	})

	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "document_uploads_total",
		Help:      "Document uploads by outcome",
	}, []string{"outcome"})

	reindexJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "reindex_jobs_total",
		Help:      "Reindex jobs by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheHits, cacheMisses,
		chatTurns, generationLatency, gateDecisions, retrievalLatency, uploads, reindexJobs,
		goroutines,
	)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		chatTurns:         chatTurns,
		generationLatency: generationLatency,
		gateDecisions:     gateDecisions,
		retrievalLatency:  retrievalLatency,
		uploads:           uploads,
		reindexJobs:       reindexJobs,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordChatTurn counts a finished chat turn.
func (m *MetricsService) RecordChatTurn(mode, outcome string) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(mode, outcome).Inc()
}

// ObserveGeneration records one backend attempt. It matches llm.ObserveFunc.
func (m *MetricsService) ObserveGeneration(backend, _ string, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.generationLatency.WithLabelValues(backend, operation, status).Observe(elapsed.Seconds())
}

// RecordGateDecision counts a relevance gate outcome. It matches rag.GateObserver.
func (m *MetricsService) RecordGateDecision(policy, outcome string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(policy, outcome).Inc()
}

// ObserveRetrieval records how long context building took.
func (m *MetricsService) ObserveRetrieval(duration time.Duration) {
	if m == nil {
		return
	}
	m.retrievalLatency.Observe(duration.Seconds())
}

// RecordUpload counts an upload attempt.
func (m *MetricsService) RecordUpload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

// RecordReindex counts a finished reindex job.
func (m *MetricsService) RecordReindex(outcome string) {
	if m == nil {
		return
	}
	m.reindexJobs.WithLabelValues(outcome).Inc()
}
