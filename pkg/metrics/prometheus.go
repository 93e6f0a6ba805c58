// prometheus.go
package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService defines the interface for interacting with metrics
type MetricsService interface {
	// Counter metrics
	IncrementCounter(name string, labels map[string]string)
	AddToCounter(name string, value float64, labels map[string]string)

	// Gauge metrics
	SetGauge(name string, value float64, labels map[string]string)
	IncrementGauge(name string, labels map[string]string)
	DecrementGauge(name string, labels map[string]string)

	// Histogram metrics
	ObserveHistogram(name string, value float64, labels map[string]string)

	// Summary metrics
	ObserveSummary(name string, value float64, labels map[string]string)

	// Timer functionality
	StartTimer(name string, labels map[string]string) func()

	// HTTP handler for metrics endpoint
	MetricsHandler() http.Handler

	// Middleware for the REST API
	HTTPMiddleware(next http.Handler) http.Handler
}

// PrometheusMetrics implements the MetricsService interface using Prometheus.
// Vectors are created on first use; a metric name must always be used with
// the same label names.
type PrometheusMetrics struct {
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	summaries  map[string]*prometheus.SummaryVec
	mu         sync.RWMutex
	namespace  string
	registry   *prometheus.Registry
	factory    promauto.Factory
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance with its own
// registry holding the Go runtime and process collectors.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)

	return &PrometheusMetrics{
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		summaries:  make(map[string]*prometheus.SummaryVec),
		namespace:  namespace,
		registry:   registry,
		factory:    promauto.With(registry),
	}
}

// Registry exposes the underlying registry, mostly for tests
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// splitLabels returns label names in sorted order with their values aligned.
func splitLabels(labels map[string]string) ([]string, []string) {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	values := make([]string, len(names))
	for i, k := range names {
		values[i] = labels[k]
	}
	return names, values
}

// getCounter returns an existing counter or creates a new one
func (p *PrometheusMetrics) getCounter(name string, labelNames []string) *prometheus.CounterVec {
	p.mu.RLock()
	counter, exists := p.counters[name]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		defer p.mu.Unlock()

		// Double check in case another goroutine created it while we were waiting for the lock
		counter, exists = p.counters[name]
		if !exists {
			counter = p.factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: p.namespace,
					Name:      name,
					Help:      name + " counter",
				},
				labelNames,
			)
			p.counters[name] = counter
		}
	}

	return counter
}

// getGauge returns an existing gauge or creates a new one
func (p *PrometheusMetrics) getGauge(name string, labelNames []string) *prometheus.GaugeVec {
	p.mu.RLock()
	gauge, exists := p.gauges[name]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		defer p.mu.Unlock()

		gauge, exists = p.gauges[name]
		if !exists {
			gauge = p.factory.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: p.namespace,
					Name:      name,
					Help:      name + " gauge",
				},
				labelNames,
			)
			p.gauges[name] = gauge
		}
	}

	return gauge
}

// getHistogram returns an existing histogram or creates a new one
func (p *PrometheusMetrics) getHistogram(name string, labelNames []string) *prometheus.HistogramVec {
	p.mu.RLock()
	histogram, exists := p.histograms[name]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		defer p.mu.Unlock()

		histogram, exists = p.histograms[name]
		if !exists {
			histogram = p.factory.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: p.namespace,
					Name:      name,
					Help:      name + " histogram",
					Buckets:   prometheus.DefBuckets,
				},
				labelNames,
			)
			p.histograms[name] = histogram
		}
	}

	return histogram
}

// getSummary returns an existing summary or creates a new one
func (p *PrometheusMetrics) getSummary(name string, labelNames []string) *prometheus.SummaryVec {
	p.mu.RLock()
	summary, exists := p.summaries[name]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		defer p.mu.Unlock()

		summary, exists = p.summaries[name]
		if !exists {
			summary = p.factory.NewSummaryVec(
				prometheus.SummaryOpts{
					Namespace:  p.namespace,
					Name:       name,
					Help:       name + " summary",
					Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
				},
				labelNames,
			)
			p.summaries[name] = summary
		}
	}

	return summary
}

// IncrementCounter increments a counter by 1
func (p *PrometheusMetrics) IncrementCounter(name string, labels map[string]string) {
	p.AddToCounter(name, 1, labels)
}

// AddToCounter adds a value to a counter
func (p *PrometheusMetrics) AddToCounter(name string, value float64, labels map[string]string) {
	names, values := splitLabels(labels)
	p.getCounter(name, names).WithLabelValues(values...).Add(value)
}

// SetGauge sets a gauge to a value
func (p *PrometheusMetrics) SetGauge(name string, value float64, labels map[string]string) {
	names, values := splitLabels(labels)
	p.getGauge(name, names).WithLabelValues(values...).Set(value)
}

// IncrementGauge increments a gauge by 1
func (p *PrometheusMetrics) IncrementGauge(name string, labels map[string]string) {
	names, values := splitLabels(labels)
	p.getGauge(name, names).WithLabelValues(values...).Inc()
}

// DecrementGauge decrements a gauge by 1
func (p *PrometheusMetrics) DecrementGauge(name string, labels map[string]string) {
	names, values := splitLabels(labels)
	p.getGauge(name, names).WithLabelValues(values...).Dec()
}

// ObserveHistogram observes a value in a histogram
func (p *PrometheusMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	names, values := splitLabels(labels)
	p.getHistogram(name, names).WithLabelValues(values...).Observe(value)
}

// ObserveSummary observes a value in a summary
func (p *PrometheusMetrics) ObserveSummary(name string, value float64, labels map[string]string) {
	names, values := splitLabels(labels)
	p.getSummary(name, names).WithLabelValues(values...).Observe(value)
}

// StartTimer starts a timer and returns a function that records the elapsed
// seconds in the histogram name_duration_seconds
func (p *PrometheusMetrics) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		duration := time.Since(start).Seconds()
		p.ObserveHistogram(name+"_duration_seconds", duration, labels)
	}
}

// MetricsHandler returns an HTTP handler for the metrics endpoint
func (p *PrometheusMetrics) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// HTTPMiddleware records request counts, in-flight requests and latency.
// Paths are labelled with the mux route template to bound cardinality.
func (p *PrometheusMetrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		labels := map[string]string{
			"method": r.Method,
			"path":   routePath(r),
		}

		// Track request count
		p.IncrementCounter("http_requests_total", labels)

		// Track in-flight requests
		p.IncrementGauge("http_in_flight_requests", labels)
		defer p.DecrementGauge("http_in_flight_requests", labels)

		// Track request duration
		timer := p.StartTimer("http_request", labels)
		defer timer()

		// Wrap response writer to capture status code
		wrappedWriter := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrappedWriter, r)

		completed := map[string]string{
			"method": labels["method"],
			"path":   labels["path"],
			"status": http.StatusText(wrappedWriter.statusCode),
		}
		p.IncrementCounter("http_requests_completed_total", completed)
	})
}

func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// responseWriter is a wrapper for http.ResponseWriter that captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
