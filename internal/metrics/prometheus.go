//go:generate mockgen -source=prometheus.go -destination=mocks/recorder_mock.go -package=mocks

// Package metrics provides Prometheus-based metrics collection for quickscope.
// The scanner reports through the Recorder interface so tests and callers
// without a metrics endpoint can substitute Nop or a mock.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace for all quickscope metrics
	namespace = "quickscope"

	// Subsystems
	subsystemProbe  = "probe"
	subsystemBanner = "banner"
	subsystemScan   = "scan"
	subsystemTarget = "target"
	subsystemSystem = "system"
	subsystemAPI    = "api"
)

// Recorder receives scan telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// ObserveProbe records one finished connect probe.
	ObserveProbe(status string, elapsed time.Duration)
	// ObserveBanner records one banner grab attempt.
	ObserveBanner(available bool)
	// SetInFlight reports the number of probes currently holding a slot.
	SetInFlight(n int)
	// IncResolutionFailures counts a target entry that could not be resolved.
	IncResolutionFailures()
	// ObserveScan records a finished scan.
	ObserveScan(cancelled bool, duration time.Duration, hosts int)
}

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Probe metrics
	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	inFlight      prometheus.Gauge

	// Banner metrics
	bannersTotal *prometheus.CounterVec

	// Target metrics
	resolutionFailures prometheus.Counter

	// Scan metrics
	scansTotal   *prometheus.CounterVec
	scanDuration prometheus.Histogram
	hostsScanned prometheus.Counter

	// API metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// System metrics
	goroutines prometheus.Gauge
	uptime     prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initProbeMetrics()
	pm.initScanMetrics()
	pm.initAPIMetrics()
	pm.initSystemMetrics()

	pm.registerMetrics()

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initProbeMetrics() {
	pm.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "total",
			Help:      "Total number of connect probes by terminal status",
		},
		[]string{"status"},
	)

	pm.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "duration_seconds",
			Help:      "Time spent dialing, by terminal status",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"status"},
	)

	pm.inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "in_flight",
			Help:      "Number of probes currently holding a concurrency slot",
		},
	)

	pm.bannersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemBanner,
			Name:      "total",
			Help:      "Total number of banner grabs by outcome",
		},
		[]string{"result"},
	)

	pm.resolutionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemTarget,
			Name:      "resolution_failures_total",
			Help:      "Total number of target entries that could not be resolved",
		},
	)
}

func (pm *PrometheusMetrics) initScanMetrics() {
	pm.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Total number of scans by status",
		},
		[]string{"status"},
	)

	pm.scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Duration of scans in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0},
		},
	)

	pm.hostsScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "hosts_total",
			Help:      "Total number of hosts scanned",
		},
	)
}

func (pm *PrometheusMetrics) initAPIMetrics() {
	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
}

func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
	)
}

func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.probesTotal,
		pm.probeDuration,
		pm.inFlight,
		pm.bannersTotal,
		pm.resolutionFailures,
		pm.scansTotal,
		pm.scanDuration,
		pm.hostsScanned,
		pm.httpRequests,
		pm.httpDuration,
		pm.goroutines,
		pm.uptime,
	)
}

// GetRegistry returns the Prometheus registry
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// ObserveProbe implements Recorder.
func (pm *PrometheusMetrics) ObserveProbe(status string, elapsed time.Duration) {
	pm.probesTotal.WithLabelValues(status).Inc()
	pm.probeDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveBanner implements Recorder.
func (pm *PrometheusMetrics) ObserveBanner(available bool) {
	result := "unavailable"
	if available {
		result = "available"
	}
	pm.bannersTotal.WithLabelValues(result).Inc()
}

// SetInFlight implements Recorder.
func (pm *PrometheusMetrics) SetInFlight(n int) {
	pm.inFlight.Set(float64(n))
}

// IncResolutionFailures implements Recorder.
func (pm *PrometheusMetrics) IncResolutionFailures() {
	pm.resolutionFailures.Inc()
}

// ObserveScan implements Recorder.
func (pm *PrometheusMetrics) ObserveScan(cancelled bool, duration time.Duration, hosts int) {
	status := "completed"
	if cancelled {
		status = "cancelled"
	}
	pm.scansTotal.WithLabelValues(status).Inc()
	pm.scanDuration.Observe(duration.Seconds())
	pm.hostsScanned.Add(float64(hosts))
}

// RecordHTTPRequest records one served HTTP request.
func (pm *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	pm.httpRequests.WithLabelValues(method, path, status).Inc()
	pm.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())
	pm.lastUpdate = time.Now()
}

// GetUptime returns the application uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last metrics update time
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates updates system metrics every interval until ctx is done.
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) ObserveProbe(string, time.Duration) {}
func (Nop) ObserveBanner(bool) {}
func (Nop) SetInFlight(int) {}
func (Nop) IncResolutionFailures() {}
func (Nop) ObserveScan(bool, time.Duration, int) {}

var (
	_ Recorder = (*PrometheusMetrics)(nil)
	_ Recorder = Nop{}
)
