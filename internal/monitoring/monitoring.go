package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	nuts "github.com/vaudience/go-nuts"
)

const namespace = "sensorhub"

// Config holds monitoring configuration
type Config struct {
	MetricsPath string
}

// Service provides monitoring functionality. It also receives the
// repository's skip and partial-write notifications.
type Service struct {
	config   Config
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	partialWrites *prometheus.CounterVec
}

// NewService creates a new monitoring service with its own registry
func NewService(config Config) *Service {
	s := &Service{
		config:   config,
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Lifecycle events such as sensor deletions and orphan sweeps.",
		}, []string{"event"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nearby_skipped_total",
			Help:      "Sensors matched by a proximity query but left out of the result.",
		}, []string{"reason"}),
		partialWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_writes_total",
			Help:      "Multi-store operations that left residue in a store.",
		}, []string{"operation"}),
	}

	s.registry.MustRegister(
		s.events,
		s.skipped,
		s.partialWrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return s
}

// RecordEvent records a monitored event with labels
func (s *Service) RecordEvent(eventName string, labels map[string]string) {
	s.events.WithLabelValues(eventName).Inc()
	nuts.L.Infof("[Monitoring] Event %s recorded with labels: %v", eventName, labels)
}

// EventCounter returns the counter behind RecordEvent for one event name
func (s *Service) EventCounter(eventName string) prometheus.Counter {
	return s.events.WithLabelValues(eventName)
}

// SensorSkipped counts a proximity match that was dropped from the result
func (s *Service) SensorSkipped(sensorID int64, reason string) {
	s.skipped.WithLabelValues(reason).Inc()
	nuts.L.Debugf("[Monitoring] Sensor %d skipped: %s", sensorID, reason)
}

// PartialWrite counts an operation that could not complete in every store
func (s *Service) PartialWrite(operation string, sensorID int64) {
	s.partialWrites.WithLabelValues(operation).Inc()
	nuts.L.Warnf("[Monitoring] Partial write during %s for sensor %d", operation, sensorID)
}

// Registry exposes the underlying registry, mainly for tests
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// MetricsPath is where the metrics handler should be mounted
func (s *Service) MetricsPath() string {
	if s.config.MetricsPath == "" {
		return "/metrics"
	}
	return s.config.MetricsPath
}
