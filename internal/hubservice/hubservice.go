package hubservice

import (
	"context"
	"time"

	"github.com/itsatony/sensorhub/internal/cleanup"
	"github.com/itsatony/sensorhub/internal/errors"
	"github.com/itsatony/sensorhub/internal/monitoring"
	"github.com/itsatony/sensorhub/internal/repository"
)

// HubService contains all repositories and service-wide dependencies
type HubService struct {
	Identity   repository.IdentityStore
	Metadata   repository.MetadataStore
	Telemetry  repository.TelemetryCache
	Sensors    *repository.SensorRepository
	Cleanup    *cleanup.CleanupService
	Monitoring *monitoring.Service
}

// New creates a new HubService instance. The monitoring service receives the
// repository's skip and partial-write notifications.
func New(
	identity repository.IdentityStore,
	metadata repository.MetadataStore,
	telemetry repository.TelemetryCache,
	monitor *monitoring.Service,
	opts repository.Options,
	gracePeriod time.Duration,
) *HubService {
	if monitor != nil {
		opts.Observer = monitor
	}
	svc := &HubService{
		Identity:   identity,
		Metadata:   metadata,
		Telemetry:  telemetry,
		Monitoring: monitor,
	}
	svc.Sensors = repository.NewSensorRepository(identity, metadata, telemetry, opts)
	svc.Cleanup = cleanup.New(svc.Sensors, identity, metadata, telemetry, gracePeriod)
	return svc
}

// Validate checks if all required repositories are initialized
func (s *HubService) Validate() error {
	if s.Identity == nil {
		return ErrMissingRepository("identity")
	}
	if s.Metadata == nil {
		return ErrMissingRepository("metadata")
	}
	if s.Telemetry == nil {
		return ErrMissingRepository("telemetry")
	}
	if s.Sensors == nil {
		return ErrMissingRepository("sensors")
	}
	if s.Cleanup == nil {
		return ErrMissingRepository("cleanup")
	}
	return nil
}

// Health pings every store that supports it and reports "ok" or the error per store
func (s *HubService) Health(ctx context.Context) (map[string]string, bool) {
	stores := map[string]interface{}{
		"identity":  s.Identity,
		"metadata":  s.Metadata,
		"telemetry": s.Telemetry,
	}
	status := make(map[string]string, len(stores))
	healthy := true
	for name, store := range stores {
		pinger, ok := store.(repository.Pinger)
		if !ok {
			status[name] = "unknown"
			continue
		}
		if err := pinger.Ping(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	return status, healthy
}

func ErrMissingRepository(name string) error {
	return errors.NewInternalError("missing repository: "+name, nil)
}
