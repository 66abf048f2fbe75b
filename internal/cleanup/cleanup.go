package cleanup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/itsatony/sensorhub/internal/errors"
	"github.com/itsatony/sensorhub/internal/models"
	"github.com/itsatony/sensorhub/internal/repository"
	nuts "github.com/vaudience/go-nuts"
)

// Cleanup events. Handlers receive the sensor id (or the document name for
// metadata orphans without a usable id) as a string.
const (
	EventSensorDeleted         = "sensor.deleted"
	EventSensorOrphanRemoved   = "sensor.orphan_removed"
	EventMetadataOrphanRemoved = "metadata.orphan_removed"
)

// SensorLifecycle is the part of the sensor repository the cleanup service drives
type SensorLifecycle interface {
	DeleteSensor(ctx context.Context, sensorID int64) (*models.Sensor, error)
	CompensateCreate(ctx context.Context, sensorID int64) error
}

// SweepReport summarizes one orphan sweep
type SweepReport struct {
	OrphanIdentities []int64  `json:"orphan_identities"`
	OrphanMetadata   []string `json:"orphan_metadata"`
	Failures         int      `json:"failures"`
}

// CleanupService removes data that the multi-store writes left behind and
// announces deletions to interested listeners
type CleanupService struct {
	sensors     SensorLifecycle
	identity    repository.IdentityStore
	metadata    repository.MetadataStore
	telemetry   repository.TelemetryCache
	gracePeriod time.Duration
	now         func() time.Time
	events      *nuts.EventEmitter
}

// New creates a new CleanupService. Identities younger than gracePeriod are
// never treated as orphans since their creation may still be in flight.
func New(
	sensors SensorLifecycle,
	identity repository.IdentityStore,
	metadata repository.MetadataStore,
	telemetry repository.TelemetryCache,
	gracePeriod time.Duration,
) *CleanupService {
	return &CleanupService{
		sensors:     sensors,
		identity:    identity,
		metadata:    metadata,
		telemetry:   telemetry,
		gracePeriod: gracePeriod,
		now:         time.Now,
		events:      nuts.NewEventEmitter(),
	}
}

// DeleteSensor deletes a sensor and all its associated data. A partial_write
// error still counts as a deletion: the identity is gone.
func (s *CleanupService) DeleteSensor(ctx context.Context, sensorID int64) (*models.Sensor, error) {
	sensor, err := s.sensors.DeleteSensor(ctx, sensorID)
	if sensor != nil {
		s.emit(EventSensorDeleted, strconv.FormatInt(sensorID, 10))
	}
	return sensor, err
}

// SweepOrphans removes identities that never got a metadata document and
// metadata documents whose identity no longer exists
func (s *CleanupService) SweepOrphans(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{OrphanIdentities: []int64{}, OrphanMetadata: []string{}}

	sensors, err := s.identity.ListCreatedBefore(ctx, s.now().Add(-s.gracePeriod))
	if err != nil {
		return nil, err
	}
	for _, sensor := range sensors {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		_, err := s.metadata.FindByName(ctx, sensor.Name)
		if err == nil {
			continue
		}
		if !errors.IsNotFound(err) {
			nuts.L.Warnf("[Cleanup] Could not check metadata of sensor %d: %v", sensor.ID, err)
			report.Failures++
			continue
		}
		if err := s.sensors.CompensateCreate(ctx, sensor.ID); err != nil && !errors.IsNotFound(err) {
			nuts.L.Warnf("[Cleanup] Failed to remove orphan identity %d: %v", sensor.ID, err)
			report.Failures++
			continue
		}
		report.OrphanIdentities = append(report.OrphanIdentities, sensor.ID)
		s.emit(EventSensorOrphanRemoved, strconv.FormatInt(sensor.ID, 10))
	}

	docs, err := s.metadata.FindAll(ctx)
	if err != nil {
		return report, err
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		owner, err := s.identity.Get(ctx, doc.ID)
		if err == nil && owner.Name == doc.Name {
			continue
		}
		if err != nil && !errors.IsNotFound(err) {
			nuts.L.Warnf("[Cleanup] Could not check identity of %q: %v", doc.Name, err)
			report.Failures++
			continue
		}
		if err := s.removeMetadata(ctx, doc, owner); err != nil {
			nuts.L.Warnf("[Cleanup] Failed to remove orphan metadata %q: %v", doc.Name, err)
			report.Failures++
			continue
		}
		report.OrphanMetadata = append(report.OrphanMetadata, doc.Name)
		s.emit(EventMetadataOrphanRemoved, doc.Name)
	}

	if len(report.OrphanIdentities) > 0 || len(report.OrphanMetadata) > 0 || report.Failures > 0 {
		nuts.L.Infof("[Cleanup] Sweep removed %d identities and %d metadata documents, %d failures",
			len(report.OrphanIdentities), len(report.OrphanMetadata), report.Failures)
	}
	return report, nil
}

// removeMetadata deletes an orphan document. The telemetry blob under its id
// goes too unless that id now belongs to a different live sensor.
func (s *CleanupService) removeMetadata(ctx context.Context, doc *models.SensorMetadata, owner *models.Sensor) error {
	if err := s.metadata.DeleteByName(ctx, doc.Name); err != nil && !errors.IsNotFound(err) {
		return err
	}
	if owner != nil {
		return nil
	}
	if err := s.telemetry.Delete(ctx, models.TelemetryKey(doc.ID)); err != nil && !errors.IsNotFound(err) {
		return err
	}
	return nil
}

// Run sweeps on every tick until the context is cancelled
func (s *CleanupService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		nuts.L.Infof("[Cleanup] Periodic sweep disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOrphans(ctx); err != nil && ctx.Err() == nil {
				nuts.L.Errorf("[Cleanup] Sweep failed: %v", err)
			}
		}
	}
}

// OnCleanup registers a callback for cleanup events
func (s *CleanupService) OnCleanup(event string, handler func(id string)) error {
	if _, err := s.events.On(event, nuts.NID("cleanup", 8), handler); err != nil {
		return fmt.Errorf("error registering %s handler: %w", event, err)
	}
	return nil
}

func (s *CleanupService) emit(event, id string) {
	if err := s.events.Emit(event, id); err != nil {
		nuts.L.Warnf("[Cleanup] Failed to deliver %s for %s: %v", event, id, err)
	}
}
