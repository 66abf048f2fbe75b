package hubservice

import (
	"context"

	"github.com/itsatony/sensorhub/internal/errors"
	"github.com/itsatony/sensorhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// SensorService handles sensor-related business logic
type SensorService interface {
	CreateSensor(ctx context.Context, req *models.CreateSensorRequest) (*models.Sensor, error)
	GetSensorView(ctx context.Context, id int64) (*models.SensorView, error)
	ListSensors(ctx context.Context, offset, limit int) ([]*models.Sensor, error)
	GetSensorByName(ctx context.Context, name string) (*models.Sensor, error)
	DeleteSensor(ctx context.Context, id int64) (*models.Sensor, error)
	RecordTelemetry(ctx context.Context, id int64, reading models.SensorTelemetry) error
	FindNearby(ctx context.Context, lat, lon, radiusKm float64) ([]*models.SensorView, error)
}

var _ SensorService = (*HubService)(nil)

// CreateSensor registers a sensor. A half-finished creation is rolled back
// right away; if that fails too the orphan sweep removes the identity later.
func (s *HubService) CreateSensor(ctx context.Context, req *models.CreateSensorRequest) (*models.Sensor, error) {
	sensor, err := s.Sensors.CreateSensor(ctx, req)
	if err == nil {
		return sensor, nil
	}
	if id, ok := errors.SensorIDOf(err); ok && errors.IsPartialWrite(err) {
		if cerr := s.Sensors.CompensateCreate(ctx, id); cerr != nil {
			nuts.L.Errorf("[HubService] Compensation of sensor %d failed, leaving it to the sweep: %v", id, cerr)
		} else {
			nuts.L.Infof("[HubService] Rolled back half-created sensor %d", id)
		}
	}
	return nil, err
}

func (s *HubService) GetSensorView(ctx context.Context, id int64) (*models.SensorView, error) {
	return s.Sensors.GetSensorView(ctx, id)
}

func (s *HubService) ListSensors(ctx context.Context, offset, limit int) ([]*models.Sensor, error) {
	return s.Sensors.ListSensors(ctx, offset, limit)
}

func (s *HubService) GetSensorByName(ctx context.Context, name string) (*models.Sensor, error) {
	return s.Sensors.GetSensorByName(ctx, name)
}

// DeleteSensor goes through the cleanup service so listeners hear about it
func (s *HubService) DeleteSensor(ctx context.Context, id int64) (*models.Sensor, error) {
	return s.Cleanup.DeleteSensor(ctx, id)
}

func (s *HubService) RecordTelemetry(ctx context.Context, id int64, reading models.SensorTelemetry) error {
	return s.Sensors.RecordTelemetry(ctx, id, reading)
}

func (s *HubService) FindNearby(ctx context.Context, lat, lon, radiusKm float64) ([]*models.SensorView, error) {
	return s.Sensors.FindNearby(ctx, lat, lon, radiusKm)
}
