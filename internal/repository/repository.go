// FilePath: internal/repository/repository.go
package repository

import (
	"context"
	"time"

	"github.com/itsatony/sensorhub/internal/geo"
	"github.com/itsatony/sensorhub/internal/models"
)

// Pinger is implemented by every store adapter so health checks can reach it
type Pinger interface {
	Ping(ctx context.Context) error
}

// IdentityStore owns the canonical (id, name) rows.
// Lookups of absent rows fail with a not_found error.
type IdentityStore interface {
	Create(ctx context.Context, name string) (*models.Sensor, error)
	Get(ctx context.Context, id int64) (*models.Sensor, error)
	GetByName(ctx context.Context, name string) (*models.Sensor, error)
	List(ctx context.Context, offset, limit int) ([]*models.Sensor, error)
	ListCreatedBefore(ctx context.Context, before time.Time) ([]*models.Sensor, error)
	Delete(ctx context.Context, id int64) error
}

// MetadataStore owns the static metadata documents, keyed by sensor name.
// Lookups of absent documents fail with a not_found error.
type MetadataStore interface {
	Insert(ctx context.Context, meta *models.SensorMetadata) error
	FindByName(ctx context.Context, name string) (*models.SensorMetadata, error)
	FindInBox(ctx context.Context, box geo.BoundingBox) ([]*models.SensorMetadata, error)
	FindAll(ctx context.Context) ([]*models.SensorMetadata, error)
	DeleteByName(ctx context.Context, name string) error
}

// TelemetryCache is a plain key-value store for JSON telemetry blobs.
// Get of an absent key fails with a not_found error.
type TelemetryCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Observer receives notifications about the cross-store behaviour of the repository
type Observer interface {
	SensorSkipped(sensorID int64, reason string)
	PartialWrite(operation string, sensorID int64)
}

type nopObserver struct{}

func (nopObserver) SensorSkipped(int64, string) {}
func (nopObserver) PartialWrite(string, int64) {}
