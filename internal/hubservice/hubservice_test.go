package hubservice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/itsatony/sensorhub/internal/database"
	"github.com/itsatony/sensorhub/internal/errors"
	"github.com/itsatony/sensorhub/internal/geo"
	"github.com/itsatony/sensorhub/internal/models"
	"github.com/itsatony/sensorhub/internal/monitoring"
	"github.com/itsatony/sensorhub/internal/repository"
	"github.com/itsatony/sensorhub/internal/repository/postgres"
	"github.com/itsatony/sensorhub/internal/repository/rediscache"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memMetadata struct {
	mu        sync.Mutex
	docs      map[string]*models.SensorMetadata
	insertErr error
}

func (m *memMetadata) Insert(_ context.Context, meta *models.SensorMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	cp := *meta
	m.docs[meta.Name] = &cp
	return nil
}

func (m *memMetadata) FindByName(_ context.Context, name string) (*models.SensorMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[name]
	if !ok {
		return nil, errors.NewNotFoundError("metadata not found", nil)
	}
	cp := *doc
	return &cp, nil
}

func (m *memMetadata) FindInBox(_ context.Context, box geo.BoundingBox) ([]*models.SensorMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.SensorMetadata{}
	for _, doc := range m.docs {
		if box.Contains(doc.Latitude, doc.Longitude) {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memMetadata) FindAll(_ context.Context) ([]*models.SensorMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.SensorMetadata{}
	for _, doc := range m.docs {
		cp := *doc
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memMetadata) DeleteByName(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[name]; !ok {
		return errors.NewNotFoundError("metadata not found", nil)
	}
	delete(m.docs, name)
	return nil
}

func newTestHub(t *testing.T) (*HubService, *memMetadata, *miniredis.Miniredis) {
	t.Helper()
	db, err := database.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	identity := postgres.NewIdentityRepository(db)
	require.NoError(t, identity.EnsureSchema(context.Background()))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	metadata := &memMetadata{docs: map[string]*models.SensorMetadata{}}
	hub := New(
		identity,
		metadata,
		rediscache.NewTelemetryRepository(client, 0),
		monitoring.NewService(monitoring.Config{}),
		repository.DefaultOptions(),
		time.Minute,
	)
	return hub, metadata, mr
}

func TestHubService_Validate(t *testing.T) {
	hub, _, _ := newTestHub(t)
	assert.NoError(t, hub.Validate())

	hub.Telemetry = nil
	err := hub.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry")
}

func TestHubService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	hub, _, _ := newTestHub(t)

	sensor, err := hub.CreateSensor(ctx, &models.CreateSensorRequest{
		Name:             "orchard",
		SensorAttributes: models.SensorAttributes{Latitude: 52.52, Longitude: 13.40, Type: models.Temperature},
	})
	require.NoError(t, err)

	require.NoError(t, hub.RecordTelemetry(ctx, sensor.ID, models.SensorTelemetry{Temperature: 18.5}))

	view, err := hub.GetSensorView(ctx, sensor.ID)
	require.NoError(t, err)
	assert.Equal(t, "orchard", view.Name)
	assert.Equal(t, 18.5, view.Temperature)

	nearby, err := hub.FindNearby(ctx, 52.5, 13.4, 10)
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	assert.Equal(t, sensor.ID, nearby[0].ID)

	byName, err := hub.GetSensorByName(ctx, "orchard")
	require.NoError(t, err)
	assert.Equal(t, sensor.ID, byName.ID)

	list, err := hub.ListSensors(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	deleted, err := hub.DeleteSensor(ctx, sensor.ID)
	require.NoError(t, err)
	assert.Equal(t, sensor.ID, deleted.ID)

	_, err = hub.GetSensorView(ctx, sensor.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestHubService_CreateCompensatesPartialWrite(t *testing.T) {
	ctx := context.Background()
	hub, metadata, _ := newTestHub(t)
	metadata.insertErr = errors.NewDatabaseError("mongo down", nil)

	_, err := hub.CreateSensor(ctx, &models.CreateSensorRequest{Name: "flaky"})
	require.Error(t, err)
	assert.True(t, errors.IsPartialWrite(err))

	_, err = hub.GetSensorByName(ctx, "flaky")
	assert.True(t, errors.IsNotFound(err), "identity row should have been rolled back")

	partial := hub.Monitoring.Registry()
	count, err := testutil.GatherAndCount(partial, "sensorhub_partial_writes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	metadata.insertErr = nil
	_, err = hub.CreateSensor(ctx, &models.CreateSensorRequest{Name: "flaky"})
	assert.NoError(t, err)
}

func TestHubService_Health(t *testing.T) {
	hub, _, mr := newTestHub(t)

	status, ok := hub.Health(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "ok", status["identity"])
	assert.Equal(t, "ok", status["telemetry"])
	assert.Equal(t, "unknown", status["metadata"])

	mr.Close()
	status, ok = hub.Health(context.Background())
	assert.False(t, ok)
	assert.NotEqual(t, "ok", status["telemetry"])
}
