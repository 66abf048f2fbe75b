package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/itsatony/sensorhub/internal/errors"
	"github.com/itsatony/sensorhub/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	createErr  error
	viewErr    error
	deleteErr  error
	nearbyErr  error
	recordErr  error
	panicOnGet bool

	nearbyArgs [3]float64
	recorded   *models.SensorTelemetry
	listArgs   [2]int
}

func (f *fakeService) CreateSensor(_ context.Context, req *models.CreateSensorRequest) (*models.Sensor, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.Sensor{ID: 1, Name: req.Name}, nil
}

func (f *fakeService) GetSensorView(_ context.Context, id int64) (*models.SensorView, error) {
	if f.panicOnGet {
		panic("boom")
	}
	if f.viewErr != nil {
		return nil, f.viewErr
	}
	return &models.SensorView{ID: id, Name: "s"}, nil
}

func (f *fakeService) ListSensors(_ context.Context, offset, limit int) ([]*models.Sensor, error) {
	f.listArgs = [2]int{offset, limit}
	return []*models.Sensor{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}, nil
}

func (f *fakeService) GetSensorByName(_ context.Context, name string) (*models.Sensor, error) {
	if name != "a" {
		return nil, errors.NewNotFoundError("sensor not found", nil)
	}
	return &models.Sensor{ID: 1, Name: "a"}, nil
}

func (f *fakeService) DeleteSensor(_ context.Context, id int64) (*models.Sensor, error) {
	if f.deleteErr != nil && !errors.IsPartialWrite(f.deleteErr) {
		return nil, f.deleteErr
	}
	return &models.Sensor{ID: id, Name: "gone"}, f.deleteErr
}

func (f *fakeService) RecordTelemetry(_ context.Context, _ int64, reading models.SensorTelemetry) error {
	f.recorded = &reading
	return f.recordErr
}

func (f *fakeService) FindNearby(_ context.Context, lat, lon, radiusKm float64) ([]*models.SensorView, error) {
	f.nearbyArgs = [3]float64{lat, lon, radiusKm}
	if f.nearbyErr != nil {
		return nil, f.nearbyErr
	}
	return []*models.SensorView{{ID: 3, Name: "near"}}, nil
}

func newTestRouter(svc *fakeService) *Router {
	return NewRouter(svc, RouterConfig{
		Health: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("metrics"))
		}),
	})
}

func do(t *testing.T, r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errors.APIError {
	t.Helper()
	var apiErr errors.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.NotEmpty(t, apiErr.RequestID)
	return apiErr
}

func TestRouter_CreateSensor(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	rec := do(t, r, http.MethodPost, "/api/v1/sensors", `{"name":"roof","latitude":1,"longitude":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sensor models.Sensor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sensor))
	assert.Equal(t, "roof", sensor.Name)

	rec = do(t, r, http.MethodPost, "/api/v1/sensors", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.ErrorTypeValidation, decodeError(t, rec).Type)

	svc.createErr = errors.NewConflictError("sensor name already exists", nil)
	rec = do(t, r, http.MethodPost, "/api/v1/sensors", `{"name":"roof"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errors.ErrorTypeConflict, decodeError(t, rec).Type)
}

func TestRouter_ListSensors(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	rec := do(t, r, http.MethodGet, "/api/v1/sensors?offset=5&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]int{5, 2}, svc.listArgs)

	rec = do(t, r, http.MethodGet, "/api/v1/sensors?name=a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sensors []models.Sensor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sensors))
	require.Len(t, sensors, 1)
	assert.Equal(t, "a", sensors[0].Name)

	rec = do(t, r, http.MethodGet, "/api/v1/sensors?name=zzz", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/v1/sensors?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_GetSensorErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantType errors.ErrorType
	}{
		{"not found", errors.NewNotFoundError("sensor not found", nil), http.StatusNotFound, errors.ErrorTypeNotFound},
		{"no telemetry", errors.NewNoTelemetryError(9, nil), http.StatusNotFound, errors.ErrorTypeNoTelemetry},
		{"inconsistent", errors.NewInconsistentStateError("no metadata", 9, nil), http.StatusConflict, errors.ErrorTypeInconsistentState},
		{"foreign error", context.DeadlineExceeded, http.StatusInternalServerError, errors.ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&fakeService{viewErr: tt.err})
			rec := do(t, r, http.MethodGet, "/api/v1/sensors/9", "")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantType, decodeError(t, rec).Type)
		})
	}
}

func TestRouter_GetSensor(t *testing.T) {
	r := newTestRouter(&fakeService{})

	rec := do(t, r, http.MethodGet, "/api/v1/sensors/9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view models.SensorView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, int64(9), view.ID)

	rec = do(t, r, http.MethodGet, "/api/v1/sensors/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/v1/sensors/0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_DeleteSensor(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	rec := do(t, r, http.MethodDelete, "/api/v1/sensors/4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Warning"))

	svc.deleteErr = errors.NewPartialWriteError("purge failed", 4, nil)
	rec = do(t, r, http.MethodDelete, "/api/v1/sensors/4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Warning"))

	svc.deleteErr = errors.NewNotFoundError("sensor not found", nil)
	rec = do(t, r, http.MethodDelete, "/api/v1/sensors/4", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_RecordTelemetry(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	rec := do(t, r, http.MethodPut, "/api/v1/sensors/4/telemetry", `{"temperature":20.5,"humidity":50}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, svc.recorded)
	assert.Equal(t, 20.5, svc.recorded.Temperature)

	svc.recordErr = errors.NewNotFoundError("sensor not found", nil)
	rec = do(t, r, http.MethodPut, "/api/v1/sensors/4/telemetry", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_FindNearby(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	rec := do(t, r, http.MethodGet, "/api/v1/sensors/nearby?lat=48.1&lon=11.5&radius_km=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [3]float64{48.1, 11.5, 3}, svc.nearbyArgs)

	rec = do(t, r, http.MethodGet, "/api/v1/sensors/nearby?lat=48.1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.nearbyErr = errors.NewUnavailableError("metadata store query failed", nil)
	rec = do(t, r, http.MethodGet, "/api/v1/sensors/nearby?lat=0&lon=0&radius_km=1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, errors.ErrorTypeUnavailable, decodeError(t, rec).Type)
}

func TestRouter_Operational(t *testing.T) {
	r := newTestRouter(&fakeService{})

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/api/v1/health", "").Code)
	rec := do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	r := newTestRouter(&fakeService{panicOnGet: true})

	rec := do(t, r, http.MethodGet, "/api/v1/sensors/1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
