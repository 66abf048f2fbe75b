package resources

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/itsatony/sensorhub/internal/errors"
	"github.com/itsatony/sensorhub/internal/hubservice"
	"github.com/itsatony/sensorhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// SensorHandlers encapsulates the sensor-related HTTP handlers
type SensorHandlers struct {
	service hubservice.SensorService
}

func NewSensorHandlers(svc hubservice.SensorService) *SensorHandlers {
	return &SensorHandlers{service: svc}
}

type listQuery struct {
	Offset int    `schema:"offset"`
	Limit  int    `schema:"limit"`
	Name   string `schema:"name"`
}

type nearbyQuery struct {
	Latitude  float64 `schema:"lat,required"`
	Longitude float64 `schema:"lon,required"`
	RadiusKm  float64 `schema:"radius_km,required"`
}

// @Summary Create a new sensor
// @Description Register a sensor identity together with its metadata document
// @Tags sensors
// @Accept json
// @Produce json
// @Param sensor body models.CreateSensorRequest true "Sensor details"
// @Success 201 {object} models.Sensor
// @Failure 400 {object} errors.APIError
// @Failure 409 {object} errors.APIError
// @Router /sensors [post]
func (h *SensorHandlers) CreateSensor(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var req models.CreateSensorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, requestID, errors.NewValidationError("invalid request body", err))
		return
	}

	sensor, err := h.service.CreateSensor(r.Context(), &req)
	if err != nil {
		respondWithError(w, requestID, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, sensor)
}

// @Summary List sensors
// @Description List sensor identities ordered by id, or look one up by name
// @Tags sensors
// @Produce json
// @Param offset query int false "Offset"
// @Param limit query int false "Limit (default 100, max 1000)"
// @Param name query string false "Exact sensor name"
// @Success 200 {array} models.Sensor
// @Router /sensors [get]
func (h *SensorHandlers) ListSensors(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var q listQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, requestID, errors.NewValidationError("invalid query parameters", err))
		return
	}

	if q.Name != "" {
		sensor, err := h.service.GetSensorByName(r.Context(), q.Name)
		if err != nil {
			respondWithError(w, requestID, err)
			return
		}
		respondWithJSON(w, http.StatusOK, []*models.Sensor{sensor})
		return
	}

	sensors, err := h.service.ListSensors(r.Context(), q.Offset, q.Limit)
	if err != nil {
		respondWithError(w, requestID, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sensors)
}

// @Summary Get sensor view
// @Description Get identity, metadata and latest telemetry of one sensor
// @Tags sensors
// @Produce json
// @Param id path int true "Sensor ID"
// @Success 200 {object} models.SensorView
// @Failure 404 {object} errors.APIError
// @Failure 409 {object} errors.APIError
// @Router /sensors/{id} [get]
func (h *SensorHandlers) GetSensor(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	id, err := sensorID(r)
	if err != nil {
		respondWithError(w, requestID, err)
		return
	}

	view, err := h.service.GetSensorView(r.Context(), id)
	if err != nil {
		respondWithError(w, requestID, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

// @Summary Delete sensor
// @Description Delete a sensor and, when cascading, its metadata and telemetry
// @Tags sensors
// @Produce json
// @Param id path int true "Sensor ID"
// @Success 200 {object} models.Sensor
// @Failure 404 {object} errors.APIError
// @Router /sensors/{id} [delete]
func (h *SensorHandlers) DeleteSensor(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	id, err := sensorID(r)
	if err != nil {
		respondWithError(w, requestID, err)
		return
	}

	sensor, err := h.service.DeleteSensor(r.Context(), id)
	if err != nil {
		if sensor == nil || !errors.IsPartialWrite(err) {
			respondWithError(w, requestID, err)
			return
		}
		// the sensor is gone; the residue is left to the orphan sweep
		nuts.L.Warnf("[SensorHandler] %s: sensor %d deleted with residue: %v", requestID, id, err)
		w.Header().Set("Warning", `199 - "metadata or telemetry purge incomplete"`)
	}

	respondWithJSON(w, http.StatusOK, sensor)
}

// @Summary Record telemetry
// @Description Overwrite the latest telemetry of a sensor
// @Tags sensors
// @Accept json
// @Param id path int true "Sensor ID"
// @Param telemetry body models.SensorTelemetry true "Telemetry reading"
// @Success 204
// @Failure 400 {object} errors.APIError
// @Failure 404 {object} errors.APIError
// @Router /sensors/{id}/telemetry [put]
func (h *SensorHandlers) RecordTelemetry(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	id, err := sensorID(r)
	if err != nil {
		respondWithError(w, requestID, err)
		return
	}

	var reading models.SensorTelemetry
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		respondWithError(w, requestID, errors.NewValidationError("invalid request body", err))
		return
	}

	if err := h.service.RecordTelemetry(r.Context(), id, reading); err != nil {
		respondWithError(w, requestID, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// @Summary Find nearby sensors
// @Description Sensors inside the bounding box around a point, with telemetry
// @Tags sensors
// @Produce json
// @Param lat query number true "Center latitude"
// @Param lon query number true "Center longitude"
// @Param radius_km query number true "Radius in kilometers"
// @Success 200 {array} models.SensorView
// @Failure 400 {object} errors.APIError
// @Failure 503 {object} errors.APIError
// @Router /sensors/nearby [get]
func (h *SensorHandlers) FindNearby(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var q nearbyQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, requestID, errors.NewValidationError("lat, lon and radius_km are required numbers", err))
		return
	}

	views, err := h.service.FindNearby(r.Context(), q.Latitude, q.Longitude, q.RadiusKm)
	if err != nil {
		respondWithError(w, requestID, err)
		return
	}

	respondWithJSON(w, http.StatusOK, views)
}

func sensorID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError("invalid sensor id "+strconv.Quote(raw), err)
	}
	return id, nil
}
