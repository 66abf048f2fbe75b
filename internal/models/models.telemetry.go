package models

import (
	"fmt"
	"math"
	"time"
)

// Telemetry blob schema revisions. Revision 1 predates velocity.
const (
	TelemetrySchemaV1 = 1
	TelemetrySchemaV2 = 2
)

// SensorTelemetry is the latest dynamic reading of a sensor, stored as one JSON blob
type SensorTelemetry struct {
	SchemaVersion int       `json:"schema_version,omitempty"`
	Velocity      *float64  `json:"velocity,omitempty"`
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	BatteryLevel  float64   `json:"battery_level"`
	LastSeen      time.Time `json:"last_seen"`
}

// TelemetryKey returns the cache key holding the telemetry blob of a sensor
func TelemetryKey(sensorID int64) string {
	return fmt.Sprintf("sensor:%d:data", sensorID)
}

// Normalize stamps the schema revision and fills a missing timestamp
func (t *SensorTelemetry) Normalize(now time.Time) {
	if t.Velocity != nil {
		t.SchemaVersion = TelemetrySchemaV2
	} else {
		t.SchemaVersion = TelemetrySchemaV1
	}
	if t.LastSeen.IsZero() {
		t.LastSeen = now
	}
}

// Validate rejects readings that cannot be represented as JSON numbers
func (t *SensorTelemetry) Validate() error {
	values := map[string]float64{
		"temperature":   t.Temperature,
		"humidity":      t.Humidity,
		"battery_level": t.BatteryLevel,
	}
	if t.Velocity != nil {
		values["velocity"] = *t.Velocity
	}
	for field, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be a finite number", field)
		}
	}
	return nil
}
