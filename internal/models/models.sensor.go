// FilePath: internal/models/models.sensor.go
package models

import (
	"time"
)

// JSON is a loosely typed attribute bag
type JSON map[string]interface{}

type SensorType string

const (
	Temperature SensorType = "temperature"
	Humidity    SensorType = "humidity"
	Weather     SensorType = "weather"
	Motion      SensorType = "motion"
	Gas         SensorType = "gas"
	Other       SensorType = "other"
)

// Sensor is the identity row: the canonical record of a sensor's existence.
// ID is generated by the identity store and never reused.
type Sensor struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SensorAttributes are the static descriptive facts of a sensor
type SensorAttributes struct {
	Latitude        float64    `json:"latitude" bson:"latitude"`
	Longitude       float64    `json:"longitude" bson:"longitude"`
	Type            SensorType `json:"type" bson:"type"`
	MacAddress      string     `json:"mac_address" bson:"mac_address"`
	Manufacturer    string     `json:"manufacturer" bson:"manufacturer"`
	Model           string     `json:"model" bson:"model"`
	SerialNumber    string     `json:"serial_number" bson:"serie_number"`
	FirmwareVersion string     `json:"firmware_version" bson:"firmware_version"`
}

// SensorMetadata is the metadata document, keyed by name in the document store
type SensorMetadata struct {
	ID               int64  `json:"id" bson:"id"`
	Name             string `json:"name" bson:"name"`
	SensorAttributes `bson:",inline"`
}

// CreateSensorRequest is the payload accepted when registering a sensor
type CreateSensorRequest struct {
	Name string `json:"name"`
	SensorAttributes
}
