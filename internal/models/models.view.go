package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// SensorView is the composed read model of one sensor. It is built on read
// and never persisted.
type SensorView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	SensorAttributes
	SensorTelemetry
	Stale bool `json:"stale"`
	// Extra holds telemetry keys the current schema does not know
	Extra JSON `json:"extra,omitempty"`
}

var viewFields = jsonFieldNames(reflect.TypeOf(SensorView{}))

// ComposeView merges identity, metadata and the raw telemetry blob.
// Telemetry is applied first and metadata second, so metadata wins on a key
// collision. id and name always come from the identity row.
func ComposeView(sensor *Sensor, meta *SensorMetadata, telemetry []byte) (*SensorView, error) {
	merged := JSON{}
	if len(telemetry) > 0 {
		if err := json.Unmarshal(telemetry, &merged); err != nil {
			return nil, fmt.Errorf("decode telemetry: %w", err)
		}
	}

	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		static := JSON{}
		if err := json.Unmarshal(raw, &static); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		for k, v := range static {
			merged[k] = v
		}
	}

	merged["id"] = sensor.ID
	merged["name"] = sensor.Name

	extra := JSON{}
	for k, v := range merged {
		if _, known := viewFields[k]; !known || k == "extra" || k == "stale" {
			extra[k] = v
			delete(merged, k)
		}
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode view: %w", err)
	}
	view := &SensorView{}
	if err := json.Unmarshal(raw, view); err != nil {
		return nil, fmt.Errorf("decode view: %w", err)
	}
	if len(extra) > 0 {
		view.Extra = extra
	}
	return view, nil
}

// jsonFieldNames collects the json keys of t, flattening embedded structs
func jsonFieldNames(t reflect.Type) map[string]struct{} {
	names := map[string]struct{}{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			for name := range jsonFieldNames(f.Type) {
				names[name] = struct{}{}
			}
			continue
		}
		tag := strings.Split(f.Tag.Get("json"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		names[tag] = struct{}{}
	}
	return names
}
