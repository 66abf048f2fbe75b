// Package geo turns a center point and a radius into the bounding box used
// for "sensors near a point" queries. It performs no I/O.
package geo

import (
	"fmt"
	"math"
)

const (
	// KmPerDegreeLatitude is the fixed conversion between kilometers and degrees of latitude
	KmPerDegreeLatitude = 111.12

	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0

	// below this cos(lat) the longitude correction is treated as undefined
	poleEpsilon = 1e-9
)

// Range is an inclusive interval of degrees
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies in the interval, boundaries included
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// BoundingBox is an inclusive latitude/longitude rectangle. Longitude holds two
// ranges when the box crosses the antimeridian.
type BoundingBox struct {
	Latitude  Range   `json:"latitude"`
	Longitude []Range `json:"longitude"`
}

// Contains reports whether the point falls inside the box, boundaries included
func (b BoundingBox) Contains(lat, lon float64) bool {
	if !b.Latitude.Contains(lat) {
		return false
	}
	for _, r := range b.Longitude {
		if r.Contains(lon) {
			return true
		}
	}
	return false
}

// FullLongitude reports whether the box spans every meridian
func (b BoundingBox) FullLongitude() bool {
	return len(b.Longitude) == 1 && b.Longitude[0].Min <= MinLongitude && b.Longitude[0].Max >= MaxLongitude
}

// LatitudeDelta converts a radius in kilometers to degrees of latitude
func LatitudeDelta(radiusKm float64) float64 {
	return radiusKm / KmPerDegreeLatitude
}

// LongitudeDelta converts a radius in kilometers to degrees of longitude at the
// given latitude. ok is false where the correction is undefined (the poles).
func LongitudeDelta(radiusKm, centerLat float64) (delta float64, ok bool) {
	c := math.Cos(centerLat * math.Pi / 180)
	if math.Abs(c) < poleEpsilon {
		return 0, false
	}
	return LatitudeDelta(radiusKm) / c, true
}

// ValidatePoint checks that a coordinate pair is on the globe
func ValidatePoint(lat, lon float64) error {
	if math.IsNaN(lat) || lat < MinLatitude || lat > MaxLatitude {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if math.IsNaN(lon) || lon < MinLongitude || lon > MaxLongitude {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	return nil
}

// NewBoundingBox builds the inclusive box around a center point.
// A negative or non-finite radius is rejected.
func NewBoundingBox(centerLat, centerLon, radiusKm float64) (BoundingBox, error) {
	if err := ValidatePoint(centerLat, centerLon); err != nil {
		return BoundingBox{}, err
	}
	if math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) {
		return BoundingBox{}, fmt.Errorf("radius must be a finite number")
	}
	if radiusKm < 0 {
		return BoundingBox{}, fmt.Errorf("radius must not be negative, got %v", radiusKm)
	}

	dLat := LatitudeDelta(radiusKm)
	box := BoundingBox{
		Latitude: Range{
			Min: math.Max(centerLat-dLat, MinLatitude),
			Max: math.Min(centerLat+dLat, MaxLatitude),
		},
	}

	dLon, ok := LongitudeDelta(radiusKm, centerLat)
	if !ok || dLon >= 180 || box.Latitude.Min <= MinLatitude || box.Latitude.Max >= MaxLatitude {
		box.Longitude = []Range{{Min: MinLongitude, Max: MaxLongitude}}
		return box, nil
	}

	lo, hi := centerLon-dLon, centerLon+dLon
	switch {
	case lo < MinLongitude:
		box.Longitude = []Range{
			{Min: MinLongitude, Max: hi},
			{Min: lo + 360, Max: MaxLongitude},
		}
	case hi > MaxLongitude:
		box.Longitude = []Range{
			{Min: lo, Max: MaxLongitude},
			{Min: MinLongitude, Max: hi - 360},
		}
	default:
		box.Longitude = []Range{{Min: lo, Max: hi}}
	}
	return box, nil
}
