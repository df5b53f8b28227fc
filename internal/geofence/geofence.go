// Package geofence decides whether a reported position lies inside a
// project's circular site boundary.
package geofence

import (
	"fmt"
	"math"
	"time"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371008.8

// Coordinate is a position reported by a worker device.
type Coordinate struct {
	Latitude   float64   `yaml:"latitude" json:"latitude"`
	Longitude  float64   `yaml:"longitude" json:"longitude"`
	Accuracy   float64   `yaml:"accuracy,omitempty" json:"accuracy,omitempty"`
	CapturedAt time.Time `yaml:"captured_at,omitempty" json:"capturedAt,omitempty"`
}

// Fence is a circular boundary around a project site. AllowedVariance widens
// the radius unless StrictMode is set.
type Fence struct {
	Latitude        float64 `yaml:"latitude" json:"latitude"`
	Longitude       float64 `yaml:"longitude" json:"longitude"`
	RadiusMeters    float64 `yaml:"radius_meters" json:"radiusMeters"`
	StrictMode      bool    `yaml:"strict_mode" json:"strictMode"`
	AllowedVariance float64 `yaml:"allowed_variance" json:"allowedVariance"`
}

// Result is the outcome of a containment check.
type Result struct {
	Inside        bool    `json:"inside"`
	Distance      float64 `json:"distance"`
	AllowedRadius float64 `json:"allowedRadius"`
}

func validLatLng(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lng)
	}
	return nil
}

// Validate checks the coordinate itself, independent of any fence.
func (c Coordinate) Validate() error {
	if err := validLatLng(c.Latitude, c.Longitude); err != nil {
		return err
	}
	if math.IsNaN(c.Accuracy) || c.Accuracy < 0 {
		return fmt.Errorf("accuracy must be non-negative")
	}
	return nil
}

// Validate checks the fence definition.
func (f Fence) Validate() error {
	if err := validLatLng(f.Latitude, f.Longitude); err != nil {
		return err
	}
	if math.IsNaN(f.RadiusMeters) || f.RadiusMeters <= 0 {
		return fmt.Errorf("radius must be positive")
	}
	if math.IsNaN(f.AllowedVariance) || f.AllowedVariance < 0 {
		return fmt.Errorf("allowed variance must be non-negative")
	}
	return nil
}

// AllowedRadius is the effective radius a position is compared against.
func (f Fence) AllowedRadius() float64 {
	if f.StrictMode {
		return f.RadiusMeters
	}
	return f.RadiusMeters + f.AllowedVariance
}

// Distance returns the haversine distance in meters between two points.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	dφ := (lat2 - lat1) * math.Pi / 180
	dλ := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dφ/2)*math.Sin(dφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(dλ/2)*math.Sin(dλ/2)
	// rounding can push a just outside [0, 1] near antipodes
	a = min(1, max(0, a))
	c := 2 * math.Asin(math.Sqrt(a))
	return EarthRadiusMeters * c
}

// Check reports whether c lies inside f. The boundary itself counts as inside.
func Check(c Coordinate, f Fence) Result {
	d := Distance(c.Latitude, c.Longitude, f.Latitude, f.Longitude)
	allowed := f.AllowedRadius()
	return Result{
		Inside:        d <= allowed,
		Distance:      math.Round(d*10) / 10,
		AllowedRadius: allowed,
	}
}
