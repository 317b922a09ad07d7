package models

import "time"

// SampleQuality classifies the confidence of a location fix
type SampleQuality string

const (
	QualityGood          SampleQuality = "GOOD"
	QualityLowConfidence SampleQuality = "LOW_CONFIDENCE" // high-accuracy request returned > 1 km accuracy
	QualityCoarse        SampleQuality = "COARSE"         // network-level positioning, accuracy above coarse ceiling
)

// GeoPoint is a bare latitude/longitude pair in decimal degrees
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationSample represents a single reading from the positioning source.
// Samples are immutable after creation.
type LocationSample struct {
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Timestamp time.Time     `json:"timestamp"`
	AccuracyM float64       `json:"accuracy_m"` // reported accuracy in meters; 0 when unknown
	SpeedMPS  *float64      `json:"speed_mps,omitempty"`
	Quality   SampleQuality `json:"quality,omitempty"`
}

// Point returns the sample's coordinates
func (s LocationSample) Point() GeoPoint {
	return GeoPoint{Latitude: s.Latitude, Longitude: s.Longitude}
}
