package models

import "fmt"

// Direction identifies which side of a bound triggers an alert.
type Direction string

const (
	// DirectionMin alerts when the value falls below the bound.
	DirectionMin Direction = "min"
	// DirectionMax alerts when the value rises above the bound.
	DirectionMax Direction = "max"
)

// IsValid checks if the direction is one of min/max
func (d Direction) IsValid() bool {
	return d == DirectionMin || d == DirectionMax
}

// ThresholdKey identifies one directional bound on one metric of one sensor.
type ThresholdKey struct {
	SensorID  string
	Metric    string
	Direction Direction
}

// NewThresholdKey builds a key for the given sensor, metric and direction.
func NewThresholdKey(sensorID, metric string, dir Direction) ThresholdKey {
	return ThresholdKey{SensorID: sensorID, Metric: metric, Direction: dir}
}

// BoundKey returns the wire form of the bound, e.g. "temperature_max".
func (k ThresholdKey) BoundKey() string {
	return fmt.Sprintf("%s_%s", k.Metric, k.Direction)
}

// String returns a human-readable form, e.g. "sensor1/temperature_max".
func (k ThresholdKey) String() string {
	return fmt.Sprintf("%s/%s", k.SensorID, k.BoundKey())
}

// Violates reports whether value breaches the bound in the key's direction.
func (k ThresholdKey) Violates(value, bound float64) bool {
	switch k.Direction {
	case DirectionMin:
		return value < bound
	case DirectionMax:
		return value > bound
	default:
		return false
	}
}
