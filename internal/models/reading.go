package models

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Reading represents a single sensor observation as returned by the feed.
type Reading struct {
	// Unique identifier of the reporting sensor
	SensorID string `json:"device_id"`

	// Metric name, e.g. "temperature" or "humidity"
	Metric string `json:"sensor_type"`

	// Measured value
	Value float64 `json:"value"`

	// Unix timestamp of the observation
	ObservedAt int64 `json:"timestamp"`
}

// Validation errors
var (
	ErrEmptySensorID  = errors.New("sensor ID cannot be empty")
	ErrEmptyMetric    = errors.New("metric cannot be empty")
	ErrNonFiniteValue = errors.New("value must be a finite number")
)

// Validate checks if the Reading has all required fields and valid values
func (r *Reading) Validate() error {
	if r.SensorID == "" {
		return ErrEmptySensorID
	}

	if r.Metric == "" {
		return ErrEmptyMetric
	}

	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return ErrNonFiniteValue
	}

	return nil
}

// Normalize applies field normalization to a Reading
// - trims and lower-cases SensorID and Metric
func (r *Reading) Normalize() {
	r.SensorID = strings.ToLower(strings.TrimSpace(r.SensorID))
	r.Metric = strings.ToLower(strings.TrimSpace(r.Metric))
}

// Time returns the observation timestamp as a time.Time.
func (r *Reading) Time() time.Time {
	return time.Unix(r.ObservedAt, 0)
}
