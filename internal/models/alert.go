package models

import (
	"time"
)

// AlertEvent describes one fired threshold alert. It is what the engine
// hands to the alert stream publisher when Kafka is configured.
type AlertEvent struct {
	// Subscriber the alert was delivered to
	SubscriberID int64 `json:"subscriber_id"`

	// Sensor and bound that fired
	SensorID  string    `json:"sensor_id"`
	Metric    string    `json:"metric"`
	Direction Direction `json:"direction"`

	// Observed value and the configured bound it breached
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`

	// Unix timestamp of the underlying reading
	ObservedAt int64 `json:"observed_at"`

	// When the engine fired the alert
	FiredAt time.Time `json:"fired_at"`

	// Key used to partition the alert stream
	PartitionKey string `json:"partition_key"`
}

// NewAlertEvent builds an alert event for a breached bound.
func NewAlertEvent(subscriberID int64, key ThresholdKey, reading Reading, threshold float64) *AlertEvent {
	return &AlertEvent{
		SubscriberID: subscriberID,
		SensorID:     key.SensorID,
		Metric:       key.Metric,
		Direction:    key.Direction,
		Value:        reading.Value,
		Threshold:    threshold,
		ObservedAt:   reading.ObservedAt,
		FiredAt:      time.Now().UTC(),
		PartitionKey: key.SensorID, // partition by sensor for ordering
	}
}
