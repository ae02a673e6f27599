package status

import (
	"fmt"
	"strings"
	"time"

	"vigil/internal/models"
)

// FetchFailureReply is returned when an on-demand status request cannot
// reach the sensor feed. We never show stale or partial data instead.
const FetchFailureReply = "❌ Could not retrieve sensor data."

const timestampLayout = "02.01.2006 15:04:05"

// Renderer formats readings and alerts for subscribers. Display names come
// from configuration; unknown sensors fall back to their raw identifier.
type Renderer struct {
	sensorNames map[string]string
}

// NewRenderer creates a renderer with the given sensor display names.
func NewRenderer(sensorNames map[string]string) *Renderer {
	if sensorNames == nil {
		sensorNames = map[string]string{}
	}
	return &Renderer{sensorNames: sensorNames}
}

// SensorName returns the display name for a sensor, or the raw ID when no
// name is configured.
func (r *Renderer) SensorName(sensorID string) string {
	if name, ok := r.sensorNames[sensorID]; ok {
		return name
	}
	return sensorID
}

// MetricDisplay maps a metric to its display name and unit.
func MetricDisplay(metric string) (string, string) {
	switch metric {
	case "temperature":
		return "Temperature", "°C"
	case "humidity":
		return "Humidity", "%"
	default:
		return metric, ""
	}
}

// Readings renders all readings as one status message, with localized
// timestamps.
func (r *Renderer) Readings(readings []models.Reading) string {
	var b strings.Builder
	b.WriteString("📊 *Current sensor readings:*\n")

	for _, reading := range readings {
		name, unit := MetricDisplay(reading.Metric)
		ts := reading.Time().In(time.Local).Format(timestampLayout)

		fmt.Fprintf(&b, "📍 *%s* – %s: *%.1f %s* (%s)\n",
			r.SensorName(reading.SensorID), name, reading.Value, unit, ts)
	}

	return b.String()
}

// Alert renders the notification text for a breached bound.
func (r *Renderer) Alert(key models.ThresholdKey, value, bound float64) string {
	name, unit := MetricDisplay(key.Metric)

	switch key.Direction {
	case models.DirectionMin:
		return fmt.Sprintf("⚠ %s at %s fell below the threshold: %.1f %s (threshold: %.1f)",
			name, r.SensorName(key.SensorID), value, unit, bound)
	default:
		return fmt.Sprintf("⚠ %s at %s rose above the threshold: %.1f %s (threshold: %.1f)",
			name, r.SensorName(key.SensorID), value, unit, bound)
	}
}

// SetConfirmation renders the reply for a successful threshold command.
func (r *Renderer) SetConfirmation(key models.ThresholdKey, value float64) string {
	name, unit := MetricDisplay(key.Metric)

	arrow := "🔺 MAX"
	if key.Direction == models.DirectionMin {
		arrow = "🔻 MIN"
	}

	return fmt.Sprintf("%s threshold for %s at %s set to %.1f %s",
		arrow, name, r.SensorName(key.SensorID), value, unit)
}
