package dashboard

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/flora-core/internal/device"
)

// Alert thresholds.
const (
	DefaultStaleAfter        = 300 * time.Second
	LowMoistureThreshold     = 20.0 // %, strictly below
	HighTemperatureThreshold = 35.0 // °C, strictly above
)

// AlertKind identifies the condition that raised an alert.
type AlertKind string

const (
	AlertStale           AlertKind = "stale"
	AlertLowMoisture     AlertKind = "low_moisture"
	AlertHighTemperature AlertKind = "high_temperature"
)

// Severity grades an alert.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Alert is one condition on one device.
type Alert struct {
	Kind       AlertKind `json:"kind"`
	Severity   Severity  `json:"severity"`
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	Message    string    `json:"message"`
}

// EvaluateAlerts checks every record independently. A device silent for
// longer than staleAfter is stale whatever its activity; the sensor
// thresholds apply to active devices only. No state carries between calls.
func EvaluateAlerts(records []device.Record, now time.Time, staleAfter time.Duration) []Alert {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	var alerts []Alert
	for _, r := range records {
		if r.LastSeen != nil {
			if age := now.Sub(*r.LastSeen); age > staleAfter {
				alerts = append(alerts, Alert{
					Kind:       AlertStale,
					Severity:   SeverityError,
					DeviceID:   r.ID,
					DeviceName: r.Name,
					Message:    fmt.Sprintf("%s has not reported for %d minutes", r.Name, int(age.Minutes())),
				})
			}
		}

		if !r.IsActive {
			continue
		}
		if r.Sensors.SoilMoisture < LowMoistureThreshold {
			alerts = append(alerts, Alert{
				Kind:       AlertLowMoisture,
				Severity:   SeverityWarning,
				DeviceID:   r.ID,
				DeviceName: r.Name,
				Message:    fmt.Sprintf("%s soil moisture is low (%s%%)", r.Name, formatValue(r.Sensors.SoilMoisture)),
			})
		}
		if r.Sensors.Temperature > HighTemperatureThreshold {
			alerts = append(alerts, Alert{
				Kind:       AlertHighTemperature,
				Severity:   SeverityWarning,
				DeviceID:   r.ID,
				DeviceName: r.Name,
				Message:    fmt.Sprintf("%s temperature is high (%s°C)", r.Name, formatValue(r.Sensors.Temperature)),
			})
		}
	}
	return alerts
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
