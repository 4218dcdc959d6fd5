package dashboard

import (
	"math"

	"github.com/nerrad567/flora-core/internal/device"
)

// Stats summarizes the view. Averages is nil when no device is active.
type Stats struct {
	Total    int       `json:"total"`
	Active   int       `json:"active"`
	Averages *Averages `json:"averages"`
}

// Averages are means over active devices. Temperature, humidity and soil
// moisture are rounded to one decimal, light level to a whole lux.
type Averages struct {
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	SoilMoisture float64 `json:"soilMoisture"`
	LightLevel   float64 `json:"lightLevel"`
}

// ComputeStats derives the active count and averages from records.
func ComputeStats(records []device.Record) Stats {
	st := Stats{Total: len(records)}

	var sum device.Sensors
	for _, r := range records {
		if !r.IsActive {
			continue
		}
		st.Active++
		sum.Temperature += r.Sensors.Temperature
		sum.Humidity += r.Sensors.Humidity
		sum.SoilMoisture += r.Sensors.SoilMoisture
		sum.LightLevel += r.Sensors.LightLevel
	}

	if st.Active == 0 {
		return st
	}

	n := float64(st.Active)
	st.Averages = &Averages{
		Temperature:  roundTo(sum.Temperature/n, 1),
		Humidity:     roundTo(sum.Humidity/n, 1),
		SoilMoisture: roundTo(sum.SoilMoisture/n, 1),
		LightLevel:   math.Round(sum.LightLevel / n),
	}
	return st
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
