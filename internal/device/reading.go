package device

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// SensorInput is the optional-field form of a sensor block as it arrives on the
// wire. Each field holds whatever the JSON decoder produced (float64, string,
// bool, nil, ...). Coerce turns it into a fully populated Sensors.
type SensorInput struct {
	Temperature  any `json:"temperature,omitempty"`
	Humidity     any `json:"humidity,omitempty"`
	SoilMoisture any `json:"soilMoisture,omitempty"`
	LightLevel   any `json:"lightLevel,omitempty"`
}

// InputFrom converts a Sensors block back into input form.
func InputFrom(s Sensors) *SensorInput {
	return &SensorInput{
		Temperature:  s.Temperature,
		Humidity:     s.Humidity,
		SoilMoisture: s.SoilMoisture,
		LightLevel:   s.LightLevel,
	}
}

// Coerce converts every field independently to a number.
// A nil receiver yields an all-zero block.
func (in *SensorInput) Coerce() Sensors {
	if in == nil {
		return Sensors{}
	}
	return Sensors{
		Temperature:  CoerceNumber(in.Temperature),
		Humidity:     CoerceNumber(in.Humidity),
		SoilMoisture: CoerceNumber(in.SoilMoisture),
		LightLevel:   CoerceNumber(in.LightLevel),
	}
}

// CoerceNumber converts a decoded JSON value to a finite float64.
// Numbers and numeric strings parse; anything else, including NaN and ±Inf, is 0.
func CoerceNumber(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Reading is one accepted observation of a device, after boundary parsing.
// It is the single merge input shared by the server registry and the dashboard.
type Reading struct {
	// Sensors replaces the whole sensor block; nil means all zero.
	Sensors *SensorInput
	// Active is nil when the sender did not say; that counts as active.
	Active *bool
	// LastSeen is the observation time, already defaulted by the caller.
	// The zero time marks a device that has never reported.
	LastSeen time.Time
	// Name and Location overwrite only when non-empty.
	Name     string
	Location string
}

// Apply merges a reading into rec and returns the result.
//
// Rules:
//   - IsActive is true unless the reading explicitly says false
//   - LastSeen is always overwritten (zero time clears it)
//   - Sensors are replaced wholesale, each field coerced independently
//   - Name and Location are overwritten only by non-empty values
func Apply(rec Record, r Reading) Record {
	out := rec.Clone()

	out.IsActive = r.Active == nil || *r.Active

	if r.LastSeen.IsZero() {
		out.LastSeen = nil
	} else {
		seen := r.LastSeen
		out.LastSeen = &seen
	}

	out.Sensors = r.Sensors.Coerce()

	if name := strings.TrimSpace(r.Name); name != "" {
		out.Name = name
	}
	if loc := strings.TrimSpace(r.Location); loc != "" {
		out.Location = loc
	}

	return out
}
