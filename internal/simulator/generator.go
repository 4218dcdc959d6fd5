// Package simulator produces plausible plant-sensor readings for demos and
// load tests. It is a client of Flora Core, never part of the server.
package simulator

import (
	"math"
	"math/rand"
	"sync"

	"github.com/nerrad567/flora-core/internal/device"
)

// Value ranges readings are clamped to.
const (
	minTemperature = 5.0
	maxTemperature = 45.0
	minLight       = 0.0
	maxLight       = 2000.0

	// soilDecayPerTick is how much the soil dries between readings.
	soilDecayPerTick = 0.4

	// DefaultWaterAmount is the soil moisture gain of one watering.
	DefaultWaterAmount = 25.0
)

// Generator is a random walk over one device's sensors. Soil moisture drifts
// down until Water is called.
type Generator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	state device.Sensors
}

// NewGenerator creates a generator with a starting point drawn from seed.
func NewGenerator(seed int64) *Generator {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // simulated data
	return &Generator{
		rng: rng,
		state: device.Sensors{
			Temperature:  round1(22 + rng.Float64()*6),
			Humidity:     round1(45 + rng.Float64()*20),
			SoilMoisture: round1(30 + rng.Float64()*30),
			LightLevel:   math.Round(300 + rng.Float64()*600),
		},
	}
}

// Next advances the walk one step and returns the new reading.
func (g *Generator) Next() device.Sensors {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := &g.state
	s.Temperature = round1(clamp(s.Temperature+g.rng.NormFloat64()*0.3, minTemperature, maxTemperature))
	s.Humidity = round1(clamp(s.Humidity+g.rng.NormFloat64(), 0, 100))
	s.SoilMoisture = round1(clamp(s.SoilMoisture-soilDecayPerTick+g.rng.NormFloat64()*0.2, 0, 100))
	s.LightLevel = math.Round(clamp(s.LightLevel+g.rng.NormFloat64()*40, minLight, maxLight))

	return *s
}

// Current returns the last reading without advancing.
func (g *Generator) Current() device.Sensors {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Water raises soil moisture by amount, capped at 100%.
func (g *Generator) Water(amount float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.SoilMoisture = round1(clamp(g.state.SoilMoisture+amount, 0, 100))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
