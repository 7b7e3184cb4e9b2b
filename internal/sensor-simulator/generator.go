package sensor_simulator

import (
	"math"
	"math/rand"
	"time"

	"github.com/LeonardoBeccarini/flora/internal/model/messages"
)

// ====== Tunables ======
const (
	// gainPerMin: +1.5 moisture points per minute while watered.
	gainPerMin = 1.5

	// defaultSeed is the moisture of a fresh generator.
	defaultSeed = 45.0

	// batteryDrainPerDay in percent.
	batteryDrainPerDay = 0.2
)

// DataGenerator keeps the simulated state of one plant sensor and advances
// it over time.
type DataGenerator struct {
	id          string
	last        time.Time
	moisture    float64 // percent
	battery     float64 // percent
	decayPerMin float64
	rng         *rand.Rand
}

// NewDataGenerator creates a generator losing decayPerMin moisture points per
// minute while not watered.
func NewDataGenerator(id string, decayPerMin float64, seed int64) *DataGenerator {
	return &DataGenerator{
		id:          id,
		moisture:    defaultSeed,
		battery:     100,
		decayPerMin: math.Max(0, decayPerMin),
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// SetMoisture overrides the current moisture.
func (g *DataGenerator) SetMoisture(v float64) { g.moisture = clamp(v, 0, 100) }

func (g *DataGenerator) Moisture() float64 { return g.moisture }

// Advance moves the state to now; watering tells whether water flowed since
// the last call.
func (g *DataGenerator) Advance(now time.Time, watering bool) {
	if g.last.IsZero() {
		g.last = now
		return
	}
	dtMin := now.Sub(g.last).Minutes()
	if dtMin <= 0 {
		return
	}
	if watering {
		g.moisture = clamp(g.moisture+gainPerMin*dtMin, 0, 100)
	} else {
		g.moisture = clamp(g.moisture-g.decayPerMin*dtMin, 0, 100)
	}
	g.battery = clamp(g.battery-batteryDrainPerDay*dtMin/(24*60), 0, 100)
	g.last = now
}

// Next renders the current state as a daemon payload.
func (g *DataGenerator) Next(now time.Time) messages.SensorData {
	// daylight between 06:00 and 20:00, peak at 13:00
	h := float64(now.Hour()) + float64(now.Minute())/60
	day := math.Max(0, math.Sin((h-6)/14*math.Pi))

	temperature := 16 + 8*day + g.rng.NormFloat64()*0.3
	light := math.Round(day*12000 + math.Abs(g.rng.NormFloat64())*20)
	moisture := math.Round(clamp(g.moisture+g.rng.NormFloat64()*0.5, 0, 100))
	conductivity := math.Round(g.moisture * 9)
	battery := math.Round(g.battery)

	return messages.SensorData{
		SensorID:     g.id,
		Temperature:  &temperature,
		Conductivity: &conductivity,
		Moisture:     &moisture,
		Light:        &light,
		Battery:      &battery,
		Timestamp:    now,
	}
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}
