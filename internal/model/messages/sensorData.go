package messages

import (
	"math"
	"time"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

// SensorData is one payload of a plant sensor, in the format published by
// miflora-mqtt-daemon. Absent fields are nil.
type SensorData struct {
	SensorID     string    `json:"sensor_id,omitempty"`
	Temperature  *float64  `json:"temperature,omitempty"`
	Conductivity *float64  `json:"conductivity,omitempty"`
	Moisture     *float64  `json:"moisture,omitempty"`
	Light        *float64  `json:"light,omitempty"`
	Battery      *float64  `json:"battery,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Value returns the raw value for m, if the payload carries it.
func (s SensorData) Value(m entities.Metric) (float64, bool) {
	var p *float64
	switch m {
	case entities.MetricTemperature:
		p = s.Temperature
	case entities.MetricConductivity:
		p = s.Conductivity
	case entities.MetricMoisture:
		p = s.Moisture
	case entities.MetricLight:
		p = s.Light
	case entities.MetricBattery:
		p = s.Battery
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Readings splits the payload into one reading per carried metric.
func (s SensorData) Readings() []MetricReading {
	out := make([]MetricReading, 0, len(entities.AllMetrics))
	for _, m := range entities.AllMetrics {
		v, ok := s.Value(m)
		if !ok {
			continue
		}
		out = append(out, NewReading(m, v, s.Timestamp))
	}
	return out
}

// MetricReading is a timestamped scalar for one metric of one sensor.
type MetricReading struct {
	Metric entities.Metric `json:"metric"`
	Value  float64         `json:"value"`
	At     time.Time       `json:"at"`
	Valid  bool            `json:"valid"`
}

// NewReading builds a reading and derives its validity: NaN, infinities and
// the metric's "no reading" sentinel are invalid.
func NewReading(m entities.Metric, v float64, at time.Time) MetricReading {
	valid := !math.IsNaN(v) && !math.IsInf(v, 0) && v != m.Sentinel()
	return MetricReading{Metric: m, Value: v, At: at, Valid: valid}
}
