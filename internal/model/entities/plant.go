package entities

// Bounds holds the optional limits of one metric. A nil bound is not
// configured and never triggers.
type Bounds struct {
	Min *float64 `mapstructure:"min" json:"min,omitempty"`
	Lo  *float64 `mapstructure:"lo" json:"lo,omitempty"`   // moisture only, lower edge of the optimal band
	Hi  *float64 `mapstructure:"hi" json:"hi,omitempty"`   // moisture only, upper edge of the optimal band
	Irr *float64 `mapstructure:"irr" json:"irr,omitempty"` // light only, irrigation is suppressed above it
	Max *float64 `mapstructure:"max" json:"max,omitempty"`
}

// PlantProfile is the immutable configuration of one sensor and the plant it watches.
type PlantProfile struct {
	Sensor  string   `mapstructure:"sensor" json:"sensor" validate:"required"`
	Plant   string   `mapstructure:"plant" json:"plant"`
	Address string   `mapstructure:"address" json:"address,omitempty"`
	Metrics []Metric `mapstructure:"metrics" json:"metrics,omitempty"`

	Temperature  Bounds `mapstructure:"temperature" json:"temperature"`
	Conductivity Bounds `mapstructure:"conductivity" json:"conductivity"`
	Moisture     Bounds `mapstructure:"moisture" json:"moisture"`
	Light        Bounds `mapstructure:"light" json:"light"`
}

// ExpectedMetrics returns the metrics the sensor must deliver each cycle.
// An empty list means the full Mi Flora set.
func (p PlantProfile) ExpectedMetrics() []Metric {
	if len(p.Metrics) == 0 {
		return AllMetrics
	}
	return p.Metrics
}

// Expects reports whether m belongs to the sensor's metric set.
func (p PlantProfile) Expects(m Metric) bool {
	for _, e := range p.ExpectedMetrics() {
		if e == m {
			return true
		}
	}
	return false
}

// BoundsFor returns the bounds configured for m. Battery has no per-plant
// bounds; its limit is global.
func (p PlantProfile) BoundsFor(m Metric) Bounds {
	switch m {
	case MetricTemperature:
		return p.Temperature
	case MetricConductivity:
		return p.Conductivity
	case MetricMoisture:
		return p.Moisture
	case MetricLight:
		return p.Light
	default:
		return Bounds{}
	}
}

// F is a helper for building bounds literals.
func F(v float64) *float64 { return &v }
