package entities

// Metric identifies one measured quantity of a plant sensor.
type Metric string

const (
	MetricTemperature  Metric = "temperature"
	MetricConductivity Metric = "conductivity"
	MetricMoisture     Metric = "moisture"
	MetricLight        Metric = "light"
	MetricBattery      Metric = "battery"
)

// AllMetrics is the full Mi Flora metric set, in report order.
var AllMetrics = []Metric{
	MetricTemperature,
	MetricConductivity,
	MetricMoisture,
	MetricLight,
	MetricBattery,
}

func (m Metric) Known() bool {
	for _, k := range AllMetrics {
		if k == m {
			return true
		}
	}
	return false
}

// Sentinel returns the value the acquisition layer reports when it has no
// reading for m.
func (m Metric) Sentinel() float64 {
	if m == MetricTemperature {
		return -273
	}
	return -1
}

// Side tells which bound a reading violated.
type Side int

const (
	SideNone Side = iota
	SideLow
	SideHigh
)

func (s Side) String() string {
	switch s {
	case SideLow:
		return "low"
	case SideHigh:
		return "high"
	default:
		return "none"
	}
}
