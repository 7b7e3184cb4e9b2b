// Package evaluator classifies single sensor readings against the bounds of a
// plant profile. Every function here is pure.
package evaluator

import (
	"math"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
)

// Result is a classified reading.
type Result struct {
	Severity entities.SeverityLevel
	Side     entities.Side
}

// Evaluate returns the severity of r for metric m. battLow is the global
// battery threshold in percent.
func Evaluate(m entities.Metric, r messages.MetricReading, p entities.PlantProfile, battLow float64) entities.SeverityLevel {
	return Classify(m, r, p, battLow).Severity
}

// Classify is Evaluate plus the side of the violated bound.
func Classify(m entities.Metric, r messages.MetricReading, p entities.PlantProfile, battLow float64) Result {
	if !usable(m, r) {
		return Result{Severity: entities.SeverityError}
	}
	v := r.Value
	switch m {
	case entities.MetricBattery:
		if v <= battLow {
			return Result{Severity: entities.SeverityWarning, Side: entities.SideLow}
		}
		return Result{Severity: entities.SeverityOk}
	case entities.MetricMoisture:
		return banded(v, p.Moisture)
	case entities.MetricTemperature, entities.MetricConductivity, entities.MetricLight:
		return bounded(v, p.BoundsFor(m))
	}
	return Result{Severity: entities.SeverityError}
}

// TooBright reports whether the light reading is at or above the plant's
// irrigation limit. Without a valid reading or a configured limit it is false.
func TooBright(r messages.MetricReading, p entities.PlantProfile) bool {
	if p.Light.Irr == nil || !usable(entities.MetricLight, r) {
		return false
	}
	return r.Value >= *p.Light.Irr
}

// MoistureMargin is the distance of v above the configured minimum; negative
// means below. Without a minimum the margin is +Inf.
func MoistureMargin(v float64, p entities.PlantProfile) float64 {
	if p.Moisture.Min == nil {
		return math.Inf(1)
	}
	return v - *p.Moisture.Min
}

func usable(m entities.Metric, r messages.MetricReading) bool {
	return r.Valid && r.Metric == m && !math.IsNaN(r.Value) && !math.IsInf(r.Value, 0) && r.Value != m.Sentinel()
}

func bounded(v float64, b entities.Bounds) Result {
	switch {
	case b.Min != nil && v < *b.Min:
		return Result{Severity: entities.SeverityWarning, Side: entities.SideLow}
	case b.Max != nil && v > *b.Max:
		return Result{Severity: entities.SeverityWarning, Side: entities.SideHigh}
	}
	return Result{Severity: entities.SeverityOk}
}

// banded classifies moisture: outside [min, max] is a warning, inside but
// outside the optimal [lo, hi] band is informational.
func banded(v float64, b entities.Bounds) Result {
	if r := bounded(v, b); r.Severity != entities.SeverityOk {
		return r
	}
	switch {
	case b.Lo != nil && v < *b.Lo:
		return Result{Severity: entities.SeverityInfo, Side: entities.SideLow}
	case b.Hi != nil && v > *b.Hi:
		return Result{Severity: entities.SeverityInfo, Side: entities.SideHigh}
	}
	return Result{Severity: entities.SeverityOk}
}
