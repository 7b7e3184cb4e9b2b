package evaluator

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
)

var (
	now   = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	basil = entities.PlantProfile{
		Sensor:       "basil",
		Temperature:  entities.Bounds{Min: entities.F(10), Max: entities.F(32)},
		Conductivity: entities.Bounds{Min: entities.F(350)},
		Moisture:     entities.Bounds{Min: entities.F(25), Lo: entities.F(35), Hi: entities.F(55), Max: entities.F(70)},
		Light:        entities.Bounds{Min: entities.F(500), Irr: entities.F(30000), Max: entities.F(60000)},
	}
)

func reading(m entities.Metric, v float64) messages.MetricReading {
	return messages.NewReading(m, v, now)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		metric entities.Metric
		value  float64
		want   Result
	}{
		{"temperature ok", entities.MetricTemperature, 20, Result{entities.SeverityOk, entities.SideNone}},
		{"temperature cold", entities.MetricTemperature, 9.9, Result{entities.SeverityWarning, entities.SideLow}},
		{"temperature hot", entities.MetricTemperature, 33, Result{entities.SeverityWarning, entities.SideHigh}},
		{"temperature sentinel", entities.MetricTemperature, -273, Result{entities.SeverityError, entities.SideNone}},
		{"conductivity without max", entities.MetricConductivity, 1e6, Result{entities.SeverityOk, entities.SideNone}},
		{"conductivity low", entities.MetricConductivity, 100, Result{entities.SeverityWarning, entities.SideLow}},
		{"moisture below min", entities.MetricMoisture, 20, Result{entities.SeverityWarning, entities.SideLow}},
		{"moisture at min", entities.MetricMoisture, 25, Result{entities.SeverityInfo, entities.SideLow}},
		{"moisture below lo", entities.MetricMoisture, 34.9, Result{entities.SeverityInfo, entities.SideLow}},
		{"moisture at lo", entities.MetricMoisture, 35, Result{entities.SeverityOk, entities.SideNone}},
		{"moisture at hi", entities.MetricMoisture, 55, Result{entities.SeverityOk, entities.SideNone}},
		{"moisture above hi", entities.MetricMoisture, 60, Result{entities.SeverityInfo, entities.SideHigh}},
		{"moisture at max", entities.MetricMoisture, 70, Result{entities.SeverityInfo, entities.SideHigh}},
		{"moisture above max", entities.MetricMoisture, 71, Result{entities.SeverityWarning, entities.SideHigh}},
		{"moisture sentinel", entities.MetricMoisture, -1, Result{entities.SeverityError, entities.SideNone}},
		{"moisture NaN", entities.MetricMoisture, math.NaN(), Result{entities.SeverityError, entities.SideNone}},
		{"light bright but below max", entities.MetricLight, 40000, Result{entities.SeverityOk, entities.SideNone}},
		{"light dark", entities.MetricLight, 10, Result{entities.SeverityWarning, entities.SideLow}},
		{"battery at limit", entities.MetricBattery, 5, Result{entities.SeverityWarning, entities.SideLow}},
		{"battery fine", entities.MetricBattery, 80, Result{entities.SeverityOk, entities.SideNone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.metric, reading(tt.metric, tt.value), basil, 5))
		})
	}
}

func TestEvaluate_UnsetBoundsNeverTrigger(t *testing.T) {
	bare := entities.PlantProfile{Sensor: "bare"}
	for _, m := range []entities.Metric{entities.MetricTemperature, entities.MetricConductivity, entities.MetricMoisture, entities.MetricLight} {
		for _, v := range []float64{-40, 0, 1e9} {
			assert.Equal(t, entities.SeverityOk, Evaluate(m, reading(m, v), bare, 5), "%s=%v", m, v)
		}
	}
}

func TestEvaluate_InvalidIsError(t *testing.T) {
	r := reading(entities.MetricMoisture, 40)
	r.Valid = false
	assert.Equal(t, entities.SeverityError, Evaluate(entities.MetricMoisture, r, basil, 5))

	// a reading of another metric is not usable
	assert.Equal(t, entities.SeverityError, Evaluate(entities.MetricMoisture, reading(entities.MetricLight, 40), basil, 5))
}

func TestEvaluate_MoistureBandProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		v := rng.Float64() * 100
		got := Evaluate(entities.MetricMoisture, reading(entities.MetricMoisture, v), basil, 5)
		switch {
		case v >= 35 && v <= 55:
			assert.Equal(t, entities.SeverityOk, got, "v=%v", v)
		case v < 25 || v > 70:
			assert.Equal(t, entities.SeverityWarning, got, "v=%v", v)
		default:
			assert.Equal(t, entities.SeverityInfo, got, "v=%v", v)
		}
	}
}

func TestTooBright(t *testing.T) {
	assert.False(t, TooBright(reading(entities.MetricLight, 29999), basil))
	assert.True(t, TooBright(reading(entities.MetricLight, 30000), basil))
	assert.False(t, TooBright(reading(entities.MetricLight, -1), basil))
	assert.False(t, TooBright(reading(entities.MetricLight, 1e6), entities.PlantProfile{}))
}

func TestMoistureMargin(t *testing.T) {
	assert.Equal(t, -5.0, MoistureMargin(20, basil))
	assert.True(t, math.IsInf(MoistureMargin(20, entities.PlantProfile{}), 1))
}
