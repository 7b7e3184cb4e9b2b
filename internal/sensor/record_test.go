package sensor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func profile() entities.PlantProfile {
	return entities.PlantProfile{
		Sensor:   "basil",
		Plant:    "Basil",
		Metrics:  []entities.Metric{entities.MetricMoisture, entities.MetricLight, entities.MetricBattery},
		Moisture: entities.Bounds{Min: entities.F(25), Lo: entities.F(35), Hi: entities.F(55), Max: entities.F(70)},
		Light:    entities.Bounds{Irr: entities.F(30000)},
	}
}

func payload(at time.Time, moisture, light, battery float64) []messages.MetricReading {
	return messages.SensorData{
		Moisture:  &moisture,
		Light:     &light,
		Battery:   &battery,
		Timestamp: at,
	}.Readings()
}

func TestRecord_Update(t *testing.T) {
	r := NewRecord(profile(), 15*time.Minute, 5)

	s := r.Update(payload(t0, 20, 1000, 80), t0)
	assert.True(t, s.Valid)
	assert.False(t, s.BatteryLow)
	sev, ok := s.Severity(entities.MetricMoisture)
	require.True(t, ok)
	assert.Equal(t, entities.SeverityWarning, sev)
	assert.Equal(t, entities.SideLow, s.Side(entities.MetricMoisture))
	assert.Equal(t, entities.SeverityWarning, s.WorstSeverity())
	_, ok = s.Severity(entities.MetricTemperature)
	assert.False(t, ok, "temperature is not expected")

	v, ok := s.Value(entities.MetricMoisture)
	require.True(t, ok)
	assert.Equal(t, 20.0, v)
}

func TestRecord_MissingMetricIsError(t *testing.T) {
	r := NewRecord(profile(), 15*time.Minute, 5)
	m := 40.0
	s := r.Update(messages.SensorData{Moisture: &m, Timestamp: t0}.Readings(), t0)

	assert.False(t, s.Valid)
	sev, _ := s.Severity(entities.MetricLight)
	assert.Equal(t, entities.SeverityError, sev)
	assert.Equal(t, entities.SeverityError, s.WorstSeverity())
}

func TestRecord_Staleness(t *testing.T) {
	r := NewRecord(profile(), 15*time.Minute, 5)
	r.Update(payload(t0, 40, 1000, 80), t0)

	s := r.Update(nil, t0.Add(15*time.Minute))
	assert.True(t, s.Valid, "exactly at the timeout is still fresh")

	s = r.Update(nil, t0.Add(16*time.Minute))
	assert.False(t, s.Valid)
	sev, _ := s.Severity(entities.MetricMoisture)
	assert.Equal(t, entities.SeverityError, sev)
	_, ok := s.Value(entities.MetricMoisture)
	assert.False(t, ok)

	s = r.Update(payload(t0.Add(16*time.Minute), 40, 1000, 80), t0.Add(16*time.Minute))
	assert.True(t, s.Valid)
}

func TestRecord_OlderReadingIgnored(t *testing.T) {
	r := NewRecord(profile(), time.Hour, 5)
	r.Update(payload(t0, 40, 1000, 80), t0)
	s := r.Update(payload(t0.Add(-time.Minute), 10, 1000, 80), t0)
	v, _ := s.Value(entities.MetricMoisture)
	assert.Equal(t, 40.0, v)
}

func TestRecord_SentinelInvalidates(t *testing.T) {
	r := NewRecord(profile(), time.Hour, 5)
	s := r.Update(payload(t0, -1, 1000, 80), t0)
	assert.False(t, s.Valid)
	sev, _ := s.Severity(entities.MetricMoisture)
	assert.Equal(t, entities.SeverityError, sev)
}

func TestRecord_BatteryLow(t *testing.T) {
	r := NewRecord(profile(), time.Hour, 5)
	s := r.Update(payload(t0, 40, 1000, 3), t0)
	assert.True(t, s.BatteryLow)
	assert.True(t, s.Valid)
}

func TestRecord_MoistureLowSince(t *testing.T) {
	r := NewRecord(profile(), time.Hour, 5)

	s := r.Update(payload(t0, 30, 1000, 80), t0)
	require.NotNil(t, s.MoistureLowSince)
	assert.Equal(t, t0, *s.MoistureLowSince)

	t1 := t0.Add(5 * time.Minute)
	s = r.Update(payload(t1, 20, 1000, 80), t1)
	require.NotNil(t, s.MoistureLowSince)
	assert.Equal(t, t0, *s.MoistureLowSince, "onset survives Info to Warning")

	t2 := t1.Add(5 * time.Minute)
	s = r.Update(payload(t2, 45, 1000, 80), t2)
	assert.Nil(t, s.MoistureLowSince)
}

func TestRecord_MarkUnavailable(t *testing.T) {
	r := NewRecord(profile(), time.Hour, 5)
	r.Update(payload(t0, 40, 1000, 80), t0)
	s := r.MarkUnavailable(t0.Add(time.Minute))
	assert.False(t, s.Valid)
	assert.Empty(t, s.Readings)
	assert.Equal(t, s, r.Snapshot())
}

func TestRecord_MoistureLowSinceStartsPerProcess(t *testing.T) {
	r := NewRecord(profile(), time.Hour, 5)
	s := r.Update(payload(t0, 30, 1000, 80), t0)
	require.NotNil(t, s.MoistureLowSince)

	// deep sleep: the next wake-up builds a new record for the same sensor
	t1 := t0.Add(time.Hour)
	s = NewRecord(profile(), time.Hour, 5).Update(payload(t1, 30, 1000, 80), t1)
	require.NotNil(t, s.MoistureLowSince)
	assert.Equal(t, t1, *s.MoistureLowSince)
}
