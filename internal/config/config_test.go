package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

const sampleYAML = `
processing_period: 60
irrigation_duration_auto: 90
irrigation_rest: 2h
night_begin: "22:00"
night_end: "07:00"
batt_low: 5
alerts:
  defer_time: 15m
  notify_cleared: true
  classes:
    moisture:
      mode: 2
      repeat_time: 6h
    sensor-fault:
      mode: 4
      floor: error
pumps:
  - name: pump1
    sensors: [basil]
    duration_auto: 45
  - name: pump2
    sensors: [fern]
plants:
  - sensor: basil
    plant: Ocimum basilicum
    moisture: {min: 25, lo: 35, hi: 55, max: 70}
    light: {min: 500, irr: 30000, max: 60000}
  - sensor: fern
    metrics: [moisture, temperature]
    temperature: {min: 10, max: 30}
    moisture: {min: 40, max: 80}
`

func TestParse_Sample(t *testing.T) {
	s, err := Parse(sampleYAML)
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, s.ProcessingPeriod)
	assert.Equal(t, 90*time.Second, s.IrrigationDurationAuto)
	assert.Equal(t, 2*time.Hour, s.IrrigationRest)
	assert.Equal(t, DefaultIrrigationDurationMan, s.IrrigationDurationMan)
	assert.Equal(t, DefaultMessageTimeout, s.MessageTimeout)
	assert.True(t, s.AutoIrrigation)
	assert.True(t, s.ExclusivePumps)
	assert.Equal(t, "22:00-07:00", s.Night().String())

	require.Len(t, s.Plants, 2)
	basil, ok := s.Plant("basil")
	require.True(t, ok)
	require.NotNil(t, basil.Moisture.Lo)
	assert.Equal(t, 35.0, *basil.Moisture.Lo)
	assert.Equal(t, 30000.0, *basil.Light.Irr)
	fern, _ := s.Plant("fern")
	assert.False(t, fern.Expects(entities.MetricLight))

	assert.Equal(t, 45*time.Second, s.AutoDuration("pump1"))
	assert.Equal(t, 90*time.Second, s.AutoDuration("pump2"))
}

func TestSettings_AlertPolicy(t *testing.T) {
	s, err := Parse(sampleYAML)
	require.NoError(t, err)

	m := s.AlertPolicy(entities.AlertMoisture)
	assert.Equal(t, entities.AlertModeImmediateRepeated, m.Mode)
	assert.Equal(t, 6*time.Hour, m.RepeatTime)
	assert.Equal(t, 15*time.Minute, m.DeferTime)
	assert.Equal(t, entities.SeverityWarning, m.Floor)
	assert.True(t, m.NotifyCleared)

	sf := s.AlertPolicy(entities.AlertSensorFault)
	assert.Equal(t, entities.AlertModeDeferredRepeated, sf.Mode)
	assert.Equal(t, entities.SeverityError, sf.Floor)
	assert.Equal(t, DefaultAlertsRepeatTime, sf.RepeatTime)

	// classes not mentioned keep their shipped defaults
	assert.Equal(t, entities.AlertModeImmediateRepeated, s.AlertPolicy(entities.AlertTankEmpty).Mode)
	assert.Equal(t, entities.AlertModeNone, s.AlertPolicy(entities.AlertLight).Mode)
}

func TestParse_DefaultPump(t *testing.T) {
	s, err := Parse(`
plants:
  - sensor: a
  - sensor: b
`)
	require.NoError(t, err)
	require.Len(t, s.Pumps, 1)
	assert.Equal(t, "pump1", s.Pumps[0].Name)
	assert.Equal(t, []string{"a", "b"}, s.Pumps[0].Sensors)
	assert.False(t, s.Night().Contains(time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)), "default night window is empty")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "no plants",
			doc:  "processing_period: 10\n",
			want: []string{"Plants"},
		},
		{
			name: "inverted moisture band",
			doc: `
plants:
  - sensor: a
    moisture: {min: 40, lo: 30}
`,
			want: []string{"inverted bounds min=40 > lo=30"},
		},
		{
			name: "unknown alert mode and class",
			doc: `
alerts:
  classes:
    moisture: {mode: 7}
    humidity: {mode: 1}
plants:
  - sensor: a
`,
			want: []string{"unknown alert mode 7", `unknown alert class "humidity"`},
		},
		{
			name: "bad floor",
			doc: `
alerts:
  classes:
    battery: {mode: 1, floor: severe}
plants:
  - sensor: a
`,
			want: []string{"alerts.classes.battery.floor"},
		},
		{
			name: "malformed night",
			doc: `
night_begin: "25:00"
plants:
  - sensor: a
`,
			want: []string{"night_begin"},
		},
		{
			name: "pump with unknown sensor and duplicate sensor",
			doc: `
pumps:
  - name: p
    sensors: [ghost]
plants:
  - sensor: a
  - sensor: a
`,
			want: []string{`unknown sensor "ghost"`, `duplicate sensor "a"`},
		},
		{
			name: "irr outside light",
			doc: `
plants:
  - sensor: a
    moisture: {irr: 3}
    metrics: [moisture, rain]
`,
			want: []string{"irr is only defined for light", `unknown metric "rain"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.doc)
			require.Error(t, err)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, ErrValidation, ce.Type)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flora.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	t.Setenv("FLORA_AUTO_IRRIGATION", "false")
	t.Setenv("FLORA_IRRIGATION_DURATION_MAN", "30")

	s, err := Load(path)
	require.NoError(t, err)
	assert.False(t, s.AutoIrrigation)
	assert.Equal(t, 30*time.Second, s.IrrigationDurationMan)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrReading, ce.Type)
}

func TestNightWindow(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 6, 1, h, m, 0, 0, time.UTC) }

	w, err := ParseNightWindow("22:00", "07:00")
	require.NoError(t, err)
	assert.True(t, w.Contains(at(22, 0)))
	assert.True(t, w.Contains(at(3, 15)))
	assert.True(t, w.Contains(at(6, 59)))
	assert.False(t, w.Contains(at(7, 0)))
	assert.False(t, w.Contains(at(10, 0)))

	day, err := ParseNightWindow("12:00", "14:00")
	require.NoError(t, err)
	assert.True(t, day.Contains(at(13, 0)))
	assert.False(t, day.Contains(at(14, 0)))

	_, err = ParseClock("7")
	assert.Error(t, err)
	_, err = ParseClock("24:30")
	assert.Error(t, err)
}

func TestLoadEnvironment(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("MQTT_HOST=broker.lan\nNOTIFY_URLS=logger://,generic://example.org\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MQTT_HOST"); os.Unsetenv("NOTIFY_URLS") })
	t.Setenv("MQTT_PORT", "8883")
	t.Setenv("MQTT_CLIENT_ID", "flora-test")

	e, err := LoadEnvironment(dotenv, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "broker.lan", e.MQTTHost)
	assert.Equal(t, 8883, e.MQTTPort)
	assert.Equal(t, "flora-test", e.MQTTClientID)
	assert.Equal(t, []string{"logger://", "generic://example.org"}, e.NotifyURLs)
	assert.False(t, e.InfluxEnabled())
}
