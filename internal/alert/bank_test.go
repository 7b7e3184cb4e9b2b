package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/internal/sensor"
)

func policies() map[entities.AlertClass]entities.AlertPolicy {
	return map[entities.AlertClass]entities.AlertPolicy{
		entities.AlertBattery:     policy(entities.AlertModeImmediateOnce),
		entities.AlertTankEmpty:   policy(entities.AlertModeImmediateRepeated),
		entities.AlertSensorFault: policy(entities.AlertModeDeferred),
		entities.AlertMoisture:    policy(entities.AlertModeImmediateOnce),
	}
}

func batteryRecord(level float64, at time.Time, r *sensor.Record) sensor.Snapshot {
	m := 40.0
	return r.Update(messages.SensorData{Moisture: &m, Battery: &level, Timestamp: at}.Readings(), at)
}

func TestBank_BatteryScenario(t *testing.T) {
	b := NewBank(policies())
	rec := sensor.NewRecord(entities.PlantProfile{
		Sensor:  "basil",
		Metrics: []entities.Metric{entities.MetricMoisture, entities.MetricBattery},
	}, time.Hour, 5)

	snap := batteryRecord(3, t0, rec)
	events := b.ObserveAll(Classify([]sensor.Snapshot{snap}, entities.TankStatus{}, nil), t0)
	require.Len(t, events, 1)
	assert.Equal(t, entities.AlertBattery, events[0].Class)
	assert.Equal(t, entities.SeverityWarning, events[0].Severity)
	assert.Equal(t, "basil", events[0].SensorID)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, t0, events[0].Timestamp)

	t1 := t0.Add(10 * time.Second)
	snap = batteryRecord(1, t1, rec)
	events = b.ObserveAll(Classify([]sensor.Snapshot{snap}, entities.TankStatus{}, nil), t1)
	assert.Empty(t, events)
}

func TestBank_UnknownClassAndDefaultPolicy(t *testing.T) {
	b := NewBank(nil)
	_, ok := b.Observe("humidity", Observation{Severity: fail}, t0)
	assert.False(t, ok)
	_, ok = b.Observe(entities.AlertTankEmpty, Observation{Severity: fail}, t0)
	assert.False(t, ok, "classes without a policy never notify")
	assert.Nil(t, b.Filter("humidity"))
}

func TestBank_StateRoundTrip(t *testing.T) {
	b := NewBank(policies())
	_, ok := b.Observe(entities.AlertTankEmpty, Observation{Severity: fail}, t0)
	require.True(t, ok)

	states := b.ExportState()
	require.Len(t, states, len(entities.AllAlertClasses))

	restored := NewBank(policies())
	restored.RestoreState(states)
	_, ok = restored.Observe(entities.AlertTankEmpty, Observation{Severity: fail}, t0.Add(time.Minute))
	assert.False(t, ok, "repeat spacing survives a restart")
	_, ok = restored.Observe(entities.AlertTankEmpty, Observation{Severity: fail}, t0.Add(time.Hour))
	assert.True(t, ok)
}

func TestBank_Messages(t *testing.T) {
	p := policies()
	tl := policy(entities.AlertModeImmediateRepeated)
	tl.NotifyCleared = true
	tl.RepeatTime = time.Minute
	p[entities.AlertTankLow] = tl
	b := NewBank(p)

	ev, ok := b.Observe(entities.AlertTankLow, Observation{Severity: warn, Detail: "water tank level low"}, t0)
	require.True(t, ok)
	assert.Equal(t, "tank-low warning: water tank level low", ev.Message)

	ev, ok = b.Observe(entities.AlertTankLow, Observation{Severity: warn}, t0.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, "tank-low still warning", ev.Message)

	ev, ok = b.Observe(entities.AlertTankLow, Observation{Severity: ok0()}, t0.Add(2*time.Minute))
	require.True(t, ok)
	assert.True(t, ev.Cleared)
	assert.Equal(t, "tank-low back to normal", ev.Message)
}

func ok0() entities.SeverityLevel { return entities.SeverityOk }

func TestClassify(t *testing.T) {
	prof := entities.PlantProfile{
		Sensor:   "a",
		Metrics:  []entities.Metric{entities.MetricMoisture},
		Moisture: entities.Bounds{Min: entities.F(25), Lo: entities.F(35)},
	}
	ra := sensor.NewRecord(prof, time.Hour, 5)
	prof.Sensor = "b"
	rb := sensor.NewRecord(prof, time.Hour, 5)
	prof.Sensor = "c"
	rc := sensor.NewRecord(prof, time.Hour, 5)

	m1, m2 := 30.0, 20.0
	sa := ra.Update(messages.SensorData{Moisture: &m1, Timestamp: t0}.Readings(), t0)
	sb := rb.Update(messages.SensorData{Moisture: &m2, Timestamp: t0}.Readings(), t0)
	sc := rc.Update(nil, t0)

	obs := Classify([]sensor.Snapshot{sa, sb, sc}, entities.TankStatus{Low: true}, []string{"pump1: driver status not as expected"})

	assert.Equal(t, warn, obs[entities.AlertMoisture].Severity)
	assert.Equal(t, "b", obs[entities.AlertMoisture].SensorID)
	assert.Equal(t, fail, obs[entities.AlertSensorFault].Severity)
	assert.Equal(t, "c", obs[entities.AlertSensorFault].SensorID)
	assert.Equal(t, warn, obs[entities.AlertTankLow].Severity)
	assert.NotContains(t, obs, entities.AlertTankEmpty)
	assert.Equal(t, fail, obs[entities.AlertPumpFault].Severity)

	unknown := Classify(nil, entities.UnknownTank, nil)
	assert.Equal(t, fail, unknown[entities.AlertSensorFault].Severity)
	assert.NotContains(t, unknown, entities.AlertTankEmpty)
	assert.NotContains(t, unknown, entities.AlertTankLow)
}

func TestBank_DropoutIsNotARecovery(t *testing.T) {
	b := NewBank(policies())
	rec := sensor.NewRecord(entities.PlantProfile{
		Sensor:   "basil",
		Metrics:  []entities.Metric{entities.MetricMoisture},
		Moisture: entities.Bounds{Min: entities.F(25), Lo: entities.F(35)},
	}, time.Hour, 5)
	dry := 20.0
	moistureAlerts := 0
	cycle := func(snap sensor.Snapshot, now time.Time) {
		for _, ev := range b.ObserveAll(Classify([]sensor.Snapshot{snap}, entities.TankStatus{}, nil), now) {
			if ev.Class == entities.AlertMoisture {
				moistureAlerts++
			}
		}
	}

	cycle(rec.Update(messages.SensorData{Moisture: &dry, Timestamp: t0}.Readings(), t0), t0)
	t1 := t0.Add(5 * time.Minute)
	cycle(rec.MarkUnavailable(t1), t1)
	assert.Equal(t, warn, b.Filter(entities.AlertMoisture).State().LastSeverity)
	t2 := t0.Add(10 * time.Minute)
	cycle(rec.Update(messages.SensorData{Moisture: &dry, Timestamp: t2}.Readings(), t2), t2)

	assert.Equal(t, 1, moistureAlerts)
	assert.True(t, b.Filter(entities.AlertMoisture).State().FiredOnce)
}

func TestBank_HoldNeverLowersButRaises(t *testing.T) {
	b := NewBank(policies())
	_, fired := b.Observe(entities.AlertMoisture, Observation{Hold: true}, t0)
	assert.False(t, fired, "a gap on a quiet class stays quiet")

	_, fired = b.Observe(entities.AlertMoisture, Observation{Severity: warn, SensorID: "b", Hold: true}, t0)
	assert.True(t, fired)
	_, fired = b.Observe(entities.AlertMoisture, Observation{Hold: true}, t0.Add(time.Minute))
	assert.False(t, fired)
	assert.Equal(t, warn, b.Filter(entities.AlertMoisture).State().LastSeverity)
}
