package sensor_simulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/flora/internal/config"
	"github.com/LeonardoBeccarini/flora/internal/sensor"
	"github.com/LeonardoBeccarini/flora/pkg/broker"
	"github.com/LeonardoBeccarini/flora/pkg/broker/brokertest"
)

const simYAML = `
pumps:
  - name: pump1
    sensors: [basil]
plants:
  - sensor: basil
    metrics: [moisture]
    moisture: {min: 20, lo: 30, hi: 60, max: 80}
  - sensor: fern
    metrics: [moisture]
`

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newSim(t *testing.T) (*SensorSimulator, *clock) {
	t.Helper()
	s, err := config.Parse(simYAML)
	require.NoError(t, err)
	c := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewSensorSimulator(s, 2*time.Hour, 1).WithClock(c.now), c
}

func moisture(t *testing.T, s *SensorSimulator, id string) float64 {
	t.Helper()
	d, err := s.Fetch(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, d.Moisture)
	return *d.Moisture
}

func TestSimulator_DryingAndWatering(t *testing.T) {
	sim, c := newSim(t)
	ctx := context.Background()

	_, err := sim.Fetch(ctx, "ivy")
	require.ErrorIs(t, err, sensor.ErrUnavailable)

	start := moisture(t, sim, "basil")
	c.t = c.t.Add(time.Hour)
	dry := moisture(t, sim, "basil")
	assert.Less(t, dry, start)

	out := sim.Output("pump1")
	require.NoError(t, out.Set(ctx, true))
	c.t = c.t.Add(10 * time.Minute)
	wet := moisture(t, sim, "basil")
	assert.Greater(t, wet, dry)
	fern := sim.Generator("fern").Moisture()
	assert.Less(t, fern, defaultSeed, "fern is not on pump1")

	ok, err := out.DriverOK(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSimulator_TankDrains(t *testing.T) {
	sim, c := newSim(t)
	ctx := context.Background()

	st, err := sim.ReadTank(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Level())

	sim.SetPump("pump1", true)
	c.t = c.t.Add(20 * time.Minute)
	st, _ = sim.ReadTank(ctx)
	assert.True(t, st.Low)
	assert.False(t, st.Empty)

	c.t = c.t.Add(10 * time.Minute)
	st, _ = sim.ReadTank(ctx)
	assert.True(t, st.Empty)
}

func TestSimulator_MQTT(t *testing.T) {
	sim, _ := newSim(t)
	c := brokertest.NewClient()
	pub := broker.NewPublisher(c, "", 1, false)

	require.NoError(t, sim.handleMessage("flora/pump/pump1", &brokertest.Message{Body: []byte("ON")}))
	assert.True(t, sim.running["pump1"])
	require.NoError(t, sim.handleMessage("flora/pump/pump1", &brokertest.Message{Body: []byte("off")}))
	assert.False(t, sim.running["pump1"])
	assert.Error(t, sim.handleMessage("flora/pump/pump1", &brokertest.Message{Body: []byte("maybe")}))

	sim.publish(context.Background(), pub, "miflora-mqtt-daemon", "flora/tank/signal")
	basil, ok := c.Last("miflora-mqtt-daemon/basil")
	require.True(t, ok)
	assert.Contains(t, string(basil.Payload), `"moisture":`)
	assert.NotContains(t, string(basil.Payload), "sensor_id")
	tank, ok := c.Last("flora/tank/signal")
	require.True(t, ok)
	assert.Equal(t, "2", string(tank.Payload))
}
