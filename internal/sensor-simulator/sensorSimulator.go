// Package sensor_simulator simulates the plant sensors, the pumps and the
// water tank. It serves the controller in process (sensor_interface
// "simulated") or publishes daemon style payloads over MQTT.
package sensor_simulator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/flora/internal/config"
	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/internal/sensor"
	"github.com/LeonardoBeccarini/flora/pkg/broker"
)

const (
	tankCapacity = 20.0 // liters
	tankLow      = 0.25
	tankEmpty    = 0.05
	pumpFlow     = 0.8 // liters per minute
)

// SensorSimulator owns the simulated world.
type SensorSimulator struct {
	mu          sync.Mutex
	gens        map[string]*DataGenerator
	pumpSensors map[string][]string
	running     map[string]bool
	water       float64
	last        time.Time
	now         func() time.Time
}

// NewSensorSimulator creates one generator per configured plant; moisture
// halves in halfLife while not watered.
func NewSensorSimulator(s config.Settings, halfLife time.Duration, seed int64) *SensorSimulator {
	decay := 0.0
	if halfLife > 0 {
		// linearized around the seed value
		decay = defaultSeed * math.Ln2 / halfLife.Minutes()
	}
	sim := &SensorSimulator{
		gens:        make(map[string]*DataGenerator, len(s.Plants)),
		pumpSensors: make(map[string][]string, len(s.Pumps)),
		running:     make(map[string]bool),
		water:       tankCapacity,
		now:         time.Now,
	}
	for i, p := range s.Plants {
		sim.gens[p.Sensor] = NewDataGenerator(p.Sensor, decay, seed+int64(i))
	}
	for _, p := range s.Pumps {
		sim.pumpSensors[p.Name] = append([]string(nil), p.Sensors...)
	}
	return sim
}

// WithClock replaces the time source.
func (s *SensorSimulator) WithClock(now func() time.Time) *SensorSimulator {
	s.now = now
	return s
}

// Generator returns the generator of a sensor, for tuning scenarios.
func (s *SensorSimulator) Generator(id string) *DataGenerator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[id]
}

// SetWater sets the tank content in liters.
func (s *SensorSimulator) SetWater(liters float64) {
	s.mu.Lock()
	s.water = clamp(liters, 0, tankCapacity)
	s.mu.Unlock()
}

// advance must be called with mu held.
func (s *SensorSimulator) advance(now time.Time) {
	watered := map[string]bool{}
	flowing := 0
	for pump, on := range s.running {
		if !on {
			continue
		}
		if s.water > 0 {
			flowing++
			for _, id := range s.pumpSensors[pump] {
				watered[id] = true
			}
		}
	}
	for id, g := range s.gens {
		g.Advance(now, watered[id])
	}
	if !s.last.IsZero() && flowing > 0 {
		used := now.Sub(s.last).Minutes() * pumpFlow * float64(flowing)
		s.water = math.Max(0, s.water-used)
	}
	s.last = now
}

// Fetch implements sensor.Source.
func (s *SensorSimulator) Fetch(_ context.Context, sensorID string) (messages.SensorData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gens[sensorID]
	if !ok {
		return messages.SensorData{}, fmt.Errorf("%s: %w", sensorID, sensor.ErrUnavailable)
	}
	now := s.now()
	s.advance(now)
	return g.Next(now), nil
}

// ReadTank implements the controller's tank reader.
func (s *SensorSimulator) ReadTank(context.Context) (entities.TankStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.now())
	return s.tank(), nil
}

func (s *SensorSimulator) tank() entities.TankStatus {
	fill := s.water / tankCapacity
	return entities.TankStatus{Low: fill <= tankLow, Empty: fill <= tankEmpty}
}

// SetPump switches a simulated pump.
func (s *SensorSimulator) SetPump(pump string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.now())
	s.running[pump] = on
	log.Debugf("simulator: pump %s on=%v", pump, on)
}

// Output returns the pump output driving the simulated pump.
func (s *SensorSimulator) Output(pump string) *PumpOutput {
	return &PumpOutput{sim: s, pump: pump}
}

// PumpOutput is a device output backed by the simulator.
type PumpOutput struct {
	sim  *SensorSimulator
	pump string
}

func (o *PumpOutput) Set(_ context.Context, on bool) error {
	o.sim.SetPump(o.pump, on)
	return nil
}

func (o *PumpOutput) DriverOK(context.Context) (bool, error) { return true, nil }

// Start publishes every interval one payload per sensor on
// <sensorBase>/<sensor> and the tank level on tankTopic, and follows the
// relay commands received by consumer until ctx is cancelled.
func (s *SensorSimulator) Start(ctx context.Context, interval time.Duration, publisher broker.IPublisher,
	consumer broker.IConsumer, sensorBase, tankTopic string) {
	consumer.SetHandler(s.handleMessage)
	go consumer.ConsumeMessage(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish(ctx, publisher, sensorBase, tankTopic)
		}
	}
}

func (s *SensorSimulator) publish(ctx context.Context, publisher broker.IPublisher, sensorBase, tankTopic string) {
	ids := make([]string, 0, len(s.gens))
	s.mu.Lock()
	for id := range s.gens {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		sd, err := s.Fetch(ctx, id)
		if err != nil {
			log.Warnf("simulator: %v", err)
			continue
		}
		sd.SensorID = ""
		topic := strings.TrimRight(sensorBase, "/") + "/" + id
		if err := publisher.PublishTo(topic, 1, false, sd); err != nil {
			log.Warnf("simulator: publish error: %v", err)
			continue
		}
		log.Debugf("simulator: pub %s moisture=%.0f%%", id, *sd.Moisture)
	}
	st, _ := s.ReadTank(ctx)
	if err := publisher.PublishTo(tankTopic, 1, true, fmt.Sprint(st.Level())); err != nil {
		log.Warnf("simulator: publish tank error: %v", err)
	}
}

// handleMessage follows relay commands on <prefix>/<pump>. Commands are
// idempotent, redeliveries need no filtering.
func (s *SensorSimulator) handleMessage(topic string, msg mqtt.Message) error {
	pump := topic[strings.LastIndex(topic, "/")+1:]
	switch strings.ToUpper(strings.TrimSpace(string(msg.Payload()))) {
	case "ON", "1":
		s.SetPump(pump, true)
	case "OFF", "0":
		s.SetPump(pump, false)
	default:
		return fmt.Errorf("invalid relay command %q on %s", msg.Payload(), topic)
	}
	return nil
}
