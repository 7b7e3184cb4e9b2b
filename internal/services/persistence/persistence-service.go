// Package persistence stores the cycle reports: the latest one in memory
// for the status API and every one as InfluxDB points.
package persistence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/internal/services/event"
	"github.com/LeonardoBeccarini/flora/pkg/breaker"
)

const (
	MeasurementSensor = "flora_sensor"
	MeasurementSystem = "flora_system"
)

// InfluxConfig selects where reports are written.
type InfluxConfig struct {
	Org    string
	Bucket string
	// MeasurementMode "per-sensor" writes flora_sensor_<id>, "single" (the
	// default) writes every sensor to flora_sensor.
	MeasurementMode string
}

// Service is the report sink. Without a write API it only caches.
type Service struct {
	event.Nop

	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	cb       *gobreaker.CircuitBreaker
	cfg      InfluxConfig

	mu     sync.RWMutex
	latest *messages.CycleReport
}

func NewService(client influxdb2.Client, cfg InfluxConfig, cb *gobreaker.CircuitBreaker) *Service {
	s := &Service{cb: cb, cfg: cfg}
	if client != nil {
		s.writeAPI = client.WriteAPIBlocking(cfg.Org, cfg.Bucket)
		s.queryAPI = client.QueryAPI(cfg.Org)
	}
	return s
}

// Report caches r and writes it to InfluxDB.
func (s *Service) Report(ctx context.Context, r messages.CycleReport) error {
	s.mu.Lock()
	s.latest = &r
	s.mu.Unlock()

	if s.writeAPI == nil {
		return nil
	}
	points := s.ReportToPoints(r)
	err := breaker.Do(s.cb, func() error { return s.writeAPI.WritePoint(ctx, points...) })
	if err != nil {
		return fmt.Errorf("persistence: write report: %w", err)
	}
	log.Debugf("persistence: wrote %d points for cycle %s", len(points), r.Timestamp.Format(time.RFC3339))
	return nil
}

// Latest returns the last cached report.
func (s *Service) Latest() (messages.CycleReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return messages.CycleReport{}, false
	}
	return *s.latest, true
}

// LatestCache returns the sensors of the last cached report.
func (s *Service) LatestCache() []messages.SensorReport {
	r, ok := s.Latest()
	if !ok {
		return nil
	}
	out := append([]messages.SensorReport(nil), r.Sensors...)
	sort.Slice(out, func(i, j int) bool { return out[i].Sensor < out[j].Sensor })
	return out
}

func (s *Service) sensorMeasurement(id string) string {
	if s.cfg.MeasurementMode == "per-sensor" {
		return sanitizeMeasurement(MeasurementSensor + "_" + id)
	}
	return MeasurementSensor
}

// ReportToPoints renders one point per sensor plus one system point.
func (s *Service) ReportToPoints(r messages.CycleReport) []*write.Point {
	t := r.Timestamp
	if t.IsZero() {
		t = time.Now()
	}
	out := make([]*write.Point, 0, len(r.Sensors)+1)
	for _, sr := range r.Sensors {
		tags := map[string]string{
			"sensor_id": sr.Sensor,
			"plant":     sr.Plant,
		}
		fields := map[string]interface{}{
			"valid":       sr.Valid,
			"battery_low": sr.BatteryLow,
			"worst":       int64(sr.Worst),
		}
		for m, v := range sr.Values {
			fields[string(m)] = v
		}
		for m, sev := range sr.Severities {
			fields[string(m)+"_severity"] = int64(sev)
		}
		out = append(out, influxdb2.NewPoint(s.sensorMeasurement(sr.Sensor), tags, fields, t))
	}

	running := 0
	for _, p := range r.Pumps {
		if p.IsRunning {
			running++
		}
	}
	sys := map[string]interface{}{
		"tank_level":      int64(r.Tank.Level()),
		"tank_unknown":    r.Tank.Unknown,
		"auto_irrigation": r.AutoIrrigation,
		"pumps_running":   int64(running),
		"alerts":          int64(len(r.Alerts)),
	}
	if r.Moisture.Count > 0 {
		sys["moisture_mean"] = r.Moisture.Mean
		sys["moisture_min"] = r.Moisture.Min
		sys["moisture_max"] = r.Moisture.Max
	}
	out = append(out, influxdb2.NewPoint(MeasurementSystem, nil, sys, t))
	return out
}

// QueryLatestFromInflux returns the last stored moisture per sensor within
// the last minutes.
func (s *Service) QueryLatestFromInflux(ctx context.Context, minutes int) ([]SensorPoint, error) {
	if s.queryAPI == nil {
		return nil, fmt.Errorf("persistence: influx not configured")
	}
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement =~ /^%s/ and r._field == "moisture")
  |> group(columns: ["sensor_id"])
  |> last()
`, s.cfg.Bucket, minutes, MeasurementSensor)

	res, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("persistence: query: %w", err)
	}
	defer res.Close()

	var out []SensorPoint
	for res.Next() {
		rec := res.Record()
		v, ok := rec.Value().(float64)
		if !ok {
			continue
		}
		id, _ := rec.ValueByKey("sensor_id").(string)
		out = append(out, SensorPoint{SensorID: id, Moisture: v, Timestamp: rec.Time()})
	}
	if res.Err() != nil {
		return out, fmt.Errorf("persistence: query: %w", res.Err())
	}
	return out, nil
}

// SensorPoint is one stored moisture sample.
type SensorPoint struct {
	SensorID  string
	Moisture  float64
	Timestamp time.Time
}

func sanitizeMeasurement(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == ':', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
