// Package telemetry exposes the controller state as Prometheus metrics.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/flora/internal/model/messages"
)

// Metrics holds every controller metric. It is also an event sink, so the
// orchestrator feeds it like any other destination.
type Metrics struct {
	Cycles         *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	SensorValue    *prometheus.GaugeVec
	SensorSeverity *prometheus.GaugeVec
	SensorValid    *prometheus.GaugeVec
	TankLevel      prometheus.Gauge
	PumpRunning    *prometheus.GaugeVec
	PumpRuns       *prometheus.CounterVec
	Alerts         *prometheus.CounterVec
	AutoIrrigation prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the metrics and registers them on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.init()
	for _, c := range []prometheus.Collector{
		m.Cycles, m.CycleDuration, m.SensorValue, m.SensorSeverity, m.SensorValid,
		m.TankLevel, m.PumpRunning, m.PumpRuns, m.Alerts, m.AutoIrrigation,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register flora metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) init() {
	m.Cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flora_cycles_total",
		Help: "Completed processing cycles by outcome",
	}, []string{"outcome"})
	m.CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flora_cycle_duration_seconds",
		Help:    "Wall time of one processing cycle",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})
	m.SensorValue = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flora_sensor_value",
		Help: "Last reading per sensor and metric",
	}, []string{"sensor", "metric"})
	m.SensorSeverity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flora_sensor_severity",
		Help: "Severity per sensor and metric (0 ok, 1 info, 2 warning, 3 error)",
	}, []string{"sensor", "metric"})
	m.SensorValid = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flora_sensor_valid",
		Help: "1 when the sensor delivered valid data in the last cycle",
	}, []string{"sensor"})
	m.TankLevel = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flora_tank_level",
		Help: "Water tank level (0 empty, 1 low, 2 ok)",
	})
	m.PumpRunning = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flora_pump_running",
		Help: "1 while the pump runs",
	}, []string{"pump"})
	m.PumpRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flora_pump_runs_total",
		Help: "Finished or failed pump runs by status",
	}, []string{"pump", "status"})
	m.Alerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flora_alerts_total",
		Help: "Delivered alert events by class and severity",
	}, []string{"class", "severity"})
	m.AutoIrrigation = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flora_auto_irrigation",
		Help: "1 when automatic irrigation is enabled",
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveCycle records the duration and outcome of a cycle.
func (m *Metrics) ObserveCycle(took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Cycles.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(took.Seconds())
}

func (m *Metrics) Alert(_ context.Context, ev messages.AlertEvent) error {
	sev := ev.Severity.String()
	if ev.Cleared {
		sev = "cleared"
	}
	m.Alerts.WithLabelValues(string(ev.Class), sev).Inc()
	return nil
}

func (m *Metrics) Decision(context.Context, messages.IrrigationDecisionEvent) error { return nil }

func (m *Metrics) Result(_ context.Context, ev messages.IrrigationResultEvent) error {
	m.PumpRuns.WithLabelValues(ev.Pump, ev.Status).Inc()
	return nil
}

func (m *Metrics) Report(_ context.Context, r messages.CycleReport) error {
	m.TankLevel.Set(float64(r.Tank.Level()))
	m.AutoIrrigation.Set(boolGauge(r.AutoIrrigation))
	for _, s := range r.Sensors {
		m.SensorValid.WithLabelValues(s.Sensor).Set(boolGauge(s.Valid))
		for metric, v := range s.Values {
			m.SensorValue.WithLabelValues(s.Sensor, string(metric)).Set(v)
		}
		for metric, sev := range s.Severities {
			m.SensorSeverity.WithLabelValues(s.Sensor, string(metric)).Set(float64(sev))
		}
	}
	for _, p := range r.Pumps {
		m.PumpRunning.WithLabelValues(p.Pump).Set(boolGauge(p.IsRunning))
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
