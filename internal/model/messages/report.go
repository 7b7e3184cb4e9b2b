package messages

import (
	"time"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

// SensorReport is the per-sensor part of a cycle report.
type SensorReport struct {
	Sensor     string                                     `json:"sensor"`
	Plant      string                                     `json:"plant"`
	Valid      bool                                       `json:"valid"`
	BatteryLow bool                                       `json:"battery_low"`
	Worst      entities.SeverityLevel                     `json:"worst"`
	Severities map[entities.Metric]entities.SeverityLevel `json:"severities"`
	Values     map[entities.Metric]float64                `json:"values"`
}

// MoistureStats summarizes the valid moisture readings of a cycle.
type MoistureStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// CycleReport is produced once per cycle for report rendering and the status API.
type CycleReport struct {
	Timestamp      time.Time                  `json:"timestamp"`
	Tank           entities.TankStatus        `json:"tank"`
	AutoIrrigation bool                       `json:"auto_irrigation"`
	ManualDuration time.Duration              `json:"manual_duration"`
	Sensors        []SensorReport             `json:"sensors"`
	Pumps          []entities.IrrigationState `json:"pumps"`
	Commands       []entities.PumpCommand     `json:"commands"`
	Alerts         []AlertEvent               `json:"alerts"`
	Moisture       MoistureStats              `json:"moisture"`
}

// ManualRunning reports whether any pump runs a manual irrigation.
func (r CycleReport) ManualRunning() bool {
	for _, p := range r.Pumps {
		if p.IsRunning && p.Mode == entities.RunManual {
			return true
		}
	}
	return false
}

// Running reports whether any pump is running.
func (r CycleReport) Running() bool {
	for _, p := range r.Pumps {
		if p.IsRunning {
			return true
		}
	}
	return false
}
