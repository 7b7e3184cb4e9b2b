package alert

import (
	"fmt"
	"sort"
	"strings"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/sensor"
)

// Classify maps the cycle inputs onto one observation per alert class.
//
// Metric classes carry the worst non-error severity over all sensors; error
// severities are routed to sensor-fault instead and hold the metric class at
// its last severity, so a dropout is not taken for a recovery. Battery rises
// to warning when any sensor reports a low battery. An unreadable tank is a sensor
// fault and does not raise the tank classes.
func Classify(snaps []sensor.Snapshot, tank entities.TankStatus, pumpFaults []string) map[entities.AlertClass]Observation {
	obs := make(map[entities.AlertClass]Observation, len(entities.AllAlertClasses))

	var faulty []string
	for _, s := range snaps {
		if !s.Valid {
			faulty = append(faulty, s.Sensor)
		}
	}
	if tank.Unknown {
		faulty = append(faulty, "tank")
	}
	if len(faulty) > 0 {
		sort.Strings(faulty)
		obs[entities.AlertSensorFault] = Observation{
			Severity: entities.SeverityError,
			SensorID: faulty[0],
			Detail:   "no valid data from " + strings.Join(faulty, ", "),
		}
	}

	if !tank.Unknown {
		if tank.Low {
			obs[entities.AlertTankLow] = Observation{Severity: entities.SeverityWarning, Detail: "water tank level low"}
		}
		if tank.Empty {
			obs[entities.AlertTankEmpty] = Observation{Severity: entities.SeverityError, Detail: "water tank empty, irrigation disabled"}
		}
	}

	if len(pumpFaults) > 0 {
		obs[entities.AlertPumpFault] = Observation{
			Severity: entities.SeverityError,
			SensorID: pumpFaults[0],
			Detail:   strings.Join(pumpFaults, "; "),
		}
	}

	for _, m := range []entities.Metric{
		entities.MetricTemperature, entities.MetricConductivity,
		entities.MetricMoisture, entities.MetricLight,
	} {
		if o, ok := worstMetric(snaps, m); ok {
			obs[entities.ClassForMetric(m)] = o
		}
	}

	var (
		low        []string
		batteryGap bool
	)
	for _, s := range snaps {
		if s.BatteryLow {
			low = append(low, s.Sensor)
		}
		if sev, ok := s.Severity(entities.MetricBattery); ok && sev == entities.SeverityError {
			batteryGap = true
		}
	}
	switch {
	case len(low) > 0:
		obs[entities.AlertBattery] = Observation{
			Severity: entities.SeverityWarning,
			SensorID: low[0],
			Detail:   "battery low on " + strings.Join(low, ", "),
			Hold:     batteryGap,
		}
	case batteryGap:
		obs[entities.AlertBattery] = Observation{Hold: true}
	}
	return obs
}

func worstMetric(snaps []sensor.Snapshot, m entities.Metric) (Observation, bool) {
	var (
		best  Observation
		found bool
		gap   bool
	)
	for _, s := range snaps {
		res, ok := s.Results[m]
		if ok && res.Severity == entities.SeverityError {
			gap = true
			continue
		}
		if !ok || res.Severity == entities.SeverityOk {
			continue
		}
		if found && res.Severity <= best.Severity {
			continue
		}
		v, _ := s.Value(m)
		best = Observation{
			Severity: res.Severity,
			SensorID: s.Sensor,
			Detail:   fmt.Sprintf("%s %s (%g)", m, res.Side, v),
		}
		found = true
	}
	best.Hold = gap
	return best, found || gap
}
