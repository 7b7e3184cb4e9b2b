package entities

import (
	"fmt"
	"time"
)

// AlertClass is a named category with its own rate-limiting configuration.
type AlertClass string

const (
	AlertSensorFault  AlertClass = "sensor-fault"
	AlertTankLow      AlertClass = "tank-low"
	AlertTankEmpty    AlertClass = "tank-empty"
	AlertPumpFault    AlertClass = "pump-fault"
	AlertTemperature  AlertClass = "temperature"
	AlertConductivity AlertClass = "conductivity"
	AlertMoisture     AlertClass = "moisture"
	AlertLight        AlertClass = "light"
	AlertBattery      AlertClass = "battery"
)

// AllAlertClasses lists every class in evaluation order.
var AllAlertClasses = []AlertClass{
	AlertSensorFault,
	AlertTankLow,
	AlertTankEmpty,
	AlertPumpFault,
	AlertTemperature,
	AlertConductivity,
	AlertMoisture,
	AlertLight,
	AlertBattery,
}

func (c AlertClass) Known() bool {
	for _, k := range AllAlertClasses {
		if k == c {
			return true
		}
	}
	return false
}

// ClassForMetric maps a metric to the alert class that watches its bounds.
func ClassForMetric(m Metric) AlertClass {
	return AlertClass(m)
}

// AlertMode selects the filtering strategy of an alert class.
type AlertMode int

const (
	AlertModeNone AlertMode = iota
	AlertModeImmediateOnce
	AlertModeImmediateRepeated
	AlertModeDeferred
	AlertModeDeferredRepeated
)

func (m AlertMode) Valid() bool { return m >= AlertModeNone && m <= AlertModeDeferredRepeated }

func (m AlertMode) String() string {
	switch m {
	case AlertModeNone:
		return "none"
	case AlertModeImmediateOnce:
		return "immediate-once"
	case AlertModeImmediateRepeated:
		return "immediate-repeated"
	case AlertModeDeferred:
		return "deferred"
	case AlertModeDeferredRepeated:
		return "deferred-repeated"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Repeats reports whether the mode re-notifies a persisting condition.
func (m AlertMode) Repeats() bool {
	return m == AlertModeImmediateRepeated || m == AlertModeDeferredRepeated
}

// Defers reports whether the first notification waits for the defer time.
func (m AlertMode) Defers() bool {
	return m == AlertModeDeferred || m == AlertModeDeferredRepeated
}

// AlertFilterState is the persisted state of one alert class.
type AlertFilterState struct {
	Class        AlertClass    `json:"class"`
	LastSeverity SeverityLevel `json:"last_severity"`
	LastFiredAt  *time.Time    `json:"last_fired_at,omitempty"`
	PendingSince *time.Time    `json:"pending_since,omitempty"`
	FiredOnce    bool          `json:"fired_once"`
}

// AlertPolicy is the resolved filter configuration of one class.
type AlertPolicy struct {
	Mode          AlertMode
	Floor         SeverityLevel
	DeferTime     time.Duration
	RepeatTime    time.Duration
	NotifyCleared bool
}
