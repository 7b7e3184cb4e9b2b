// Package config holds the controller settings: the plant profiles, the alert
// policies and the irrigation timing. Settings are loaded once at startup and
// never mutated afterwards.
package config

import (
	"time"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

// Defaults taken from the field-proven values of the device firmware.
const (
	DefaultProcessingPeriod       = 300 * time.Second
	DefaultMessageTimeout         = 900 * time.Second
	DefaultNightBegin             = "24:00"
	DefaultNightEnd               = "00:00"
	DefaultIrrigationDurationAuto = 120 * time.Second
	DefaultIrrigationDurationMan  = 60 * time.Second
	DefaultIrrigationRest         = 7200 * time.Second
	DefaultBattLow                = 5.0
	DefaultAlertsDeferTime        = 30 * time.Minute
	DefaultAlertsRepeatTime       = 24 * time.Hour
	DefaultSensorInterface        = "mqtt"
	DefaultBaseTopicSensors       = "miflora-mqtt-daemon"
	DefaultBaseTopicFlora         = "flora"
)

// Settings is the fully enumerated controller configuration.
type Settings struct {
	ProcessingPeriod time.Duration `mapstructure:"processing_period" validate:"gt=0"`
	DeepSleep        bool          `mapstructure:"deep_sleep"`
	BattLow          float64       `mapstructure:"batt_low" validate:"gte=0,lte=100"`
	MessageTimeout   time.Duration `mapstructure:"message_timeout" validate:"gt=0"`

	AutoIrrigation            bool          `mapstructure:"auto_irrigation"`
	IrrigationDurationAuto    time.Duration `mapstructure:"irrigation_duration_auto" validate:"gt=0"`
	IrrigationDurationMan     time.Duration `mapstructure:"irrigation_duration_man" validate:"gt=0"`
	IrrigationRest            time.Duration `mapstructure:"irrigation_rest" validate:"gte=0"`
	IrrigationInfoPersistence time.Duration `mapstructure:"irrigation_info_persistence" validate:"gte=0"`
	NightBegin                string        `mapstructure:"night_begin" validate:"required"`
	NightEnd                  string        `mapstructure:"night_end" validate:"required"`
	NightStopsRunning         bool          `mapstructure:"night_stops_running"`
	AbortOnTankLow            bool          `mapstructure:"abort_on_tank_low"`
	ExclusivePumps            bool          `mapstructure:"exclusive_pumps"`

	SensorInterface  string `mapstructure:"sensor_interface" validate:"oneof=mqtt simulated"`
	BaseTopicSensors string `mapstructure:"base_topic_sensors" validate:"required"`
	BaseTopicFlora   string `mapstructure:"base_topic_flora" validate:"required"`

	Alerts AlertSettings           `mapstructure:"alerts"`
	Pumps  []PumpConfig            `mapstructure:"pumps" validate:"dive"`
	Plants []entities.PlantProfile `mapstructure:"plants" validate:"min=1,dive"`

	night NightWindow
}

// AlertSettings carries the global alert timing and the per-class overrides.
type AlertSettings struct {
	DeferTime     time.Duration                         `mapstructure:"defer_time" validate:"gte=0"`
	RepeatTime    time.Duration                         `mapstructure:"repeat_time" validate:"gte=0"`
	NotifyCleared bool                                  `mapstructure:"notify_cleared"`
	Classes       map[entities.AlertClass]ClassSettings `mapstructure:"classes"`
}

// ClassSettings configures one alert class. Zero durations inherit the
// global values; an empty floor means warning.
type ClassSettings struct {
	Mode       entities.AlertMode `mapstructure:"mode"`
	Floor      string             `mapstructure:"floor"`
	DeferTime  time.Duration      `mapstructure:"defer_time"`
	RepeatTime time.Duration      `mapstructure:"repeat_time"`
}

// PumpConfig associates a pump with the sensors that drive it.
type PumpConfig struct {
	Name         string        `mapstructure:"name" validate:"required"`
	Sensors      []string      `mapstructure:"sensors"`
	DurationAuto time.Duration `mapstructure:"duration_auto" validate:"gte=0"`
	Topic        string        `mapstructure:"topic"`
}

// defaultClassModes mirrors the shipped config.ini: system faults are
// reported, plant metrics only where they need action.
var defaultClassModes = map[entities.AlertClass]entities.AlertMode{
	entities.AlertSensorFault:  entities.AlertModeDeferred,
	entities.AlertTankLow:      entities.AlertModeImmediateOnce,
	entities.AlertTankEmpty:    entities.AlertModeImmediateRepeated,
	entities.AlertPumpFault:    entities.AlertModeImmediateOnce,
	entities.AlertTemperature:  entities.AlertModeNone,
	entities.AlertConductivity: entities.AlertModeNone,
	entities.AlertMoisture:     entities.AlertModeImmediateOnce,
	entities.AlertLight:        entities.AlertModeNone,
	entities.AlertBattery:      entities.AlertModeImmediateOnce,
}

// Default returns settings populated with the firmware defaults and no plants.
func Default() Settings {
	s := Settings{
		ProcessingPeriod:       DefaultProcessingPeriod,
		BattLow:                DefaultBattLow,
		MessageTimeout:         DefaultMessageTimeout,
		AutoIrrigation:         true,
		IrrigationDurationAuto: DefaultIrrigationDurationAuto,
		IrrigationDurationMan:  DefaultIrrigationDurationMan,
		IrrigationRest:         DefaultIrrigationRest,
		NightBegin:             DefaultNightBegin,
		NightEnd:               DefaultNightEnd,
		AbortOnTankLow:         true,
		ExclusivePumps:         true,
		SensorInterface:        DefaultSensorInterface,
		BaseTopicSensors:       DefaultBaseTopicSensors,
		BaseTopicFlora:         DefaultBaseTopicFlora,
		Alerts: AlertSettings{
			DeferTime:  DefaultAlertsDeferTime,
			RepeatTime: DefaultAlertsRepeatTime,
			Classes:    map[entities.AlertClass]ClassSettings{},
		},
	}
	for c, m := range defaultClassModes {
		s.Alerts.Classes[c] = ClassSettings{Mode: m}
	}
	return s
}

// Night returns the parsed night window. Valid only after Validate.
func (s Settings) Night() NightWindow { return s.night }

// AlertPolicy resolves the effective policy of class c.
func (s Settings) AlertPolicy(c entities.AlertClass) entities.AlertPolicy {
	cs := s.Alerts.Classes[c]
	p := entities.AlertPolicy{
		Mode:          cs.Mode,
		Floor:         entities.SeverityWarning,
		DeferTime:     s.Alerts.DeferTime,
		RepeatTime:    s.Alerts.RepeatTime,
		NotifyCleared: s.Alerts.NotifyCleared,
	}
	if lvl, err := entities.ParseSeverity(cs.Floor); err == nil && cs.Floor != "" {
		p.Floor = lvl
	}
	if cs.DeferTime > 0 {
		p.DeferTime = cs.DeferTime
	}
	if cs.RepeatTime > 0 {
		p.RepeatTime = cs.RepeatTime
	}
	return p
}

// Plant returns the profile of the named sensor.
func (s Settings) Plant(sensor string) (entities.PlantProfile, bool) {
	for _, p := range s.Plants {
		if p.Sensor == sensor {
			return p, true
		}
	}
	return entities.PlantProfile{}, false
}

// AutoDuration returns the automatic run length of the pump.
func (s Settings) AutoDuration(pump string) time.Duration {
	for _, p := range s.Pumps {
		if p.Name == pump && p.DurationAuto > 0 {
			return p.DurationAuto
		}
	}
	return s.IrrigationDurationAuto
}

// normalize fills the values that depend on other fields.
func (s *Settings) normalize() {
	if len(s.Pumps) == 0 {
		s.Pumps = []PumpConfig{{Name: "pump1"}}
	}
	for i := range s.Pumps {
		if len(s.Pumps[i].Sensors) == 0 && i == 0 {
			for _, p := range s.Plants {
				s.Pumps[i].Sensors = append(s.Pumps[i].Sensors, p.Sensor)
			}
		}
	}
	if s.Alerts.Classes == nil {
		s.Alerts.Classes = map[entities.AlertClass]ClassSettings{}
	}
	for c, m := range defaultClassModes {
		if _, ok := s.Alerts.Classes[c]; !ok {
			s.Alerts.Classes[c] = ClassSettings{Mode: m}
		}
	}
}
