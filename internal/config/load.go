package config

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. FLORA_AUTO_IRRIGATION.
const EnvPrefix = "FLORA"

// Load reads the YAML settings file at path, applies environment overrides
// and validates the result. Any error is a *ConfigError.
func Load(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("flora")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/flora")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return Settings{}, &ConfigError{Type: ErrReading, Message: "no settings file found", Err: err}
		}
		return Settings{}, &ConfigError{Type: ErrReading, Message: "cannot read " + v.ConfigFileUsed(), Err: err}
	}
	return decode(v)
}

// Parse is Load for an in-memory YAML document.
func Parse(doc string) (Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	if err := v.ReadConfig(strings.NewReader(doc)); err != nil {
		return Settings{}, &ConfigError{Type: ErrParsing, Message: "cannot parse settings", Err: err}
	}
	return decode(v)
}

func decode(v *viper.Viper) (Settings, error) {
	s := Default()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&s, hook); err != nil {
		return Settings{}, &ConfigError{Type: ErrParsing, Message: "cannot decode settings", Err: err}
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("processing_period", d.ProcessingPeriod)
	v.SetDefault("deep_sleep", d.DeepSleep)
	v.SetDefault("batt_low", d.BattLow)
	v.SetDefault("message_timeout", d.MessageTimeout)
	v.SetDefault("auto_irrigation", d.AutoIrrigation)
	v.SetDefault("irrigation_duration_auto", d.IrrigationDurationAuto)
	v.SetDefault("irrigation_duration_man", d.IrrigationDurationMan)
	v.SetDefault("irrigation_rest", d.IrrigationRest)
	v.SetDefault("irrigation_info_persistence", d.IrrigationInfoPersistence)
	v.SetDefault("night_begin", d.NightBegin)
	v.SetDefault("night_end", d.NightEnd)
	v.SetDefault("night_stops_running", d.NightStopsRunning)
	v.SetDefault("abort_on_tank_low", d.AbortOnTankLow)
	v.SetDefault("exclusive_pumps", d.ExclusivePumps)
	v.SetDefault("sensor_interface", d.SensorInterface)
	v.SetDefault("base_topic_sensors", d.BaseTopicSensors)
	v.SetDefault("base_topic_flora", d.BaseTopicFlora)
	v.SetDefault("alerts.defer_time", d.Alerts.DeferTime)
	v.SetDefault("alerts.repeat_time", d.Alerts.RepeatTime)
	v.SetDefault("alerts.notify_cleared", d.Alerts.NotifyCleared)
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsHook decodes bare numbers into durations as seconds, the unit used
// by the firmware's config.ini.
func secondsHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if from == durationType {
			return data, nil
		}
		return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
	case reflect.String:
		if n, err := strconv.ParseFloat(strings.TrimSpace(data.(string)), 64); err == nil {
			return time.Duration(n * float64(time.Second)), nil
		}
	}
	return data, nil
}
