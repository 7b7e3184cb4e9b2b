package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Environment is the deployment configuration: where the collaborators live.
// It is read from the process environment, optionally seeded from a .env file.
type Environment struct {
	MQTTHost     string `envconfig:"MQTT_HOST" default:"localhost"`
	MQTTPort     int    `envconfig:"MQTT_PORT" default:"1883"`
	MQTTUser     string `envconfig:"MQTT_USER" default:"guest"`
	MQTTPassword string `envconfig:"MQTT_PASSWORD" default:"guest"`
	MQTTClientID string `envconfig:"MQTT_CLIENT_ID"`

	InfluxURL    string `envconfig:"INFLUX_URL"`
	InfluxToken  string `envconfig:"INFLUX_TOKEN"`
	InfluxOrg    string `envconfig:"INFLUX_ORG" default:"flora"`
	InfluxBucket string `envconfig:"INFLUX_BUCKET" default:"flora"`

	NotifyURLs []string `envconfig:"NOTIFY_URLS"`

	HTTPPort     int           `envconfig:"HTTP_PORT" default:"8080"`
	StateDB      string        `envconfig:"STATE_DB" default:"flora-state.db"`
	BreakerReset time.Duration `envconfig:"BREAKER_RESET" default:"30s"`
	Debug        bool          `envconfig:"DEBUG"`
}

// LoadEnvironment reads the optional dotenv files and then the environment.
// Missing dotenv files are ignored; real environment variables win.
func LoadEnvironment(dotenv ...string) (Environment, error) {
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Environment{}, &ConfigError{Type: ErrReading, Message: "cannot read " + f, Err: err}
		}
	}
	var e Environment
	if err := envconfig.Process("", &e); err != nil {
		return Environment{}, &ConfigError{Type: ErrParsing, Message: "invalid environment", Err: err}
	}
	if e.MQTTClientID == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "local"
		}
		e.MQTTClientID = "flora-" + host
	}
	e.InfluxURL = strings.TrimRight(e.InfluxURL, "/")
	if e.MQTTPort <= 0 || e.MQTTPort > 65535 {
		return Environment{}, &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("MQTT_PORT %d out of range", e.MQTTPort)}
	}
	return e, nil
}

// InfluxEnabled reports whether a time-series backend is configured.
func (e Environment) InfluxEnabled() bool { return e.InfluxURL != "" }
