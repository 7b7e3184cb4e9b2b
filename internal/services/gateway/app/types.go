package app

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
)

// ---------- Dashboard ----------

type SensorView struct {
	ID       string                 `json:"id"`
	Plant    string                 `json:"plant,omitempty"`
	Moisture *float64               `json:"moisture,omitempty"`
	Status   entities.SeverityLevel `json:"status"`
	Valid    bool                   `json:"valid"`
	Battery  string                 `json:"battery"`
}

type PumpView struct {
	Name        string           `json:"name"`
	Running     bool             `json:"running"`
	Mode        entities.RunMode `json:"mode,omitempty"`
	StopDue     string           `json:"stop_due,omitempty"` // RFC3339
	LastRunDone string           `json:"last_finished,omitempty"`
}

type DashboardData struct {
	Time           string                 `json:"time"`
	Tank           int                    `json:"tank"`
	AutoIrrigation bool                   `json:"auto_irrigation"`
	ManualDuration int                    `json:"manual_duration_sec"`
	Sensors        []SensorView           `json:"sensors"`
	Pumps          []PumpView             `json:"pumps"`
	Alerts         []messages.AlertEvent  `json:"alerts"`
	Stats          messages.MoistureStats `json:"stats"`
}

// ---------- Control requests ----------

type autoIrrigationBody struct {
	Enabled *bool `json:"enabled"`
}

// manualDurationBody accepts {"seconds": 65} or {"duration": "1m5s"}.
type manualDurationBody struct {
	Seconds  int    `json:"seconds"`
	Duration string `json:"duration"`
}

func (b manualDurationBody) value() (time.Duration, error) {
	if b.Duration != "" {
		return parseDuration(b.Duration)
	}
	if b.Seconds <= 0 {
		return 0, fmt.Errorf("seconds must be positive, got %d", b.Seconds)
	}
	return time.Duration(b.Seconds) * time.Second, nil
}

// parseDuration accepts a Go duration ("90s", "2m") or plain seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("duration must be positive, got %d", n)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("bad duration %q", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}

type accepted struct {
	Accepted bool   `json:"accepted"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail,omitempty"`
}

func decodeBody(b []byte, v any) error {
	if len(strings.TrimSpace(string(b))) == 0 {
		return fmt.Errorf("empty body")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("bad body: %w", err)
	}
	return nil
}
