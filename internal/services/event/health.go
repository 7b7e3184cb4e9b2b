package event

import (
	"encoding/json"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Probes collects what the health handlers look at. A nil MQTT client or
// writer means the transport is not configured and is not required.
type Probes struct {
	MQTT      mqtt.Client
	Writer    *Writer
	LastCycle func() time.Time
	// MaxCycleAge is how long without a completed cycle the controller is
	// still considered alive.
	MaxCycleAge time.Duration
	Now         func() time.Time
}

type healthStatus struct {
	Status          string  `json:"status"`
	MQTTConnected   bool    `json:"mqtt_connected"`
	InfluxEnabled   bool    `json:"influx_enabled"`
	LastWriteErrorS float64 `json:"last_write_error_age_sec"`
	LastCycleS      float64 `json:"last_cycle_age_sec"`
}

func (p Probes) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p Probes) mqttOK() bool {
	return p.MQTT == nil || p.MQTT.IsConnectionOpen()
}

func (p Probes) cycleAge() time.Duration {
	if p.LastCycle == nil {
		return 0
	}
	last := p.LastCycle()
	if last.IsZero() {
		return 99999 * time.Hour
	}
	return p.now().Sub(last)
}

func (p Probes) cycleOK() bool {
	return p.MaxCycleAge <= 0 || p.cycleAge() <= p.MaxCycleAge
}

type healthHandler struct{ p Probes }

func NewHealthHandler(p Probes) http.Handler {
	return &healthHandler{p: p}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	p := h.p
	st := healthStatus{
		MQTTConnected:   p.MQTT != nil && p.MQTT.IsConnectionOpen(),
		InfluxEnabled:   p.Writer != nil,
		LastWriteErrorS: p.Writer.LastErrorAge().Seconds(),
		LastCycleS:      p.cycleAge().Seconds(),
	}

	writerOK := p.Writer == nil || p.Writer.LastErrorAge() > 30*time.Second
	switch {
	case p.mqttOK() && writerOK && p.cycleOK():
		st.Status = "ok"
	case p.cycleOK():
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// readyHandler answers 200 only when every configured dependency is ok.
type readyHandler struct {
	p        Probes
	minError time.Duration
}

func NewReadyHandler(p Probes, minOkErrorAge time.Duration) http.Handler {
	return &readyHandler{p: p, minError: minOkErrorAge}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	p := h.p
	ready := p.mqttOK() && p.cycleOK() && (p.Writer == nil || p.Writer.LastErrorAge() > h.minError)
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	type resp struct {
		Ready bool `json:"ready"`
	}
	_ = json.NewEncoder(w).Encode(resp{Ready: ready})
}
