package app

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
)

const maxBody = 4 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HandleDashboard renders the last cycle report for the UI.
func (g *Gateway) HandleDashboard(w http.ResponseWriter, _ *http.Request) {
	rep, ok := g.cfg.Controller.LastReport()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no cycle completed yet")
		return
	}

	data := DashboardData{
		Time:           rep.Timestamp.UTC().Format(time.RFC3339),
		Tank:           rep.Tank.Level(),
		AutoIrrigation: rep.AutoIrrigation,
		ManualDuration: int(rep.ManualDuration.Seconds()),
		Sensors:        []SensorView{},
		Pumps:          []PumpView{},
		Alerts:         rep.Alerts,
		Stats:          rep.Moisture,
	}
	if data.Alerts == nil {
		data.Alerts = []messages.AlertEvent{}
	}
	for _, s := range rep.Sensors {
		v := SensorView{ID: s.Sensor, Plant: s.Plant, Status: s.Worst, Valid: s.Valid, Battery: "ok"}
		if m, ok := s.Values[entities.MetricMoisture]; ok {
			v.Moisture = &m
		}
		if s.BatteryLow {
			v.Battery = "low"
		}
		data.Sensors = append(data.Sensors, v)
	}
	sort.Slice(data.Sensors, func(i, j int) bool { return data.Sensors[i].ID < data.Sensors[j].ID })

	for _, p := range rep.Pumps {
		v := PumpView{Name: p.Pump, Running: p.IsRunning}
		if p.IsRunning {
			v.Mode = p.Mode
			if due, ok := p.StopDue(); ok {
				v.StopDue = due.UTC().Format(time.RFC3339)
			}
		}
		if p.LastFinishedAt != nil {
			v.LastRunDone = p.LastFinishedAt.UTC().Format(time.RFC3339)
		}
		data.Pumps = append(data.Pumps, v)
	}
	writeJSON(w, http.StatusOK, data)
}

// HandleReport serves the last report when no persistence service is wired.
func (g *Gateway) HandleReport(w http.ResponseWriter, _ *http.Request) {
	rep, ok := g.cfg.Controller.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "no cycle completed yet")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleIrrigate queues a manual run: POST /pumps/{pump}/irrigate?duration=90s
func (g *Gateway) HandleIrrigate(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["pump"]
	name, ok := ref, true
	if g.cfg.Pumps != nil {
		name, ok = g.cfg.Pumps.Resolve(ref)
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown pump "+ref)
		return
	}
	var dur time.Duration
	if s := r.URL.Query().Get("duration"); s != "" {
		d, err := parseDuration(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		dur = d
	}
	g.cfg.Controller.Submit(messages.ControlRequest{
		Kind:     messages.ControlManualIrrigation,
		Pump:     name,
		Duration: dur,
		Source:   "http",
		At:       time.Now(),
	})
	log.Infof("gateway: manual irrigation of %s requested (duration %s)", name, dur)
	writeJSON(w, http.StatusAccepted, accepted{Accepted: true, Kind: string(messages.ControlManualIrrigation), Detail: name})
}

// HandleAutoIrrigation switches automatic irrigation: PUT {"enabled": true}
func (g *Gateway) HandleAutoIrrigation(w http.ResponseWriter, r *http.Request) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body autoIrrigationBody
	if err := decodeBody(b, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "missing enabled")
		return
	}
	g.cfg.Controller.Submit(messages.ControlRequest{
		Kind:    messages.ControlAutoIrrigation,
		Enabled: *body.Enabled,
		Source:  "http",
		At:      time.Now(),
	})
	writeJSON(w, http.StatusAccepted, accepted{Accepted: true, Kind: string(messages.ControlAutoIrrigation)})
}

// HandleManualDuration sets the default manual run: PUT {"seconds": 65}
func (g *Gateway) HandleManualDuration(w http.ResponseWriter, r *http.Request) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body manualDurationBody
	if err := decodeBody(b, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := body.value()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g.cfg.Controller.Submit(messages.ControlRequest{
		Kind:     messages.ControlManualDuration,
		Duration: d,
		Source:   "http",
		At:       time.Now(),
	})
	writeJSON(w, http.StatusAccepted, accepted{Accepted: true, Kind: string(messages.ControlManualDuration), Detail: d.String()})
}
