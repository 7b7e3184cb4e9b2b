package persistence

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

// Routes registers the report endpoints on r.
func Routes(r *mux.Router, svc *Service) {
	r.HandleFunc("/report/latest", func(w http.ResponseWriter, _ *http.Request) {
		rep, ok := svc.Latest()
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"no cycle completed yet"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(rep)
	}).Methods(http.MethodGet)

	// GET /data/latest?source=auto|influx|cache&minutes=1440
	// auto prefers InfluxDB and falls back to the cached report.
	r.HandleFunc("/data/latest", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		source := strings.ToLower(q.Get("source"))
		if source == "" {
			source = "auto"
		}
		minutes := 60 * 24
		if s := q.Get("minutes"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				minutes = n
			}
		}

		type outT struct {
			SensorID  string   `json:"sensor_id"`
			Moisture  *float64 `json:"moisture"`
			Valid     bool     `json:"valid"`
			Timestamp string   `json:"timestamp"`
		}
		var (
			out  []outT
			used string
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if source == "influx" || source == "auto" {
			list, err := svc.QueryLatestFromInflux(ctx, minutes)
			if err == nil && len(list) > 0 {
				used = "influx"
				for _, p := range list {
					m := p.Moisture
					out = append(out, outT{SensorID: p.SensorID, Moisture: &m, Valid: true, Timestamp: p.Timestamp.UTC().Format(time.RFC3339)})
				}
			}
		}
		if used == "" {
			used = "cache"
			rep, _ := svc.Latest()
			for _, sr := range svc.LatestCache() {
				o := outT{SensorID: sr.Sensor, Valid: sr.Valid, Timestamp: rep.Timestamp.UTC().Format(time.RFC3339)}
				if v, ok := sr.Values[entities.MetricMoisture]; ok {
					o.Moisture = &v
				}
				out = append(out, o)
			}
		}
		if out == nil {
			out = []outT{}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Data-Source", used)
		_ = json.NewEncoder(w).Encode(out)
	}).Methods(http.MethodGet)
}
