package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Row is one stored event as returned by the API.
type Row struct {
	Type     string `json:"type"`
	Class    string `json:"class,omitempty"`
	Pump     string `json:"pump,omitempty"`
	SensorID string `json:"sensor_id,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Time     string `json:"time"` // RFC3339
}

type queryParams struct {
	Type      string
	Minutes   int
	Limit     int
	TimeoutMS int
}

func parseQuery(r *http.Request, defMin, defLim, defTOms int) queryParams {
	q := r.URL.Query()
	get := func(k string, def, min, max int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < min {
					return min
				}
				if max > 0 && n > max {
					return max
				}
				return n
			}
		}
		return def
	}
	p := queryParams{
		Minutes:   get("minutes", defMin, 1, 7*24*60),
		Limit:     get("limit", defLim, 1, 500),
		TimeoutMS: get("timeout_ms", defTOms, 200, 5000),
	}
	switch t := strings.TrimSpace(q.Get("type")); t {
	case TypeAlert, TypeDecision, TypeResult:
		p.Type = t
	}
	return p
}

func buildFlux(bucket string, p queryParams) string {
	typeFilter := ""
	if p.Type != "" {
		typeFilter = fmt.Sprintf(" and r.event_type == %q", p.Type)
	}
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q%s)
  |> filter(fn: (r) => r._field == "message")
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, p.Minutes, Measurement, typeFilter, p.Limit)
}

func tag(v interface{}) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// NewLatestHandler serves GET /events/latest?limit=20[&minutes=1440][&type=alert].
func NewLatestHandler(q api.QueryAPI, bucket string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := parseQuery(r, 1440, 20, 2000)
		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		res, err := q.Query(ctx, buildFlux(bucket, p))
		if err != nil {
			w.Header().Set("X-Error", "influx-query-error")
			_, _ = w.Write([]byte("[]"))
			return
		}
		defer res.Close()

		out := make([]Row, 0, p.Limit)
		for res.Next() {
			rec := res.Record()
			msg, _ := rec.Value().(string)
			out = append(out, Row{
				Type:     tag(rec.ValueByKey("event_type")),
				Class:    tag(rec.ValueByKey("class")),
				Pump:     tag(rec.ValueByKey("pump")),
				SensorID: tag(rec.ValueByKey("sensor_id")),
				Severity: tag(rec.ValueByKey("severity")),
				Message:  msg,
				Time:     rec.Time().UTC().Format(time.RFC3339),
			})
		}
		if res.Err() != nil {
			w.Header().Set("X-Error", "influx-iter-error")
		}
		_ = json.NewEncoder(w).Encode(out)
	})
}
