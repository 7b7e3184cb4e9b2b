// Package sensor keeps the latest readings of each plant sensor and derives
// the per-metric severities the alert filters and the scheduler consume.
package sensor

import (
	"time"

	"github.com/LeonardoBeccarini/flora/internal/evaluator"
	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
)

// Snapshot is the state of one sensor after a cycle. It is replaced wholesale
// on every update.
type Snapshot struct {
	Sensor   string
	Plant    string
	At       time.Time
	Readings map[entities.Metric]messages.MetricReading
	Results  map[entities.Metric]evaluator.Result
	// Valid is false when an expected metric is missing, invalid or older
	// than the message timeout.
	Valid      bool
	BatteryLow bool
	// MoistureLowSince is the first cycle of the current run of low moisture
	// (Info or Warning below the band), nil when moisture is not low.
	MoistureLowSince *time.Time
}

// Severity returns the derived severity of m, if the metric is expected.
func (s Snapshot) Severity(m entities.Metric) (entities.SeverityLevel, bool) {
	r, ok := s.Results[m]
	return r.Severity, ok
}

// Side returns which bound m violated.
func (s Snapshot) Side(m entities.Metric) entities.Side {
	return s.Results[m].Side
}

// Value returns the last usable value of m.
func (s Snapshot) Value(m entities.Metric) (float64, bool) {
	r, ok := s.Readings[m]
	if !ok || !r.Valid {
		return 0, false
	}
	if s.Results[m].Severity == entities.SeverityError {
		return 0, false
	}
	return r.Value, true
}

// WorstSeverity is the maximum severity over the present metrics.
func (s Snapshot) WorstSeverity() entities.SeverityLevel {
	out := entities.SeverityOk
	for _, r := range s.Results {
		out = entities.MaxSeverity(out, r.Severity)
	}
	return out
}

// Record aggregates the readings of one sensor. It is owned by the cycle
// orchestrator and is not safe for concurrent use.
type Record struct {
	profile        entities.PlantProfile
	messageTimeout time.Duration
	battLow        float64

	readings map[entities.Metric]messages.MetricReading
	snap     Snapshot
}

func NewRecord(p entities.PlantProfile, messageTimeout time.Duration, battLow float64) *Record {
	return &Record{
		profile:        p,
		messageTimeout: messageTimeout,
		battLow:        battLow,
		readings:       map[entities.Metric]messages.MetricReading{},
	}
}

func (r *Record) Profile() entities.PlantProfile { return r.profile }

// Snapshot returns the result of the last update.
func (r *Record) Snapshot() Snapshot { return r.snap }

// Update merges the readings of this cycle into the record and derives a new
// snapshot. A reading only replaces an older one of the same metric.
func (r *Record) Update(readings []messages.MetricReading, now time.Time) Snapshot {
	for _, rd := range readings {
		if !rd.Metric.Known() {
			continue
		}
		if prev, ok := r.readings[rd.Metric]; ok && rd.At.Before(prev.At) {
			continue
		}
		r.readings[rd.Metric] = rd
	}
	return r.derive(now)
}

// MarkUnavailable drops every retained reading, e.g. after the source
// reported the sensor as gone.
func (r *Record) MarkUnavailable(now time.Time) Snapshot {
	r.readings = map[entities.Metric]messages.MetricReading{}
	return r.derive(now)
}

func (r *Record) derive(now time.Time) Snapshot {
	expected := r.profile.ExpectedMetrics()
	snap := Snapshot{
		Sensor:   r.profile.Sensor,
		Plant:    r.profile.Plant,
		At:       now,
		Readings: make(map[entities.Metric]messages.MetricReading, len(expected)),
		Results:  make(map[entities.Metric]evaluator.Result, len(expected)),
		Valid:    true,
	}
	for _, m := range expected {
		rd, ok := r.readings[m]
		if !ok || !rd.Valid || r.stale(rd, now) {
			snap.Valid = false
			snap.Results[m] = evaluator.Result{Severity: entities.SeverityError}
			if ok {
				snap.Readings[m] = rd
			}
			continue
		}
		snap.Readings[m] = rd
		snap.Results[m] = evaluator.Classify(m, rd, r.profile, r.battLow)
		if snap.Results[m].Severity == entities.SeverityError {
			snap.Valid = false
		}
	}
	if res, ok := snap.Results[entities.MetricBattery]; ok {
		snap.BatteryLow = res.Severity == entities.SeverityWarning
	}

	if res, ok := snap.Results[entities.MetricMoisture]; ok && res.Side == entities.SideLow {
		since := now
		if r.snap.MoistureLowSince != nil {
			since = *r.snap.MoistureLowSince
		}
		snap.MoistureLowSince = &since
	}

	r.snap = snap
	return snap
}

func (r *Record) stale(rd messages.MetricReading, now time.Time) bool {
	return r.messageTimeout > 0 && now.Sub(rd.At) > r.messageTimeout
}
