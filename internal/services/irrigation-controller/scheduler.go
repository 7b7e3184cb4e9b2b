package irrigation_controller

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/LeonardoBeccarini/flora/internal/config"
	"github.com/LeonardoBeccarini/flora/internal/evaluator"
	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/internal/sensor"
)

// Decision is a pump command plus the sensor that motivated a start.
type Decision struct {
	entities.PumpCommand
	SensorID string
	Moisture *float64
}

// Inputs is everything the scheduler looks at in one cycle.
type Inputs struct {
	Now     time.Time
	Tank    entities.TankStatus
	Sensors map[string]sensor.Snapshot
	// Pumps is in configuration order; the index is the tie-break.
	Pumps          []entities.IrrigationState
	Requests       []messages.ManualIrrigationRequest
	AutoIrrigation bool
	ManualDuration time.Duration
}

// Scheduler decides, per pump and per cycle, whether to start, stop or leave
// it alone. It holds configuration only; all state comes in with Inputs.
type Scheduler struct {
	settings config.Settings
	pumps    map[string]config.PumpConfig
}

func NewScheduler(s config.Settings) *Scheduler {
	pumps := make(map[string]config.PumpConfig, len(s.Pumps))
	for _, p := range s.Pumps {
		pumps[p.Name] = p
	}
	return &Scheduler{settings: s, pumps: pumps}
}

type candidate struct {
	index  int
	manual bool
	margin float64
}

// Decide returns one decision per pump, in the order of in.Pumps.
func (s *Scheduler) Decide(in Inputs) []Decision {
	out := make([]Decision, len(in.Pumps))
	requests := make(map[string]messages.ManualIrrigationRequest, len(in.Requests))
	for _, r := range in.Requests {
		requests[r.Pump] = r
	}

	hardStop, hardWhy := s.hardStop(in.Tank)
	night := s.settings.Night().Contains(in.Now)

	var (
		starts      []candidate
		keepRunning bool
	)
	for i, st := range in.Pumps {
		d := Decision{PumpCommand: entities.PumpCommand{Pump: st.Pump, Action: entities.ActionNoChange}}

		if st.IsRunning {
			switch due, _ := st.StopDue(); {
			case st.Unconfirmed:
				d.stop("running state not confirmed after restart")
			case hardStop:
				d.stop(hardWhy)
			case night && s.settings.NightStopsRunning:
				d.stop("night window")
			case !in.Now.Before(due):
				d.stop(fmt.Sprintf("%s run of %s completed", st.Mode, st.Duration))
			default:
				d.Reason = "running until " + due.Format(time.TimeOnly)
				keepRunning = true
			}
			out[i] = d
			continue
		}

		if req, ok := requests[st.Pump]; ok {
			switch {
			case hardStop:
				d.Reason = "manual request refused: " + hardWhy
			case night:
				d.Reason = "manual request refused: night window"
			default:
				dur := req.Duration
				if dur <= 0 {
					dur = in.ManualDuration
				}
				if dur <= 0 {
					dur = s.settings.IrrigationDurationMan
				}
				d.Action = entities.ActionStart
				d.Mode = entities.RunManual
				d.Duration = dur
				d.Reason = "manual request"
				starts = append(starts, candidate{index: i, manual: true, margin: math.Inf(-1)})
			}
			out[i] = d
			continue
		}

		if !in.AutoIrrigation || hardStop || night {
			out[i] = d
			continue
		}
		if st.Resting(in.Now, s.settings.IrrigationRest) {
			d.Reason = "resting since " + st.LastFinishedAt.Format(time.TimeOnly)
			out[i] = d
			continue
		}
		if c, ok := s.autoCandidate(st.Pump, in); ok {
			d.Action = entities.ActionStart
			d.Mode = entities.RunAuto
			d.Duration = s.settings.AutoDuration(st.Pump)
			d.SensorID = c.sensor
			d.Moisture = entities.F(c.moisture)
			d.Reason = c.reason
			starts = append(starts, candidate{index: i, margin: c.margin})
		}
		out[i] = d
	}

	if s.settings.ExclusivePumps && len(starts) > 0 {
		sort.SliceStable(starts, func(a, b int) bool {
			ca, cb := starts[a], starts[b]
			if ca.manual != cb.manual {
				return ca.manual
			}
			if ca.margin != cb.margin {
				return ca.margin < cb.margin
			}
			return ca.index < cb.index
		})
		winner := 0
		if keepRunning {
			winner = -1
		}
		for k, c := range starts {
			if k == winner {
				continue
			}
			d := &out[c.index]
			d.Action = entities.ActionNoChange
			d.Mode, d.Duration, d.SensorID, d.Moisture = "", 0, "", nil
			d.Reason = "deferred: pumps are exclusive"
		}
	}
	return out
}

func (d *Decision) stop(why string) {
	d.Action = entities.ActionStop
	d.Reason = why
}

// Interlocks returns the hard-stop conditions the pump controller re-checks.
func (s *Scheduler) Interlocks(tank entities.TankStatus, now time.Time) entities.Interlocks {
	stop, _ := s.hardStop(tank)
	return entities.Interlocks{TankEmpty: stop, Night: s.settings.Night().Contains(now)}
}

func (s *Scheduler) hardStop(t entities.TankStatus) (bool, string) {
	switch {
	case t.Unknown:
		return true, "tank state unknown"
	case t.Empty:
		return true, "tank empty"
	case t.Low && s.settings.AbortOnTankLow:
		return true, "tank low"
	}
	return false, ""
}

type autoReason struct {
	sensor   string
	moisture float64
	margin   float64
	reason   string
}

// autoCandidate looks at the valid sensors associated with the pump: any of
// them above the moisture maximum vetoes the start; otherwise the driest
// sensor that is low (warning, or info for long enough) and not too bright
// makes the pump a candidate.
func (s *Scheduler) autoCandidate(pump string, in Inputs) (autoReason, bool) {
	var (
		best  autoReason
		found bool
	)
	for _, name := range s.pumps[pump].Sensors {
		snap, ok := in.Sensors[name]
		if !ok || !snap.Valid {
			continue
		}
		res, ok := snap.Results[entities.MetricMoisture]
		if !ok {
			continue
		}
		if res.Side == entities.SideHigh && res.Severity == entities.SeverityWarning {
			return autoReason{}, false
		}
		if res.Side != entities.SideLow {
			continue
		}
		lowEnough := res.Severity == entities.SeverityWarning
		if res.Severity == entities.SeverityInfo && s.settings.IrrigationInfoPersistence > 0 &&
			snap.MoistureLowSince != nil && in.Now.Sub(*snap.MoistureLowSince) >= s.settings.IrrigationInfoPersistence {
			lowEnough = true
		}
		if !lowEnough {
			continue
		}
		profile, _ := s.settings.Plant(name)
		if light, ok := snap.Readings[entities.MetricLight]; ok && evaluator.TooBright(light, profile) {
			continue
		}
		v, _ := snap.Value(entities.MetricMoisture)
		margin := evaluator.MoistureMargin(v, profile)
		if !found || margin < best.margin {
			best = autoReason{
				sensor:   name,
				moisture: v,
				margin:   margin,
				reason:   fmt.Sprintf("moisture %g %s on %s", v, res.Severity, name),
			}
			found = true
		}
	}
	return best, found
}
