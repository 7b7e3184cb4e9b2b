// Package alert turns severity changes into rate-limited notifications. Each
// alert class has its own Filter; a Bank holds one filter per class.
package alert

import (
	"time"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

// Fire is the outcome of an observation that must be notified.
type Fire struct {
	Class    entities.AlertClass
	Severity entities.SeverityLevel
	// Cleared marks a recovery notice for an episode that had fired.
	Cleared bool
	// Repeat marks a re-notification within the same elevated episode.
	Repeat bool
}

// Filter is the state machine of one alert class.
type Filter struct {
	class  entities.AlertClass
	policy entities.AlertPolicy
	state  entities.AlertFilterState
}

func NewFilter(class entities.AlertClass, policy entities.AlertPolicy) *Filter {
	return &Filter{
		class:  class,
		policy: policy,
		state:  entities.AlertFilterState{Class: class},
	}
}

func (f *Filter) Class() entities.AlertClass { return f.class }

func (f *Filter) Policy() entities.AlertPolicy { return f.policy }

func (f *Filter) State() entities.AlertFilterState { return f.state }

// Restore replaces the state, e.g. with the one persisted before a restart.
func (f *Filter) Restore(st entities.AlertFilterState) {
	st.Class = f.class
	f.state = st
}

func (f *Filter) floor() entities.SeverityLevel {
	return entities.MaxSeverity(f.policy.Floor, entities.SeverityInfo)
}

// Observe feeds the severity of this cycle. It is called every cycle, also
// when the severity did not change, so that pending defers and repeats are
// re-evaluated at the current time.
func (f *Filter) Observe(sev entities.SeverityLevel, now time.Time) (Fire, bool) {
	floor := f.floor()
	wasElevated := f.state.LastSeverity >= floor
	f.state.LastSeverity = sev

	if sev < floor {
		fired := f.state.FiredOnce
		f.state.FiredOnce = false
		f.state.PendingSince = nil
		if wasElevated && fired && f.policy.NotifyCleared && f.policy.Mode != entities.AlertModeNone {
			return Fire{Class: f.class, Severity: sev, Cleared: true}, true
		}
		return Fire{}, false
	}

	switch f.policy.Mode {
	case entities.AlertModeImmediateOnce:
		if !f.state.FiredOnce {
			return f.fire(sev, now), true
		}
	case entities.AlertModeImmediateRepeated:
		if f.repeatDue(now) {
			return f.fire(sev, now), true
		}
	case entities.AlertModeDeferred:
		if !f.state.FiredOnce && f.deferElapsed(now) {
			return f.fire(sev, now), true
		}
	case entities.AlertModeDeferredRepeated:
		if !f.state.FiredOnce {
			if f.deferElapsed(now) && f.repeatDue(now) {
				return f.fire(sev, now), true
			}
		} else if f.repeatDue(now) {
			return f.fire(sev, now), true
		}
	}
	return Fire{}, false
}

// deferElapsed starts the defer window on the first elevated observation and
// reports whether it has run out.
func (f *Filter) deferElapsed(now time.Time) bool {
	if f.state.PendingSince == nil {
		f.state.PendingSince = entities.T(now)
	}
	return now.Sub(*f.state.PendingSince) >= f.policy.DeferTime
}

// repeatDue uses last_fired_at across episodes, so two notifications of a
// repeating class are never closer than repeat_time.
func (f *Filter) repeatDue(now time.Time) bool {
	return f.state.LastFiredAt == nil || now.Sub(*f.state.LastFiredAt) >= f.policy.RepeatTime
}

func (f *Filter) fire(sev entities.SeverityLevel, now time.Time) Fire {
	repeat := f.state.FiredOnce
	f.state.FiredOnce = true
	f.state.LastFiredAt = entities.T(now)
	f.state.PendingSince = nil
	return Fire{Class: f.class, Severity: sev, Repeat: repeat}
}
