// Package irrigation_controller runs the evaluation cycle: it collects the
// sensor and tank inputs, updates the alert filters, asks the scheduler what
// the pumps should do and commits the decisions through the pump controllers.
package irrigation_controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/LeonardoBeccarini/flora/internal/alert"
	"github.com/LeonardoBeccarini/flora/internal/config"
	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/internal/sensor"
	"github.com/LeonardoBeccarini/flora/internal/services/device"
	"github.com/LeonardoBeccarini/flora/internal/services/event"
	"github.com/LeonardoBeccarini/flora/internal/state"
)

// Result statuses of a pump run.
const (
	StatusOK      = "OK"
	StatusAborted = "ABORTED"
	StatusFail    = "FAIL"
)

// CycleObserver is told how long every cycle took.
type CycleObserver interface {
	ObserveCycle(took time.Duration, err error)
}

// StatusSetter publishes the controller status (online, idle, offline).
type StatusSetter interface {
	SetStatus(status string) error
}

// Deps are the collaborators of the orchestrator. Source, Tank and Pumps are
// required; the rest is optional.
type Deps struct {
	Source   sensor.Source
	Tank     device.TankReader
	Pumps    *PumpRouter
	Sink     event.Sink
	Store    state.Store
	Observer CycleObserver
	Status   StatusSetter
	Clock    func() time.Time
}

// CycleResult is what one cycle produced.
type CycleResult struct {
	Report    messages.CycleReport
	Decisions []Decision
	// Next is when the following cycle is due.
	Next time.Time
}

// Orchestrator owns all the core state. RunCycle and Run must be called from
// one goroutine; Submit, LastCycle and LastReport are safe from any.
type Orchestrator struct {
	settings  config.Settings
	scheduler *Scheduler
	bank      *alert.Bank
	records   []*sensor.Record

	source   sensor.Source
	tank     device.TankReader
	pumps    *PumpRouter
	sink     event.Sink
	store    state.Store
	observer CycleObserver
	status   StatusSetter
	now      func() time.Time
	newID    func() string

	inbox *Inbox

	autoIrrigation bool
	manualDuration time.Duration
	// tickets maps a running pump to the ID of its run.
	tickets map[string]string

	mu         sync.RWMutex
	lastCycle  time.Time
	lastReport *messages.CycleReport
}

func NewOrchestrator(s config.Settings, d Deps) (*Orchestrator, error) {
	switch {
	case d.Source == nil:
		return nil, errors.New("orchestrator: sensor source is nil")
	case d.Tank == nil:
		return nil, errors.New("orchestrator: tank reader is nil")
	case d.Pumps == nil:
		return nil, errors.New("orchestrator: pump router is nil")
	}
	o := &Orchestrator{
		settings:       s,
		scheduler:      NewScheduler(s),
		source:         d.Source,
		tank:           d.Tank,
		pumps:          d.Pumps,
		sink:           d.Sink,
		store:          d.Store,
		observer:       d.Observer,
		status:         d.Status,
		now:            d.Clock,
		newID:          uuid.NewString,
		inbox:          NewInbox(),
		autoIrrigation: s.AutoIrrigation,
		manualDuration: s.IrrigationDurationMan,
		tickets:        map[string]string{},
	}
	if o.sink == nil {
		o.sink = event.Nop{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	policies := make(map[entities.AlertClass]entities.AlertPolicy, len(entities.AllAlertClasses))
	for _, c := range entities.AllAlertClasses {
		policies[c] = s.AlertPolicy(c)
	}
	o.bank = alert.NewBank(policies)
	for _, p := range s.Plants {
		o.records = append(o.records, sensor.NewRecord(p, s.MessageTimeout, s.BattLow))
	}
	return o, nil
}

// Submit queues a control request for the next cycle and wakes the run loop.
func (o *Orchestrator) Submit(req messages.ControlRequest) { o.inbox.Submit(req) }

// Inbox returns the control request queue.
func (o *Orchestrator) Inbox() *Inbox { return o.inbox }

// LastCycle returns when the last cycle completed.
func (o *Orchestrator) LastCycle() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastCycle
}

// LastReport returns the report of the last cycle, if any.
func (o *Orchestrator) LastReport() (messages.CycleReport, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.lastReport == nil {
		return messages.CycleReport{}, false
	}
	return *o.lastReport, true
}

// Restore loads the persisted alert and pump states. Pumps recorded as
// running come back unconfirmed and are stopped by the first cycle.
func (o *Orchestrator) Restore(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	alerts, pumps, err := o.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: load state: %w", err)
	}
	o.bank.RestoreState(alerts)
	o.pumps.Restore(pumps)
	log.Infof("controller: restored %d alert states and %d pump states", len(alerts), len(pumps))
	return nil
}

// RunCycle runs one evaluation cycle. Faults of single sensors, pumps or
// sinks are logged and never abort the cycle; the returned error only
// reports that the state could not be persisted.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleResult, error) {
	start := o.now()
	now := start

	tank, err := o.tank.ReadTank(ctx)
	if err != nil {
		log.Warnf("controller: tank signal: %v", err)
		tank = entities.UnknownTank
	}

	snaps := o.collect(ctx, now)
	byName := make(map[string]sensor.Snapshot, len(snaps))
	for _, s := range snaps {
		byName[s.Sensor] = s
	}

	var alerts []messages.AlertEvent
	obs := alert.Classify(snaps, tank, nil)
	for _, c := range entities.AllAlertClasses {
		if c == entities.AlertPumpFault {
			continue
		}
		if ev, ok := o.bank.Observe(c, obs[c], now); ok {
			alerts = append(alerts, ev)
		}
	}

	requests := o.drain()

	decisions := o.scheduler.Decide(Inputs{
		Now:            now,
		Tank:           tank,
		Sensors:        byName,
		Pumps:          o.pumps.States(),
		Requests:       requests,
		AutoIrrigation: o.autoIrrigation,
		ManualDuration: o.manualDuration,
	})
	faults := o.actuate(ctx, decisions, tank, now)

	pumpObs := alert.Observation{Severity: entities.SeverityOk}
	if len(faults) > 0 {
		pumpObs = alert.Observation{
			Severity: entities.SeverityError,
			SensorID: faults[0].pump,
			Detail:   joinFaults(faults),
		}
	}
	if ev, ok := o.bank.Observe(entities.AlertPumpFault, pumpObs, now); ok {
		alerts = append(alerts, ev)
	}
	for _, ev := range alerts {
		log.Infow("controller: alert", "class", ev.Class, "severity", ev.Severity, "sensor", ev.SensorID, "cleared", ev.Cleared)
		if err := o.sink.Alert(ctx, ev); err != nil {
			log.Warnf("controller: deliver alert %s: %v", ev.Class, err)
		}
	}

	report := o.report(now, tank, snaps, decisions, alerts)
	if err := o.sink.Report(ctx, report); err != nil {
		log.Warnf("controller: deliver report: %v", err)
	}

	var saveErr error
	if o.store != nil {
		if err := o.store.SaveState(ctx, o.bank.ExportState(), report.Pumps); err != nil {
			saveErr = fmt.Errorf("orchestrator: save state: %w", err)
			log.Errorf("controller: %v", saveErr)
		}
	}

	o.mu.Lock()
	o.lastCycle = o.now()
	o.lastReport = &report
	o.mu.Unlock()
	if o.observer != nil {
		o.observer.ObserveCycle(o.now().Sub(start), saveErr)
	}

	return CycleResult{Report: report, Decisions: decisions, Next: o.next(now, report.Pumps)}, saveErr
}

// collect fetches every configured sensor and updates its record.
func (o *Orchestrator) collect(ctx context.Context, now time.Time) []sensor.Snapshot {
	snaps := make([]sensor.Snapshot, 0, len(o.records))
	for _, rec := range o.records {
		id := rec.Profile().Sensor
		data, err := o.source.Fetch(ctx, id)
		switch {
		case errors.Is(err, sensor.ErrUnavailable):
			log.Debugf("controller: %s: %v", id, err)
			snaps = append(snaps, rec.MarkUnavailable(now))
		case err != nil:
			log.Warnf("controller: fetch %s: %v", id, err)
			snaps = append(snaps, rec.Update(nil, now))
		default:
			if data.Timestamp.IsZero() {
				data.Timestamp = now
			}
			snaps = append(snaps, rec.Update(data.Readings(), now))
		}
	}
	return snaps
}

// drain applies the runtime toggles and returns the manual irrigation requests.
func (o *Orchestrator) drain() []messages.ManualIrrigationRequest {
	var out []messages.ManualIrrigationRequest
	for _, req := range o.inbox.Drain() {
		switch req.Kind {
		case messages.ControlAutoIrrigation:
			if o.autoIrrigation != req.Enabled {
				log.Infof("controller: automatic irrigation set to %v by %s", req.Enabled, req.Source)
			}
			o.autoIrrigation = req.Enabled
		case messages.ControlManualDuration:
			if req.Duration <= 0 {
				log.Warnf("controller: manual duration %s from %s ignored", req.Duration, req.Source)
				continue
			}
			o.manualDuration = req.Duration
			log.Infof("controller: manual duration set to %s by %s", req.Duration, req.Source)
		case messages.ControlManualIrrigation:
			name, ok := o.pumps.Resolve(req.Pump)
			if !ok {
				log.Warnf("controller: manual irrigation of unknown pump %q from %s", req.Pump, req.Source)
				continue
			}
			out = append(out, messages.ManualIrrigationRequest{Pump: name, Duration: req.Duration, At: req.At})
		default:
			log.Warnf("controller: unknown control request %q", req.Kind)
		}
	}
	return out
}

type pumpFault struct {
	pump string
	err  error
}

// actuate commits the decisions and emits the decision and result events.
// It returns the hardware faults seen on the way.
func (o *Orchestrator) actuate(ctx context.Context, decisions []Decision, tank entities.TankStatus, now time.Time) []pumpFault {
	il := o.scheduler.Interlocks(tank, now)
	var faults []pumpFault
	for _, d := range decisions {
		p, ok := o.pumps.Get(d.Pump)
		if !ok {
			continue
		}
		if d.Action == entities.ActionNoChange {
			if d.Reason != "" {
				log.Debugf("controller: %s: %s", d.Pump, d.Reason)
			}
			continue
		}

		before := p.State()
		_, err := p.Apply(ctx, d.PumpCommand, il, now)
		if err != nil {
			log.Errorf("controller: %s %s: %v", d.Action, d.Pump, err)
			if device.IsHardwareFault(err) {
				faults = append(faults, pumpFault{pump: d.Pump, err: err})
			}
			if d.Action == entities.ActionStart {
				o.result(ctx, messages.IrrigationResultEvent{
					Pump:      d.Pump,
					TicketID:  o.newID(),
					Mode:      d.Mode,
					Status:    StatusFail,
					Reason:    err.Error(),
					Timestamp: now,
				})
			}
			continue
		}

		switch d.Action {
		case entities.ActionStart:
			ticket := o.newID()
			o.tickets[d.Pump] = ticket
			ev := messages.IrrigationDecisionEvent{
				Pump:      d.Pump,
				TicketID:  ticket,
				SensorID:  d.SensorID,
				Mode:      d.Mode,
				Moisture:  d.Moisture,
				Duration:  d.Duration,
				Reason:    d.Reason,
				Timestamp: now,
			}
			if err := o.sink.Decision(ctx, ev); err != nil {
				log.Warnf("controller: deliver decision %s: %v", d.Pump, err)
			}
		case entities.ActionStop:
			status := StatusAborted
			if due, ok := before.StopDue(); ok && !before.Unconfirmed && !now.Before(due) {
				status = StatusOK
			}
			ticket, ok := o.tickets[d.Pump]
			if !ok {
				// started by an earlier process
				ticket = o.newID()
			}
			delete(o.tickets, d.Pump)
			o.result(ctx, messages.IrrigationResultEvent{
				Pump:      d.Pump,
				TicketID:  ticket,
				Mode:      before.Mode,
				Status:    status,
				Reason:    d.Reason,
				StartedAt: before.StartedAt,
				Timestamp: now,
			})
		}
	}

	for _, name := range o.pumps.Names() {
		p, _ := o.pumps.Get(name)
		if err := p.CheckDriver(ctx); err != nil {
			log.Errorf("controller: %v", err)
			faults = append(faults, pumpFault{pump: name, err: err})
		}
	}
	return faults
}

func (o *Orchestrator) result(ctx context.Context, ev messages.IrrigationResultEvent) {
	log.Infow("controller: pump run finished", "pump", ev.Pump, "status", ev.Status, "reason", ev.Reason, "ran_for", ev.RanFor())
	if err := o.sink.Result(ctx, ev); err != nil {
		log.Warnf("controller: deliver result %s: %v", ev.Pump, err)
	}
}

func (o *Orchestrator) report(now time.Time, tank entities.TankStatus, snaps []sensor.Snapshot, decisions []Decision, alerts []messages.AlertEvent) messages.CycleReport {
	r := messages.CycleReport{
		Timestamp:      now,
		Tank:           tank,
		AutoIrrigation: o.autoIrrigation,
		ManualDuration: o.manualDuration,
		Pumps:          o.pumps.States(),
		Alerts:         alerts,
	}
	var moisture []float64
	for _, s := range snaps {
		sr := messages.SensorReport{
			Sensor:     s.Sensor,
			Plant:      s.Plant,
			Valid:      s.Valid,
			BatteryLow: s.BatteryLow,
			Worst:      s.WorstSeverity(),
			Severities: make(map[entities.Metric]entities.SeverityLevel, len(s.Results)),
			Values:     make(map[entities.Metric]float64, len(s.Readings)),
		}
		for m, res := range s.Results {
			sr.Severities[m] = res.Severity
			if v, ok := s.Value(m); ok {
				sr.Values[m] = v
			}
		}
		if v, ok := s.Value(entities.MetricMoisture); ok && s.Valid {
			moisture = append(moisture, v)
		}
		r.Sensors = append(r.Sensors, sr)
	}
	for _, d := range decisions {
		if d.Action != entities.ActionNoChange {
			r.Commands = append(r.Commands, d.PumpCommand)
		}
	}
	if len(moisture) > 0 {
		r.Moisture = messages.MoistureStats{
			Count: len(moisture),
			Mean:  stat.Mean(moisture, nil),
			Min:   floats.Min(moisture),
			Max:   floats.Max(moisture),
		}
	}
	return r
}

// next is the start of the following cycle: one processing period later, or
// earlier when a running pump is due to stop before that.
func (o *Orchestrator) next(now time.Time, pumps []entities.IrrigationState) time.Time {
	next := now.Add(o.settings.ProcessingPeriod)
	for _, st := range pumps {
		if !st.IsRunning {
			continue
		}
		if due, ok := st.StopDue(); ok && due.Before(next) {
			next = due
		}
	}
	if next.Before(now) {
		next = now
	}
	return next
}

// Run restores the persisted state and runs cycles until ctx is done. In
// deep sleep mode it returns after the first cycle that leaves every pump
// stopped.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Restore(ctx); err != nil {
		log.Errorf("controller: %v", err)
	}
	defer func() {
		// the pumps must not outlive the controller
		off, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.pumps.Close(off)
		o.setStatus(event.StatusOffline)
	}()

	for {
		o.setStatus(event.StatusOnline)
		res, err := o.RunCycle(ctx)
		if err != nil {
			log.Warnf("controller: cycle: %v", err)
		}
		if o.settings.DeepSleep && !res.Report.Running() {
			log.Infof("controller: deep sleep, next wake-up due at %s", res.Next.Format(time.RFC3339))
			return nil
		}

		o.setStatus(event.StatusIdle)
		wait := res.Next.Sub(o.now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Infof("controller: stopping")
			return nil
		case <-o.inbox.Wake():
			timer.Stop()
			log.Debugf("controller: woken up by a control request")
		case <-timer.C:
		}
	}
}

func (o *Orchestrator) setStatus(status string) {
	if o.status == nil {
		return
	}
	if err := o.status.SetStatus(status); err != nil {
		log.Warnf("controller: publish status %s: %v", status, err)
	}
}

func joinFaults(faults []pumpFault) string {
	parts := make([]string, len(faults))
	for i, f := range faults {
		parts[i] = f.err.Error()
	}
	return strings.Join(parts, "; ")
}
