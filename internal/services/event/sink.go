// Package event delivers what a cycle produces (alerts, pump decisions and
// results, the cycle report) to its destinations: InfluxDB, push
// notifications and MQTT.
package event

import (
	"context"
	"errors"

	"github.com/LeonardoBeccarini/flora/internal/model/messages"
)

// Sink receives the outputs of a cycle. Implementations must not block for
// long; a failing sink never aborts the cycle.
type Sink interface {
	Alert(ctx context.Context, ev messages.AlertEvent) error
	Decision(ctx context.Context, ev messages.IrrigationDecisionEvent) error
	Result(ctx context.Context, ev messages.IrrigationResultEvent) error
	Report(ctx context.Context, r messages.CycleReport) error
}

// Nop ignores everything. Embed it to implement only part of Sink.
type Nop struct{}

func (Nop) Alert(context.Context, messages.AlertEvent) error                 { return nil }
func (Nop) Decision(context.Context, messages.IrrigationDecisionEvent) error { return nil }
func (Nop) Result(context.Context, messages.IrrigationResultEvent) error     { return nil }
func (Nop) Report(context.Context, messages.CycleReport) error               { return nil }

// Fanout delivers to every sink and joins the errors.
type Fanout []Sink

func (f Fanout) Alert(ctx context.Context, ev messages.AlertEvent) error {
	return f.each(func(s Sink) error { return s.Alert(ctx, ev) })
}

func (f Fanout) Decision(ctx context.Context, ev messages.IrrigationDecisionEvent) error {
	return f.each(func(s Sink) error { return s.Decision(ctx, ev) })
}

func (f Fanout) Result(ctx context.Context, ev messages.IrrigationResultEvent) error {
	return f.each(func(s Sink) error { return s.Result(ctx, ev) })
}

func (f Fanout) Report(ctx context.Context, r messages.CycleReport) error {
	return f.each(func(s Sink) error { return s.Report(ctx, r) })
}

func (f Fanout) each(fn func(Sink) error) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps everything it receives, for tests and the status API.
type Recorder struct {
	Alerts    []messages.AlertEvent
	Decisions []messages.IrrigationDecisionEvent
	Results   []messages.IrrigationResultEvent
	Reports   []messages.CycleReport
}

func (r *Recorder) Alert(_ context.Context, ev messages.AlertEvent) error {
	r.Alerts = append(r.Alerts, ev)
	return nil
}

func (r *Recorder) Decision(_ context.Context, ev messages.IrrigationDecisionEvent) error {
	r.Decisions = append(r.Decisions, ev)
	return nil
}

func (r *Recorder) Result(_ context.Context, ev messages.IrrigationResultEvent) error {
	r.Results = append(r.Results, ev)
	return nil
}

func (r *Recorder) Report(_ context.Context, rep messages.CycleReport) error {
	r.Reports = append(r.Reports, rep)
	return nil
}
