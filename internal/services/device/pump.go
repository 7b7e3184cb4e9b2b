// Package device owns the physical side of irrigation: pump outputs, the pump
// controller enforcing the safety interlocks, and the water tank signal.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

var (
	ErrInterlockViolated = errors.New("interlock violated")
	ErrAlreadyRunning    = errors.New("pump already running")
	ErrAlreadyStopped    = errors.New("pump already stopped")
	ErrOutputFailed      = errors.New("pump output failed")
	ErrDriverFault       = errors.New("driver status not as expected")
)

// Output drives the relay of one pump.
type Output interface {
	Set(ctx context.Context, on bool) error
}

// StatusReader reports whether the motor driver is healthy.
type StatusReader interface {
	DriverOK(ctx context.Context) (bool, error)
}

// Pump is the controller of one pump. It is driven by the cycle orchestrator
// only and is not safe for concurrent use.
type Pump struct {
	name   string
	out    Output
	status StatusReader
	state  entities.IrrigationState
}

func NewPump(name string, out Output) *Pump {
	return &Pump{name: name, out: out, state: entities.IrrigationState{Pump: name}}
}

// WithStatusReader enables the driver check of running pumps.
func (p *Pump) WithStatusReader(sr StatusReader) *Pump {
	p.status = sr
	return p
}

func (p *Pump) Name() string { return p.name }

func (p *Pump) State() entities.IrrigationState { return p.state }

// Restore loads the persisted state. A pump recorded as running cannot be
// trusted after a restart: it is marked unconfirmed so the scheduler stops it.
func (p *Pump) Restore(st entities.IrrigationState) {
	st.Pump = p.name
	if st.IsRunning {
		st.Unconfirmed = true
	}
	p.state = st
}

// Apply commits cmd. Start re-checks the interlocks right before energizing
// the output. Errors wrap one of the package sentinels; the returned state is
// always the current one.
func (p *Pump) Apply(ctx context.Context, cmd entities.PumpCommand, il entities.Interlocks, now time.Time) (entities.IrrigationState, error) {
	switch cmd.Action {
	case entities.ActionStart:
		return p.start(ctx, cmd, il, now)
	case entities.ActionStop:
		return p.stop(ctx, now)
	default:
		return p.state, nil
	}
}

func (p *Pump) start(ctx context.Context, cmd entities.PumpCommand, il entities.Interlocks, now time.Time) (entities.IrrigationState, error) {
	if il.TankEmpty || il.Night {
		var why []string
		if il.TankEmpty {
			why = append(why, "tank empty")
		}
		if il.Night {
			why = append(why, "night window")
		}
		return p.state, fmt.Errorf("%s: start refused (%s): %w", p.name, strings.Join(why, ", "), ErrInterlockViolated)
	}
	if p.state.IsRunning {
		return p.state, fmt.Errorf("%s: %w", p.name, ErrAlreadyRunning)
	}
	if err := p.out.Set(ctx, true); err != nil {
		// leave the relay in the safe position
		if offErr := p.out.Set(ctx, false); offErr != nil {
			log.Errorf("device: %s: cannot switch output off after failed start: %v", p.name, offErr)
		}
		return p.state, fmt.Errorf("%s: switch on: %v: %w", p.name, err, ErrOutputFailed)
	}
	p.state.IsRunning = true
	p.state.StartedAt = entities.T(now)
	p.state.Mode = cmd.Mode
	p.state.Duration = cmd.Duration
	p.state.Unconfirmed = false
	log.Infof("device: %s on (%s, %s): %s", p.name, cmd.Mode, cmd.Duration, cmd.Reason)
	return p.state, nil
}

func (p *Pump) stop(ctx context.Context, now time.Time) (entities.IrrigationState, error) {
	if !p.state.IsRunning {
		return p.state, fmt.Errorf("%s: %w", p.name, ErrAlreadyStopped)
	}
	if err := p.out.Set(ctx, false); err != nil {
		return p.state, fmt.Errorf("%s: switch off: %v: %w", p.name, err, ErrOutputFailed)
	}
	p.state.IsRunning = false
	p.state.LastFinishedAt = entities.T(now)
	p.state.Unconfirmed = false
	log.Infof("device: %s off", p.name)
	return p.state, nil
}

// CheckDriver verifies the motor driver of a running pump.
func (p *Pump) CheckDriver(ctx context.Context) error {
	if p.status == nil || !p.state.IsRunning {
		return nil
	}
	ok, err := p.status.DriverOK(ctx)
	if err != nil {
		return fmt.Errorf("%s: read driver status: %v: %w", p.name, err, ErrDriverFault)
	}
	if !ok {
		return fmt.Errorf("%s: %w", p.name, ErrDriverFault)
	}
	return nil
}

// IsHardwareFault reports whether err comes from the output or the driver,
// as opposed to a refused or redundant command.
func IsHardwareFault(err error) bool {
	return errors.Is(err, ErrOutputFailed) || errors.Is(err, ErrDriverFault)
}
