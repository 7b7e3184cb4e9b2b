package irrigation_controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/LeonardoBeccarini/flora/internal/config"
	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/services/device"
)

// OutputFactory builds the physical output of a configured pump.
type OutputFactory func(cfg config.PumpConfig) (device.Output, error)

// PumpRouter keeps one pump controller per configured pump, in configuration
// order.
type PumpRouter struct {
	mu      sync.RWMutex
	order   []string
	pumps   map[string]*device.Pump
	outputs map[string]device.Output
}

// NewPumpRouter builds the controllers of cfgs. An output that also
// implements device.StatusReader enables the driver check of its pump.
func NewPumpRouter(cfgs []config.PumpConfig, factory OutputFactory) (*PumpRouter, error) {
	if factory == nil {
		return nil, errors.New("pump router: output factory is nil")
	}
	r := &PumpRouter{
		pumps:   make(map[string]*device.Pump, len(cfgs)),
		outputs: make(map[string]device.Output, len(cfgs)),
	}
	for _, c := range cfgs {
		if _, dup := r.pumps[c.Name]; dup {
			return nil, fmt.Errorf("pump router: duplicate pump %q", c.Name)
		}
		out, err := factory(c)
		if err != nil {
			return nil, fmt.Errorf("pump router: output of %s: %w", c.Name, err)
		}
		p := device.NewPump(c.Name, out)
		if sr, ok := out.(device.StatusReader); ok {
			p.WithStatusReader(sr)
		}
		r.pumps[c.Name] = p
		r.outputs[c.Name] = out
		r.order = append(r.order, c.Name)
	}
	return r, nil
}

func (r *PumpRouter) Get(name string) (*device.Pump, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pumps[name]
	return p, ok
}

// Resolve accepts a pump name or its 1-based position in the configuration.
func (r *PumpRouter) Resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.pumps[ref]; ok {
		return ref, true
	}
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 || n > len(r.order) {
		return "", false
	}
	return r.order[n-1], true
}

// Names returns the pump names in configuration order.
func (r *PumpRouter) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// States returns the state of every pump in configuration order.
func (r *PumpRouter) States() []entities.IrrigationState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entities.IrrigationState, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.pumps[n].State())
	}
	return out
}

// Restore loads persisted pump states; unknown pumps are ignored.
func (r *PumpRouter) Restore(states []entities.IrrigationState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range states {
		p, ok := r.pumps[st.Pump]
		if !ok {
			log.Warnf("controller: persisted state of unknown pump %q ignored", st.Pump)
			continue
		}
		p.Restore(st)
	}
}

// Close switches every output off, running or not.
func (r *PumpRouter) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.order {
		if err := r.outputs[n].Set(ctx, false); err != nil {
			log.Errorf("controller: cannot switch %s off on shutdown: %v", n, err)
		}
	}
}
