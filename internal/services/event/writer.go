package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/pkg/breaker"
)

// Writer stores events in InfluxDB through a circuit breaker and tracks the
// last write error for /healthz and /readyz.
type Writer struct {
	Nop

	api     api.WriteAPIBlocking
	cb      *gobreaker.CircuitBreaker
	now     func() time.Time
	mu      sync.RWMutex
	lastErr time.Time
	counts  map[string]int64
}

func NewWriter(w api.WriteAPIBlocking, cb *gobreaker.CircuitBreaker) *Writer {
	return &Writer{
		api:     w,
		cb:      cb,
		now:     time.Now,
		lastErr: time.Now().Add(-24 * time.Hour),
		counts:  make(map[string]int64),
	}
}

func (w *Writer) Alert(ctx context.Context, ev messages.AlertEvent) error {
	return w.write(ctx, FromAlert(ev))
}

func (w *Writer) Decision(ctx context.Context, ev messages.IrrigationDecisionEvent) error {
	return w.write(ctx, FromDecision(ev))
}

func (w *Writer) Result(ctx context.Context, ev messages.IrrigationResultEvent) error {
	return w.write(ctx, FromResult(ev))
}

func (w *Writer) write(ctx context.Context, evt CommonEvent) error {
	p := EventToPoint(evt)
	err := breaker.Do(w.cb, func() error { return w.api.WritePoint(ctx, p) })
	if err != nil {
		w.mu.Lock()
		w.lastErr = w.now()
		w.mu.Unlock()
		if !breaker.IsOpen(err) {
			log.Warnf("event: influx write error: %v", err)
		}
		return fmt.Errorf("event: write %s: %w", evt.EventType, err)
	}
	w.MarkIngest(evt.EventType)
	return nil
}

// LastErrorAge returns how long ago the last write failed.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return w.now().Sub(t)
}

// MarkIngest counts a stored event by type.
func (w *Writer) MarkIngest(eventType string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.counts[eventType]++
	w.mu.Unlock()
}

func (w *Writer) Count(eventType string) int64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	c := w.counts[eventType]
	w.mu.RUnlock()
	return c
}
