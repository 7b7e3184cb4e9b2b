// Package breaker builds the circuit breakers guarding the outbound
// transports (InfluxDB writes, push notifications).
package breaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/flora/internal/log"
)

// New returns a breaker that opens after fails consecutive failures and
// probes again after openFor.
func New(name string, fails uint32, openFor time.Duration) *gobreaker.CircuitBreaker {
	if fails == 0 {
		fails = 1
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= fails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("breaker: %s %s -> %s", name, from, to)
		},
	})
}

// Do runs fn through cb.
func Do(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// IsOpen reports whether err was returned by a breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
