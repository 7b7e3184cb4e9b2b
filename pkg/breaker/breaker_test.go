package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterFailures(t *testing.T) {
	cb := New("influx", 2, time.Hour)
	boom := errors.New("boom")

	calls := 0
	fail := func() error { calls++; return boom }

	require.ErrorIs(t, Do(cb, fail), boom)
	require.ErrorIs(t, Do(cb, fail), boom)
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	err := Do(cb, fail)
	assert.True(t, IsOpen(err))
	assert.Equal(t, 2, calls, "open breaker does not call through")
}

func TestBreaker_Success(t *testing.T) {
	cb := New("notify", 0, time.Second)
	assert.NoError(t, Do(cb, func() error { return nil }))
	assert.False(t, IsOpen(errors.New("other")))
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
