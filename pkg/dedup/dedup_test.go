package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeduper(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	d := New(time.Minute, 0).WithClock(func() time.Time { return now })

	assert.True(t, d.ShouldProcess("a"))
	assert.False(t, d.ShouldProcess("a"))
	assert.True(t, d.ShouldProcess(""))
	assert.True(t, d.ShouldProcess(""))

	now = now.Add(time.Minute)
	assert.True(t, d.ShouldProcess("a"), "expired after the ttl")
}

func TestDeduper_Payload(t *testing.T) {
	d := New(time.Minute, 10)
	assert.True(t, d.ShouldProcessPayload("basil", []byte(`{"moisture":20}`)))
	assert.False(t, d.ShouldProcessPayload("basil", []byte(`{"moisture":20}`)))
	assert.True(t, d.ShouldProcessPayload("fern", []byte(`{"moisture":20}`)))
	assert.True(t, d.ShouldProcessPayload("basil", []byte(`{"moisture":21}`)))
}

func TestDeduper_Evicts(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	d := New(time.Second, 3).WithClock(func() time.Time { return now })
	for i := 0; i < 3; i++ {
		d.ShouldProcess(fmt.Sprint(i))
	}
	now = now.Add(2 * time.Second)
	d.ShouldProcess("fresh")
	assert.Equal(t, 1, d.Len())
}

func TestDeduper_BoundedWithoutExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	d := New(time.Hour, 3).WithClock(func() time.Time { return now })
	for i := 0; i < 5; i++ {
		assert.True(t, d.ShouldProcess(fmt.Sprint(i)))
	}
	assert.Equal(t, 3, d.Len())
	assert.False(t, d.ShouldProcess("4"))
	assert.False(t, d.ShouldProcess("2"))
	assert.True(t, d.ShouldProcess("0"), "oldest id was evicted")
	assert.Equal(t, 3, d.Len())
	assert.True(t, d.ShouldProcess("2"), "re-adding 0 evicted 2, the next oldest")
}
