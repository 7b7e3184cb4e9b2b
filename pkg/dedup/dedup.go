// Package dedup drops messages already seen within a time window, e.g. QoS 1
// redeliveries of the same sensor payload.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time
	// order holds the ids in insertion order; entries whose expiry no longer
	// matches seen are left over from an earlier insertion.
	order []entry
	now   func() time.Time
}

type entry struct {
	id  string
	exp time.Time
}

func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{ttl: ttl, max: max, seen: make(map[string]time.Time, max), now: time.Now}
}

// WithClock replaces the time source.
func (d *Deduper) WithClock(now func() time.Time) *Deduper {
	d.now = now
	return d
}

// ShouldProcess records id and reports whether it was not seen within the
// TTL. Empty ids are always processed.
func (d *Deduper) ShouldProcess(id string) bool {
	if id == "" {
		return true
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false
	}
	exp := now.Add(d.ttl)
	d.seen[id] = exp
	d.order = append(d.order, entry{id: id, exp: exp})
	d.evict(now)
	return true
}

// evict drops expired ids from the front of the queue, then the oldest ids
// until the map is back within max.
func (d *Deduper) evict(now time.Time) {
	drop := 0
	for _, e := range d.order {
		cur, ok := d.seen[e.id]
		live := ok && cur.Equal(e.exp)
		if live && now.Before(e.exp) && len(d.seen) <= d.max {
			break
		}
		if live {
			delete(d.seen, e.id)
		}
		drop++
	}
	if drop > 0 {
		d.order = append(d.order[:0:0], d.order[drop:]...)
	}
}

// ShouldProcessPayload is ShouldProcess keyed by the payload hash.
func (d *Deduper) ShouldProcessPayload(key string, payload []byte) bool {
	h := sha256.Sum256(payload)
	return d.ShouldProcess(key + ":" + hex.EncodeToString(h[:]))
}

// Len returns the number of remembered ids.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
