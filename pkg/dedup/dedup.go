// Package dedup suppresses duplicate deliveries of the same message.
// MQTT QoS 1 may redeliver a publish after a reconnect; callers derive a
// fingerprint from the payload and skip messages seen within the TTL.
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
	now  func() time.Time
	seen map[string]time.Time
}

func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{ttl: ttl, max: max, now: time.Now, seen: make(map[string]time.Time, max)}
}

// Fingerprint identifies a delivery by topic and payload bytes. Retained
// messages replayed on resubscribe hash identically and are dropped.
func Fingerprint(topic string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(topic))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Seen records the fingerprint and reports whether it was already present
// and unexpired. An empty fingerprint is never considered a duplicate.
func (d *Deduper) Seen(fp string) bool {
	if fp == "" {
		return false
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if exp, ok := d.seen[fp]; ok && now.Before(exp) {
		return true
	}
	d.seen[fp] = now.Add(d.ttl)
	if len(d.seen) > d.max {
		d.evict(now)
	}
	return false
}

func (d *Deduper) evict(now time.Time) {
	for k, exp := range d.seen {
		if now.After(exp) {
			delete(d.seen, k)
		}
	}
	// Still over budget: drop arbitrary entries. Re-processing a stale
	// duplicate is harmless compared to unbounded growth.
	for k := range d.seen {
		if len(d.seen) <= d.max {
			break
		}
		delete(d.seen, k)
	}
}
