package lavalink

import (
	"math/rand"
	"sync"
	"time"
)

// backoff computes reconnect delays. Each consecutive failure doubles the
// delay window up to a capped exponent; the delay itself is drawn uniformly
// from that window. The exponent resets once enough quiet time has passed
// since the last failure.
type backoff struct {
	mu   sync.Mutex
	base time.Duration
	exp  int
	max  int

	resetAfter time.Duration
	last       time.Time

	rand *rand.Rand
}

func newBackoff(base time.Duration) *backoff {
	return &backoff{
		base:       base,
		max:        10,
		resetAfter: base * (1 << 11),
		last:       time.Now(),
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay records a failure and returns how long to wait before retrying.
func (b *backoff) Delay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.Sub(b.last) > b.resetAfter {
		b.exp = 0
	}
	b.last = now

	if b.exp < b.max {
		b.exp++
	}

	window := b.base * (1 << b.exp)
	return time.Duration(b.rand.Int63n(int64(window) + 1))
}
