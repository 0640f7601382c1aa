package realtime

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// backoff computes exponential reconnect delays with jitter. reset is
// called on every successful connect so a flapping link does not keep
// ratcheting the delay up forever.
type backoff struct {
	mu      sync.Mutex
	base    time.Duration
	max     time.Duration
	attempt int
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max}
}

func (b *backoff) next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := float64(b.base) * math.Pow(2, float64(b.attempt))
	d += rand.Float64() * float64(b.base) * 0.5
	if d > float64(b.max) {
		d = float64(b.max)
	}
	b.attempt++
	return time.Duration(d)
}

func (b *backoff) reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}
