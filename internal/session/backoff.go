package session

import (
	"math/rand"
	"time"
)

// Backoff computes the reconnect delay sequence for spec §4.2's
// Reconnecting state: doubles per attempt, saturates at Max, and applies
// uniform jitter of ±(Jitter × delay) (spec §8, testable property 6).
// Generalized from the teacher's internal/ws.Backoff, which doubles and
// caps but has no jitter term.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // fraction, e.g. 0.2 for ±20%

	attempt int
	rand    *rand.Rand
}

// NewBackoff builds a Backoff. jitter is a fraction in [0,1).
func NewBackoff(base, max time.Duration, jitter float64) *Backoff {
	return &Backoff{
		Base:   base,
		Max:    max,
		Jitter: jitter,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay for the next attempt and advances the attempt
// counter. The undisturbed (pre-jitter) delay is Base*2^attempt, capped at
// Max; jitter is applied as a uniform multiplier in [1-Jitter, 1+Jitter].
func (b *Backoff) Next() time.Duration {
	d := b.Base << b.attempt
	if d <= 0 || d > b.Max {
		d = b.Max
	}
	b.attempt++
	return b.jittered(d)
}

func (b *Backoff) jittered(d time.Duration) time.Duration {
	if b.Jitter <= 0 {
		return d
	}
	r := b.rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	// factor in [1-Jitter, 1+Jitter]
	factor := 1 - b.Jitter + r.Float64()*2*b.Jitter
	return time.Duration(float64(d) * factor)
}

// Reset returns the sequence to its first attempt, per spec §4.2's "on
// successful re-auth, delay resets to base".
func (b *Backoff) Reset() {
	b.attempt = 0
}
