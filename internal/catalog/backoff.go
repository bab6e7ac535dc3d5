package catalog

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	mathrand "math/rand/v2"
	"time"
)

// BackoffPolicy computes jittered, exponentially growing retry delays. One
// policy serves every network retry in the fetcher; the rate-limit cooldown
// is handled separately because 429 responses escalate differently.
type BackoffPolicy struct {
	Base       time.Duration
	Cap        time.Duration
	Multiplier float64
}

// DefaultBackoffPolicy returns the policy used against product feeds.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:       5 * time.Second,
		Cap:        5 * time.Minute,
		Multiplier: 2,
	}
}

// Delay returns the wait duration before retry number attempt (0-based).
// Half the computed delay is fixed and half is random jitter, so concurrent
// site loops never fall into lockstep.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 1 {
		mult = 2
	}
	delay := float64(p.Base) * math.Pow(mult, float64(attempt))
	if delay > float64(p.Cap) {
		delay = float64(p.Cap)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

// randomJitter returns a cryptographically random duration in [0, limit).
func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// randomBetween returns a uniformly random duration in [min, max].
func randomBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + mathrand.N(max-min)
}

// pause sleeps for delay or until the context finishes, whichever is first.
func pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
