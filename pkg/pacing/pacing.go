// Package pacing spaces out article-level operations. The pipeline processes
// candidates strictly sequentially; a Pacer inserts a fixed delay with
// optional jitter between iterations to keep request timing irregular enough
// to avoid tripping rate-based automation detection.
package pacing

import (
	"context"
	"math/rand"
	"time"
)

// Pacer delays successive operations by a fixed interval plus jitter.
// It is safe for concurrent use.
type Pacer struct {
	interval time.Duration
	jitter   float64 // 0.0 to 1.0, fraction of interval
}

// New creates a Pacer. A non-positive interval produces a no-op pacer.
// Jitter outside [0, 1] is clamped.
func New(interval time.Duration, jitter float64) *Pacer {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	return &Pacer{interval: interval, jitter: jitter}
}

// Wait blocks for the configured delay or until the context is cancelled.
// Jitter shifts each wait by up to ±jitter*interval, never below zero.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.interval <= 0 {
		return nil
	}

	d := p.interval
	if p.jitter > 0 {
		shift := (rand.Float64()*2 - 1) * p.jitter * float64(p.interval)
		d += time.Duration(shift)
		if d < 0 {
			d = 0
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
