// Package chain implements prioritized fallback: an ordered list of strategy
// functions combined with a first-success-wins runner. Every selector cascade
// in the pipeline (result extraction, cross-reference resolution, document
// location, acquisition) is expressed as one of these chains, which makes the
// priority order and short-circuiting testable in isolation.
package chain

import (
	"context"
	"log/slog"
)

// Strategy is one fallback tier. Run reports (value, true, nil) on a hit.
// A false match and an error are both treated as a miss: the next tier is
// tried. Errors are recoverable by construction; nothing a tier does may
// abort the chain.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, bool, error)
}

// First runs strategies in order and returns the first hit along with the
// name of the winning tier. Once a tier hits, later tiers are not invoked.
// If every tier misses, ok is false.
func First[T any](ctx context.Context, logger *slog.Logger, strategies []Strategy[T]) (val T, winner string, ok bool) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			logger.Debug("chain cancelled", "tier", s.Name, "err", err)
			return val, "", false
		}
		v, hit, err := s.Run(ctx)
		if err != nil {
			logger.Debug("tier failed", "tier", s.Name, "err", err)
			continue
		}
		if !hit {
			logger.Debug("tier missed", "tier", s.Name)
			continue
		}
		return v, s.Name, true
	}
	return val, "", false
}
