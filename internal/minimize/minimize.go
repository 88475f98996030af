// Package minimize shrinks a crashing input while preserving its crash
// signature. Rounds of tail truncation, block removal and byte zeroing
// repeat until no single step shrinks the input further or the attempt
// budget runs out. Every candidate goes through the full pipeline, so the
// result is known to reproduce.
package minimize

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"feltfuzz/internal/oracle"
)

// Pipeline executes one raw input end to end and classifies the outcome.
type Pipeline func(ctx context.Context, input []byte) (oracle.Outcome, error)

const defaultAttempts = 512

type Minimizer struct {
	run      Pipeline
	attempts int
	logger   *zap.Logger
}

func New(run Pipeline, attempts int, logger *zap.Logger) *Minimizer {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	return &Minimizer{
		run,
		attempts,
		logger.Named("minimize"),
	}
}

// Minimize returns the smallest input it found that still crashes with the
// original's signature. It fails if the input does not reproduce a crash
// in the first place.
func (m *Minimizer) Minimize(ctx context.Context, input []byte) ([]byte, error) {
	out, err := m.run(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to reproduce crash: %w", err)
	}
	if out.Kind != oracle.Crash {
		return nil, fmt.Errorf("input does not crash, outcome is %s", out.Kind)
	}
	want := out.Signature

	best := append([]byte(nil), input...)
	budget := m.attempts
	try := func(candidate []byte) bool {
		if budget <= 0 || ctx.Err() != nil {
			return false
		}
		budget--
		res, err := m.run(ctx, candidate)
		if err != nil {
			return false
		}
		return res.Kind == oracle.Crash && res.Signature == want
	}

	for {
		changed := false

		for chunk := len(best) / 2; chunk >= 1; chunk /= 2 {
			for len(best) >= chunk {
				candidate := best[:len(best)-chunk]
				if !try(candidate) {
					break
				}
				best = candidate
				changed = true
			}
		}

		for chunk := len(best) / 2; chunk >= 1; chunk /= 2 {
			for start := 0; start+chunk <= len(best); {
				candidate := removeRange(best, start, chunk)
				if try(candidate) {
					best = candidate
					changed = true
				} else {
					start += chunk
				}
			}
		}

		for i := 0; i < len(best); i++ {
			if best[i] == 0 {
				continue
			}
			candidate := append([]byte(nil), best...)
			candidate[i] = 0
			if try(candidate) {
				best = candidate
				changed = true
			}
		}

		if !changed || budget <= 0 {
			break
		}
	}

	m.logger.Debug("Minimized input",
		zap.Int("from", len(input)),
		zap.Int("to", len(best)),
		zap.Int("attemptsLeft", budget),
	)
	return best, nil
}

func removeRange(b []byte, from, n int) []byte {
	out := make([]byte, 0, len(b)-n)
	out = append(out, b[:from]...)
	out = append(out, b[from+n:]...)
	return out
}
