package harness

import (
	"context"

	"github.com/sweeney/powerdraw/internal/config"
)

// warmup blocks until the freshly started process has emitted roughly a
// warm-up window's worth of messages, bounded by MaxWarmupTime. Sampling
// the real window before steady state would bias the power measurement
// low. The detection runs the same sampling loop as the measurement so
// the two phases cannot drift apart in counting semantics; whether the
// count actually landed near the expectation is judged later, in
// Evaluate, as a non-fatal check.
//
// The warm-up window's mean power is discarded: the draw is still ramping
// while the process spins up, so the value means nothing.
func (h *Harness) warmup(ctx context.Context, spec config.ProcessSpec) (int, windowOutcome, error) {
	expected := h.freqs.ExpectedMessages(spec.Channels, h.cfg.WarmupTime)
	outcome, err := h.measureWindow(ctx, spec.Channels, h.cfg.MaxWarmupTime, expected)
	if err != nil {
		return 0, windowOutcome{}, err
	}
	return expected, outcome, nil
}
