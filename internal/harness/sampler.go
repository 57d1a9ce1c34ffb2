package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/powerdraw/internal/bus"
)

// loopState is the sampling loop's position in its lifecycle. The loop
// stops for exactly one of two reasons, kept distinct so each is testable
// on its own: the expected message volume was exceeded, or the window
// timed out.
type loopState int

const (
	stateSampling loopState = iota
	stateSatisfied
	stateExpired
)

func (s loopState) String() string {
	switch s {
	case stateSampling:
		return "sampling"
	case stateSatisfied:
		return "satisfied"
	case stateExpired:
		return "expired"
	}
	return fmt.Sprintf("loopState(%d)", int(s))
}

// windowOutcome is what one sampling window reduces to: the total message
// count across all subscriptions, the mean of the power readings, and the
// reason the loop stopped.
type windowOutcome struct {
	Messages  int
	MeanPower float64
	State     loopState
}

// sampleWindow jointly collects power and message counts until the stop
// condition fires. Each iteration blocks on one sensor integration, then
// drains every subscription without blocking, so both measurements cover
// the same wall-clock interval. A sensor failure is fatal; there is no
// valid measurement without it.
func (h *Harness) sampleWindow(ctx context.Context, subs []bus.Subscription, maxDuration time.Duration, expected int) (windowOutcome, error) {
	var powers []float64
	msgs := 0
	start := h.now()

	state := stateSampling
	for state == stateSampling {
		w, err := h.sensor.Sample(ctx, h.cfg.Integration)
		if err != nil {
			return windowOutcome{}, fmt.Errorf("sampling power: %w", err)
		}
		powers = append(powers, w)
		h.obs.ObservePower(w)

		for _, s := range subs {
			if n := len(s.Drain()); n > 0 {
				msgs += n
				h.obs.ObserveMessages(s.Channel(), n)
			}
		}

		state = nextState(msgs, expected, h.now().Sub(start), maxDuration)
	}

	return windowOutcome{Messages: msgs, MeanPower: mean(powers), State: state}, nil
}

// nextState decides whether the loop keeps sampling. The message test is
// strictly greater than: drained batches can jump past the target in one
// step, and over-collecting slightly beats under-collecting. With no
// messages arriving the condition degenerates to the timeout alone.
func nextState(msgs, expected int, elapsed, maxDuration time.Duration) loopState {
	switch {
	case msgs > expected:
		return stateSatisfied
	case elapsed > maxDuration:
		return stateExpired
	default:
		return stateSampling
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
