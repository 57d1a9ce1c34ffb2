// Package sensor reads instantaneous board power draw from a NUT upsd
// daemon and averages it over an integration window.
package sensor

import (
	"context"
	"time"
)

// Sensor is the power measurement port the harness depends on. Sample
// blocks for roughly window, returning the mean instantaneous power in
// watts observed over that interval. The NUT client and Fake both
// implement it.
type Sensor interface {
	Sample(ctx context.Context, window time.Duration) (float64, error)
	Close() error
}
