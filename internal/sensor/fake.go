package sensor

import (
	"context"
	"time"
)

// Fake is a test double for Sensor.
//
// Each Sample call consumes the next value in Readings; when the slice is
// exhausted the last element is repeated, simulating a steady post-ramp
// draw. Set Err to inject a failure on every call. Advance, when set, is
// invoked with the requested window before the reading is returned so
// tests driving a fake clock can account for the sensor's blocking time.
type Fake struct {
	Readings []float64
	Err      error
	Advance  func(time.Duration)
	Calls    int
	Closed   bool
}

// Sample returns the pre-seeded reading for the current call index,
// or Err if set.
func (f *Fake) Sample(_ context.Context, window time.Duration) (float64, error) {
	f.Calls++
	if f.Advance != nil {
		f.Advance(window)
	}
	if f.Err != nil {
		return 0, f.Err
	}
	if len(f.Readings) == 0 {
		return 0, nil
	}
	idx := f.Calls - 1
	if idx >= len(f.Readings) {
		idx = len(f.Readings) - 1 // repeat last element
	}
	return f.Readings[idx], nil
}

// Close marks the sensor as closed.
func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

// Reset clears all recorded state so the fake can be reused between sub-tests.
func (f *Fake) Reset() {
	f.Readings = nil
	f.Err = nil
	f.Advance = nil
	f.Calls = 0
	f.Closed = false
}
