package sensor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFake_RepeatsLastReading(t *testing.T) {
	f := &Fake{Readings: []float64{5, 7}}
	want := []float64{5, 7, 7, 7}
	for i, w := range want {
		got, err := f.Sample(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
		if got != w {
			t.Errorf("call %d: reading = %v, want %v", i+1, got, w)
		}
	}
}

func TestFake_Error(t *testing.T) {
	f := &Fake{Err: errors.New("sensor offline")}
	if _, err := f.Sample(context.Background(), time.Second); err == nil {
		t.Fatal("expected error, got nil")
	}
	if f.Calls != 1 {
		t.Errorf("Calls = %d, want 1", f.Calls)
	}
}

func TestFake_AdvanceHook(t *testing.T) {
	var advanced time.Duration
	f := &Fake{
		Readings: []float64{1},
		Advance:  func(d time.Duration) { advanced += d },
	}
	f.Sample(context.Background(), time.Second)          //nolint:errcheck
	f.Sample(context.Background(), 500*time.Millisecond) //nolint:errcheck
	if advanced != 1500*time.Millisecond {
		t.Errorf("advanced = %v, want 1.5s", advanced)
	}
}

func TestFake_Close(t *testing.T) {
	f := &Fake{}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !f.Closed {
		t.Error("Closed should be true after Close()")
	}
}
