// Package harness_test exercises the full pipeline:
//
//	FakeController → FakeBus/Fake sensor → sampling loop → Evaluate
//
// No real device, upsd, or MQTT broker is needed; a fake clock driven by
// the sensor's Advance hook replaces wall-clock time.
package harness_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/powerdraw/internal/bus"
	"github.com/sweeney/powerdraw/internal/config"
	"github.com/sweeney/powerdraw/internal/harness"
	"github.com/sweeney/powerdraw/internal/procs"
	"github.com/sweeney/powerdraw/internal/sensor"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

var timing = harness.Config{
	SampleTime:    8 * time.Second,
	WarmupTime:    4 * time.Second,
	MaxWarmupTime: 10 * time.Second,
	Integration:   time.Second,
	SettleTime:    5 * time.Second,
}

// rig bundles a harness over fakes. The ambient window takes 9 one-second
// integrations (it exits one quantum past the 8 s window), so scripted
// reading slices start with 9 ambient values.
type rig struct {
	h     *harness.Harness
	clock *clock
	sens  *sensor.Fake
	bus   *bus.FakeBus
	ctl   *procs.FakeController
}

func newRig(roster []config.ProcessSpec, freqs bus.FrequencyTable, readings []float64, batches map[string][]int) *rig {
	c := &clock{t: time.Unix(1700000000, 0)}
	sens := &sensor.Fake{Readings: readings, Advance: c.advance}
	fb := &bus.FakeBus{Batches: batches}
	ctl := &procs.FakeController{}
	h := harness.New(timing, roster, harness.Deps{
		Sensor: sens,
		Bus:    fb,
		Procs:  ctl,
		Freqs:  freqs,
		Now:    c.now,
		Sleep:  c.advance,
	})
	return &rig{h: h, clock: c, sens: sens, bus: fb, ctl: ctl}
}

func ambientReadings(watts float64) []float64 {
	out := make([]float64, 9)
	for i := range out {
		out[i] = watts
	}
	return out
}

func nearlyEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}

func TestRun_SingleProcessPass(t *testing.T) {
	roster := []config.ProcessSpec{
		{Name: "camerad", PowerWatts: 2.1, RelTol: 0.05, AbsTol: 0.12, Channels: []string{"roadCameraState"}},
	}
	freqs := bus.FrequencyTable{"roadCameraState": 5}

	// Ambient 5 W over the full window, then 7.1 W once camerad runs.
	readings := append(ambientReadings(5), 7.1)
	// Warm-up expects 5 Hz × 4 s = 20, satisfied by the first drain of 21;
	// measurement expects 5 Hz × 8 s = 40, satisfied by 41.
	batches := map[string][]int{"roadCameraState": {21, 41}}

	r := newRig(roster, freqs, readings, batches)
	result, err := r.h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Baseline != 5 {
		t.Errorf("Baseline = %v, want 5", result.Baseline)
	}
	if len(result.Failures) != 0 {
		t.Errorf("Failures = %v, want none", result.Failures)
	}
	if result.Failed() {
		t.Error("Failed() should be false")
	}
	if len(result.Results) != 1 {
		t.Fatalf("len(Results) = %d, want 1", len(result.Results))
	}
	got := result.Results[0]
	if !nearlyEqual(got.AttributedPower, 2.1) {
		t.Errorf("AttributedPower = %v, want 2.1", got.AttributedPower)
	}
	if got.MsgsExpected != 40 || got.MsgsReceived != 41 {
		t.Errorf("messages = %d/%d, want 41/40", got.MsgsReceived, got.MsgsExpected)
	}
	if len(r.ctl.Started) != 1 || r.ctl.Started[0] != "camerad" {
		t.Errorf("Started = %v, want [camerad]", r.ctl.Started)
	}
	if r.ctl.Cleanups != 1 {
		t.Errorf("Cleanups = %d, want 1", r.ctl.Cleanups)
	}
}

func TestRun_PowerFailureContinuesRoster(t *testing.T) {
	roster := []config.ProcessSpec{
		{Name: "camerad", PowerWatts: 2.1, RelTol: 0.05, AbsTol: 0.12, Channels: []string{"roadCameraState"}},
		{Name: "encoderd", PowerWatts: 0.23, RelTol: 0.05, AbsTol: 0.12},
	}
	freqs := bus.FrequencyTable{"roadCameraState": 5}

	// camerad lands at 12.5 W against a 10 W ambient: 2.5 W attributed,
	// outside 2.1 ± 0.225. encoderd adds 0.2 W on top, inside its bound.
	readings := append(ambientReadings(10), 12.5, 12.5, 12.7)
	batches := map[string][]int{"roadCameraState": {21, 41}}

	r := newRig(roster, freqs, readings, batches)
	result, err := r.h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2 — a failed check must not stop the roster", len(result.Results))
	}
	if len(result.Failures) != 1 {
		t.Fatalf("Failures = %v, want exactly the camerad power failure", result.Failures)
	}
	f := result.Failures[0]
	if f.Process != "camerad" || f.Check != harness.CheckPower {
		t.Errorf("failure = %+v, want camerad/power", f)
	}
	if !nearlyEqual(result.Results[1].AttributedPower, 0.2) {
		t.Errorf("encoderd attributed %v, want 0.2", result.Results[1].AttributedPower)
	}
	if len(r.ctl.Started) != 2 {
		t.Errorf("Started = %v, want both processes", r.ctl.Started)
	}
}

func TestRun_EmptyChannels_FullWindows(t *testing.T) {
	// A process with no channels is measured by power alone: both its
	// warm-up and measurement windows run to their full duration.
	roster := []config.ProcessSpec{
		{Name: "encoderd", PowerWatts: 0.23, RelTol: 0.05, AbsTol: 0.12},
	}
	readings := append(ambientReadings(5), 5.23)

	r := newRig(roster, nil, readings, nil)
	result, err := r.h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 9 ambient + 11 warm-up (10 s window) + 9 measurement integrations.
	if r.sens.Calls != 29 {
		t.Errorf("sensor calls = %d, want 29", r.sens.Calls)
	}
	if len(result.Failures) != 0 {
		t.Errorf("Failures = %v, want none", result.Failures)
	}
	got := result.Results[0]
	if got.MsgsExpected != 0 || got.MsgsReceived != 0 {
		t.Errorf("messages = %d/%d, want 0/0", got.MsgsReceived, got.MsgsExpected)
	}
}

func TestRun_WarmupShortfallRecordedButRunContinues(t *testing.T) {
	roster := []config.ProcessSpec{
		{Name: "modeld", PowerWatts: 1.12, RelTol: 0.05, AbsTol: 0.2, Channels: []string{"modelV2"}},
	}
	freqs := bus.FrequencyTable{"modelV2": 10}

	// Warm-up expects 40; the channel produces 30 and then stalls, so the
	// warm-up window expires after its 11 drains. The measurement phase
	// still runs and its own count is satisfied.
	readings := append(ambientReadings(5), 6.22)
	batches := map[string][]int{"modelV2": {30, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 81}}

	r := newRig(roster, freqs, readings, batches)
	result, err := r.h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	warmups := 0
	for _, f := range result.Failures {
		if f.Check == harness.CheckWarmup {
			warmups++
			if f.Expected != 40 || f.Measured != 30 {
				t.Errorf("warmup failure = %+v, want 30/40", f)
			}
		}
	}
	if warmups != 1 {
		t.Fatalf("warmup failures = %d, want 1", warmups)
	}
	// The measurement itself passed.
	if got := result.Results[0]; got.MsgsReceived != 81 {
		t.Errorf("MsgsReceived = %d, want 81", got.MsgsReceived)
	}
}

func TestRun_SensorFaultAborts(t *testing.T) {
	roster := []config.ProcessSpec{
		{Name: "camerad", PowerWatts: 2.1, RelTol: 0.05, AbsTol: 0.12},
	}
	r := newRig(roster, nil, nil, nil)
	r.sens.Err = errors.New("upsd unreachable")

	_, err := r.h.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when the sensor is unavailable")
	}
	if r.ctl.Cleanups != 1 {
		t.Errorf("Cleanups = %d, want 1 even on abort", r.ctl.Cleanups)
	}
}

func TestRun_StartFaultAborts(t *testing.T) {
	roster := []config.ProcessSpec{
		{Name: "camerad", PowerWatts: 2.1, RelTol: 0.05, AbsTol: 0.12},
	}
	r := newRig(roster, nil, ambientReadings(5), nil)
	r.ctl.StartErr = errors.New("spawn failed")

	_, err := r.h.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when process start fails")
	}
	if r.ctl.Cleanups != 1 {
		t.Errorf("Cleanups = %d, want 1 even on abort", r.ctl.Cleanups)
	}
}

func TestRun_SubscribeFaultAborts(t *testing.T) {
	roster := []config.ProcessSpec{
		{Name: "camerad", PowerWatts: 2.1, RelTol: 0.05, AbsTol: 0.12, Channels: []string{"roadCameraState"}},
	}
	freqs := bus.FrequencyTable{"roadCameraState": 5}
	r := newRig(roster, freqs, ambientReadings(5), nil)
	r.bus.SubscribeErr = errors.New("broker down")

	_, err := r.h.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when subscription fails")
	}
	if r.ctl.Cleanups != 1 {
		t.Errorf("Cleanups = %d, want 1 even on abort", r.ctl.Cleanups)
	}
}

func TestRun_RosterOrderPreserved(t *testing.T) {
	roster := []config.ProcessSpec{
		{Name: "a", PowerWatts: 0.1, RelTol: 1, AbsTol: 10},
		{Name: "b", PowerWatts: 0.1, RelTol: 1, AbsTol: 10},
		{Name: "c", PowerWatts: 0.1, RelTol: 1, AbsTol: 10},
	}
	r := newRig(roster, nil, ambientReadings(5), nil)
	if _, err := r.h.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, name := range want {
		if r.ctl.Started[i] != name {
			t.Fatalf("Started = %v, want %v", r.ctl.Started, want)
		}
	}
}
