// Package harness runs the power-draw acceptance pipeline: for each roster
// entry in order it starts the process, waits for it to settle, jointly
// samples power and message throughput over a fixed window, and checks
// both against expectations relative to a running power baseline.
package harness

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/powerdraw/internal/bus"
	"github.com/sweeney/powerdraw/internal/config"
	"github.com/sweeney/powerdraw/internal/procs"
	"github.com/sweeney/powerdraw/internal/sensor"
)

// Config holds the measurement timing parameters.
type Config struct {
	SampleTime    time.Duration
	WarmupTime    time.Duration
	MaxWarmupTime time.Duration
	Integration   time.Duration
	SettleTime    time.Duration
}

// Observer receives live progress during a run. Implementations must not
// block; the sampling loop calls them between sensor integrations.
type Observer interface {
	ObservePower(watts float64)
	ObserveMessages(channel string, count int)
	ObserveBaseline(watts float64)
	ObserveFailure(process, check string)
}

// nopObserver is the default when no Observer is injected.
type nopObserver struct{}

func (nopObserver) ObservePower(float64)          {}
func (nopObserver) ObserveMessages(string, int)   {}
func (nopObserver) ObserveBaseline(float64)       {}
func (nopObserver) ObserveFailure(string, string) {}

// Deps are the injected collaborators. Sensor, Bus, and Procs are
// required. Now and Sleep default to the real clock; tests override them
// to drive the loop without wall-clock delays.
type Deps struct {
	Sensor   sensor.Sensor
	Bus      bus.Bus
	Procs    procs.Controller
	Freqs    bus.FrequencyTable
	Observer Observer
	Now      func() time.Time
	Sleep    func(time.Duration)
}

// Harness ties the collaborators to the roster.
type Harness struct {
	cfg    Config
	roster []config.ProcessSpec
	sensor sensor.Sensor
	bus    bus.Bus
	procs  procs.Controller
	freqs  bus.FrequencyTable
	obs    Observer
	now    func() time.Time
	sleep  func(time.Duration)
}

// New builds a Harness over the given roster.
func New(cfg Config, roster []config.ProcessSpec, deps Deps) *Harness {
	h := &Harness{
		cfg:    cfg,
		roster: roster,
		sensor: deps.Sensor,
		bus:    deps.Bus,
		procs:  deps.Procs,
		freqs:  deps.Freqs,
		obs:    deps.Observer,
		now:    deps.Now,
		sleep:  deps.Sleep,
	}
	if h.obs == nil {
		h.obs = nopObserver{}
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.sleep == nil {
		h.sleep = time.Sleep
	}
	return h
}

// RunResult is everything one pipeline invocation produces.
type RunResult struct {
	Baseline float64
	Results  []ProcessResult
	Failures []Failure
}

// Failed reports whether any check was violated.
func (r *RunResult) Failed() bool { return len(r.Failures) > 0 }

// Run executes the pipeline: settle wait, ambient baseline measurement,
// then one warm-up plus measurement pass per roster entry, strictly in
// order. Check violations accumulate in the result; only collaborator
// faults (sensor, bus, process control) abort the run. Started processes
// are cleaned up on every exit path.
func (h *Harness) Run(ctx context.Context) (*RunResult, error) {
	defer func() {
		if err := h.procs.Cleanup(); err != nil {
			log.Printf("cleanup: %v", err)
		}
	}()

	// Give the device a moment to leave its power-save state before the
	// ambient measurement.
	h.sleep(h.cfg.SettleTime)

	ambient, err := h.measureWindow(ctx, nil, h.cfg.SampleTime, 0)
	if err != nil {
		return nil, fmt.Errorf("measuring ambient power: %w", err)
	}
	h.obs.ObserveBaseline(ambient.MeanPower)
	log.Printf("ambient baseline %.2fW", ambient.MeanPower)

	measurements := make([]Measurement, 0, len(h.roster))
	for _, spec := range h.roster {
		m, err := h.measureProcess(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("measuring %s: %w", spec.Name, err)
		}
		measurements = append(measurements, m)
	}

	results, failures := Evaluate(h.roster, ambient.MeanPower, measurements)
	for _, f := range failures {
		h.obs.ObserveFailure(f.Process, f.Check)
	}
	return &RunResult{Baseline: ambient.MeanPower, Results: results, Failures: failures}, nil
}

// measureProcess starts one process, runs its warm-up window, then its
// steady-state measurement window.
func (h *Harness) measureProcess(ctx context.Context, spec config.ProcessSpec) (Measurement, error) {
	if err := h.procs.Start(spec.Name); err != nil {
		return Measurement{}, fmt.Errorf("starting process: %w", err)
	}
	log.Printf("%s: started, warming up", spec.Name)

	warmExpected, warm, err := h.warmup(ctx, spec)
	if err != nil {
		return Measurement{}, err
	}

	expected := h.freqs.ExpectedMessages(spec.Channels, h.cfg.SampleTime)
	steady, err := h.measureWindow(ctx, spec.Channels, h.cfg.SampleTime, expected)
	if err != nil {
		return Measurement{}, err
	}
	log.Printf("%s: measured %.2fW mean, %d/%d messages (%s)",
		spec.Name, steady.MeanPower, steady.Messages, expected, steady.State)

	return Measurement{
		WarmupExpected: warmExpected,
		WarmupReceived: warm.Messages,
		MsgsExpected:   expected,
		MsgsReceived:   steady.Messages,
		MeasuredPower:  steady.MeanPower,
	}, nil
}

// measureWindow subscribes to the channels for the duration of one
// sampling window and unsubscribes afterwards, so each window counts only
// its own arrivals. With no channels the window is a pure power
// measurement running its full duration.
func (h *Harness) measureWindow(ctx context.Context, channels []string, maxDuration time.Duration, expected int) (windowOutcome, error) {
	subs := make([]bus.Subscription, 0, len(channels))
	defer func() {
		for _, s := range subs {
			if err := s.Unsubscribe(); err != nil {
				log.Printf("unsubscribing from %s: %v", s.Channel(), err)
			}
		}
	}()
	for _, ch := range channels {
		s, err := h.bus.Subscribe(ch)
		if err != nil {
			return windowOutcome{}, fmt.Errorf("subscribing to %s: %w", ch, err)
		}
		subs = append(subs, s)
	}

	return h.sampleWindow(ctx, subs, maxDuration, expected)
}
