package harness

import (
	"fmt"

	"github.com/sweeney/powerdraw/internal/config"
)

// Message-count checks (warm-up and steady-state) use fixed tolerances:
// a couple of messages of jitter is normal, more means the process never
// reached its nominal cadence.
const (
	msgRelTol = 0.02
	msgAbsTol = 2
)

// Names of the three independent checks run per process.
const (
	CheckWarmup   = "warmup"
	CheckMessages = "messages"
	CheckPower    = "power"
)

// Measurement is the raw data collected for one process: message counts
// from the warm-up and steady-state windows and the mean power observed
// during steady state. Power attribution happens later, in Evaluate,
// because it depends on the measurement that came before.
type Measurement struct {
	WarmupExpected int
	WarmupReceived int
	MsgsExpected   int
	MsgsReceived   int
	MeasuredPower  float64
}

// ProcessResult is one evaluated roster entry, ready for the report.
type ProcessResult struct {
	Name            string
	ExpectedPower   float64
	MeasuredPower   float64
	AttributedPower float64
	MsgsExpected    int
	MsgsReceived    int
}

// Failure is one violated check. Failures are accumulated, never fatal:
// a single bad process must not cost the data from the rest of the roster.
type Failure struct {
	Process   string
	Check     string
	Expected  float64
	Measured  float64
	Tolerance float64
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %s check failed: measured %.2f, want %.2f ± %.2f",
		f.Process, f.Check, f.Measured, f.Expected, f.Tolerance)
}

// Evaluate folds the measurements over the roster, threading the power
// baseline from ambient through each successive process: what a process
// is charged for is the mean power during its window minus the mean power
// during its predecessor's. Each process gets three independent checks:
// warm-up message count, steady-state message count, and attributed power.
//
// Rosters aborted mid-run evaluate the prefix that was measured.
func Evaluate(roster []config.ProcessSpec, ambient float64, measurements []Measurement) ([]ProcessResult, []Failure) {
	results := make([]ProcessResult, 0, len(measurements))
	var failures []Failure

	prior := ambient
	for i, m := range measurements {
		spec := roster[i]
		attributed := m.MeasuredPower - prior
		prior = m.MeasuredPower

		if !within(float64(m.WarmupReceived), float64(m.WarmupExpected), msgRelTol, msgAbsTol) {
			failures = append(failures, Failure{
				Process:   spec.Name,
				Check:     CheckWarmup,
				Expected:  float64(m.WarmupExpected),
				Measured:  float64(m.WarmupReceived),
				Tolerance: bound(float64(m.WarmupExpected), msgRelTol, msgAbsTol),
			})
		}
		if !within(float64(m.MsgsReceived), float64(m.MsgsExpected), msgRelTol, msgAbsTol) {
			failures = append(failures, Failure{
				Process:   spec.Name,
				Check:     CheckMessages,
				Expected:  float64(m.MsgsExpected),
				Measured:  float64(m.MsgsReceived),
				Tolerance: bound(float64(m.MsgsExpected), msgRelTol, msgAbsTol),
			})
		}
		if !within(attributed, spec.PowerWatts, spec.RelTol, spec.AbsTol) {
			failures = append(failures, Failure{
				Process:   spec.Name,
				Check:     CheckPower,
				Expected:  spec.PowerWatts,
				Measured:  attributed,
				Tolerance: bound(spec.PowerWatts, spec.RelTol, spec.AbsTol),
			})
		}

		results = append(results, ProcessResult{
			Name:            spec.Name,
			ExpectedPower:   spec.PowerWatts,
			MeasuredPower:   m.MeasuredPower,
			AttributedPower: attributed,
			MsgsExpected:    m.MsgsExpected,
			MsgsReceived:    m.MsgsReceived,
		})
	}

	return results, failures
}
