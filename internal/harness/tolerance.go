package harness

import "math"

// within reports whether measured is acceptably close to expected under
// combined relative and absolute tolerance:
//
//	|measured - expected| ≤ relTol·|expected| + absTol
func within(measured, expected, relTol, absTol float64) bool {
	return math.Abs(measured-expected) <= bound(expected, relTol, absTol)
}

// bound returns the acceptance half-width around expected.
func bound(expected, relTol, absTol float64) float64 {
	return relTol*math.Abs(expected) + absTol
}
