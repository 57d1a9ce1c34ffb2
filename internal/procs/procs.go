// Package procs controls the lifecycle of the processes under test.
package procs

// Controller is the process-lifecycle port the harness depends on. Start
// activates a named process; Cleanup terminates everything started so far.
// Cleanup must be safe to call on every exit path, including after a
// failed Start.
type Controller interface {
	Start(name string) error
	Cleanup() error
}
