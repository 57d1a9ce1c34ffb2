package procs

// FakeController records Start/Cleanup calls so tests can assert roster
// order and teardown. StartErr fails every Start when set; narrow it to a
// single process with FailOnly.
type FakeController struct {
	Started    []string
	StartErr   error
	FailOnly   string
	Cleanups   int
	CleanupErr error
}

// Start records the process name, or returns the configured error.
func (f *FakeController) Start(name string) error {
	if f.StartErr != nil && (f.FailOnly == "" || f.FailOnly == name) {
		return f.StartErr
	}
	f.Started = append(f.Started, name)
	return nil
}

// Cleanup counts invocations, or returns CleanupErr if set.
func (f *FakeController) Cleanup() error {
	f.Cleanups++
	return f.CleanupErr
}
