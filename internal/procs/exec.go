package procs

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/powerdraw/internal/config"
)

// defaultGrace is how long Cleanup waits after SIGTERM before killing.
const defaultGrace = 3 * time.Second

// Exec launches roster processes from their configured argv and tears them
// down with SIGTERM, escalating to SIGKILL after a grace period.
type Exec struct {
	commands map[string][]string
	grace    time.Duration

	mu      sync.Mutex
	running []*exec.Cmd
}

// NewExec builds a controller from the roster's command entries.
func NewExec(roster []config.ProcessSpec) *Exec {
	commands := make(map[string][]string, len(roster))
	for _, p := range roster {
		if len(p.Command) > 0 {
			commands[p.Name] = p.Command
		}
	}
	return &Exec{commands: commands, grace: defaultGrace}
}

// Start launches the named process and leaves it running.
func (e *Exec) Start(name string) error {
	argv, ok := e.commands[name]
	if !ok {
		return fmt.Errorf("no command configured for process %q", name)
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %q: %w", name, err)
	}

	e.mu.Lock()
	e.running = append(e.running, cmd)
	e.mu.Unlock()
	return nil
}

// Cleanup terminates every started process. Exit statuses are ignored —
// the processes die by our signal, so a non-zero status is expected.
func (e *Exec) Cleanup() error {
	e.mu.Lock()
	running := e.running
	e.running = nil
	e.mu.Unlock()

	var firstErr error
	for _, cmd := range running {
		if cmd.Process == nil {
			continue
		}
		// A failed signal usually means the process already exited; it
		// still has to be reaped, so fall through to the wait either way.
		err := cmd.Process.Signal(syscall.SIGTERM)
		if err != nil && !errors.Is(err, os.ErrProcessDone) && firstErr == nil {
			firstErr = fmt.Errorf("terminating pid %d: %w", cmd.Process.Pid, err)
		}
		e.waitOrKill(cmd)
	}
	return firstErr
}

// waitOrKill waits for cmd to exit, sending SIGKILL once the grace period
// elapses.
func (e *Exec) waitOrKill(cmd *exec.Cmd) {
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(e.grace):
		log.Printf("pid %d did not exit within %s, killing", cmd.Process.Pid, e.grace)
		_ = cmd.Process.Kill()
		<-done
	}
}
