package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
)

// ErrDelegate covers failures of the delegated swarm process, both launch
// failures and non-zero exits.
var ErrDelegate = errors.New("swarm delegate error")

// DelegateRequest describes one swarm delegation: the command to hand
// control to and the launcher-produced inputs it receives as flags.
type DelegateRequest struct {
	Command    string
	ConfigPath string
	RosterPath string
	Topology   string
	StorePath  string
	ExtraArgs  []string
	Workdir    string
	Grace      time.Duration
}

// SwarmDelegate runs the swarm process in the foreground with inherited
// stdio. On context cancellation it sends SIGTERM and, after the grace
// period, SIGKILL. Capture, when set, gets a copy of the combined output.
type SwarmDelegate struct {
	Capture io.Writer
}

// Run blocks until the swarm process exits and returns its exit code.
func (d *SwarmDelegate) Run(ctx context.Context, req DelegateRequest) (int, error) {
	args := []string{
		"--config", req.ConfigPath,
		"--roster", req.RosterPath,
		"--topology", req.Topology,
		"--store", req.StorePath,
	}
	args = append(args, req.ExtraArgs...)

	out := io.Writer(os.Stdout)
	if d.Capture != nil {
		out = io.MultiWriter(os.Stdout, d.Capture)
	}

	cmd := exec.CommandContext(ctx, req.Command, args...)
	cmd.Dir = req.Workdir
	cmd.Stdin = os.Stdin
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	if req.Grace > 0 {
		cmd.WaitDelay = req.Grace
	}

	log.Printf("[INFO] starting swarm delegate: %s %v", req.Command, args)
	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("%w: can't start %s: %v", ErrDelegate, req.Command, err)
	}
	log.Printf("[DEBUG] swarm delegate pid %d", cmd.Process.Pid)

	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), fmt.Errorf("%w: %s: %w", ErrDelegate, req.Command, err)
	}
	return 1, fmt.Errorf("%w: %v", ErrDelegate, err)
}

// killedByShutdown reports whether the delegate error is a signal-driven
// termination, i.e. the process died without its own exit code.
func killedByShutdown(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == -1
	}
	return false
}
