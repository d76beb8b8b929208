// Package supervisor spawns and tracks the auxiliary service subprocesses.
// Spawning is fire-and-forget in declared configuration order; one failed
// spawn doesn't prevent the next service from starting. Shutdown is bounded:
// SIGTERM, a grace period, then SIGKILL.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"

	"github.com/hiverun/hived/app/config"
)

// ErrSpawn indicates a single service failed to launch. Degraded: other
// services are still attempted.
var ErrSpawn = errors.New("service spawn failed")

const probeInterval = 100 * time.Millisecond

// Supervisor launches and stops auxiliary services. Zero value is usable,
// fields follow the scheduler-struct style with sane fallbacks applied in
// Start.
type Supervisor struct {
	Stdout          io.Writer // services stdout+stderr go here
	EnableLogPrefix bool      // prefix each service output line with its id
	GracePeriod     time.Duration
	PidDir          string // when set, one pidfile per spawned service
}

// Handle is an opaque tracker for one spawned service process.
type Handle struct {
	ID        string
	Port      int
	StartedAt time.Time

	cmd     *exec.Cmd
	pidFile string
	done    chan struct{}
	exitErr error // set before done is closed, read after
}

// PID returns the OS process id of the spawned service.
func (h *Handle) PID() int { return h.cmd.Process.Pid }

// Done returns a channel closed when the service process exits.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Alive reports whether the service process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitErr returns the wait error once the process exited, nil while running
// or on clean exit.
func (h *Handle) ExitErr() error {
	select {
	case <-h.done:
		return h.exitErr
	default:
		return nil
	}
}

// Start spawns the given services in order and returns handles for the ones
// that launched. The call returns once each subprocess has been started,
// without waiting for readiness; use WaitReady for the stricter mode. A
// spawn failure is logged and the remaining services are still attempted.
func (s *Supervisor) Start(ctx context.Context, services []config.Service) []*Handle {
	handles := []*Handle{}
	for _, svc := range services {
		if ctx.Err() != nil {
			log.Printf("[WARN] startup interrupted, %d of %d services started", len(handles), len(services))
			break
		}
		h, err := s.spawn(svc)
		if err != nil {
			log.Printf("[WARN] %v", fmt.Errorf("%w: %s: %v", ErrSpawn, svc.ID, err))
			continue
		}
		handles = append(handles, h)
		log.Printf("[INFO] started service %s, pid %d", svc.ID, h.PID())
	}
	return handles
}

func (s *Supervisor) spawn(svc config.Service) (*Handle, error) {
	cmd := exec.Command(svc.Command, svc.Args...) //nolint:gosec // command comes from verified config

	// base environment merged with per-service overrides, overrides win
	env := os.Environ()
	for k, v := range svc.Env {
		env = append(env, k+"="+v)
	}
	if svc.Port > 0 {
		env = append(env, "PORT="+strconv.Itoa(svc.Port))
	}
	cmd.Env = env

	out := s.Stdout
	if out == nil {
		out = os.Stdout
	}
	if s.EnableLogPrefix {
		out = NewLogPrefixer(out, svc.ID)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &Handle{ID: svc.ID, Port: svc.Port, StartedAt: time.Now(), cmd: cmd, done: make(chan struct{})}
	h.pidFile = s.writePidFile(svc.ID, cmd.Process.Pid)

	go func() {
		h.exitErr = cmd.Wait()
		close(h.done)
	}()
	return h, nil
}

// StopAll terminates the services in reverse start order: SIGTERM, wait up
// to the grace period, force-kill whatever is still alive. Failures are
// logged, never returned.
func (s *Supervisor) StopAll(handles []*Handle) {
	grace := s.GracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}

	for i := len(handles) - 1; i >= 0; i-- {
		s.stop(handles[i], grace)
	}
}

func (s *Supervisor) stop(h *Handle, grace time.Duration) {
	defer s.removePidFile(h)

	if !h.Alive() {
		log.Printf("[DEBUG] service %s already exited", h.ID)
		return
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Printf("[WARN] failed to signal service %s, %v", h.ID, err)
	}

	select {
	case <-h.done:
		log.Printf("[INFO] stopped service %s", h.ID)
		return
	case <-time.After(grace):
	}

	// still alive past the grace period, force-terminate to keep shutdown bounded
	log.Printf("[WARN] service %s ignored termination for %v, killing", h.ID, grace)
	if err := h.cmd.Process.Kill(); err != nil {
		log.Printf("[WARN] failed to kill service %s, %v", h.ID, err)
		return
	}
	<-h.done
	log.Printf("[INFO] killed service %s", h.ID)
}

// WaitReady probes each handle with a declared port over TCP until it
// accepts a connection, the timeout expires or the context is canceled.
// Handles without a port are skipped. Probes run in parallel.
func (s *Supervisor) WaitReady(ctx context.Context, handles []*Handle, timeout time.Duration) error {
	var (
		mu   sync.Mutex
		errs []error
	)

	gr := syncs.NewSizedGroup(4)
	for _, h := range handles {
		if h.Port == 0 {
			continue
		}
		gr.Go(func(context.Context) {
			if err := probePort(ctx, h, timeout); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	gr.Wait()

	return errors.Join(errs...)
}

func probePort(ctx context.Context, h *Handle, timeout time.Duration) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(h.Port))
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, probeInterval)
		if err == nil {
			_ = conn.Close()
			log.Printf("[DEBUG] service %s ready on %s", h.ID, addr)
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("service %s readiness canceled: %w", h.ID, ctx.Err())
		case <-h.done:
			return fmt.Errorf("service %s exited before becoming ready", h.ID)
		case <-time.After(probeInterval):
		}
	}
	return fmt.Errorf("service %s not ready on %s after %v", h.ID, addr, timeout)
}
