// Package coordinator drives the launch lifecycle: persistence store, then
// auxiliary services, then the agent roster, then the delegated swarm
// process. It is a strictly ordered state machine with a single coordinating
// goroutine; concurrency exists only at the subprocess level.
package coordinator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/hiverun/hived/app/config"
	"github.com/hiverun/hived/app/registry"
	"github.com/hiverun/hived/app/store"
	"github.com/hiverun/hived/app/supervisor"
)

// State is one stage of the coordinator lifecycle.
type State string

// lifecycle states, entered strictly in this order
const (
	StateInit            State = "INIT"
	StateStoreReady      State = "STORE_READY"
	StateServicesStarted State = "SERVICES_STARTED"
	StateAgentsLoaded    State = "AGENTS_LOADED"
	StateSwarmRunning    State = "SWARM_RUNNING"
	StateShuttingDown    State = "SHUTTING_DOWN"
	StateStopped         State = "STOPPED"
)

// Store records telemetry rows. Writes are best-effort and never fail the
// caller; Close releases the single-owner sqlite handle.
type Store interface {
	RecordState(state, queenStatus string, workers int)
	RecordInteraction(from, to, message, taskID string)
	RecordTask(taskID, description, assignedTo, status, result string)
	RecordMetric(agentID, taskID string, execTime time.Duration, tokens int64, success bool)
	Close() error
}

// Supervisor starts, probes, samples and stops the auxiliary services.
type Supervisor interface {
	ReapStale()
	Start(ctx context.Context, services []config.Service) []*supervisor.Handle
	WaitReady(ctx context.Context, handles []*supervisor.Handle, timeout time.Duration) error
	StopAll(handles []*supervisor.Handle)
	Sample(handles []*supervisor.Handle) []supervisor.Usage
}

// Delegate launches the external swarm-execution process and waits for it.
type Delegate interface {
	Run(ctx context.Context, req DelegateRequest) (exitCode int, err error)
}

// Notifier delivers failure notifications.
type Notifier interface {
	Send(ctx context.Context, subj, text string) error
}

// ConditionChecker verifies preflight resource conditions.
type ConditionChecker interface {
	Check(pf config.Preflight) (bool, string)
}

// Coordinator wires all collaborators and owns the overall lifecycle.
type Coordinator struct {
	Cfg             *config.Config
	ConfigPath      string
	OpenStore       func(path string) (Store, error)
	Supervisor      Supervisor
	Delegate        Delegate
	Notifier        Notifier
	Checker         ConditionChecker
	Tail            *OutputTail
	MetricsInterval time.Duration

	st       Store
	state    State
	workers  int
	degraded bool
}

type delegateResult struct {
	code int
	err  error
}

// Degraded reports whether the run proceeds without telemetry because the
// store failed to initialize.
func (c *Coordinator) Degraded() bool { return c.degraded }

// State returns the current lifecycle state.
func (c *Coordinator) State() State { return c.state }

// Run executes the full lifecycle and blocks until the delegated swarm
// process exits or the context is canceled by a termination signal. Returns
// the process exit code: 0 for a clean run, the delegate's code when it
// failed, 1 for a fatal startup failure.
func (c *Coordinator) Run(ctx context.Context) int {
	// INIT -> STORE_READY. Store failure is degraded, not fatal: telemetry
	// is auxiliary and must not block the launch.
	st, err := c.OpenStore(c.Cfg.Store.Path)
	if err != nil {
		log.Printf("[WARN] telemetry disabled, %v", err)
		c.degraded = true
		st = noopStore{}
	}
	c.st = st
	c.setState(StateInit, "starting")
	c.setState(StateStoreReady, "starting")
	if !c.degraded {
		log.Printf("[INFO] store ready at %s", c.Cfg.Store.Path)
	}

	if c.Checker != nil && !c.Cfg.Preflight.Empty() {
		if ok, reason := c.Checker.Check(c.Cfg.Preflight); !ok {
			log.Printf("[WARN] preflight conditions not met, %s, starting anyway", reason)
		}
	}

	// STORE_READY -> SERVICES_STARTED, best-effort in declared order
	c.Supervisor.ReapStale()
	handles := c.Supervisor.Start(ctx, c.Cfg.EnabledServices())
	c.setState(StateServicesStarted, "starting")
	log.Printf("[INFO] %d of %d services started", len(handles), len(c.Cfg.EnabledServices()))

	if c.Cfg.Ready.Wait {
		if err := c.Supervisor.WaitReady(ctx, handles, c.Cfg.Ready.Timeout); err != nil {
			log.Printf("[WARN] services readiness incomplete, %v", err)
		}
	}

	ctrl := &Controller{Supervisor: c.Supervisor, Handles: handles, Store: c.st}

	// SERVICES_STARTED -> AGENTS_LOADED, the one fatal stage: an invalid
	// roster makes the rest of the run meaningless
	reg, err := registry.Load(c.Cfg.Agents)
	if err != nil {
		return c.fatal(ctrl, err)
	}
	c.workers = reg.WorkerCount()
	ctrl.Workers = c.workers
	c.setState(StateAgentsLoaded, "ready")
	log.Printf("[DEBUG] agents: %v", reg.Names())

	// AGENTS_LOADED -> SWARM_RUNNING
	rosterPath := c.Cfg.Swarm.RosterPath
	if rosterPath == "" {
		rosterPath = filepath.Join(filepath.Dir(c.Cfg.Store.Path), "roster.yml")
	}
	if err := reg.Export(rosterPath); err != nil {
		return c.fatal(ctrl, fmt.Errorf("can't export roster: %w", err))
	}

	taskID := "swarm-run"
	if c.Cfg.RunID != "" {
		taskID = "swarm-" + c.Cfg.RunID
	}
	queen := reg.Queen().Name

	c.setState(StateSwarmRunning, "running")
	c.st.RecordTask(taskID, "delegated swarm execution", queen, store.TaskRunning, "")
	c.st.RecordInteraction(queen, "swarm", "delegate handoff, topology "+c.Cfg.Swarm.Topology, taskID)

	req := DelegateRequest{
		Command:    c.Cfg.Swarm.Command,
		ConfigPath: c.ConfigPath,
		RosterPath: rosterPath,
		Topology:   c.Cfg.Swarm.Topology,
		StorePath:  c.Cfg.Store.Path,
		ExtraArgs:  c.Cfg.Swarm.Args,
		Workdir:    c.Cfg.Swarm.Workdir,
		Grace:      c.Cfg.Shutdown.GracePeriod,
	}

	started := time.Now()
	resCh := make(chan delegateResult, 1)
	go func() {
		code, err := c.Delegate.Run(ctx, req)
		resCh <- delegateResult{code: code, err: err}
	}()

	interval := c.MetricsInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// the coordinator's only remaining job is to watch the delegate and
	// react to the termination signal; telemetry writes stay on this
	// goroutine to keep the store single-writer
	for {
		select {
		case res := <-resCh:
			return c.finish(ctrl, queen, taskID, started, res, false)

		case <-ticker.C:
			for _, u := range c.Supervisor.Sample(handles) {
				c.st.RecordMetric("service:"+u.ServiceID, taskID, u.Uptime, int64(u.MemoryRSS/1024), u.Alive)
			}

		case <-ctx.Done():
			log.Printf("[INFO] termination signal received, stopping swarm")
			res := <-resCh // delegate gets the termination request via its context
			return c.finish(ctrl, queen, taskID, started, res, true)
		}
	}
}

// fatal handles an aborted startup: logs, notifies, tears down whatever is
// already running and returns exit code 1.
func (c *Coordinator) fatal(ctrl *Controller, err error) int {
	log.Printf("[ERROR] startup failed, %v", err)
	c.notifyFailure(fmt.Sprintf("startup failed: %v", err))
	c.setState(StateShuttingDown, "failed")
	ctrl.Trigger("failed")
	c.state = StateStopped
	return 1
}

// finish records the delegate outcome, drives the ordered teardown and maps
// the result to the process exit code.
func (c *Coordinator) finish(ctrl *Controller, queen, taskID string, started time.Time, res delegateResult, signaled bool) int {
	elapsed := time.Since(started)

	code := res.code
	if res.err != nil && code <= 0 {
		code = 1
	}
	if signaled && killedByShutdown(res.err) {
		// operator-requested stop, not a delegate failure
		log.Printf("[INFO] swarm stopped on termination signal after %v", elapsed.Round(time.Millisecond))
		code = 0
		res.err = nil
	}

	success := res.err == nil && code == 0
	status, queenStatus := store.TaskDone, "completed"
	if !success {
		status, queenStatus = store.TaskFailed, "failed"
		log.Printf("[WARN] swarm delegate failed after %v, %v", elapsed.Round(time.Millisecond), res.err)
		text := fmt.Sprintf("swarm delegate failed with exit code %d: %v", code, res.err)
		if c.Tail != nil {
			if tail := c.Tail.Tail(); tail != "" {
				text += "\n\nlast output:\n" + tail
			}
		}
		c.notifyFailure(text)
	} else {
		log.Printf("[INFO] swarm completed in %v", elapsed.Round(time.Millisecond))
	}

	c.st.RecordTask(taskID, "delegated swarm execution", queen, status, fmt.Sprintf("exit code %d", code))
	c.st.RecordMetric("swarm", taskID, elapsed, 0, success)
	c.st.RecordInteraction("swarm", queen, fmt.Sprintf("delegate exited with code %d", code), taskID)

	c.setState(StateShuttingDown, queenStatus)
	ctrl.Trigger(queenStatus)
	c.state = StateStopped
	return code
}

func (c *Coordinator) setState(state State, queenStatus string) {
	c.state = state
	log.Printf("[DEBUG] state %s", state)
	c.st.RecordState(string(state), queenStatus, c.workers)
}

func (c *Coordinator) notifyFailure(text string) {
	if c.Notifier == nil || !c.Cfg.Notify.OnFailure {
		return
	}
	if err := c.Notifier.Send(context.Background(), "hived failure", text); err != nil {
		log.Printf("[WARN] failed to notify, %v", err)
	}
}

// noopStore carries the degraded mode: every telemetry write is dropped.
type noopStore struct{}

func (noopStore) RecordState(string, string, int)                         {}
func (noopStore) RecordInteraction(string, string, string, string)        {}
func (noopStore) RecordTask(string, string, string, string, string)       {}
func (noopStore) RecordMetric(string, string, time.Duration, int64, bool) {}
func (noopStore) Close() error                                            { return nil }
