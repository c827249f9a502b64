// Package orchestrator drives the top-level migration run: init, lock,
// load, bootstrap, migrate, release — a single-threaded state machine
// whose only parallelism is delegated to the scheduler.
package orchestrator

import (
	"context"
	"log/slog"

	"github.com/carnegie-technologies/cqlmigrate/internal/discovery"
	"github.com/carnegie-technologies/cqlmigrate/internal/script"
)

// State names one node of the run's state machine, exposed for status
// reporting and tests.
type State int

const (
	StateStart State = iota
	StateInit
	StateLocking
	StateLoading
	StateBootstrapping
	StateMigrating
	StateReleasing
	StateExit
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateInit:
		return "INIT"
	case StateLocking:
		return "LOCKING"
	case StateLoading:
		return "LOADING"
	case StateBootstrapping:
		return "BOOTSTRAPPING"
	case StateMigrating:
		return "MIGRATING"
	case StateReleasing:
		return "RELEASING"
	case StateExit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// Locker is the subset of the distributed lock the orchestrator drives.
type Locker interface {
	Acquire(ctx context.Context) bool
	Release(ctx context.Context) bool
	Client() string
}

// InitRunner loads the init script from disk, if present, and applies it.
// This runs strictly before lock acquisition, so it must not depend on the
// lock being held.
type InitRunner interface {
	RunInit(ctx context.Context) error
}

// Loader discovers and classifies the bootstrap and migration scripts.
// This runs strictly after the lock is acquired.
type Loader interface {
	Load(ctx context.Context) (*discovery.Result, error)
}

// Runner executes the bootstrap and migration phases once loaded.
type Runner interface {
	RunBootstraps(ctx context.Context, bootstraps []*script.Bootstrap) error
	RunMigrations(ctx context.Context, queues map[string][]*script.Migration) error
}

// StatusReporter observes the orchestrator's state-machine transitions and
// lock ownership, for the optional HTTP status surface. A nil reporter is a
// complete no-op — Orchestrator has no required dependency on it.
type StatusReporter interface {
	Phase(s State)
	Lock(held bool, client string)
}

// Orchestrator wires together one complete run.
type Orchestrator struct {
	init   InitRunner
	lock   Locker
	load   Loader
	run    Runner
	state  State
	status StatusReporter
	// onExit is called with the run's exit code, except on the
	// deliberately-silent release-failure path.
	onExit func(code int)
}

// New constructs an Orchestrator. onExit defaults to a no-op if nil. status
// may be nil.
func New(init InitRunner, lock Locker, load Loader, run Runner, status StatusReporter, onExit func(code int)) *Orchestrator {
	if onExit == nil {
		onExit = func(int) {}
	}
	if status == nil {
		status = noopStatus{}
	}
	return &Orchestrator{init: init, lock: lock, load: load, run: run, status: status, onExit: onExit, state: StateStart}
}

type noopStatus struct{}

func (noopStatus) Phase(State)       {}
func (noopStatus) Lock(bool, string) {}

func (o *Orchestrator) setState(s State) {
	o.state = s
	o.status.Phase(s)
}

// State reports the orchestrator's current node in the state machine.
func (o *Orchestrator) State() State { return o.state }

// Run drives the full state machine to completion. The only path that
// does not eventually call onExit is a failed lock release: that is a
// deliberate surface for operator attention, not an oversight.
func (o *Orchestrator) Run(ctx context.Context) {
	o.setState(StateInit)
	if err := o.init.RunInit(ctx); err != nil {
		slog.Error("init script failed", "error", err)
		// The lock was never acquired, so there is nothing to release.
		o.setState(StateExit)
		o.onExit(1)
		return
	}

	o.setState(StateLocking)
	if !o.lock.Acquire(ctx) {
		slog.Error("failed to acquire the migration lock")
		o.setState(StateExit)
		o.onExit(1)
		return
	}
	o.status.Lock(true, o.lock.Client())

	code := o.runLocked(ctx)

	o.setState(StateReleasing)
	if !o.lock.Release(ctx) {
		slog.Error("lock release reported the row was not ours; manual recovery may be required")
		return
	}
	o.status.Lock(false, o.lock.Client())
	o.setState(StateExit)
	o.onExit(code)
}

func (o *Orchestrator) runLocked(ctx context.Context) int {
	o.setState(StateLoading)
	result, err := o.load.Load(ctx)
	if err != nil {
		slog.Error("loading migration scripts failed", "error", err)
		return 1
	}

	o.setState(StateBootstrapping)
	if err := o.run.RunBootstraps(ctx, result.Bootstraps); err != nil {
		slog.Error("bootstrap phase failed", "error", err)
		return 1
	}

	o.setState(StateMigrating)
	if err := o.run.RunMigrations(ctx, result.Migrations); err != nil {
		slog.Error("migration phase failed", "error", err)
		return 1
	}

	return 0
}
