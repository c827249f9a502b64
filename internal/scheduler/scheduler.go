// Package scheduler drives the per-service migration queues produced by
// discovery in synchronized rounds, and the simpler unordered bootstrap
// phase that precedes them.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/carnegie-technologies/cqlmigrate/internal/script"
)

// Executor is the database handle a script applies its statements against.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) error
}

// Recorder is the state-store write surface scripts apply through.
type Recorder interface {
	InsertBootstrap(ctx context.Context, row script.BootstrapRecord) error
	InsertMigration(ctx context.Context, row script.MigrationRecord) error
}

// SchemaAgreement blocks until the cluster reports a converged schema.
type SchemaAgreement interface {
	AwaitSchemaAgreement(ctx context.Context) error
}

// RoundFailedError reports that at least one migration in a round failed;
// every concurrent apply in that round still ran to completion before this
// is raised.
type RoundFailedError struct {
	Failures []error
}

func (e *RoundFailedError) Error() string {
	return fmt.Sprintf("scheduler: round failed with %d error(s): %v", len(e.Failures), e.Failures)
}

// RunBootstraps applies every bootstrap concurrently. Any failure is fatal
// for the whole phase; a single convergence barrier follows a fully
// successful phase. An empty phase returns at once without a barrier.
func RunBootstraps(ctx context.Context, bootstraps []*script.Bootstrap, ex Executor, rec Recorder, agreement SchemaAgreement) error {
	if len(bootstraps) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bootstraps {
		b := b
		g.Go(func() error { return b.Apply(gctx, ex, rec) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("scheduler: bootstrap phase: %w", err)
	}
	slog.Info("bootstrap phase complete, awaiting schema agreement", "count", len(bootstraps))
	return agreement.AwaitSchemaAgreement(ctx)
}

// RunMigrations drains queues — service name to its ordered migration
// list — one round at a time. Each round removes and applies the head
// migration of every non-empty queue concurrently; a service queue that
// empties is dropped from the mapping. A round's failures are all
// collected before RoundFailedError is raised, and the schema-agreement
// barrier is skipped for a failed round.
func RunMigrations(ctx context.Context, queues map[string][]*script.Migration, ex Executor, rec Recorder, agreement SchemaAgreement, onRound ...func(round int, services []string)) error {
	// Work on a local copy so callers keep their own queues intact.
	remaining := make(map[string][]*script.Migration, len(queues))
	for service, queue := range queues {
		remaining[service] = queue
	}

	for round := 1; len(remaining) > 0; round++ {
		heads := make([]*script.Migration, 0, len(remaining))
		services := make([]string, 0, len(remaining))
		for service, queue := range remaining {
			heads = append(heads, queue[0])
			services = append(services, service)
			if len(queue) == 1 {
				delete(remaining, service)
			} else {
				remaining[service] = queue[1:]
			}
		}

		slog.Info("starting migration round", "round", round, "services", services)
		for _, report := range onRound {
			report(round, services)
		}

		errs := make([]error, len(heads))
		g, gctx := errgroup.WithContext(ctx)
		for i, m := range heads {
			i, m := i, m
			g.Go(func() error {
				if err := m.Apply(gctx, ex, rec); err != nil {
					errs[i] = fmt.Errorf("%s/%s/%s: %w", m.Keyspace, m.Service, m.File, err)
				}
				return nil
			})
		}
		_ = g.Wait() // errors are collected in errs, not the group error

		var failures []error
		for _, err := range errs {
			if err != nil {
				failures = append(failures, err)
			}
		}
		if len(failures) > 0 {
			return &RoundFailedError{Failures: failures}
		}

		if err := agreement.AwaitSchemaAgreement(ctx); err != nil {
			return fmt.Errorf("scheduler: round %d: awaiting schema agreement: %w", round, err)
		}
	}
	return nil
}
