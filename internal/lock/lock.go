// Package lock implements the process-scoped distributed migration lock: a
// single conditional row in the locks table, acquired at most once per run
// and released on every termination path.
package lock

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Name is the single lock row used by every migration run.
const Name = "MIGRATION_LOCK"

// gateway is the subset of store.Gateway this package depends on.
type gateway interface {
	AcquireLock(ctx context.Context, name string, client uuid.UUID) (bool, error)
	ReleaseLock(ctx context.Context, name string, client uuid.UUID) (bool, error)
}

// Lock owns exactly one acquire/release cycle, identified by a client UUID
// drawn once at construction.
type Lock struct {
	gateway gateway
	name    string
	client  uuid.UUID
	held    bool
}

// New returns a Lock bound to a freshly drawn client identifier, using the
// default row name.
func New(gw gateway) *Lock {
	return &Lock{gateway: gw, name: Name, client: uuid.New()}
}

// NewNamed returns a Lock bound to a freshly drawn client identifier,
// using an overridden row name in place of the default.
func NewNamed(gw gateway, name string) *Lock {
	return &Lock{gateway: gw, name: name, client: uuid.New()}
}

// Client reports the UUID this lock identifies itself with.
func (l *Lock) Client() uuid.UUID { return l.client }

// Acquire attempts the conditional insert. Any driver-level error is
// treated as acquire failure, not propagated — a lock contender racing
// another node's driver hiccup should simply lose, not crash the run.
func (l *Lock) Acquire(ctx context.Context) bool {
	applied, err := l.gateway.AcquireLock(ctx, l.name, l.client)
	if err != nil {
		slog.Warn("lock acquire failed", "client", l.client, "error", err)
		return false
	}
	l.held = applied
	return applied
}

// Release attempts the conditional delete, tied to client so a stale
// process can never clear a newer owner's lock. Any driver-level error
// returns false rather than propagating.
func (l *Lock) Release(ctx context.Context) bool {
	applied, err := l.gateway.ReleaseLock(ctx, l.name, l.client)
	if err != nil {
		slog.Warn("lock release failed", "client", l.client, "error", err)
		return false
	}
	l.held = false
	return applied
}

// Held reports whether this Lock believes it currently owns the row, based
// on the outcome of the last Acquire/Release call.
func (l *Lock) Held() bool { return l.held }
