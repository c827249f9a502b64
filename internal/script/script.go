// Package script models the three kinds of CQL file this tool executes —
// init, bootstrap, migration — and the shared statement-execution and
// persistence protocol each apply() follows.
package script

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carnegie-technologies/cqlmigrate/internal/cql"
)

// executor runs one CQL statement at the tool's required consistency and
// timeout. Satisfied in production by *cassandra.Conn (for the init script)
// and by store.Gateway (for bootstraps and migrations).
type executor interface {
	Execute(ctx context.Context, query string, args ...any) error
}

// recorder is the subset of the state store gateway the script model
// writes through.
type recorder interface {
	InsertBootstrap(ctx context.Context, row BootstrapRecord) error
	InsertMigration(ctx context.Context, row MigrationRecord) error
}

// BootstrapRecord and MigrationRecord mirror the state-store-gateway row
// shapes without importing that package, so script has no dependency on
// how rows are persisted.
type BootstrapRecord struct {
	Keyspace  string
	AppliedOn time.Time
	File      string
	Success   bool
	Body      string
}

type MigrationRecord struct {
	Keyspace  string
	Service   string
	File      string
	AppliedOn *time.Time
	Checksum  string
	Success   bool
	Body      string
}

// execute splits a canonical body on ';' and runs each non-blank segment
// sequentially, in order, aborting on the first failure.
func execute(ctx context.Context, ex executor, canonicalBody string) error {
	for _, segment := range strings.Split(canonicalBody, ";") {
		stmt := strings.TrimSpace(segment)
		if stmt == "" {
			continue
		}
		if err := ex.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("script: executing statement %q: %w", stmt, err)
		}
	}
	return nil
}

// Init is the single script run before anything else; it is never
// persisted.
type Init struct {
	File string
	Body string
}

// Apply executes the init script's statements. There is nothing to save.
func (i *Init) Apply(ctx context.Context, ex executor) error {
	canonical, err := cql.Canonicalize(i.Body)
	if err != nil {
		return fmt.Errorf("script: init %s: %w", i.File, err)
	}
	return execute(ctx, ex, canonical)
}

// Coordinates names one script's position in the migration tree, for the
// post-success hook below — the same shape regardless of which error type
// or log line also names it.
type Coordinates struct {
	Keyspace, Service, File string
}

// SuccessHook is invoked once after a script's terminal success write, with
// its canonical body and checksum (empty for a bootstrap, which is never
// checksummed). A nil hook is a no-op; this is where the audit archiver
// attaches without Init/Bootstrap/Migration knowing it exists.
type SuccessHook func(coords Coordinates, body, checksum string)

// Bootstrap is independent per keyspace, re-applied every run, with no
// checksum enforcement and no ordering against other bootstraps.
type Bootstrap struct {
	Keyspace string
	File     string
	Body     string

	OnSuccess SuccessHook
}

// Apply executes the bootstrap's statements and appends exactly one
// bootstraps row recording success.
func (b *Bootstrap) Apply(ctx context.Context, ex executor, rec recorder) error {
	canonical, err := cql.Canonicalize(b.Body)
	if err != nil {
		return fmt.Errorf("script: bootstrap %s/%s: %w", b.Keyspace, b.File, err)
	}
	appliedOn := time.Now().UTC()
	if err := execute(ctx, ex, canonical); err != nil {
		return err
	}
	if err := rec.InsertBootstrap(ctx, BootstrapRecord{
		Keyspace:  b.Keyspace,
		AppliedOn: appliedOn,
		File:      b.File,
		Success:   true,
		Body:      canonical,
	}); err != nil {
		return err
	}
	if b.OnSuccess != nil {
		b.OnSuccess(Coordinates{Keyspace: b.Keyspace, File: b.File}, canonical, "")
	}
	return nil
}

// ChecksumMismatchError reports that a previously-applied migration's file
// has changed on disk since it was recorded.
type ChecksumMismatchError struct {
	Keyspace, Service, File string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("script: migration %s/%s/%s: checksum mismatch against previously applied body", e.Keyspace, e.Service, e.File)
}

// Migration is hydrated by discovery from disk and, when present, from a
// prior migrations row. A nil Hydrated means this file has never been
// recorded.
type Migration struct {
	Keyspace string
	Service  string
	File     string
	Body     string // raw body; canonicalized lazily in Apply

	Hydrated *MigrationRecord

	OnSuccess SuccessHook
}

// Apply implements the apply() order from the script model: skip on a
// matching prior success, fail fatally on a checksum mismatch, otherwise
// write the success=false crash-intent marker, execute, then write
// success=true.
//
// A Hydrated row with success=false and a non-null AppliedOn is expected to
// have already aborted the run during discovery; Apply does not re-check
// it.
func (m *Migration) Apply(ctx context.Context, ex executor, rec recorder) error {
	canonical, err := cql.Canonicalize(m.Body)
	if err != nil {
		return fmt.Errorf("script: migration %s/%s/%s: %w", m.Keyspace, m.Service, m.File, err)
	}
	checksum := cql.Checksum(canonical)

	if m.Hydrated != nil && m.Hydrated.Success {
		if m.Hydrated.Checksum != checksum {
			return &ChecksumMismatchError{m.Keyspace, m.Service, m.File}
		}
		return nil
	}

	appliedOn := time.Now().UTC()
	if err := rec.InsertMigration(ctx, MigrationRecord{
		Keyspace:  m.Keyspace,
		Service:   m.Service,
		File:      m.File,
		AppliedOn: &appliedOn,
		Checksum:  checksum,
		Success:   false,
		Body:      canonical,
	}); err != nil {
		return fmt.Errorf("script: migration %s/%s/%s: writing crash-intent marker: %w", m.Keyspace, m.Service, m.File, err)
	}

	if err := execute(ctx, ex, canonical); err != nil {
		return err
	}

	appliedOn = time.Now().UTC()
	if err := rec.InsertMigration(ctx, MigrationRecord{
		Keyspace:  m.Keyspace,
		Service:   m.Service,
		File:      m.File,
		AppliedOn: &appliedOn,
		Checksum:  checksum,
		Success:   true,
		Body:      canonical,
	}); err != nil {
		return fmt.Errorf("script: migration %s/%s/%s: writing success marker: %w", m.Keyspace, m.Service, m.File, err)
	}
	if m.OnSuccess != nil {
		m.OnSuccess(Coordinates{Keyspace: m.Keyspace, Service: m.Service, File: m.File}, canonical, checksum)
	}
	return nil
}
