package script

import (
	"context"
	"errors"
	"testing"

	"github.com/carnegie-technologies/cqlmigrate/internal/cql"
)

type fakeExecutor struct {
	statements []string
	failOn     string
}

func (f *fakeExecutor) Execute(ctx context.Context, query string, args ...any) error {
	if f.failOn != "" && query == f.failOn {
		return errors.New("boom")
	}
	f.statements = append(f.statements, query)
	return nil
}

type fakeRecorder struct {
	bootstraps []BootstrapRecord
	migrations []MigrationRecord
	failInsert bool
}

func (f *fakeRecorder) InsertBootstrap(ctx context.Context, row BootstrapRecord) error {
	if f.failInsert {
		return errors.New("insert failed")
	}
	f.bootstraps = append(f.bootstraps, row)
	return nil
}

func (f *fakeRecorder) InsertMigration(ctx context.Context, row MigrationRecord) error {
	if f.failInsert {
		return errors.New("insert failed")
	}
	f.migrations = append(f.migrations, row)
	return nil
}

func TestInitApplyExecutesStatementsAndSavesNothing(t *testing.T) {
	ex := &fakeExecutor{}
	i := &Init{File: "init.cql", Body: "CREATE KEYSPACE a;\nCREATE KEYSPACE b;"}

	if err := i.Apply(context.Background(), ex); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(ex.statements) != 2 {
		t.Errorf("statements = %v, want 2", ex.statements)
	}
}

func TestInitApplyStopsOnFirstFailure(t *testing.T) {
	ex := &fakeExecutor{failOn: "CREATE KEYSPACE b"}
	i := &Init{Body: "CREATE KEYSPACE a; CREATE KEYSPACE b; CREATE KEYSPACE c;"}

	if err := i.Apply(context.Background(), ex); err == nil {
		t.Fatalf("expected an error")
	}
	if len(ex.statements) != 1 {
		t.Errorf("statements after abort = %v, want exactly the first one", ex.statements)
	}
}

func TestBootstrapApplyWritesOneSuccessRow(t *testing.T) {
	ex := &fakeExecutor{}
	rec := &fakeRecorder{}
	b := &Bootstrap{Keyspace: "ks", File: "bootstrap.cql", Body: "INSERT INTO ks.seed (id) VALUES (1);"}

	if err := b.Apply(context.Background(), ex, rec); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(rec.bootstraps) != 1 {
		t.Fatalf("bootstraps = %v, want 1 row", rec.bootstraps)
	}
	if !rec.bootstraps[0].Success {
		t.Errorf("bootstrap row not marked success")
	}
}

func TestBootstrapApplyDoesNotSaveOnExecutionFailure(t *testing.T) {
	ex := &fakeExecutor{failOn: "INSERT INTO ks . seed ( id ) VALUES ( 1 )"}
	rec := &fakeRecorder{}
	b := &Bootstrap{Keyspace: "ks", File: "bootstrap.cql", Body: "INSERT INTO ks.seed (id) VALUES (1);"}

	if err := b.Apply(context.Background(), ex, rec); err == nil {
		t.Fatalf("expected an error")
	}
	if len(rec.bootstraps) != 0 {
		t.Errorf("bootstraps = %v, want no row saved on failure", rec.bootstraps)
	}
}

func TestMigrationApplyFreshRunWritesTwoPhaseMarkers(t *testing.T) {
	ex := &fakeExecutor{}
	rec := &fakeRecorder{}
	m := &Migration{Keyspace: "ks", Service: "svc", File: "0001.cql", Body: "CREATE TABLE t (id int PRIMARY KEY);"}

	if err := m.Apply(context.Background(), ex, rec); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(rec.migrations) != 2 {
		t.Fatalf("migrations rows = %d, want 2 (crash-intent then success)", len(rec.migrations))
	}
	if rec.migrations[0].Success {
		t.Errorf("first row should be the crash-intent marker (success=false)")
	}
	if !rec.migrations[1].Success {
		t.Errorf("second row should record success=true")
	}
	if rec.migrations[0].Checksum != rec.migrations[1].Checksum {
		t.Errorf("checksum changed between the two phases")
	}
}

func TestMigrationApplySkipsOnMatchingChecksum(t *testing.T) {
	ex := &fakeExecutor{}
	rec := &fakeRecorder{}
	body := "CREATE TABLE t (id int PRIMARY KEY);"
	canonical, err := cql.Canonicalize(body)
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}

	m := &Migration{
		Keyspace: "ks", Service: "svc", File: "0001.cql", Body: body,
		Hydrated: &MigrationRecord{Success: true, Checksum: cql.Checksum(canonical)},
	}

	if err := m.Apply(context.Background(), ex, rec); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(ex.statements) != 0 {
		t.Errorf("statements = %v, want none executed on skip", ex.statements)
	}
	if len(rec.migrations) != 0 {
		t.Errorf("migrations = %v, want no rows written on skip", rec.migrations)
	}
}

func TestMigrationApplyFailsOnChecksumMismatch(t *testing.T) {
	ex := &fakeExecutor{}
	rec := &fakeRecorder{}
	m := &Migration{
		Keyspace: "ks", Service: "svc", File: "0001.cql",
		Body:     "CREATE TABLE t (id int PRIMARY KEY, extra text);",
		Hydrated: &MigrationRecord{Success: true, Checksum: "0000000000000000000000000000000"},
	}

	err := m.Apply(context.Background(), ex, rec)
	var mismatch *ChecksumMismatchError
	if err == nil {
		t.Fatalf("expected a checksum mismatch error")
	}
	if !errorsAs(err, &mismatch) {
		t.Errorf("error = %v, want *ChecksumMismatchError", err)
	}
	if len(ex.statements) != 0 {
		t.Errorf("statements executed despite mismatch: %v", ex.statements)
	}
}

func TestMigrationApplyAbortsBetweenPhasesLeavesFalseRow(t *testing.T) {
	ex := &fakeExecutor{failOn: "CREATE TABLE t ( id int PRIMARY KEY )"}
	rec := &fakeRecorder{}
	m := &Migration{Keyspace: "ks", Service: "svc", File: "0001.cql", Body: "CREATE TABLE t (id int PRIMARY KEY);"}

	if err := m.Apply(context.Background(), ex, rec); err == nil {
		t.Fatalf("expected an error")
	}
	if len(rec.migrations) != 1 {
		t.Fatalf("migrations rows = %d, want exactly the crash-intent marker", len(rec.migrations))
	}
	if rec.migrations[0].Success {
		t.Errorf("surviving row should be success=false")
	}
}

func errorsAs(err error, target any) bool {
	return errors.As(err, target)
}

func TestMigrationApplyCallsOnSuccessHookAfterTerminalWrite(t *testing.T) {
	ex := &fakeExecutor{}
	rec := &fakeRecorder{}
	var got []Coordinates
	m := &Migration{
		Keyspace: "ks", Service: "svc", File: "0001.cql",
		Body: "CREATE TABLE t (id int PRIMARY KEY);",
		OnSuccess: func(coords Coordinates, body, checksum string) {
			got = append(got, coords)
			if checksum == "" {
				t.Errorf("migration hook got empty checksum")
			}
		},
	}

	if err := m.Apply(context.Background(), ex, rec); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("OnSuccess called %d times, want 1", len(got))
	}
	if got[0] != (Coordinates{Keyspace: "ks", Service: "svc", File: "0001.cql"}) {
		t.Errorf("OnSuccess coordinates = %+v", got[0])
	}
}

func TestMigrationApplyDoesNotCallOnSuccessHookOnSkip(t *testing.T) {
	ex := &fakeExecutor{}
	rec := &fakeRecorder{}
	body := "CREATE TABLE t (id int PRIMARY KEY);"
	canonical, err := cql.Canonicalize(body)
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}
	called := false
	m := &Migration{
		Keyspace: "ks", Service: "svc", File: "0001.cql", Body: body,
		Hydrated:  &MigrationRecord{Success: true, Checksum: cql.Checksum(canonical)},
		OnSuccess: func(Coordinates, string, string) { called = true },
	}

	if err := m.Apply(context.Background(), ex, rec); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if called {
		t.Errorf("OnSuccess should not fire when the migration is skipped")
	}
}

func TestBootstrapApplyCallsOnSuccessHookWithEmptyChecksum(t *testing.T) {
	ex := &fakeExecutor{}
	rec := &fakeRecorder{}
	var gotChecksum string
	called := false
	b := &Bootstrap{
		Keyspace: "ks", File: "bootstrap.cql", Body: "INSERT INTO ks.seed (id) VALUES (1);",
		OnSuccess: func(coords Coordinates, body, checksum string) {
			called = true
			gotChecksum = checksum
		},
	}

	if err := b.Apply(context.Background(), ex, rec); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !called {
		t.Fatalf("OnSuccess was not called")
	}
	if gotChecksum != "" {
		t.Errorf("bootstrap hook checksum = %q, want empty", gotChecksum)
	}
}
