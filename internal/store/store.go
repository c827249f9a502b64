// Package store is the State Store Gateway: typed insert/select access to
// the tool's own locks/bootstraps/migrations tables, plus the cluster
// schema-agreement probe. It knows nothing about files on disk or about the
// round scheduler — only about the shape of the three metadata tables.
package store

import (
	"context"
	"fmt"
	"net"
	"reflect"
	"sort"
	"time"

	"github.com/apache/cassandra-gocql-driver/v2"
	"github.com/google/uuid"

	"github.com/carnegie-technologies/cqlmigrate/internal/script"
)

const (
	// TableLocks, TableBootstraps and TableMigrations are the tool-owned
	// metadata tables described in spec §6.
	TableLocks       = "locks"
	TableBootstraps  = "bootstraps"
	TableMigrations  = "migrations"
	defaultPollEvery = time.Second
)

// Gateway is the State Store Gateway. session is bound to the tool's
// metadata keyspace; adminSession has no keyspace set and is used for
// system/system_schema introspection, per the driver-adapter boundary this
// tool draws to resolve the "what keyspace probes the cluster" open
// question.
type Gateway struct {
	session      *gocql.Session
	adminSession *gocql.Session
	keyspace     string
}

// New constructs a Gateway. adminSession may be the same session as
// session if the caller has no reason to separate them (e.g. in tests
// against a single fake), but production wiring uses two sessions.
func New(session, adminSession *gocql.Session, keyspace string) *Gateway {
	return &Gateway{session: session, adminSession: adminSession, keyspace: keyspace}
}

// Execute runs a single statement at consistency ALL against the metadata
// session.
func (g *Gateway) Execute(ctx context.Context, query string, args ...any) error {
	return g.session.Query(query, args...).WithContext(ctx).Consistency(gocql.All).Exec()
}

// InsertOptions configures one Insert call.
type InsertOptions struct {
	TTL         time.Duration
	IfNotExists bool
}

// Insert builds an INSERT statement from record's non-nil, non-function
// fields and executes it. Columns are sorted for a deterministic statement
// across calls (map iteration order is not). Returns whether the write was
// applied — always true for a plain insert, and the LWT outcome when
// IfNotExists is set.
func (g *Gateway) Insert(ctx context.Context, table string, record map[string]any, opts InsertOptions) (applied bool, err error) {
	stmt, vals, err := buildInsertStatement(table, record, opts)
	if err != nil {
		return false, err
	}

	q := g.session.Query(stmt, vals...).WithContext(ctx).Consistency(gocql.All)
	if opts.IfNotExists {
		return q.MapScanCAS(map[string]any{})
	}
	if err := q.Exec(); err != nil {
		return false, err
	}
	return true, nil
}

// buildInsertStatement builds the INSERT statement and bind values for
// record, sorting columns for a deterministic statement across calls (map
// iteration order is not deterministic). Fields that are nil or functions
// are dropped; an empty record is rejected.
func buildInsertStatement(table string, record map[string]any, opts InsertOptions) (stmt string, vals []any, err error) {
	type pair struct {
		col string
		val any
	}
	pairs := make([]pair, 0, len(record))
	for col, val := range record {
		if val == nil {
			continue
		}
		if reflect.ValueOf(val).Kind() == reflect.Func {
			continue
		}
		pairs = append(pairs, pair{col, val})
	}
	if len(pairs) == 0 {
		return "", nil, fmt.Errorf("store: insert into %s: record has no columns to write", table)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].col < pairs[j].col })

	cols := make([]string, len(pairs))
	placeholders := make([]string, len(pairs))
	vals = make([]any, len(pairs))
	for i, p := range pairs {
		cols[i] = p.col
		placeholders[i] = "?"
		vals[i] = p.val
	}

	stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, joinComma(cols), joinComma(placeholders))
	if opts.IfNotExists {
		stmt += " IF NOT EXISTS"
	}
	if opts.TTL > 0 {
		stmt += fmt.Sprintf(" USING TTL %d", int(opts.TTL.Seconds()))
	}
	return stmt, vals, nil
}

func joinComma(items []string) string {
	out := items[0]
	for _, s := range items[1:] {
		out += ", " + s
	}
	return out
}

// AcquireLock attempts to insert the single locks row for name, owned by
// client. Success iff the server reports the write was applied.
func (g *Gateway) AcquireLock(ctx context.Context, name string, client uuid.UUID) (bool, error) {
	q := g.session.Query(
		`INSERT INTO `+TableLocks+` (name, client) VALUES (?, ?) IF NOT EXISTS`,
		name, gocql.UUID(client),
	).WithContext(ctx).Consistency(gocql.All)
	return q.MapScanCAS(map[string]any{})
}

// ReleaseLock deletes the locks row for name, conditioned on it still being
// owned by client. Success iff the server reports the write was applied.
func (g *Gateway) ReleaseLock(ctx context.Context, name string, client uuid.UUID) (bool, error) {
	q := g.session.Query(
		`DELETE FROM `+TableLocks+` WHERE name = ? IF client = ?`,
		name, gocql.UUID(client),
	).WithContext(ctx).Consistency(gocql.All)
	return q.MapScanCAS(map[string]any{})
}

// SelectMigration loads the row for (keyspace, service, file), or nil if
// none exists yet. The returned record satisfies discovery.Hydrator's
// expectations directly — the gateway speaks the script package's row
// shapes rather than mirroring them under a second type.
func (g *Gateway) SelectMigration(ctx context.Context, keyspace, service, file string) (*script.MigrationRecord, error) {
	var appliedOn time.Time
	row := script.MigrationRecord{Keyspace: keyspace, Service: service, File: file}

	q := g.session.Query(
		`SELECT applied_on, checksum, success, body FROM `+TableMigrations+` WHERE keyspace_name = ? AND service = ? AND file = ?`,
		keyspace, service, file,
	).WithContext(ctx).Consistency(gocql.All)

	if err := q.Scan(&appliedOn, &row.Checksum, &row.Success, &row.Body); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("store: select migration %s/%s/%s: %w", keyspace, service, file, err)
	}
	if !appliedOn.IsZero() {
		row.AppliedOn = &appliedOn
	}
	return &row, nil
}

// InsertMigration writes (or overwrites) one migrations row. Migrations
// rows are upserted in place — §3's crash-intent marker relies on the
// second write landing on the same primary key as the first.
func (g *Gateway) InsertMigration(ctx context.Context, row script.MigrationRecord) error {
	record := map[string]any{
		"keyspace_name": row.Keyspace,
		"service":       row.Service,
		"file":          row.File,
		"checksum":      row.Checksum,
		"success":       row.Success,
		"body":          row.Body,
	}
	if row.AppliedOn != nil {
		record["applied_on"] = *row.AppliedOn
	}
	_, err := g.Insert(ctx, TableMigrations, record, InsertOptions{})
	return err
}

// InsertBootstrap appends one bootstraps row. Every apply attempt appends a
// new row; there is no upsert here.
func (g *Gateway) InsertBootstrap(ctx context.Context, row script.BootstrapRecord) error {
	record := map[string]any{
		"keyspace_name": row.Keyspace,
		"applied_on":    row.AppliedOn,
		"file":          row.File,
		"success":       row.Success,
		"body":          row.Body,
	}
	_, err := g.Insert(ctx, TableBootstraps, record, InsertOptions{})
	return err
}

// CheckSchemaAgreement selects schema_version from the node-local system
// table and from the peers table and returns true iff the set of reported
// versions has at most one element. A missing or null local row is treated
// as disagreement. Every peer row is counted toward the check and logged,
// since a peer known to the cluster but currently unreachable still counts
// against agreement.
func (g *Gateway) CheckSchemaAgreement(ctx context.Context) (bool, error) {
	versions := make(map[string]struct{})

	var local gocql.UUID
	localIter := g.adminSession.Query(`SELECT schema_version FROM system.local`).WithContext(ctx).Iter()
	hasLocal := localIter.Scan(&local)
	if err := localIter.Close(); err != nil {
		return false, fmt.Errorf("store: querying system.local: %w", err)
	}
	if !hasLocal || (local == gocql.UUID{}) {
		return false, nil
	}
	versions[local.String()] = struct{}{}

	var (
		peer    net.IP
		version gocql.UUID
		dc      string
		rack    string
	)
	peerIter := g.adminSession.Query(`SELECT peer, schema_version, data_center, rack FROM system.peers`).WithContext(ctx).Iter()
	for peerIter.Scan(&peer, &version, &dc, &rack) {
		versions[version.String()] = struct{}{}
		logPeerSchemaVersion(peer, dc, rack, version)
	}
	if err := peerIter.Close(); err != nil {
		return false, fmt.Errorf("store: querying system.peers: %w", err)
	}

	agreed := len(versions) <= 1
	if !agreed {
		logSchemaDisagreement(versions)
	}
	return agreed, nil
}

// AwaitSchemaAgreement polls CheckSchemaAgreement every pollInterval (1s
// when pollInterval is not positive) until it reports agreement. There is deliberately no timeout: a
// cluster stuck in schema disagreement is safer left waiting than advanced
// past. The caller's context is still honored so a process shutdown can
// unwind the wait.
func (g *Gateway) AwaitSchemaAgreement(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = defaultPollEvery
	}
	for {
		ok, err := g.CheckSchemaAgreement(ctx)
		if err != nil {
			logSchemaAgreementProbeFailed(err)
		} else if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
