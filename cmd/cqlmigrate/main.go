package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carnegie-technologies/cqlmigrate/internal/archive"
	"github.com/carnegie-technologies/cqlmigrate/internal/cassandra"
	"github.com/carnegie-technologies/cqlmigrate/internal/config"
	"github.com/carnegie-technologies/cqlmigrate/internal/discovery"
	"github.com/carnegie-technologies/cqlmigrate/internal/lock"
	"github.com/carnegie-technologies/cqlmigrate/internal/orchestrator"
	"github.com/carnegie-technologies/cqlmigrate/internal/scheduler"
	"github.com/carnegie-technologies/cqlmigrate/internal/script"
	"github.com/carnegie-technologies/cqlmigrate/internal/statusapi"
	"github.com/carnegie-technologies/cqlmigrate/internal/store"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const metadataKeyspace = "cqlmigrate"

func main() {
	if len(os.Args) < 2 {
		os.Args = append(os.Args, "run")
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runMigration())
	case "version":
		printVersion()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		fmt.Println("Available commands: run, version")
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("cqlmigrate %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func runMigration() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}

	if cfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The admin session has no keyspace set, so it works against a cluster
	// where the metadata keyspace does not exist yet. The init script is
	// responsible for creating that keyspace; everything that touches the
	// locks/bootstraps/migrations tables must wait until it has, so the
	// keyspace-bound session below is opened lazily, not here.
	adminConn, err := cassandra.Connect(cassandra.Config{
		Hosts:    cfg.Database.ContactPoints,
		LocalDC:  cfg.Database.LocalDC,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		Timeout:  cfg.ClientTimeout(),
	})
	if err != nil {
		slog.Error("failed to connect an admin session to cassandra", "error", err)
		return 1
	}
	defer adminConn.Close()

	var onSuccess script.SuccessHook
	if cfg.Archive.Enabled {
		archiver, err := archive.New(ctx, archive.Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			Prefix:          cfg.Archive.Prefix,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			UsePathStyle:    cfg.Archive.UsePathStyle,
		})
		if err != nil {
			slog.Error("failed to construct the audit archiver", "error", err)
			return 1
		}
		onSuccess = archiver.Hook(ctx)
	}

	layout := discovery.Layout{
		InitFilename:      cfg.Migration.InitFilename,
		BootstrapFilename: cfg.Migration.BootstrapFilename,
	}

	keyspace := &keyspaceSession{
		cfg: cassandra.Config{
			Hosts:    cfg.Database.ContactPoints,
			Keyspace: metadataKeyspace,
			LocalDC:  cfg.Database.LocalDC,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			Timeout:  cfg.ClientTimeout(),
		},
		admin:    adminConn,
		lockName: cfg.Lock.Name,
	}
	defer keyspace.close()

	var reporter *statusapi.Reporter
	var statusServer *statusapi.Server
	if cfg.Status.Enabled {
		reporter = statusapi.NewReporter()
		statusServer = statusapi.NewServer(cfg.Status.Port, reporter)
		go func() {
			if err := statusServer.Run(); err != nil {
				slog.Warn("status server stopped", "error", err)
			}
		}()
	}

	o := orchestrator.New(
		&initRunner{root: cfg.Migration.Root, layout: layout, ex: adminConn},
		&lockAdapter{keyspace},
		&loader{root: cfg.Migration.Root, layout: layout, keyspace: keyspace, onSuccess: onSuccess},
		&runner{keyspace: keyspace, pollInterval: cfg.PollInterval(), reporter: reporter},
		reporterOrNil(reporter),
		func(code int) { exitCode = code },
	)
	o.Run(ctx)

	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ClientTimeout())
		defer cancel()
		_ = statusServer.Shutdown(shutdownCtx)
	}

	return exitCode
}

// exitCode is set by the orchestrator's onExit callback; Run is
// synchronous, so there is no data race reading it immediately after.
var exitCode int

func reporterOrNil(r *statusapi.Reporter) orchestrator.StatusReporter {
	if r == nil {
		return nil
	}
	return r
}

// keyspaceSession opens the metadata-keyspace-bound session on first use
// rather than at startup, since that keyspace may not exist until the init
// script (run over the admin session) has created it. Every dependent —
// the lock, discovery's hydrator, and the scheduler's executor/recorder —
// shares this one lazily-connected session and the gateway built on it.
type keyspaceSession struct {
	cfg      cassandra.Config
	admin    *cassandra.Conn
	lockName string

	conn    *cassandra.Conn
	gateway *store.Gateway
	lock    *lock.Lock
}

func (k *keyspaceSession) ensure() error {
	if k.conn != nil {
		return nil
	}
	conn, err := cassandra.Connect(k.cfg)
	if err != nil {
		return fmt.Errorf("connecting the metadata keyspace session: %w", err)
	}
	k.conn = conn
	k.gateway = store.New(conn.Session(), k.admin.Session(), metadataKeyspace)
	k.lock = lock.NewNamed(k.gateway, k.lockName)
	return nil
}

func (k *keyspaceSession) close() {
	if k.conn != nil {
		k.conn.Close()
	}
}

// lockAdapter satisfies orchestrator.Locker, deferring the metadata
// session's connection until the first Acquire call — by which point the
// init script has already created the keyspace it needs.
type lockAdapter struct {
	keyspace *keyspaceSession
}

func (l *lockAdapter) Acquire(ctx context.Context) bool {
	if err := l.keyspace.ensure(); err != nil {
		slog.Error("failed to open the metadata keyspace session", "error", err)
		return false
	}
	return l.keyspace.lock.Acquire(ctx)
}

func (l *lockAdapter) Release(ctx context.Context) bool {
	if l.keyspace.lock == nil {
		return false
	}
	return l.keyspace.lock.Release(ctx)
}

func (l *lockAdapter) Client() string {
	if l.keyspace.lock == nil {
		return ""
	}
	return l.keyspace.lock.Client().String()
}

// initRunner satisfies orchestrator.InitRunner, loading and applying the
// depth-0 init script if one is present. It runs over the admin session,
// which has no keyspace set, since the init script is what creates the
// metadata keyspace in the first place.
type initRunner struct {
	root   string
	layout discovery.Layout
	ex     interface {
		Execute(ctx context.Context, query string, args ...any) error
	}
}

func (r *initRunner) RunInit(ctx context.Context) error {
	init, err := discovery.LoadInit(r.root, r.layout)
	if err != nil {
		return err
	}
	if init == nil {
		return nil
	}
	return init.Apply(ctx, r.ex)
}

// loader satisfies orchestrator.Loader, wiring discovery against the state
// store and, when archiving is enabled, the audit hook onto every
// discovered script.
type loader struct {
	root      string
	layout    discovery.Layout
	keyspace  *keyspaceSession
	onSuccess script.SuccessHook
}

func (l *loader) Load(ctx context.Context) (*discovery.Result, error) {
	if err := l.keyspace.ensure(); err != nil {
		return nil, err
	}
	result, err := discovery.Discover(ctx, l.root, l.layout, l.keyspace.gateway)
	if err != nil {
		return nil, err
	}
	if l.onSuccess == nil {
		return result, nil
	}
	for _, b := range result.Bootstraps {
		b.OnSuccess = l.onSuccess
	}
	for _, queue := range result.Migrations {
		for _, m := range queue {
			m.OnSuccess = l.onSuccess
		}
	}
	return result, nil
}

// runner satisfies orchestrator.Runner, wiring the scheduler against the
// state store and, when a status reporter is configured, its round-progress
// callback.
type runner struct {
	keyspace     *keyspaceSession
	pollInterval time.Duration
	reporter     *statusapi.Reporter
}

func (r *runner) RunBootstraps(ctx context.Context, bootstraps []*script.Bootstrap) error {
	if err := r.keyspace.ensure(); err != nil {
		return err
	}
	return scheduler.RunBootstraps(ctx, bootstraps, r.keyspace.gateway, r.keyspace.gateway, r.agreement())
}

func (r *runner) RunMigrations(ctx context.Context, queues map[string][]*script.Migration) error {
	if err := r.keyspace.ensure(); err != nil {
		return err
	}
	if r.reporter == nil {
		return scheduler.RunMigrations(ctx, queues, r.keyspace.gateway, r.keyspace.gateway, r.agreement())
	}
	return scheduler.RunMigrations(ctx, queues, r.keyspace.gateway, r.keyspace.gateway, r.agreement(), r.reporter.Round)
}

func (r *runner) agreement() scheduler.SchemaAgreement {
	return &agreementAdapter{gateway: r.keyspace.gateway, pollInterval: r.pollInterval}
}

// agreementAdapter binds the configured poll interval to the state store's
// AwaitSchemaAgreement, satisfying scheduler.SchemaAgreement.
type agreementAdapter struct {
	gateway      *store.Gateway
	pollInterval time.Duration
}

func (a *agreementAdapter) AwaitSchemaAgreement(ctx context.Context) error {
	return a.gateway.AwaitSchemaAgreement(ctx, a.pollInterval)
}
