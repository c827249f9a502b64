// Package cassandra wraps cluster/session construction for the cqlmigrate
// driver fork. It is the "raw database driver" adapter: connection
// management, consistency-level plumbing, and nothing about migration
// semantics.
package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/cassandra-gocql-driver/v2"
)

// Config holds everything needed to dial the cluster.
type Config struct {
	Hosts          []string
	Keyspace       string // empty for an admin/no-keyspace session
	Consistency    string
	LocalDC        string
	Username       string
	Password       string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// Conn wraps a single gocql session.
type Conn struct {
	session  *gocql.Session
	keyspace string
}

// Connect dials the cluster described by cfg. Leaving cfg.Keyspace empty
// produces an admin session suitable for querying system/system_schema
// tables and for schema-agreement probing, per the driver-adapter boundary
// this tool draws between the metadata-table session and the cluster-wide
// admin session.
func Connect(cfg Config) (*Conn, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("cassandra: at least one contact point is required")
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = ParseConsistency(cfg.Consistency)

	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	} else {
		cluster.Timeout = 30 * time.Second
	}
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = cfg.ConnectTimeout
	} else {
		cluster.ConnectTimeout = 10 * time.Second
	}

	if cfg.LocalDC != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.DCAwareRoundRobinPolicy(cfg.LocalDC)
	}

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("cassandra: connecting to cluster: %w", err)
	}

	return &Conn{session: session, keyspace: cfg.Keyspace}, nil
}

// Close releases the underlying session. Safe to call on a nil Conn.
func (c *Conn) Close() {
	if c == nil || c.session == nil {
		return
	}
	c.session.Close()
}

// Session returns the underlying gocql session.
func (c *Conn) Session() *gocql.Session { return c.session }

// Execute runs a single script statement at consistency ALL, satisfying
// the script package's executor interface. The init script runs through
// here over the admin session; bootstrap and migration statements run
// through store.Gateway.Execute instead, which also uses ALL — §4.C's
// execution protocol requires ALL regardless of the session's default.
func (c *Conn) Execute(ctx context.Context, query string, args ...any) error {
	return c.session.Query(query, args...).WithContext(ctx).Consistency(gocql.All).Exec()
}

// Keyspace reports the keyspace this connection was opened against, or ""
// for an admin/no-keyspace session.
func (c *Conn) Keyspace() string { return c.keyspace }

// ParseConsistency converts a configured consistency level name to its
// gocql value, defaulting to ALL — the level every core write in this tool
// is required to use.
func ParseConsistency(s string) gocql.Consistency {
	switch s {
	case "ONE":
		return gocql.One
	case "QUORUM":
		return gocql.Quorum
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "EACH_QUORUM":
		return gocql.EachQuorum
	case "ALL":
		return gocql.All
	case "":
		return gocql.All
	default:
		return gocql.All
	}
}
