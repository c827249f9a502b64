package store

import (
	"log/slog"
	"net"

	"github.com/apache/cassandra-gocql-driver/v2"
)

// logPeerSchemaVersion records one peer's reported schema version at debug
// level. Every peer is logged here on every poll, so this must stay below
// warning — only logSchemaDisagreement escalates, and only while the
// cluster is actually split.
func logPeerSchemaVersion(peer net.IP, dc, rack string, version gocql.UUID) {
	slog.Debug("peer schema version",
		"peer", peer.String(),
		"data_center", dc,
		"rack", rack,
		"schema_version", version.String(),
	)
}

// logSchemaDisagreement warns once per probe when the cluster has not
// converged on a single schema version, identifying every distinct version
// observed. Called only when agreement has failed, so a converged cluster
// never produces this log.
func logSchemaDisagreement(versions map[string]struct{}) {
	distinct := make([]string, 0, len(versions))
	for v := range versions {
		distinct = append(distinct, v)
	}
	slog.Warn("schema agreement not reached", "distinct_versions", distinct)
}

func logSchemaAgreementProbeFailed(err error) {
	slog.Warn("schema agreement probe failed, retrying", "error", err)
}
