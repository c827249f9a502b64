// Package archive is the optional audit archiver: it mirrors every
// successful script application to an S3-compatible bucket as a JSON
// record, off the cluster, purely for operator audit trails. A failure
// here is logged and swallowed — it must never turn a successful migration
// into a failed run.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/carnegie-technologies/cqlmigrate/internal/script"
)

// Config holds everything needed to reach the archive bucket.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // custom endpoint for S3-compatible stores (MinIO, etc.)
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Archiver uploads one AuditRecord per successful script application.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// AuditRecord mirrors one successful script application: coordinates,
// checksum, applied time, and the canonical body that was executed.
type AuditRecord struct {
	Keyspace  string    `json:"keyspace"`
	Service   string    `json:"service,omitempty"`
	File      string    `json:"file"`
	Checksum  string    `json:"checksum,omitempty"`
	AppliedOn time.Time `json:"applied_on"`
	Body      string    `json:"body"`
}

// New builds an Archiver, loading AWS config the same way the teacher's S3
// store does: static credentials when provided, a custom endpoint for
// S3-compatible targets, path-style addressing when required by one.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Hook adapts Archive into a script.SuccessHook, logging and swallowing any
// archival failure per the "audit trail is a convenience, not a
// correctness mechanism" contract — it must never affect a script's
// reported outcome.
func (a *Archiver) Hook(ctx context.Context) script.SuccessHook {
	return func(coords script.Coordinates, body, checksum string) {
		if err := a.Archive(ctx, coords, body, checksum); err != nil {
			slog.Warn("audit archive write failed", "keyspace", coords.Keyspace, "service", coords.Service, "file", coords.File, "error", err)
		}
	}
}

// Archive marshals one AuditRecord and uploads it to
// s3://bucket/prefix/keyspace/service/file/<unix-nano>.json.
func (a *Archiver) Archive(ctx context.Context, coords script.Coordinates, body, checksum string) error {
	record := AuditRecord{
		Keyspace:  coords.Keyspace,
		Service:   coords.Service,
		File:      coords.File,
		Checksum:  checksum,
		AppliedOn: time.Now().UTC(),
		Body:      body,
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshaling audit record: %w", err)
	}

	key := a.key(coords, record.AppliedOn)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: uploading %s: %w", key, err)
	}
	return nil
}

func (a *Archiver) key(coords script.Coordinates, appliedOn time.Time) string {
	service := coords.Service
	if service == "" {
		service = "_"
	}
	key := fmt.Sprintf("%s/%s/%s/%d.json", coords.Keyspace, service, coords.File, appliedOn.UnixNano())
	if a.prefix != "" {
		return a.prefix + "/" + key
	}
	return key
}
