// Package discovery walks the migration root, classifies files by path
// depth, hydrates migration state from the state store, and produces the
// ordered per-service queues the round scheduler drains.
package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/carnegie-technologies/cqlmigrate/internal/script"
)

const cqlExtension = ".cql"

// Hydrator loads prior migration state by coordinates. Satisfied by the
// state store gateway.
type Hydrator interface {
	SelectMigration(ctx context.Context, keyspace, service, file string) (*script.MigrationRecord, error)
}

// FailedMigrationError reports a previously recorded migration that never
// completed and must be repaired by hand before the tool will proceed.
type FailedMigrationError struct {
	Keyspace, Service, File string
}

func (e *FailedMigrationError) Error() string {
	return fmt.Sprintf("discovery: migration %s/%s/%s failed on a prior run and was never completed; manual intervention required", e.Keyspace, e.Service, e.File)
}

// Layout names the two fixed, configurable filenames discovery looks for
// at depth 0 and depth 1.
type Layout struct {
	InitFilename      string
	BootstrapFilename string
}

// Result is everything discovery produced from one walk of the migration
// root.
type Result struct {
	Init       *script.Init // nil if no init script is present
	Bootstraps []*script.Bootstrap
	// Migrations maps service name to its file-ascending ordered queue.
	// Key order is not meaningful.
	Migrations map[string][]*script.Migration
}

// Discover walks root recursively, classifying every regular .cql file by
// its path depth relative to root (see Layout), loading bodies, and
// hydrating migration coordinates against h. Bodies are stored as read from
// disk and are not canonicalized here; each script canonicalizes its body
// in Apply, so a body that fails to lex is reported then, not by Discover.
// Any other file extension, and any directory below depth 2, is silently
// ignored.
func Discover(ctx context.Context, root string, layout Layout, h Hydrator) (*Result, error) {
	result := &Result{Migrations: make(map[string][]*script.Migration)}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) != cqlExtension {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		segments := strings.Split(filepath.ToSlash(rel), "/")
		depth := len(segments) - 1

		switch {
		case depth == 0 && segments[0] == layout.InitFilename:
			body, err := readFile(path)
			if err != nil {
				return err
			}
			result.Init = &script.Init{File: rel, Body: body}

		case depth == 1 && segments[1] == layout.BootstrapFilename:
			body, err := readFile(path)
			if err != nil {
				return err
			}
			result.Bootstraps = append(result.Bootstraps, &script.Bootstrap{
				Keyspace: segments[0],
				File:     rel,
				Body:     body,
			})

		case depth == 2:
			keyspace, service, file := segments[0], segments[1], segments[2]
			body, err := readFile(path)
			if err != nil {
				return err
			}
			hydrated, err := h.SelectMigration(ctx, keyspace, service, file)
			if err != nil {
				return fmt.Errorf("discovery: hydrating %s/%s/%s: %w", keyspace, service, file, err)
			}
			if hydrated != nil && !hydrated.Success && hydrated.AppliedOn != nil {
				return &FailedMigrationError{keyspace, service, file}
			}
			result.Migrations[service] = append(result.Migrations[service], &script.Migration{
				Keyspace: keyspace,
				Service:  service,
				File:     file,
				Body:     body,
				Hydrated: hydrated,
			})

		default:
			// depth 0 with the wrong basename, depth 1 with the wrong
			// basename, or depth > 2: not a recognized script, ignored.
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for service, queue := range result.Migrations {
		sort.Slice(queue, func(i, j int) bool { return queue[i].File < queue[j].File })
		result.Migrations[service] = queue
	}
	return result, nil
}

// LoadInit reads only the depth-0 init file, if present, without walking
// the rest of the tree or touching the state store. Returns (nil, nil)
// when no init script exists.
func LoadInit(root string, layout Layout) (*script.Init, error) {
	path := filepath.Join(root, layout.InitFilename)
	body, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("discovery: reading %s: %w", path, err)
	}
	return &script.Init{File: layout.InitFilename, Body: string(body)}, nil
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("discovery: reading %s: %w", path, err)
	}
	return string(b), nil
}
