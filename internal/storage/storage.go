// Package storage opens the engine backend named by configuration or by a
// "<kind>:<location>" spec such as "pebble:/var/lib/activity".
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/celerix-dev/celerix-activity/internal/engine"
	pebblestore "github.com/celerix-dev/celerix-activity/internal/storage/pebble"
	"github.com/celerix-dev/celerix-activity/internal/storage/sqlite"
)

// Options carries backend-specific settings. Unused fields are ignored.
type Options struct {
	// MasterKey encrypts file-backend logs at rest when set (32 bytes).
	MasterKey []byte
	// Fsync is the Pebble WAL sync policy.
	Fsync pebblestore.FsyncMode
	// PebbleMetrics observes Pebble reads and commits. Optional.
	PebbleMetrics pebblestore.MetricsHook
}

// Open opens a backend of kind ("memory", "file", "pebble" or "sqlite") at location.
// For sqlite, a location without a ".db" suffix is treated as a directory.
func Open(ctx context.Context, kind, location string, opts Options) (engine.Backend, error) {
	switch kind {
	case "memory":
		return engine.NewMemBackend(nil), nil
	case "file":
		var fileOpts []engine.FileOption
		if opts.MasterKey != nil {
			fileOpts = append(fileOpts, engine.WithMasterKey(opts.MasterKey))
		}
		return engine.NewFileBackend(location, fileOpts...)
	case "pebble":
		return pebblestore.Open(pebblestore.Options{DataDir: location, Fsync: opts.Fsync, Metrics: opts.PebbleMetrics})
	case "sqlite":
		return sqlite.Open(ctx, SQLitePath(location))
	}
	return nil, fmt.Errorf("unknown backend %q", kind)
}

// SQLitePath returns location itself when it names a .db file, or
// location/activity.db otherwise.
func SQLitePath(location string) string {
	if strings.HasSuffix(location, ".db") {
		return location
	}
	return filepath.Join(location, "activity.db")
}

// ParseSpec splits "kind:location". A bare "memory" needs no location.
func ParseSpec(spec string) (kind, location string, err error) {
	kind, location, _ = strings.Cut(spec, ":")
	if kind == "memory" {
		return kind, "", nil
	}
	if location == "" {
		return "", "", fmt.Errorf("backend spec %q: want <kind>:<location>", spec)
	}
	switch kind {
	case "file", "pebble", "sqlite":
		return kind, location, nil
	}
	return "", "", fmt.Errorf("backend spec %q: unknown kind %q", spec, kind)
}
