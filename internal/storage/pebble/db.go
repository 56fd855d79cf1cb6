package pebblestore

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways requests a WAL fsync on each committed batch/write.
	FsyncModeAlways
	// FsyncModeInterval enables group-commit by allowing Pebble to coalesce WAL
	// syncs for operations within the configured interval.
	FsyncModeInterval
	// FsyncModeNever avoids forcing WAL syncs from the application.
	FsyncModeNever
)

// ParseFsyncMode maps "always", "interval" and "never" to a FsyncMode.
// The empty string is FsyncModeUnspecified.
func ParseFsyncMode(s string) (FsyncMode, error) {
	switch s {
	case "":
		return FsyncModeUnspecified, nil
	case "always":
		return FsyncModeAlways, nil
	case "interval":
		return FsyncModeInterval, nil
	case "never":
		return FsyncModeNever, nil
	}
	return FsyncModeUnspecified, fmt.Errorf("unknown fsync mode %q", s)
}

// Options configures the Pebble store wrapper.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Fsync determines when to sync the WAL.
	Fsync FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning of Pebble. If nil, defaults are used.
	PebbleOptions *pebble.Options
	// Metrics observes read and commit latencies and sizes. Optional.
	Metrics MetricsHook
}

// MetricsHook is a minimal hook surface for storage observations.
type MetricsHook interface {
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveBatchCommit(elapsed time.Duration, bytes int)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveRead(time.Duration, int)        {}
func (NoopMetrics) ObserveBatchCommit(time.Duration, int) {}

// DB wraps a Pebble database instance with fsync policy and basic helpers.
type DB struct {
	inner     *pebble.DB
	writeSync bool
	metrics   MetricsHook
}

// OpenDB creates or opens a Pebble database with the provided options.
func OpenDB(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}

	switch opts.Fsync {
	case FsyncModeAlways:
		// Sync is passed on every commit instead.
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		interval := opts.FsyncInterval
		po.WALMinSyncInterval = func() time.Duration { return interval }
	case FsyncModeNever:
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &DB{
		inner:     inner,
		writeSync: opts.Fsync == FsyncModeAlways,
		metrics:   metrics,
	}, nil
}

// Close closes the Pebble database.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// Set writes key=value through a single-op batch respecting the fsync policy.
func (db *DB) Set(key, value []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	return db.commit(b)
}

func (db *DB) commit(b *pebble.Batch) error {
	start := time.Now()
	size := b.Len()
	defer func() { db.metrics.ObserveBatchCommit(time.Since(start), size) }()

	syncMode := pebble.NoSync
	if db.writeSync {
		syncMode = pebble.Sync
	}
	return b.Commit(syncMode)
}

// Get copies the value for key. It returns pebble.ErrNotFound for missing keys.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	buf := append([]byte(nil), val...)
	db.metrics.ObserveRead(time.Since(start), len(buf))
	return buf, nil
}

// Keys returns every key starting with prefix, in order.
func (db *DB) Keys(prefix []byte) ([][]byte, error) {
	iter, err := db.inner.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, append([]byte(nil), iter.Key()...))
	}
	return keys, iter.Error()
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
