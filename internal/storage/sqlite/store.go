// Package sqlite is an engine.Backend on SQLite (modernc.org/sqlite, no cgo).
// Each actor's log is one JSON row, replaced with a single UPSERT.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-activity/internal/storage/sqlite/migrations"
	"github.com/celerix-dev/celerix-activity/pkg/schema"
	_ "modernc.org/sqlite"
)

const retentionSetting = "retention"

// Store persists activity logs in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite activity store at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := "file:" + cleanPath +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) GetLog(ctx context.Context, actor string) ([]schema.EventRecord, bool, error) {
	var raw string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT events FROM activity_logs WHERE actor = ?`, actor).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var records []schema.EventRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, false, fmt.Errorf("decode log for %s: %w", actor, err)
	}
	return records, true, nil
}

func (s *Store) SetLog(ctx context.Context, actor string, records []schema.EventRecord) error {
	if records == nil {
		records = []schema.EventRecord{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO activity_logs (actor, events, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(actor) DO UPDATE SET events = excluded.events, updated_at = excluded.updated_at`,
		actor, string(raw), time.Now().UTC().UnixMilli())
	return err
}

func (s *Store) GetRetention(ctx context.Context) (uint32, error) {
	var raw string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, retentionSetting).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("corrupt retention setting %q: %w", raw, err)
	}
	return uint32(n), nil
}

func (s *Store) SetRetention(ctx context.Context, n uint32) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		retentionSetting, strconv.FormatUint(uint64(n), 10))
	return err
}

func (s *Store) Actors(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT actor FROM activity_logs ORDER BY actor`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actors []string
	for rows.Next() {
		var actor string
		if err := rows.Scan(&actor); err != nil {
			return nil, err
		}
		actors = append(actors, actor)
	}
	return actors, rows.Err()
}
