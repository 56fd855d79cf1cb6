package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/celerix-dev/celerix-activity/internal/vault"
	"github.com/celerix-dev/celerix-activity/pkg/schema"
)

const (
	actorsDir  = "actors"
	systemFile = "_system.json"
)

// FileBackend keeps one JSON file per actor under DataDir/actors and the
// retention register in DataDir/_system.json. Every write goes to a temp file
// that is renamed over the target, so a reader sees either the old or the new
// log, never a torn one.
type FileBackend struct {
	DataDir   string
	masterKey []byte
}

// FileOption configures a FileBackend.
type FileOption func(*FileBackend)

// WithMasterKey encrypts log files at rest with AES-GCM under key (32 bytes).
// Plaintext files written before a key was configured remain readable.
func WithMasterKey(key []byte) FileOption {
	return func(f *FileBackend) { f.masterKey = key }
}

// NewFileBackend initializes a file backend rooted at dir.
func NewFileBackend(dir string, opts ...FileOption) (*FileBackend, error) {
	// Ensure the data directory exists
	if err := os.MkdirAll(filepath.Join(dir, actorsDir), 0755); err != nil {
		return nil, err
	}
	f := &FileBackend{DataDir: dir}
	for _, opt := range opts {
		opt(f)
	}
	if f.masterKey != nil && len(f.masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(f.masterKey))
	}
	return f, nil
}

func (f *FileBackend) actorPath(actor string) string {
	return filepath.Join(f.DataDir, actorsDir, url.PathEscape(actor)+".json")
}

func (f *FileBackend) GetLog(ctx context.Context, actor string) ([]schema.EventRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	content, err := os.ReadFile(f.actorPath(actor))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	plain, err := f.open(content)
	if err != nil {
		return nil, false, fmt.Errorf("read log for %s: %w", actor, err)
	}
	var records []schema.EventRecord
	if err := json.Unmarshal(plain, &records); err != nil {
		return nil, false, fmt.Errorf("decode log for %s: %w", actor, err)
	}
	return records, true, nil
}

func (f *FileBackend) SetLog(ctx context.Context, actor string, records []schema.EventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []schema.EventRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	sealed, err := f.seal(data)
	if err != nil {
		return err
	}
	return writeAtomic(f.actorPath(actor), sealed)
}

type systemState struct {
	Retention uint32 `json:"retention"`
}

func (f *FileBackend) GetRetention(context.Context) (uint32, error) {
	content, err := os.ReadFile(filepath.Join(f.DataDir, systemFile))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var st systemState
	if err := json.Unmarshal(content, &st); err != nil {
		return 0, fmt.Errorf("decode %s: %w", systemFile, err)
	}
	return st.Retention, nil
}

func (f *FileBackend) SetRetention(_ context.Context, n uint32) error {
	data, err := json.MarshalIndent(systemState{Retention: n}, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(f.DataDir, systemFile), data)
}

// Actors lists every actor with a log file. Files whose names cannot be
// decoded are skipped with a warning.
func (f *FileBackend) Actors(context.Context) ([]string, error) {
	files, err := os.ReadDir(filepath.Join(f.DataDir, actorsDir))
	if err != nil {
		return nil, err
	}
	var list []string
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		actor, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			slog.Warn("skipping log file with undecodable name", "file", name, "err", err)
			continue
		}
		list = append(list, actor)
	}
	return list, nil
}

func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) seal(data []byte) ([]byte, error) {
	if f.masterKey == nil {
		return data, nil
	}
	ct, err := vault.Encrypt(string(data), f.masterKey)
	if err != nil {
		return nil, err
	}
	return []byte(strconv.Quote(ct)), nil
}

func (f *FileBackend) open(content []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}
	if f.masterKey == nil {
		return nil, errors.New("log is encrypted and no master key is configured")
	}
	ct, err := strconv.Unquote(string(trimmed))
	if err != nil {
		return nil, err
	}
	plain, err := vault.Decrypt(ct, f.masterKey)
	if err != nil {
		return nil, err
	}
	return []byte(plain), nil
}

// writeAtomic writes data to a temp file next to path and renames it into place.
// If the power fails, you have either the old file or the new one, never a corrupt one.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
