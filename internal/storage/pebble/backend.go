// Package pebblestore is an engine.Backend on CockroachDB Pebble. Each actor's
// log is one zstd-compressed JSON value, so SetLog is a single atomic write.
package pebblestore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"

	"github.com/celerix-dev/celerix-activity/pkg/schema"
)

var (
	logPrefix    = []byte("log/")
	retentionKey = []byte("meta/retention")
)

// Backend stores activity logs in Pebble.
type Backend struct {
	db  *DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens (or creates) the Pebble database described by opts.
func Open(opts Options) (*Backend, error) {
	db, err := OpenDB(opts)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}
	return &Backend{db: db, enc: enc, dec: dec}, nil
}

func logKey(actor string) []byte {
	return append(append([]byte(nil), logPrefix...), actor...)
}

func (b *Backend) GetLog(ctx context.Context, actor string) ([]schema.EventRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	val, err := b.db.Get(logKey(actor))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	raw, err := b.dec.DecodeAll(val, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress log for %s: %w", actor, err)
	}
	var records []schema.EventRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false, fmt.Errorf("decode log for %s: %w", actor, err)
	}
	return records, true, nil
}

func (b *Backend) SetLog(ctx context.Context, actor string, records []schema.EventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []schema.EventRecord{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return b.db.Set(logKey(actor), b.enc.EncodeAll(raw, nil))
}

func (b *Backend) GetRetention(context.Context) (uint32, error) {
	val, err := b.db.Get(retentionKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(val) != 4 {
		return 0, fmt.Errorf("corrupt retention value (%d bytes)", len(val))
	}
	return binary.BigEndian.Uint32(val), nil
}

func (b *Backend) SetRetention(_ context.Context, n uint32) error {
	return b.db.Set(retentionKey, binary.BigEndian.AppendUint32(nil, n))
}

func (b *Backend) Actors(context.Context) ([]string, error) {
	keys, err := b.db.Keys(logPrefix)
	if err != nil {
		return nil, err
	}
	actors := make([]string, 0, len(keys))
	for _, k := range keys {
		actors = append(actors, string(k[len(logPrefix):]))
	}
	return actors, nil
}

// Close flushes and closes the database.
func (b *Backend) Close() error {
	b.enc.Close()
	b.dec.Close()
	return b.db.Close()
}
