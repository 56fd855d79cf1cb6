package pebblestore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-activity/internal/engine"
	"github.com/celerix-dev/celerix-activity/pkg/schema"
)

type countingMetrics struct {
	mu      sync.Mutex
	reads   int
	commits int
}

func (m *countingMetrics) ObserveRead(time.Duration, int) {
	m.mu.Lock()
	m.reads++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveBatchCommit(time.Duration, int) {
	m.mu.Lock()
	m.commits++
	m.mu.Unlock()
}

func record(actor, id string) schema.EventRecord {
	return schema.EventRecord{ID: id, CreatedAt: "2025-01-01T00:00:00Z", Actor: actor,
		Kind: schema.KindDeploy, Status: schema.StatusStarted}
}

func TestBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	metrics := &countingMetrics{}
	b, err := Open(Options{DataDir: t.TempDir(), Fsync: FsyncModeAlways, Metrics: metrics})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	if _, ok, err := b.GetLog(ctx, "alice"); err != nil || ok {
		t.Fatalf("Expected missing log, got ok=%v err=%v", ok, err)
	}
	if n, err := b.GetRetention(ctx); err != nil || n != 0 {
		t.Fatalf("Expected unset retention, got %d %v", n, err)
	}

	ev := record("alice", "e1")
	ev.Tx = &schema.Tx{SourceTxHash: schema.Ptr("0x1")}
	if err := b.SetLog(ctx, "alice", []schema.EventRecord{ev}); err != nil {
		t.Fatalf("SetLog: %v", err)
	}
	if err := b.SetLog(ctx, "bob", nil); err != nil {
		t.Fatalf("SetLog: %v", err)
	}
	if err := b.SetRetention(ctx, 77); err != nil {
		t.Fatalf("SetRetention: %v", err)
	}

	records, ok, err := b.GetLog(ctx, "alice")
	if err != nil || !ok || len(records) != 1 || *records[0].Tx.SourceTxHash != "0x1" {
		t.Fatalf("round trip failed: %+v %v %v", records, ok, err)
	}
	records, ok, _ = b.GetLog(ctx, "bob")
	if !ok || len(records) != 0 {
		t.Fatalf("Expected empty existing log for bob, got %+v %v", records, ok)
	}
	if n, _ := b.GetRetention(ctx); n != 77 {
		t.Fatalf("Expected 77, got %d", n)
	}

	actors, err := b.Actors(ctx)
	if err != nil {
		t.Fatalf("Actors: %v", err)
	}
	sort.Strings(actors)
	if len(actors) != 2 || actors[0] != "alice" || actors[1] != "bob" {
		t.Fatalf("Expected [alice bob], got %v", actors)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.commits < 3 || metrics.reads == 0 {
		t.Errorf("metrics hook not called: %+v", metrics)
	}
}

func TestBackendReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := Open(Options{DataDir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s, err := engine.Open(ctx, b, 3)
	if err != nil {
		t.Fatalf("engine.Open: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := s.AppendEvent(ctx, "alice", record("alice", fmt.Sprintf("e%d", i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b2, err := Open(Options{DataDir: dir, Fsync: FsyncModeInterval})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2, _ := engine.Open(ctx, b2, 0)
	defer s2.Close()

	page, _ := s2.ListEvents(ctx, "alice", engine.ListOptions{})
	if len(page.Items) != 3 || page.Items[0].ID != "e2" {
		t.Fatalf("Expected e2..e4 after reopen, got %+v", page.Items)
	}
}

func TestParseFsyncMode(t *testing.T) {
	for in, want := range map[string]FsyncMode{"": FsyncModeUnspecified, "always": FsyncModeAlways,
		"interval": FsyncModeInterval, "never": FsyncModeNever} {
		got, err := ParseFsyncMode(in)
		if err != nil || got != want {
			t.Errorf("ParseFsyncMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFsyncMode("sometimes"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

func TestPrefixEnd(t *testing.T) {
	if got := string(prefixEnd([]byte("log/"))); got != "log0" {
		t.Errorf("Expected log0, got %q", got)
	}
	if got := prefixEnd([]byte{0xff}); got != nil {
		t.Errorf("Expected nil, got %v", got)
	}
}
