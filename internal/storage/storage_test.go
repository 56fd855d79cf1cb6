package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/celerix-dev/celerix-activity/internal/engine"
	"github.com/celerix-dev/celerix-activity/pkg/schema"
)

func TestParseSpec(t *testing.T) {
	tests := []struct {
		spec, kind, location string
		wantErr              bool
	}{
		{"file:./data", "file", "./data", false},
		{"pebble:/var/lib/activity", "pebble", "/var/lib/activity", false},
		{"sqlite:/tmp/a.db", "sqlite", "/tmp/a.db", false},
		{"memory", "memory", "", false},
		{"file", "", "", true},
		{"redis:localhost", "", "", true},
	}
	for _, tt := range tests {
		kind, location, err := ParseSpec(tt.spec)
		if (err != nil) != tt.wantErr || kind != tt.kind || location != tt.location {
			t.Errorf("ParseSpec(%q) = %q, %q, %v", tt.spec, kind, location, err)
		}
	}
}

func TestSQLitePath(t *testing.T) {
	if got := SQLitePath("/tmp/x.db"); got != "/tmp/x.db" {
		t.Errorf("got %s", got)
	}
	if got := SQLitePath("/tmp/data/"); got != "/tmp/data/activity.db" {
		t.Errorf("got %s", got)
	}
}

// TestMigrateAcrossBackends moves a log file -> pebble -> sqlite and reads it back.
func TestMigrateAcrossBackends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	src, err := Open(ctx, "file", filepath.Join(dir, "files"), Options{})
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	store, _ := engine.Open(ctx, src, 4)
	for _, id := range []string{"e1", "e2"} {
		ev := schema.EventRecord{ID: id, CreatedAt: "t", Actor: "alice", Kind: schema.KindSwap, Status: schema.StatusStarted}
		if err := store.AppendEvent(ctx, "alice", ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	peb, err := Open(ctx, "pebble", filepath.Join(dir, "pebble"), Options{})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	defer peb.Close()
	if n, err := engine.Migrate(ctx, src, peb); err != nil || n != 1 {
		t.Fatalf("file -> pebble: %d %v", n, err)
	}

	lite, err := Open(ctx, "sqlite", filepath.Join(dir, "sqlite"), Options{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer lite.Close()
	if n, err := engine.Migrate(ctx, peb, lite); err != nil || n != 1 {
		t.Fatalf("pebble -> sqlite: %d %v", n, err)
	}

	final, _ := engine.Open(ctx, lite, 0)
	if n, _ := final.Retention(ctx); n != 4 {
		t.Errorf("Expected retention 4, got %d", n)
	}
	page, _ := final.ListEvents(ctx, "alice", engine.ListOptions{})
	if len(page.Items) != 2 || page.Items[1].ID != "e2" {
		t.Errorf("unexpected items: %+v", page.Items)
	}
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open(context.Background(), "redis", "x", Options{}); err == nil {
		t.Fatal("Expected error")
	}
}
