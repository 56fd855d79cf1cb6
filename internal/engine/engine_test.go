package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/celerix-dev/celerix-activity/pkg/schema"
)

func newTestStore(t *testing.T, retention int) *Store {
	t.Helper()
	s, err := Open(context.Background(), NewMemBackend(nil), retention)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func event(actor, id string) schema.EventRecord {
	return schema.EventRecord{
		ID:        id,
		CreatedAt: "2025-01-01T00:00:00Z",
		Actor:     actor,
		Kind:      schema.KindBridge,
		Status:    schema.StatusStarted,
	}
}

func ids(records []schema.EventRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestAppendAndPaginate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 0)

	if err := s.AppendEvent(ctx, "alice", event("alice", "e1")); err != nil {
		t.Fatalf("append e1: %v", err)
	}
	if err := s.AppendEvent(ctx, "alice", event("alice", "e2")); err != nil {
		t.Fatalf("append e2: %v", err)
	}

	one := 1
	page, err := s.ListEvents(ctx, "alice", ListOptions{Limit: &one})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(page.Items); !reflect.DeepEqual(got, []string{"e1"}) {
		t.Errorf("Expected [e1], got %v", got)
	}
	if page.NextCursor == nil || *page.NextCursor != 1 {
		t.Fatalf("Expected nextCursor 1, got %v", page.NextCursor)
	}

	page, err = s.ListEvents(ctx, "alice", ListOptions{Limit: &one, Cursor: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(page.Items); !reflect.DeepEqual(got, []string{"e2"}) {
		t.Errorf("Expected [e2], got %v", got)
	}
	if page.NextCursor != nil {
		t.Errorf("Expected no nextCursor, got %d", *page.NextCursor)
	}
}

func TestAppendDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 0)

	first := event("alice", "e1")
	if err := s.AppendEvent(ctx, "alice", first); err != nil {
		t.Fatalf("append: %v", err)
	}
	dup := event("alice", "e1")
	dup.Status = schema.StatusFailed
	if err := s.AppendEvent(ctx, "alice", dup); !errors.Is(err, ErrEventExists) {
		t.Fatalf("Expected ErrEventExists, got %v", err)
	}

	page, _ := s.ListEvents(ctx, "alice", ListOptions{})
	if len(page.Items) != 1 || page.Items[0].Status != schema.StatusStarted {
		t.Errorf("log changed after duplicate append: %+v", page.Items)
	}
}

func TestAppendActorMismatch(t *testing.T) {
	ctx := context.Background()
	backend := NewMemBackend(nil)
	s, _ := Open(ctx, backend, 0)

	if err := s.AppendEvent(ctx, "alice", event("bob", "e1")); !errors.Is(err, ErrActorMismatch) {
		t.Fatalf("Expected ErrActorMismatch, got %v", err)
	}
	for _, actor := range []string{"alice", "bob"} {
		if _, ok, _ := backend.GetLog(ctx, actor); ok {
			t.Errorf("log for %s should not exist", actor)
		}
	}
}

func TestRetentionEvictsOldest(t *testing.T) {
	ctx := context.Background()
	for _, retention := range []int{1, 3, 5} {
		t.Run(fmt.Sprintf("retention=%d", retention), func(t *testing.T) {
			s := newTestStore(t, retention)
			const total = 8
			for i := 0; i < total; i++ {
				if err := s.AppendEvent(ctx, "alice", event("alice", fmt.Sprintf("e%d", i))); err != nil {
					t.Fatalf("append %d: %v", i, err)
				}
				page, _ := s.ListEvents(ctx, "alice", ListOptions{Limit: schema.Ptr(100)})
				if len(page.Items) > retention {
					t.Fatalf("log length %d exceeds retention %d", len(page.Items), retention)
				}
			}

			page, _ := s.ListEvents(ctx, "alice", ListOptions{Limit: schema.Ptr(100)})
			var want []string
			for i := total - retention; i < total; i++ {
				want = append(want, fmt.Sprintf("e%d", i))
			}
			if got := ids(page.Items); !reflect.DeepEqual(got, want) {
				t.Errorf("Expected %v, got %v", want, got)
			}
		})
	}
}

func TestRetentionDefault(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, -4)

	n, err := s.Retention(ctx)
	if err != nil {
		t.Fatalf("retention: %v", err)
	}
	if n != DefaultRetention {
		t.Fatalf("Expected %d, got %d", DefaultRetention, n)
	}

	for i := 0; i < DefaultRetention+5; i++ {
		if err := s.AppendEvent(ctx, "alice", event("alice", fmt.Sprintf("e%d", i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	page, _ := s.ListEvents(ctx, "alice", ListOptions{Limit: schema.Ptr(1000)})
	if len(page.Items) != DefaultRetention || page.Items[0].ID != "e5" {
		t.Fatalf("Expected %d records starting at e5, got %d starting at %s",
			DefaultRetention, len(page.Items), page.Items[0].ID)
	}
}

func TestRetentionSetOnce(t *testing.T) {
	ctx := context.Background()
	backend := NewMemBackend(nil)

	if _, err := Open(ctx, backend, 7); err != nil {
		t.Fatalf("Open: %v", err)
	}
	s, err := Open(ctx, backend, 50)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if n, _ := s.Retention(ctx); n != 7 {
		t.Fatalf("retention should stay 7, got %d", n)
	}
}

func TestRetentionZeroRegisterMeansDefault(t *testing.T) {
	if got := Retention(0).Effective(); got != DefaultRetention {
		t.Fatalf("Expected %d, got %d", DefaultRetention, got)
	}
	if got := ResolveRetention(0); got != DefaultRetention {
		t.Fatalf("Expected %d, got %d", DefaultRetention, got)
	}
	if got := ResolveRetention(12); got != 12 {
		t.Fatalf("Expected 12, got %d", got)
	}
}

func TestUpdateEventStatusMergesTx(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 0)

	ev := event("alice", "e1")
	ev.Tx = &schema.Tx{SourceTxHash: schema.Ptr("0x123")}
	if err := s.AppendEvent(ctx, "alice", ev); err != nil {
		t.Fatalf("append: %v", err)
	}

	updated, err := s.UpdateEventStatus(ctx, "alice", "e1", schema.StatusCompleted,
		&schema.TxUpdate{DestTxHash: schema.Ptr("0xabc")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != schema.StatusCompleted {
		t.Errorf("Expected completed, got %s", updated.Status)
	}

	got, _ := s.GetEvent(ctx, "alice", "e1")
	if got == nil || got.Tx == nil {
		t.Fatalf("event or tx missing: %+v", got)
	}
	if *got.Tx.SourceTxHash != "0x123" || *got.Tx.DestTxHash != "0xabc" {
		t.Errorf("tx merge wrong: %+v", got.Tx)
	}
	if got.Status != schema.StatusCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
}

func TestUpdateEventStatusIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 0)

	ev := event("alice", "e1")
	ev.Tx = &schema.Tx{DestTxHash: schema.Ptr("0xdest")}
	_ = s.AppendEvent(ctx, "alice", ev)

	update := &schema.TxUpdate{SourceTxHash: schema.Ptr("0xsrc")}
	first, err := s.UpdateEventStatus(ctx, "alice", "e1", schema.StatusSubmitted, update)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	second, err := s.UpdateEventStatus(ctx, "alice", "e1", schema.StatusSubmitted, update)
	if err != nil {
		t.Fatalf("update again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second update changed the record:\n%+v\n%+v", first, second)
	}
	if *second.Tx.DestTxHash != "0xdest" {
		t.Errorf("destTxHash should be untouched, got %v", *second.Tx.DestTxHash)
	}
}

func TestUpdateEventStatusCreatesTx(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 0)
	_ = s.AppendEvent(ctx, "alice", event("alice", "e1"))

	got, err := s.UpdateEventStatus(ctx, "alice", "e1", schema.StatusApproved, &schema.TxUpdate{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Tx == nil || got.Tx.SourceTxHash != nil || got.Tx.DestTxHash != nil {
		t.Errorf("Expected empty tx, got %+v", got.Tx)
	}
}

func TestUpdateEventStatusAnyTransition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 0)
	_ = s.AppendEvent(ctx, "alice", event("alice", "e1"))

	for _, st := range []schema.Status{schema.StatusCompleted, schema.StatusStarted, schema.StatusFailed, schema.StatusAttested} {
		got, err := s.UpdateEventStatus(ctx, "alice", "e1", st, nil)
		if err != nil {
			t.Fatalf("update to %s: %v", st, err)
		}
		if got.Status != st || got.Tx != nil {
			t.Fatalf("Expected %s without tx, got %+v", st, got)
		}
	}
}

func TestUpdateEventStatusNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 0)

	if _, err := s.UpdateEventStatus(ctx, "nobody", "e1", schema.StatusFailed, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing actor: expected ErrNotFound, got %v", err)
	}
	_ = s.AppendEvent(ctx, "alice", event("alice", "e1"))
	if _, err := s.UpdateEventStatus(ctx, "alice", "e9", schema.StatusFailed, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id: expected ErrNotFound, got %v", err)
	}
}

func TestPaginationCompleteness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 0)
	var want []string
	for i := 0; i < 23; i++ {
		id := fmt.Sprintf("e%02d", i)
		want = append(want, id)
		_ = s.AppendEvent(ctx, "alice", event("alice", id))
	}

	for _, limit := range []int{1, 4, 7, 23, 50} {
		var got []string
		var cursor uint64
		for {
			page, err := s.ListEvents(ctx, "alice", ListOptions{Limit: schema.Ptr(limit), Cursor: cursor})
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			got = append(got, ids(page.Items)...)
			if page.NextCursor == nil {
				break
			}
			cursor = *page.NextCursor
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("limit %d: Expected %v, got %v", limit, want, got)
		}
	}
}

func TestListEventsBoundaries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 0)
	for i := 0; i < 25; i++ {
		_ = s.AppendEvent(ctx, "alice", event("alice", fmt.Sprintf("e%d", i)))
	}

	tests := []struct {
		name      string
		opts      ListOptions
		wantLen   int
		wantFirst string
		wantNext  *uint64
	}{
		{"default limit", ListOptions{}, 20, "e0", schema.Ptr(uint64(20))},
		{"zero limit is one", ListOptions{Limit: schema.Ptr(0)}, 1, "e0", schema.Ptr(uint64(1))},
		{"negative limit is one", ListOptions{Limit: schema.Ptr(-5)}, 1, "e0", schema.Ptr(uint64(1))},
		{"tail clipped", ListOptions{Limit: schema.Ptr(10), Cursor: 20}, 5, "e20", nil},
		{"cursor at end", ListOptions{Cursor: 25}, 0, "", nil},
		{"cursor past end", ListOptions{Cursor: 1000}, 0, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.ListEvents(ctx, "alice", tt.opts)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(page.Items) != tt.wantLen {
				t.Fatalf("Expected %d items, got %d", tt.wantLen, len(page.Items))
			}
			if tt.wantLen > 0 && page.Items[0].ID != tt.wantFirst {
				t.Errorf("Expected first %s, got %s", tt.wantFirst, page.Items[0].ID)
			}
			if !reflect.DeepEqual(page.NextCursor, tt.wantNext) {
				t.Errorf("Expected next %v, got %v", tt.wantNext, page.NextCursor)
			}
		})
	}
}

func TestListEventsUnknownActor(t *testing.T) {
	s := newTestStore(t, 0)
	page, err := s.ListEvents(context.Background(), "ghost", ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Items == nil || len(page.Items) != 0 || page.NextCursor != nil {
		t.Errorf("Expected empty page, got %+v", page)
	}
}

func TestGetEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 0)
	_ = s.AppendEvent(ctx, "alice", event("alice", "e1"))

	got, err := s.GetEvent(ctx, "alice", "e1")
	if err != nil || got == nil || got.ID != "e1" {
		t.Fatalf("Expected e1, got %+v, %v", got, err)
	}
	got, err = s.GetEvent(ctx, "alice", "missing")
	if err != nil || got != nil {
		t.Fatalf("Expected nil, nil; got %+v, %v", got, err)
	}

	// Returned records are copies.
	ev, _ := s.GetEvent(ctx, "alice", "e1")
	ev.Status = schema.StatusFailed
	again, _ := s.GetEvent(ctx, "alice", "e1")
	if again.Status != schema.StatusStarted {
		t.Errorf("store was mutated through a returned record")
	}
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 1000)
	const (
		numActors = 4
		numOps    = 50
	)
	var wg sync.WaitGroup
	errs := make(chan error, numActors*numOps*2)

	for a := 0; a < numActors; a++ {
		actor := fmt.Sprintf("actor-%d", a)
		for w := 0; w < 2; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for j := 0; j < numOps; j++ {
					id := fmt.Sprintf("w%d-%d", w, j)
					if err := s.AppendEvent(ctx, actor, event(actor, id)); err != nil {
						errs <- err
					}
				}
			}(w)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("append failed: %v", err)
	}

	for a := 0; a < numActors; a++ {
		page, _ := s.ListEvents(ctx, fmt.Sprintf("actor-%d", a), ListOptions{Limit: schema.Ptr(1000)})
		if len(page.Items) != 2*numOps {
			t.Errorf("actor-%d: Expected %d records, got %d", a, 2*numOps, len(page.Items))
		}
	}
}

type failingBackend struct {
	*MemBackend
	failSet bool
	failGet bool
}

var errDisk = errors.New("disk on fire")

func (f *failingBackend) GetLog(ctx context.Context, actor string) ([]schema.EventRecord, bool, error) {
	if f.failGet {
		return nil, false, errDisk
	}
	return f.MemBackend.GetLog(ctx, actor)
}

func (f *failingBackend) SetLog(ctx context.Context, actor string, records []schema.EventRecord) error {
	if f.failSet {
		return errDisk
	}
	return f.MemBackend.SetLog(ctx, actor, records)
}

func TestStorageErrors(t *testing.T) {
	ctx := context.Background()
	fb := &failingBackend{MemBackend: NewMemBackend(nil)}
	s, err := Open(ctx, fb, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.AppendEvent(ctx, "alice", event("alice", "e1"))

	fb.failSet = true
	err = s.AppendEvent(ctx, "alice", event("alice", "e2"))
	if !errors.Is(err, ErrStorage) || !errors.Is(err, errDisk) {
		t.Fatalf("Expected ErrStorage wrapping cause, got %v", err)
	}
	if _, err := s.UpdateEventStatus(ctx, "alice", "e1", schema.StatusFailed, nil); !errors.Is(err, ErrStorage) {
		t.Fatalf("Expected ErrStorage, got %v", err)
	}
	fb.failSet = false

	// Nothing from the failed writes is visible.
	page, _ := s.ListEvents(ctx, "alice", ListOptions{})
	if len(page.Items) != 1 || page.Items[0].Status != schema.StatusStarted {
		t.Fatalf("failed writes leaked into state: %+v", page.Items)
	}

	fb.failGet = true
	if _, err := s.ListEvents(ctx, "alice", ListOptions{}); Reason(err) != "storage_error" {
		t.Fatalf("Expected storage_error, got %v", err)
	}
}

func TestReason(t *testing.T) {
	tests := map[error]string{
		ErrActorMismatch:                                 "actor_mismatch",
		ErrEventExists:                                   "event_exists",
		ErrNotFound:                                      "not_found",
		storageErr("save", errDisk):                      "storage_error",
		fmt.Errorf("wrap: %w", ErrInvalidFilter):         "invalid_filter",
		ErrInvalidRequest:                                "invalid_request",
		context.Canceled:                                 "canceled",
		fmt.Errorf("list: %w", context.DeadlineExceeded): "timeout",
		errDisk:                                          "storage_error",
	}
	for err, want := range tests {
		if got := Reason(err); got != want {
			t.Errorf("Reason(%v) = %s, want %s", err, got, want)
		}
	}
}
