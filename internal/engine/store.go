// Package engine implements the per-actor activity log: append with
// de-duplication, retention-bounded eviction, partial status updates and
// offset-cursor pagination, on top of a pluggable durable Backend.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/celerix-dev/celerix-activity/pkg/schema"
	"go.opentelemetry.io/otel"
)

var (
	// ErrActorMismatch is returned when an event's actor differs from the log it is appended to.
	ErrActorMismatch = errors.New("actor mismatch")
	// ErrEventExists is returned when an appended event reuses an id already in the log.
	ErrEventExists = errors.New("event exists")
	// ErrNotFound is returned when an update targets a missing actor or event.
	ErrNotFound = errors.New("not found")
	// ErrStorage wraps failures of the durable backend.
	ErrStorage = errors.New("storage error")
	// ErrInvalidFilter is returned when a filter expression does not compile.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidRequest is returned by Execute and Query for a nil request.
	ErrInvalidRequest = errors.New("invalid request")
)

// Reason maps an engine error to its wire tag.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrActorMismatch):
		return "actor_mismatch"
	case errors.Is(err, ErrEventExists):
		return "event_exists"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidFilter):
		return "invalid_filter"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "storage_error"
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Backend is the durable key-value collaborator that holds one whole log per
// actor plus the retention register. SetLog must replace the stored log
// atomically with respect to concurrent GetLog calls.
type Backend interface {
	// GetLog returns the stored log for actor; ok is false when none exists.
	GetLog(ctx context.Context, actor string) (records []schema.EventRecord, ok bool, err error)
	// SetLog replaces the stored log for actor.
	SetLog(ctx context.Context, actor string, records []schema.EventRecord) error
	// GetRetention returns the retention register; 0 means unset.
	GetRetention(ctx context.Context) (uint32, error)
	// SetRetention writes the retention register.
	SetRetention(ctx context.Context, n uint32) error
	// Actors lists every actor with a stored log.
	Actors(ctx context.Context) ([]string, error)
	// Close releases backend resources.
	Close() error
}

var tracer = otel.Tracer("github.com/celerix-dev/celerix-activity/internal/engine")

// Store is the LogStore: it maps actors to event logs held in a Backend and
// serializes read-modify-write cycles per actor.
type Store struct {
	backend Backend
	locks   *keyedMutex
	log     *slog.Logger
}

// Open initializes a Store over backend. The retention register is written once:
// if the backend has no value yet it receives ResolveRetention(override);
// an existing value is kept.
func Open(ctx context.Context, backend Backend, override int) (*Store, error) {
	if backend == nil {
		return nil, errors.New("engine: nil backend")
	}
	s := &Store{
		backend: backend,
		locks:   newKeyedMutex(),
		log:     slog.Default().With("component", "engine"),
	}

	current, err := backend.GetRetention(ctx)
	if err != nil {
		return nil, storageErr("load retention", err)
	}
	if current == 0 {
		if err := backend.SetRetention(ctx, ResolveRetention(override)); err != nil {
			return nil, storageErr("init retention", err)
		}
	} else if override > 0 && uint32(override) != current {
		s.log.Warn("retention already initialized; ignoring override",
			"stored", current, "override", override)
	}
	return s, nil
}

// Retention returns the effective retention limit.
func (s *Store) Retention(ctx context.Context) (int, error) {
	n, err := s.backend.GetRetention(ctx)
	if err != nil {
		return 0, storageErr("load retention", err)
	}
	return Retention(n).Effective(), nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// load reads the log for actor; a missing log is returned as an empty one with ok=false.
func (s *Store) load(ctx context.Context, actor string) (*EventLog, bool, error) {
	records, ok, err := s.backend.GetLog(ctx, actor)
	if err != nil {
		return nil, false, storageErr("load log", err)
	}
	return newEventLog(records), ok, nil
}
