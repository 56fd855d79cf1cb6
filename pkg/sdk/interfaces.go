package sdk

import (
	"context"
	"errors"

	"github.com/celerix-dev/celerix-activity/internal/engine"
	"github.com/celerix-dev/celerix-activity/pkg/schema"
)

var (
	// ErrActorMismatch is returned when an event's actor differs from the target log.
	ErrActorMismatch = engine.ErrActorMismatch
	// ErrEventExists is returned when an appended event reuses an existing id.
	ErrEventExists = engine.ErrEventExists
	// ErrNotFound is returned when a status update targets a missing actor or event.
	ErrNotFound = engine.ErrNotFound
	// ErrStorage is returned when the store's backend fails.
	ErrStorage = engine.ErrStorage
	// ErrInvalidFilter is returned when a search expression does not compile.
	ErrInvalidFilter = engine.ErrInvalidFilter
	// ErrInvalidRequest is returned when the daemon receives an empty request.
	ErrInvalidRequest = engine.ErrInvalidRequest
	// ErrProtocol is returned when the daemon sends a reply the client cannot parse.
	ErrProtocol = errors.New("protocol error")
)

// Page is one slice of an actor's log.
type Page = engine.Page

// ListOptions selects a page; see engine.ListOptions.
type ListOptions = engine.ListOptions

// --- Functional Interfaces (Interface Segregation) ---

// EventWriter appends events and updates their status.
type EventWriter interface {
	Append(ctx context.Context, actor string, ev schema.EventRecord) error
	UpdateStatus(ctx context.Context, actor, id string, status schema.Status, tx *schema.TxUpdate) (schema.EventRecord, error)
}

// EventReader reads pages and single events.
type EventReader interface {
	List(ctx context.Context, actor string, opts ListOptions) (Page, error)
	Get(ctx context.Context, actor, id string) (*schema.EventRecord, error)
}

// EventSearcher filters a log with a CEL expression.
type EventSearcher interface {
	Filter(ctx context.Context, actor, expr string, limit int) ([]schema.EventRecord, error)
}

// --- Composite Interfaces ---

// ActivityLog is the primary interface for interacting with the activity store,
// whether remote or embedded.
type ActivityLog interface {
	EventWriter
	EventReader
	EventSearcher

	// Retention returns the effective maximum log length.
	Retention(ctx context.Context) (int, error)
	Close() error
}
