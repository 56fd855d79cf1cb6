package engine

import (
	"context"

	"github.com/celerix-dev/celerix-activity/pkg/schema"
)

// Operation is a mutation request. The set of variants is closed:
// AppendEvent and UpdateEventStatus.
type Operation interface {
	apply(ctx context.Context, s *Store) (*schema.EventRecord, error)
}

// AppendEvent appends Event to Actor's log.
type AppendEvent struct {
	Actor string             `json:"actor"`
	Event schema.EventRecord `json:"event"`
}

// UpdateEventStatus sets the status of event ID and optionally merges Tx.
type UpdateEventStatus struct {
	Actor  string           `json:"actor"`
	ID     string           `json:"id"`
	Status schema.Status    `json:"status"`
	Tx     *schema.TxUpdate `json:"tx,omitempty"`
}

func (op AppendEvent) apply(ctx context.Context, s *Store) (*schema.EventRecord, error) {
	return nil, s.AppendEvent(ctx, op.Actor, op.Event)
}

func (op UpdateEventStatus) apply(ctx context.Context, s *Store) (*schema.EventRecord, error) {
	ev, err := s.UpdateEventStatus(ctx, op.Actor, op.ID, op.Status, op.Tx)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Response is the outcome of an Operation: either OK or a wire error tag.
// A successful UpdateEventStatus also carries the updated Event.
type Response struct {
	OK    bool                `json:"ok"`
	Error string              `json:"error,omitempty"`
	Event *schema.EventRecord `json:"event,omitempty"`

	err error
}

// Err returns the error behind a failed Response, or nil.
func (r Response) Err() error { return r.err }

// Execute runs op and folds its outcome into a Response.
func (s *Store) Execute(ctx context.Context, op Operation) Response {
	if op == nil {
		return Response{Error: Reason(ErrInvalidRequest), err: ErrInvalidRequest}
	}
	ev, err := op.apply(ctx, s)
	if err != nil {
		return Response{Error: Reason(err), err: err}
	}
	return Response{OK: true, Event: ev}
}

// Query is a read request. The set of variants is closed: GetEvents and GetEvent.
type Query interface {
	run(ctx context.Context, s *Store) (any, error)
}

// GetEvents reads one page of Actor's log.
type GetEvents struct {
	Actor  string  `json:"actor"`
	Limit  *int    `json:"limit,omitempty"`
	Cursor *uint64 `json:"cursor,omitempty"`
}

// GetEvent looks up a single event.
type GetEvent struct {
	Actor string `json:"actor"`
	ID    string `json:"id"`
}

// EventResult wraps an optional event; a nil Event means not found.
type EventResult struct {
	Event *schema.EventRecord `json:"event"`
}

func (q GetEvents) run(ctx context.Context, s *Store) (any, error) {
	opts := ListOptions{Limit: q.Limit}
	if q.Cursor != nil {
		opts.Cursor = *q.Cursor
	}
	return s.ListEvents(ctx, q.Actor, opts)
}

func (q GetEvent) run(ctx context.Context, s *Store) (any, error) {
	ev, err := s.GetEvent(ctx, q.Actor, q.ID)
	if err != nil {
		return nil, err
	}
	return EventResult{Event: ev}, nil
}

// Query runs q and returns a Page for GetEvents or an EventResult for GetEvent.
func (s *Store) Query(ctx context.Context, q Query) (any, error) {
	if q == nil {
		return nil, ErrInvalidRequest
	}
	return q.run(ctx, s)
}
