package engine

import (
	"context"

	"github.com/celerix-dev/celerix-activity/pkg/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AppendEvent appends rec to actor's log, creating the log on first use.
// The oldest records are evicted if the log grows past the retention limit.
func (s *Store) AppendEvent(ctx context.Context, actor string, rec schema.EventRecord) (err error) {
	ctx, span := tracer.Start(ctx, "engine.AppendEvent",
		trace.WithAttributes(attribute.String("actor", actor), attribute.String("event.id", rec.ID)))
	defer func() { endSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Actor != actor {
		return ErrActorMismatch
	}

	unlock := s.locks.Lock(actor)
	defer unlock()

	l, _, err := s.load(ctx, actor)
	if err != nil {
		return err
	}
	limit, err := s.Retention(ctx)
	if err != nil {
		return err
	}
	evicted, err := l.Append(rec.Clone(), limit)
	if err != nil {
		return err
	}
	if err := s.backend.SetLog(ctx, actor, l.Records()); err != nil {
		return storageErr("save log", err)
	}
	if len(evicted) > 0 {
		s.log.Debug("evicted events past retention",
			"actor", actor, "count", len(evicted), "oldest", evicted[0].ID, "limit", limit)
	}
	return nil
}

// UpdateEventStatus overwrites the status of event id in actor's log and, when
// tx is non-nil, merges its set hashes into the event's transaction hashes.
// It returns the updated event. Status transitions are not checked.
func (s *Store) UpdateEventStatus(ctx context.Context, actor, id string, status schema.Status, tx *schema.TxUpdate) (ev schema.EventRecord, err error) {
	ctx, span := tracer.Start(ctx, "engine.UpdateEventStatus",
		trace.WithAttributes(attribute.String("actor", actor), attribute.String("event.id", id),
			attribute.String("status", string(status))))
	defer func() { endSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return ev, err
	}

	unlock := s.locks.Lock(actor)
	defer unlock()

	l, ok, err := s.load(ctx, actor)
	if err != nil {
		return ev, err
	}
	if !ok {
		return ev, ErrNotFound
	}
	item := l.Find(id)
	if item == nil {
		return ev, ErrNotFound
	}

	item.Status = status
	if tx != nil {
		if item.Tx == nil {
			item.Tx = &schema.Tx{}
		}
		item.Tx.Merge(*tx)
	}

	if err := s.backend.SetLog(ctx, actor, l.Records()); err != nil {
		return ev, storageErr("save log", err)
	}
	return item.Clone(), nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Reason(err))
	}
	span.End()
}
