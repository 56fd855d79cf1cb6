package engine

import (
	"context"

	"github.com/celerix-dev/celerix-activity/pkg/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPageSize is the page size used when a list request names no limit.
const DefaultPageSize = 20

// ListOptions selects a page of a log. A nil Limit means DefaultPageSize; a
// non-positive Limit is raised to 1. Cursor is the offset of the first record.
type ListOptions struct {
	Limit  *int
	Cursor uint64
}

// Page is one slice of a log. NextCursor is nil once the log is exhausted.
// Cursors are plain offsets, so eviction between reads shifts them.
type Page struct {
	Items      []schema.EventRecord `json:"items"`
	NextCursor *uint64              `json:"nextCursor"`
}

// ListEvents returns the page of actor's log selected by opts, oldest first.
// A cursor past the end yields an empty page, not an error.
func (s *Store) ListEvents(ctx context.Context, actor string, opts ListOptions) (page Page, err error) {
	ctx, span := tracer.Start(ctx, "engine.ListEvents", trace.WithAttributes(attribute.String("actor", actor)))
	defer func() { endSpan(span, err) }()

	page.Items = []schema.EventRecord{}
	if err := ctx.Err(); err != nil {
		return page, err
	}
	l, _, err := s.load(ctx, actor)
	if err != nil {
		return page, err
	}

	limit := DefaultPageSize
	if opts.Limit != nil {
		limit = max(1, *opts.Limit)
	}
	total := uint64(l.Len())
	if opts.Cursor >= total {
		return page, nil
	}

	end := min(opts.Cursor+uint64(limit), total)
	page.Items = schema.CloneRecords(l.Records()[opts.Cursor:end])
	if end < total {
		next := end
		page.NextCursor = &next
	}
	return page, nil
}

// GetEvent returns the event with id in actor's log, or nil if there is none.
func (s *Store) GetEvent(ctx context.Context, actor, id string) (ev *schema.EventRecord, err error) {
	ctx, span := tracer.Start(ctx, "engine.GetEvent",
		trace.WithAttributes(attribute.String("actor", actor), attribute.String("event.id", id)))
	defer func() { endSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l, _, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}
	if rec := l.Find(id); rec != nil {
		c := rec.Clone()
		return &c, nil
	}
	return nil, nil
}
