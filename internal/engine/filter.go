package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/celerix-dev/celerix-activity/pkg/schema"
	"github.com/google/cel-go/cel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Filter is a compiled CEL predicate over event records. The expression sees
// id, kind, status and createdAt as strings and the whole record as the
// dynamic map event (JSON field names). A zero Filter matches everything.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// CompileFilter compiles expr. An empty expression yields a match-all filter.
func CompileFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("createdAt", cel.StringType),
		cel.Variable("event", cel.DynType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("%w: %w", ErrInvalidFilter, iss.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return Filter{}, fmt.Errorf("%w: expression must be boolean, got %s", ErrInvalidFilter, t)
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Match evaluates the filter against rec. Evaluation errors count as no match.
func (f Filter) Match(rec schema.EventRecord) bool {
	if !f.enabled {
		return true
	}
	var doc map[string]any
	if b, err := json.Marshal(rec); err == nil {
		_ = json.Unmarshal(b, &doc)
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":        rec.ID,
		"kind":      string(rec.Kind),
		"status":    string(rec.Status),
		"createdAt": rec.CreatedAt,
		"event":     doc,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// FilterEvents returns the records of actor's log matching expr, oldest first,
// stopping after limit matches when limit is positive.
func (s *Store) FilterEvents(ctx context.Context, actor, expr string, limit int) (items []schema.EventRecord, err error) {
	ctx, span := tracer.Start(ctx, "engine.FilterEvents", trace.WithAttributes(attribute.String("actor", actor)))
	defer func() { endSpan(span, err) }()

	f, err := CompileFilter(expr)
	if err != nil {
		return nil, err
	}
	l, _, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}
	items = []schema.EventRecord{}
	for _, rec := range l.Records() {
		if limit > 0 && len(items) >= limit {
			break
		}
		if f.Match(rec) {
			items = append(items, rec.Clone())
		}
	}
	return items, nil
}
