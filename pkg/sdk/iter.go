package sdk

import (
	"context"
	"iter"

	"github.com/celerix-dev/celerix-activity/pkg/schema"
)

// All walks actor's whole log page by page, oldest first. Iteration stops at
// the first error, which is yielded with a zero record.
func All(ctx context.Context, r EventReader, actor string, pageSize int) iter.Seq2[schema.EventRecord, error] {
	return func(yield func(schema.EventRecord, error) bool) {
		opts := ListOptions{Limit: &pageSize}
		for {
			page, err := r.List(ctx, actor, opts)
			if err != nil {
				yield(schema.EventRecord{}, err)
				return
			}
			for _, ev := range page.Items {
				if !yield(ev, nil) {
					return
				}
			}
			if page.NextCursor == nil {
				return
			}
			opts.Cursor = *page.NextCursor
		}
	}
}
