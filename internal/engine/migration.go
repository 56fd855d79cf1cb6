package engine

import (
	"context"
	"fmt"
)

// Migrate copies every actor log and the retention register from src to dst.
// This works for:
// - file -> pebble or sqlite (moving to a real KV store)
// - any backend -> file (backup)
// Logs already present in dst for the same actor are replaced.
func Migrate(ctx context.Context, src, dst Backend) (int, error) {
	retention, err := src.GetRetention(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read retention: %w", err)
	}
	if retention != 0 {
		if err := dst.SetRetention(ctx, retention); err != nil {
			return 0, fmt.Errorf("failed to write retention: %w", err)
		}
	}

	actors, err := src.Actors(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list actors: %w", err)
	}

	moved := 0
	for _, actor := range actors {
		records, ok, err := src.GetLog(ctx, actor)
		if err != nil {
			return moved, fmt.Errorf("failed to read log for actor %s: %w", actor, err)
		}
		if !ok {
			continue
		}
		if err := dst.SetLog(ctx, actor, records); err != nil {
			return moved, fmt.Errorf("failed to write log for actor %s: %w", actor, err)
		}
		moved++
	}
	return moved, nil
}
