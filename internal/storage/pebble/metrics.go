package pebblestore

import (
	"log/slog"
	"time"
)

// SlowLog is a MetricsHook that logs reads and commits slower than Threshold.
type SlowLog struct {
	Logger    *slog.Logger
	Threshold time.Duration
}

// NewSlowLog returns a SlowLog writing to logger.
func NewSlowLog(logger *slog.Logger, threshold time.Duration) *SlowLog {
	return &SlowLog{Logger: logger.With("component", "pebble"), Threshold: threshold}
}

func (s *SlowLog) ObserveRead(elapsed time.Duration, bytes int) {
	if elapsed >= s.Threshold {
		s.Logger.Warn("slow pebble read", "elapsed", elapsed, "bytes", bytes)
	}
}

func (s *SlowLog) ObserveBatchCommit(elapsed time.Duration, bytes int) {
	if elapsed >= s.Threshold {
		s.Logger.Warn("slow pebble commit", "elapsed", elapsed, "bytes", bytes)
	}
}
