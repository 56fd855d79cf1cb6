package sdk

import (
	"context"
	"log/slog"
	"os"
)

// New initializes the store based on the environment.
// It returns the interface, so the app doesn't care if it's local or remote.
func New(dataDir string) (ActivityLog, error) {
	// 1. Check if a remote store is defined in environment variables
	if remoteAddr := os.Getenv("ACTIVITY_STORE_ADDR"); remoteAddr != "" {
		client, err := Connect(remoteAddr)
		if err == nil {
			return client, nil
		}
		slog.Warn("activity sdk: remote store unreachable, using embedded store",
			"addr", remoteAddr, "err", err)
	}

	// 2. Fallback to embedded mode over the same file layout the daemon uses
	return OpenEmbedded(context.Background(), dataDir)
}
