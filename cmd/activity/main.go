package main

import (
	"os"

	"github.com/celerix-dev/celerix-activity/internal/logging"
)

func main() {
	logging.Init("text", logging.ParseLevel(os.Getenv("ACTIVITY_LOG_LEVEL")))
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
