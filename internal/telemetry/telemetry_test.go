package telemetry

import (
	"context"
	"testing"
)

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "activityd", "")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupWithEndpoint(t *testing.T) {
	ctx := context.Background()
	shutdown, err := Setup(ctx, "activityd", "http://127.0.0.1:4318")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	// Nothing was recorded, so shutdown does not need the collector.
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
