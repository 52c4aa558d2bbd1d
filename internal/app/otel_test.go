package app

import (
	"context"
	"testing"

	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/testutil"
)

func TestProvideOtelShutdownDisabledWithoutEndpoint(t *testing.T) {
	cfg := &config.Config{}

	cleanup := provideOtelShutdown(context.Background(), cfg, testutil.DiscardLogger())
	if cleanup == nil {
		t.Fatal("provideOtelShutdown() returned nil cleanup")
	}
	// With no endpoint configured nothing was registered; cleanup is a no-op.
	cleanup()
}
