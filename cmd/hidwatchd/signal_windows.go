//go:build windows

package main

import (
	"context"

	"hidwatch/internal/agent"
	"hidwatch/internal/logging"
)

// reportStatusOnSignal logs agent counters once at shutdown; Windows has no
// SIGUSR1.
func reportStatusOnSignal(ctx context.Context, a *agent.Agent, logger *logging.Logger) {
	<-ctx.Done()
	logStatus(a, logger)
}
