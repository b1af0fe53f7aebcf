//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"hidwatch/internal/agent"
	"hidwatch/internal/logging"
)

// reportStatusOnSignal logs agent counters on every SIGUSR1 until ctx is done.
func reportStatusOnSignal(ctx context.Context, a *agent.Agent, logger *logging.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			logStatus(a, logger)
		}
	}
}
