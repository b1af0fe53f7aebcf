// Command keystroke-test is a manual testing tool for the platform key-down
// source and the timing detector.
//
// It starts the source, feeds every key-down through a detector in deferred
// mode, and prints statistics every second until interrupted with Ctrl+C.
// Plug in an injection device (or hold a key down with a fast repeat rate)
// to see an episode.
//
// Usage:
//
//	go build -o keystroke-test ./tools/keystroke-test
//	sudo ./keystroke-test
//
// Requirements:
//   - Linux
//   - Read access to /dev/input/event* (root or the "input" group)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hidwatch/internal/alert"
	"hidwatch/internal/keystroke"
	"hidwatch/internal/logging"
)

func main() {
	fmt.Println("Key-down Detector Test")
	fmt.Println("======================")
	fmt.Println()

	logger := logging.NewWithWriter(os.Stderr, &logging.Config{
		Level:     logging.LevelDebug,
		Format:    logging.FormatText,
		Component: "keystroke-test",
	})

	source := keystroke.NewPlatformSource(logger)
	available, msg := source.Available()
	fmt.Printf("Source availability: %s\n", msg)
	if !available {
		fmt.Println("ERROR: Source not available")
		os.Exit(1)
	}

	policy := keystroke.DefaultPolicy()
	policy.Mode = keystroke.QuarantineDeferred

	sink := alert.SinkFunc(func(a alert.Alert) {
		fmt.Printf("\n  >>> %s (mean=%sms variance=%sms²)\n\n",
			a.Message, a.Attrs["mean_ms"], a.Attrs["variance_ms2"])
	})
	detector, err := keystroke.NewDetector(policy, sink)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- keystroke.Pump(ctx, source, detector, nil)
	}()

	fmt.Println("Watching key-downs. Press Ctrl+C to stop.")
	fmt.Println()
	fmt.Println("Time        | Total | Delta | Rate (keys/sec) | Gate")
	fmt.Println("------------|-------|-------|-----------------|-----------")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	startTime := time.Now()
	var lastCount uint64
	lastTime := startTime

loop:
	for {
		select {
		case err := <-done:
			if err != nil && ctx.Err() == nil {
				fmt.Printf("\nSource failed: %v\n", err)
				os.Exit(1)
			}
			break loop

		case now := <-ticker.C:
			stats := detector.Stats()
			delta := stats.EventsSeen - lastCount
			elapsed := now.Sub(lastTime).Seconds()

			var rate float64
			if elapsed > 0 {
				rate = float64(delta) / elapsed
			}

			fmt.Printf("%11s | %5d | %5d | %15.1f | %s\n",
				now.Sub(startTime).Truncate(time.Second).String(),
				stats.EventsSeen,
				delta,
				rate,
				detector.State())

			lastCount = stats.EventsSeen
			lastTime = now
		}
	}

	totalDuration := time.Since(startTime)
	stats := detector.Stats()

	fmt.Println()
	fmt.Println("Final Statistics")
	fmt.Println("----------------")
	fmt.Printf("Total key-downs:  %d\n", stats.EventsSeen)
	fmt.Printf("Suppressed:       %d\n", stats.Suppressed)
	fmt.Printf("Episodes:         %d\n", stats.Episodes)
	fmt.Printf("Clock anomalies:  %d\n", stats.ClockAnomalies)
	fmt.Printf("Total duration:   %s\n", totalDuration.Truncate(time.Millisecond))
	if totalDuration.Seconds() > 0 {
		fmt.Printf("Average rate:     %.2f keys/sec\n", float64(stats.EventsSeen)/totalDuration.Seconds())
	}
}
