// hidwatchd - Keystroke injection and unapproved HID device detector
//
// hidwatchd watches key-down timing for machine-speed bursts and scans
// attached HID devices against a signed whitelist. Alerts go to the log,
// the JSON audit log and the SQLite alert store.
//
//	hidwatchd -config /etc/hidwatch/hidwatch.toml
//	hidwatchd -debug          Load the whitelist without verifying its signature
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hidwatch/internal/agent"
	"hidwatch/internal/config"
	"hidwatch/internal/logging"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	configPath  = flag.String("config", "", "path to config file (default: "+config.ConfigPath()+")")
	debugMode   = flag.Bool("debug", false, "skip whitelist signature verification")
	logLevel    = flag.String("log-level", "", "override log level (debug, info, warn, error)")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("hidwatchd %s\n", Version)
		return
	}

	os.Exit(run())
}

func usage() {
	fmt.Fprintln(os.Stderr, `hidwatchd - Keystroke injection detector

Usage: hidwatchd [options]

Options:
  -config <path>      Path to config file (TOML, JSON or YAML)
  -debug              Load the whitelist without verifying its signature
  -log-level <level>  Override the configured log level
  -version            Print version and exit

Signals:
  SIGINT, SIGTERM     Shut down cleanly
  SIGUSR1             Log detector and alert counters`)
}

func run() int {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	lc, err := cfg.Logging.LoggerConfig("hidwatchd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger, err := logging.New(lc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		return 1
	}
	defer logger.Close()
	logging.SetDefault(logger)

	a, err := agent.New(cfg, agent.Options{
		Version: Version,
		Debug:   *debugMode,
		Logger:  logger,
	})
	if err != nil {
		if !errors.Is(err, agent.ErrWhitelist) {
			logger.Error("agent setup failed", "error", err)
		}
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go reportStatusOnSignal(ctx, a, logger)

	if err := a.Run(ctx); err != nil {
		logger.Error("agent failed", "error", err)
		return 1
	}
	return 0
}

func logStatus(a *agent.Agent, logger *logging.Logger) {
	s := a.Status()
	logger.Info("status",
		"gate", s.Gate.String(),
		"events_seen", s.Detector.EventsSeen,
		"suppressed", s.Detector.Suppressed,
		"episodes", s.Detector.Episodes,
		"clock_anomalies", s.Detector.ClockAnomalies,
		"whitelist_entries", s.WhitelistEntries,
		"alerts_dropped", s.AlertsDropped,
		"store_write_errors", s.StoreWriteErrors,
	)
}
