// Package agent assembles the detector, the device watcher and the alert
// sinks from a configuration and runs them for the life of the process.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hidwatch/internal/alert"
	"hidwatch/internal/config"
	"hidwatch/internal/device"
	"hidwatch/internal/keystroke"
	"hidwatch/internal/logging"
	"hidwatch/internal/store"
	"hidwatch/internal/whitelist"
)

// ErrWhitelist wraps any failure to read or verify the whitelist at startup.
var ErrWhitelist = errors.New("agent: whitelist verification failed")

// Options override pieces New would otherwise build from the configuration.
type Options struct {
	// Version is recorded in the startup audit event.
	Version string

	// Debug loads the whitelist without verifying its signature.
	Debug bool

	// Logger replaces the logger built from cfg.Logging.
	Logger *logging.Logger

	// Enumerator replaces the platform device enumerator.
	Enumerator device.Enumerator

	// Source replaces the platform key-down source.
	Source keystroke.Source

	// Forwarder receives every key-down with its verdict.
	Forwarder keystroke.Forwarder

	// Sinks receive every alert in addition to the configured ones.
	Sinks []alert.Sink
}

// Status is a point-in-time snapshot of a running agent.
type Status struct {
	Started          time.Time
	WhitelistEntries int
	Gate             keystroke.GateState
	Detector         keystroke.Stats
	AlertsDropped    uint64
	StoreWriteErrors uint64
}

// Agent owns every long-lived component.
type Agent struct {
	cfg       *config.Config
	opts      Options
	logger    *logging.Logger
	ownLogger bool

	audit    *logging.AuditLogger
	store    *store.Store
	eventLog *alert.EventLogSink
	async    *alert.Async
	sink     alert.Sink

	whitelist *device.Whitelist
	detector  *keystroke.Detector
	watcher   *device.Watcher
	source    keystroke.Source

	startedNs atomic.Int64
}

// New builds an agent. A whitelist that cannot be read or verified is
// fatal and returns an error wrapping ErrWhitelist.
func New(cfg *config.Config, opts Options) (*Agent, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{cfg: cfg, opts: opts, logger: opts.Logger}
	if a.logger == nil {
		lc, err := cfg.Logging.LoggerConfig("hidwatchd")
		if err != nil {
			return nil, err
		}
		logger, err := logging.New(lc)
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
		a.logger = logger
		a.ownLogger = true
	}

	if err := a.openSinks(); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Devices.Enabled {
		wl, err := whitelist.Load(cfg.Devices.WhitelistPath, whitelist.Options{
			PublicKeyPath: cfg.Devices.PublicKeyPath,
			Debug:         opts.Debug,
			Logger:        a.logger.WithComponent("whitelist"),
			Audit:         a.audit,
		})
		if err != nil {
			a.logger.Error("Whitelist verification failed. Exiting.",
				"path", cfg.Devices.WhitelistPath, "error", err)
			a.Close()
			return nil, fmt.Errorf("%w: %w", ErrWhitelist, err)
		}
		a.whitelist = wl

		enum := opts.Enumerator
		if enum == nil {
			enum = PlatformEnumerator(cfg.Devices)
		}
		a.watcher = device.NewWatcher(enum, a.sink, a.logger.WithComponent("devices"))
		a.watcher.ScanInterval = cfg.Devices.ScanInterval.Duration
	}

	if cfg.Detector.Enabled {
		policy, err := cfg.Detector.Policy()
		if err != nil {
			a.Close()
			return nil, err
		}
		d, err := keystroke.NewDetector(policy, a.sink, keystroke.WithLogger(a.logger.WithComponent("detector")))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.detector = d

		a.source = opts.Source
		if a.source == nil && cfg.Detector.Source == "platform" {
			a.source = keystroke.NewPlatformSource(a.logger.WithComponent("keystroke"))
		}
	}

	return a, nil
}

// openSinks builds the alert fan-out. The log, event log, audit log and
// store are all written from the async queue: the detector emits while
// holding its lock and must not wait on I/O. Sinks from Options run inline.
func (a *Agent) openSinks() error {
	cfg := a.cfg.Alerts
	background := alert.Multi{alert.LogSink{Logger: a.logger.WithComponent("alert")}}

	if cfg.EventLog {
		el, err := alert.OpenEventLog(alert.EventLogSource, a.logger.WithComponent("eventlog"))
		switch {
		case errors.Is(err, alert.ErrEventLogUnsupported):
			a.logger.Debug("event log not available on this platform")
		case err != nil:
			a.logger.Warn("event log unavailable", "error", err)
		default:
			a.eventLog = el
			background = append(background, el)
		}
	}

	if cfg.AuditEnabled {
		audit, err := logging.NewAuditLogger(a.cfg.AuditConfig())
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		a.audit = audit
		background = append(background, alert.AuditSink{Audit: audit, Logger: a.logger})
	}

	if cfg.StoreEnabled {
		st, err := store.Open(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("open alert store: %w", err)
		}
		logger := a.logger.WithComponent("store")
		st.OnError = func(err error) {
			logger.Error("alert store write failed", "error", err)
		}
		a.store = st

		if cfg.RetentionDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -cfg.RetentionDays)
			if n, err := st.PruneBefore(cutoff); err != nil {
				logger.Warn("alert pruning failed", "error", err)
			} else if n > 0 {
				logger.Info("pruned old alerts", "count", n, "before", cutoff.Format(time.DateOnly))
			}
		}
		background = append(background, st)
	}

	a.async = alert.NewAsync(background, cfg.QueueSize)
	a.sink = append(alert.Multi{a.async}, a.opts.Sinks...)
	return nil
}

// Run starts the device watcher and the key-down pump and blocks until ctx
// is done or one of them fails.
func (a *Agent) Run(ctx context.Context) error {
	a.startedNs.Store(time.Now().UnixNano())
	a.logger.Info("agent starting",
		"detector", a.detector != nil,
		"devices", a.watcher != nil,
		"whitelist_entries", a.whitelist.Len())
	a.auditStartup()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if a.watcher != nil {
		if a.cfg.Devices.Hotplug {
			trigger, err := device.WatchHotplug(gctx, a.cfg.Devices.HotplugDir, a.logger.WithComponent("hotplug"))
			if err != nil {
				a.logger.Warn("hot-plug watch unavailable, relying on periodic scans", "error", err)
			} else {
				a.watcher.Trigger = trigger
			}
		}
		g.Go(func() error {
			return a.watcher.Run(gctx, a.whitelist)
		})
	}

	if a.detector != nil && a.source != nil {
		if ok, reason := a.source.Available(); !ok {
			a.sink.Emit(alert.New(alert.SourceAgent, alert.SeverityInfo, "Keystroke timing is not monitored on this host.").
				With("reason", reason))
		} else {
			g.Go(func() error {
				err := keystroke.Pump(gctx, a.source, a.detector, a.opts.Forwarder)
				switch {
				case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
					return nil
				default:
					// The device watcher keeps running without keystroke input.
					a.sink.Emit(alert.New(alert.SourceAgent, alert.SeverityInfo, "Keystroke source stopped.").
						With("error", err.Error()))
					return nil
				}
			})
		}
	}

	err := g.Wait()

	reason := "context done"
	if err != nil {
		reason = err.Error()
	}
	a.logger.Info("agent stopped", "reason", reason)
	if a.audit != nil {
		if auditErr := a.audit.LogShutdown(reason); auditErr != nil {
			a.logger.Error("audit write failed", "error", auditErr)
		}
	}
	return err
}

func (a *Agent) auditStartup() {
	if a.audit == nil {
		return
	}
	version := a.opts.Version
	if version == "" {
		version = "dev"
	}
	details := map[string]string{
		"quarantine_mode":   a.cfg.Detector.QuarantineMode,
		"whitelist_entries": fmt.Sprintf("%d", a.whitelist.Len()),
	}
	if err := a.audit.LogStartup(version, details); err != nil {
		a.logger.Error("audit write failed", "error", err)
	}
}

// Detector returns the keystroke detector, or nil when it is disabled.
// External hooks feed key-downs through it.
func (a *Agent) Detector() *keystroke.Detector { return a.detector }

// Watcher returns the device watcher, or nil when it is disabled.
func (a *Agent) Watcher() *device.Watcher { return a.watcher }

// Whitelist returns the loaded whitelist, or nil when device watching is disabled.
func (a *Agent) Whitelist() *device.Whitelist { return a.whitelist }

// Status returns a snapshot of the agent's counters.
func (a *Agent) Status() Status {
	s := Status{WhitelistEntries: a.whitelist.Len()}
	if ns := a.startedNs.Load(); ns != 0 {
		s.Started = time.Unix(0, ns)
	}
	if a.detector != nil {
		s.Gate = a.detector.State()
		s.Detector = a.detector.Stats()
	}
	if a.async != nil {
		s.AlertsDropped = a.async.Dropped()
	}
	if a.store != nil {
		s.StoreWriteErrors = a.store.WriteErrors()
	}
	return s
}

// Close flushes queued alerts and releases files. It is safe to call on a
// partially built agent.
func (a *Agent) Close() error {
	var errs []error
	if a.async != nil {
		a.async.Close()
	}
	if a.eventLog != nil {
		if err := a.eventLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event log: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit log: %w", err))
		}
	}
	if a.ownLogger && a.logger != nil {
		if err := a.logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close logger: %w", err))
		}
	}
	return errors.Join(errs...)
}
