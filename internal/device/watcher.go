package device

import (
	"context"
	"time"

	"hidwatch/internal/alert"
	"hidwatch/internal/logging"
)

// DefaultScanInterval is how often Run rescans without a hot-plug trigger.
const DefaultScanInterval = 5 * time.Second

// Watcher compares attached devices against a whitelist and raises an alert
// for every device it does not approve.
//
// A Watcher holds no mutable state; it only reads the whitelist it is given
// and writes to Sink.
type Watcher struct {
	Enumerator   Enumerator
	Sink         alert.Sink
	Logger       *logging.Logger
	ScanInterval time.Duration

	// Trigger, if set, requests an immediate rescan on every receive.
	Trigger <-chan struct{}
}

// NewWatcher returns a watcher with the default scan interval.
func NewWatcher(enum Enumerator, sink alert.Sink, logger *logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.Nop()
	}
	if sink == nil {
		sink = alert.Discard
	}
	return &Watcher{
		Enumerator:   enum,
		Sink:         sink,
		Logger:       logger,
		ScanInterval: DefaultScanInterval,
	}
}

// ScanOnce enumerates attached devices once and emits one alert per device
// whose identifier wl does not contain. It returns the number of alerts.
//
// Enumeration failure is treated as zero devices.
func (w *Watcher) ScanOnce(ctx context.Context, wl *Whitelist) int {
	devices, err := w.Enumerator.Enumerate(ctx)
	if err != nil {
		w.logger().Debug("device enumeration failed", "error", err)
		return 0
	}

	seen := make(map[ID]bool, len(devices))
	emitted := 0
	for _, dev := range devices {
		// Composite devices expose one entry per interface.
		if seen[dev.ID] {
			continue
		}
		seen[dev.ID] = true

		if wl.Contains(dev.ID) {
			continue
		}

		key := dev.ID.String()
		a := alert.New(alert.SourceDevices, alert.SeverityWarning, "Unapproved HID Device Detected: "+key).
			With("device", key)
		if dev.Name != "" {
			a = a.With("name", dev.Name)
		}
		if dev.Path != "" {
			a = a.With("path", dev.Path)
		}
		if vendor := dev.ID.VendorName(); vendor != "" {
			a = a.With("vendor", vendor)
		}
		w.Sink.Emit(a)
		emitted++
	}

	w.logger().Debug("device scan complete", "devices", len(seen), "unapproved", emitted)
	return emitted
}

// Run scans immediately, then on every tick and every trigger, until ctx is
// done.
func (w *Watcher) Run(ctx context.Context, wl *Whitelist) error {
	interval := w.ScanInterval
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	trigger := w.Trigger
	w.ScanOnce(ctx, wl)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.ScanOnce(ctx, wl)
		case _, ok := <-trigger:
			if !ok {
				trigger = nil
				continue
			}
			w.ScanOnce(ctx, wl)
		}
	}
}

func (w *Watcher) logger() *logging.Logger {
	if w.Logger == nil {
		return logging.Nop()
	}
	return w.Logger
}
