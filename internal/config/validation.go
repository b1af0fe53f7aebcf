package config

import (
	"fmt"
	"strings"
	"time"

	"hidwatch/internal/keystroke"
	"hidwatch/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasField reports whether any error names field.
func (e ValidationErrors) HasField(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateDetector(&c.Detector)...)
	errs = append(errs, validateDevices(&c.Devices)...)
	errs = append(errs, validateAlerts(&c.Alerts)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDetector(d *DetectorConfig) ValidationErrors {
	var errs ValidationErrors
	if !d.Enabled {
		return nil
	}

	if d.WindowSize < 2 {
		errs = append(errs, ValidationError{
			Field:   "detector.window_size",
			Message: fmt.Sprintf("must be at least 2, got %d", d.WindowSize),
		})
	}
	if d.MeanThresholdMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "detector.mean_threshold_ms",
			Message: "must be positive",
		})
	}
	if d.VarianceThresholdMs2 < 0 {
		errs = append(errs, ValidationError{
			Field:   "detector.variance_threshold_ms2",
			Message: "must not be negative",
		})
	}
	if d.Quarantine.Duration <= 0 {
		errs = append(errs, ValidationError{
			Field:   "detector.quarantine",
			Message: "must be positive",
		})
	} else if d.Quarantine.Duration > time.Minute {
		errs = append(errs, ValidationError{
			Field:   "detector.quarantine",
			Message: fmt.Sprintf("%s would lock out the keyboard; maximum is 1m", d.Quarantine.Duration),
		})
	}
	if _, err := keystroke.ParseQuarantineMode(d.QuarantineMode); err != nil {
		errs = append(errs, ValidationError{
			Field:   "detector.quarantine_mode",
			Message: fmt.Sprintf("must be blocking or deferred, got %q", d.QuarantineMode),
		})
	}
	switch d.Source {
	case "platform", "none":
	default:
		errs = append(errs, ValidationError{
			Field:   "detector.source",
			Message: fmt.Sprintf("must be platform or none, got %q", d.Source),
		})
	}
	return errs
}

func validateDevices(d *DevicesConfig) ValidationErrors {
	var errs ValidationErrors
	if !d.Enabled {
		return nil
	}

	if d.WhitelistPath == "" {
		errs = append(errs, ValidationError{
			Field:   "devices.whitelist_path",
			Message: "required when device watching is enabled",
		})
	}
	if d.ScanInterval.Duration < 100*time.Millisecond {
		errs = append(errs, ValidationError{
			Field:   "devices.scan_interval",
			Message: fmt.Sprintf("must be at least 100ms, got %s", d.ScanInterval.Duration),
		})
	}
	if d.Hotplug && d.HotplugDir == "" {
		errs = append(errs, ValidationError{
			Field:   "devices.hotplug_dir",
			Message: "required when hotplug is enabled",
		})
	}
	return errs
}

func validateAlerts(a *AlertsConfig) ValidationErrors {
	var errs ValidationErrors

	if a.QueueSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "alerts.queue_size",
			Message: fmt.Sprintf("must be positive, got %d", a.QueueSize),
		})
	}
	if a.AuditEnabled && a.AuditPath == "" {
		errs = append(errs, ValidationError{
			Field:   "alerts.audit_path",
			Message: "required when audit logging is enabled",
		})
	}
	if a.StoreEnabled && a.StorePath == "" {
		errs = append(errs, ValidationError{
			Field:   "alerts.store_path",
			Message: "required when the alert store is enabled",
		})
	}
	if a.RetentionDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "alerts.retention_days",
			Message: "must not be negative",
		})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := logging.ParseLevel(l.Level); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: err.Error(),
		})
	}
	if _, err := logging.ParseFormat(l.Format); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: err.Error(),
		})
	}

	switch strings.ToLower(l.Output) {
	case "", "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "required when output includes file",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("must be stdout, stderr, file or both, got %q", l.Output),
		})
	}

	if l.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "must not be negative",
		})
	}
	return errs
}
