// Package config handles configuration loading, validation, and management for hidwatch.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"hidwatch/internal/keystroke"
	"hidwatch/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete agent configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Detector configures keystroke timing analysis.
	Detector DetectorConfig `toml:"detector" json:"detector" yaml:"detector"`

	// Devices configures the device watch loop and whitelist.
	Devices DevicesConfig `toml:"devices" json:"devices" yaml:"devices"`

	// Alerts configures where alerts are delivered.
	Alerts AlertsConfig `toml:"alerts" json:"alerts" yaml:"alerts"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// DetectorConfig holds keystroke detector settings.
type DetectorConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// WindowSize is the number of intervals analyzed together.
	WindowSize int `toml:"window_size" json:"window_size" yaml:"window_size"`

	// MeanThresholdMs: a full window averaging below this is fast.
	MeanThresholdMs float64 `toml:"mean_threshold_ms" json:"mean_threshold_ms" yaml:"mean_threshold_ms"`

	// VarianceThresholdMs2: a full window varying less than this is regular.
	VarianceThresholdMs2 float64 `toml:"variance_threshold_ms2" json:"variance_threshold_ms2" yaml:"variance_threshold_ms2"`

	// Quarantine is how long input is suppressed after a burst.
	Quarantine Duration `toml:"quarantine" json:"quarantine" yaml:"quarantine"`

	// QuarantineMode is "blocking" or "deferred".
	QuarantineMode string `toml:"quarantine_mode" json:"quarantine_mode" yaml:"quarantine_mode"`

	// Source is "platform" for the built-in key-down source or "none" when
	// the detector is driven by an external hook.
	Source string `toml:"source" json:"source" yaml:"source"`
}

// DevicesConfig holds device watch settings.
type DevicesConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// WhitelistPath is the signed JSON whitelist.
	WhitelistPath string `toml:"whitelist_path" json:"whitelist_path" yaml:"whitelist_path"`

	// PublicKeyPath verifies WhitelistPath + ".sig".
	PublicKeyPath string `toml:"public_key_path" json:"public_key_path" yaml:"public_key_path"`

	// ScanInterval is the time between periodic scans.
	ScanInterval Duration `toml:"scan_interval" json:"scan_interval" yaml:"scan_interval"`

	// Hotplug rescans when input device nodes appear (Linux).
	Hotplug    bool   `toml:"hotplug" json:"hotplug" yaml:"hotplug"`
	HotplugDir string `toml:"hotplug_dir" json:"hotplug_dir" yaml:"hotplug_dir"`

	// SysfsRoot overrides the Linux HID sysfs directory.
	SysfsRoot string `toml:"sysfs_root" json:"sysfs_root" yaml:"sysfs_root"`
}

// AlertsConfig holds alert sink settings.
type AlertsConfig struct {
	// QueueSize bounds the asynchronous alert queue.
	QueueSize int `toml:"queue_size" json:"queue_size" yaml:"queue_size"`

	AuditEnabled bool   `toml:"audit_enabled" json:"audit_enabled" yaml:"audit_enabled"`
	AuditPath    string `toml:"audit_path" json:"audit_path" yaml:"audit_path"`

	StoreEnabled bool   `toml:"store_enabled" json:"store_enabled" yaml:"store_enabled"`
	StorePath    string `toml:"store_path" json:"store_path" yaml:"store_path"`

	// EventLog reports every alert to the Windows Event Log. It is ignored
	// on other platforms.
	EventLog bool `toml:"event_log" json:"event_log" yaml:"event_log"`

	// RetentionDays prunes stored alerts older than this at startup.
	// Zero keeps everything.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int64  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// Duration is a time.Duration written as a string ("500ms", "5s") in every
// config format.
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	d.Duration = v
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	policy := keystroke.DefaultPolicy()
	dataDir := HIDWatchDir()
	logDir := PlatformLogDir()

	return &Config{
		Version: Version,
		Detector: DetectorConfig{
			Enabled:              true,
			WindowSize:           policy.WindowSize,
			MeanThresholdMs:      policy.MeanThresholdMs,
			VarianceThresholdMs2: policy.VarianceThreshold,
			Quarantine:           Duration{policy.Quarantine},
			QuarantineMode:       policy.Mode.String(),
			Source:               "platform",
		},
		Devices: DevicesConfig{
			Enabled:       true,
			WhitelistPath: filepath.Join(PlatformConfigDir(), "whitelist.json"),
			PublicKeyPath: filepath.Join(PlatformConfigDir(), "whitelist_ed25519.pub"),
			ScanInterval:  Duration{5 * time.Second},
			Hotplug:       true,
			HotplugDir:    "/dev/input",
		},
		Alerts: AlertsConfig{
			QueueSize:     256,
			AuditEnabled:  true,
			AuditPath:     filepath.Join(logDir, "audit.log"),
			StoreEnabled:  true,
			StorePath:     filepath.Join(dataDir, "alerts.db"),
			EventLog:      runtime.GOOS == "windows",
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(logDir, "hidwatch.log"),
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "hidwatch.toml")
}

// HIDWatchDir returns the base data directory.
// Uses platform-specific paths or HIDWATCH_DATA_DIR environment override.
func HIDWatchDir() string {
	if envDir := os.Getenv("HIDWATCH_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
// Environment overrides are applied; the result is not validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// LoadValidated is Load followed by Validate.
func LoadValidated(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the agent writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Alerts.StorePath),
		filepath.Dir(c.Alerts.AuditPath),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with HIDWATCH_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("HIDWATCH_WHITELIST_PATH"); v != "" {
		c.Devices.WhitelistPath = v
	}
	if v := os.Getenv("HIDWATCH_PUBLIC_KEY_PATH"); v != "" {
		c.Devices.PublicKeyPath = v
	}
	if v := os.Getenv("HIDWATCH_QUARANTINE_MODE"); v != "" {
		c.Detector.QuarantineMode = v
	}
	if v := os.Getenv("HIDWATCH_STORE_PATH"); v != "" {
		c.Alerts.StorePath = v
	}
	if v := os.Getenv("HIDWATCH_AUDIT_PATH"); v != "" {
		c.Alerts.AuditPath = v
	}
	if v := os.Getenv("HIDWATCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("HIDWATCH_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("HIDWATCH_SCAN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Devices.ScanInterval = Duration{d}
		}
	}
	if v := os.Getenv("HIDWATCH_HOTPLUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Devices.Hotplug = b
		}
	}
}

// Policy converts the detector settings into a keystroke.Policy.
func (d DetectorConfig) Policy() (keystroke.Policy, error) {
	mode, err := keystroke.ParseQuarantineMode(d.QuarantineMode)
	if err != nil {
		return keystroke.Policy{}, err
	}
	p := keystroke.Policy{
		WindowSize:        d.WindowSize,
		MeanThresholdMs:   d.MeanThresholdMs,
		VarianceThreshold: d.VarianceThresholdMs2,
		Quarantine:        d.Quarantine.Duration,
		Mode:              mode,
	}
	return p, p.Validate()
}

// LoggerConfig converts the logging settings into a logging.Config.
func (l LoggingConfig) LoggerConfig(component string) (*logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     l.Output,
		FilePath:   l.FilePath,
		MaxSize:    l.MaxSizeMB,
		MaxAge:     l.MaxAgeDays,
		MaxBackups: l.MaxBackups,
		Compress:   l.Compress,
		Component:  component,
	}, nil
}

// AuditConfig returns the audit logger configuration for AuditPath.
func (c *Config) AuditConfig() *logging.AuditLoggerConfig {
	cfg := logging.DefaultAuditConfig()
	cfg.FilePath = c.Alerts.AuditPath
	return cfg
}
