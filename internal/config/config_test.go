package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"hidwatch/internal/keystroke"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	p, err := cfg.Detector.Policy()
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if p != keystroke.DefaultPolicy() {
		t.Errorf("default detector policy = %+v, want %+v", p, keystroke.DefaultPolicy())
	}
	if cfg.Devices.ScanInterval.Duration != 5*time.Second {
		t.Errorf("expected scan interval 5s, got %s", cfg.Devices.ScanInterval)
	}
	if !strings.HasSuffix(cfg.Devices.WhitelistPath, "whitelist.json") {
		t.Errorf("unexpected whitelist path %s", cfg.Devices.WhitelistPath)
	}
	if cfg.Alerts.EventLog != (runtime.GOOS == "windows") {
		t.Errorf("event log default = %v on %s", cfg.Alerts.EventLog, runtime.GOOS)
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if !strings.HasSuffix(path, "hidwatch.toml") {
		t.Errorf("expected path ending with hidwatch.toml, got %s", path)
	}
}

func TestHIDWatchDirEnvOverride(t *testing.T) {
	t.Setenv("HIDWATCH_DATA_DIR", "/tmp/hidwatch-test")
	if got := HIDWatchDir(); got != "/tmp/hidwatch-test" {
		t.Errorf("HIDWatchDir() = %s", got)
	}
	if got := DefaultConfig().Alerts.StorePath; got != filepath.Join("/tmp/hidwatch-test", "alerts.db") {
		t.Errorf("store path should follow data dir, got %s", got)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Detector.WindowSize != 20 {
		t.Errorf("expected default window size, got %d", cfg.Detector.WindowSize)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hidwatch.toml")
	content := `
version = 1

[detector]
window_size = 30
mean_threshold_ms = 8.5
quarantine = "750ms"
quarantine_mode = "deferred"

[devices]
whitelist_path = "/opt/wl.json"
scan_interval = "2s"
hotplug = false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadValidated(path)
	if err != nil {
		t.Fatalf("LoadValidated: %v", err)
	}
	if cfg.Detector.WindowSize != 30 {
		t.Errorf("window_size = %d", cfg.Detector.WindowSize)
	}
	if cfg.Detector.MeanThresholdMs != 8.5 {
		t.Errorf("mean_threshold_ms = %v", cfg.Detector.MeanThresholdMs)
	}
	// Unset keys keep their defaults.
	if cfg.Detector.VarianceThresholdMs2 != 2.0 {
		t.Errorf("variance_threshold_ms2 = %v", cfg.Detector.VarianceThresholdMs2)
	}
	if cfg.Detector.Quarantine.Duration != 750*time.Millisecond {
		t.Errorf("quarantine = %s", cfg.Detector.Quarantine)
	}
	if cfg.Devices.WhitelistPath != "/opt/wl.json" {
		t.Errorf("whitelist_path = %s", cfg.Devices.WhitelistPath)
	}
	if cfg.Devices.ScanInterval.Duration != 2*time.Second {
		t.Errorf("scan_interval = %s", cfg.Devices.ScanInterval)
	}
	if cfg.Devices.Hotplug {
		t.Error("hotplug should be disabled")
	}

	p, err := cfg.Detector.Policy()
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if p.Mode != keystroke.QuarantineDeferred {
		t.Errorf("mode = %v", p.Mode)
	}
}

func TestLoadJSONAndYAML(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "hidwatch.json")
	if err := os.WriteFile(jsonPath, []byte(`{"detector": {"window_size": 12, "quarantine": "1s"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(jsonPath)
	if err != nil {
		t.Fatalf("Load JSON: %v", err)
	}
	if cfg.Detector.WindowSize != 12 || cfg.Detector.Quarantine.Duration != time.Second {
		t.Errorf("JSON detector = %+v", cfg.Detector)
	}

	yamlPath := filepath.Join(dir, "hidwatch.yaml")
	if err := os.WriteFile(yamlPath, []byte("alerts:\n  queue_size: 8\n  retention_days: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(yamlPath)
	if err != nil {
		t.Fatalf("Load YAML: %v", err)
	}
	if cfg.Alerts.QueueSize != 8 || cfg.Alerts.RetentionDays != 7 {
		t.Errorf("YAML alerts = %+v", cfg.Alerts)
	}
}

func TestLoadAutoDetect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hidwatch.conf")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %s", cfg.Logging.Level)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hidwatch.toml")
	if err := os.WriteFile(path, []byte("[detector]\nquarantine = \"soon\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out.toml", "out.json", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := DefaultConfig()
			cfg.Detector.QuarantineMode = "deferred"
			cfg.Devices.ScanInterval = Duration{3 * time.Second}

			if err := Save(cfg, path); err != nil {
				t.Fatalf("Save: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if loaded.Detector.QuarantineMode != "deferred" {
				t.Errorf("quarantine_mode = %s", loaded.Detector.QuarantineMode)
			}
			if loaded.Devices.ScanInterval.Duration != 3*time.Second {
				t.Errorf("scan_interval = %s", loaded.Devices.ScanInterval)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HIDWATCH_WHITELIST_PATH", "/env/wl.json")
	t.Setenv("HIDWATCH_QUARANTINE_MODE", "deferred")
	t.Setenv("HIDWATCH_LOG_LEVEL", "debug")
	t.Setenv("HIDWATCH_SCAN_INTERVAL", "250ms")
	t.Setenv("HIDWATCH_HOTPLUG", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Devices.WhitelistPath != "/env/wl.json" {
		t.Errorf("whitelist path = %s", cfg.Devices.WhitelistPath)
	}
	if cfg.Detector.QuarantineMode != "deferred" {
		t.Errorf("quarantine mode = %s", cfg.Detector.QuarantineMode)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s", cfg.Logging.Level)
	}
	if cfg.Devices.ScanInterval.Duration != 250*time.Millisecond {
		t.Errorf("scan interval = %s", cfg.Devices.ScanInterval)
	}
	if cfg.Devices.Hotplug {
		t.Error("hotplug should be overridden to false")
	}
}

func TestEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv("HIDWATCH_SCAN_INTERVAL", "often")
	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	if cfg.Devices.ScanInterval.Duration != 5*time.Second {
		t.Errorf("unparseable override should be ignored, got %s", cfg.Devices.ScanInterval)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"version", func(c *Config) { c.Version = 9 }, "version"},
		{"window", func(c *Config) { c.Detector.WindowSize = 1 }, "detector.window_size"},
		{"mean", func(c *Config) { c.Detector.MeanThresholdMs = 0 }, "detector.mean_threshold_ms"},
		{"variance", func(c *Config) { c.Detector.VarianceThresholdMs2 = -1 }, "detector.variance_threshold_ms2"},
		{"quarantine zero", func(c *Config) { c.Detector.Quarantine = Duration{} }, "detector.quarantine"},
		{"quarantine long", func(c *Config) { c.Detector.Quarantine = Duration{time.Hour} }, "detector.quarantine"},
		{"mode", func(c *Config) { c.Detector.QuarantineMode = "sometimes" }, "detector.quarantine_mode"},
		{"source", func(c *Config) { c.Detector.Source = "usb" }, "detector.source"},
		{"whitelist", func(c *Config) { c.Devices.WhitelistPath = "" }, "devices.whitelist_path"},
		{"scan", func(c *Config) { c.Devices.ScanInterval = Duration{time.Millisecond} }, "devices.scan_interval"},
		{"hotplug dir", func(c *Config) { c.Devices.HotplugDir = "" }, "devices.hotplug_dir"},
		{"queue", func(c *Config) { c.Alerts.QueueSize = 0 }, "alerts.queue_size"},
		{"audit", func(c *Config) { c.Alerts.AuditPath = "" }, "alerts.audit_path"},
		{"store", func(c *Config) { c.Alerts.StorePath = "" }, "alerts.store_path"},
		{"retention", func(c *Config) { c.Alerts.RetentionDays = -1 }, "alerts.retention_days"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
		{"file path", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "logging.file_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			if !verrs.HasField(tt.field) {
				t.Errorf("expected error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestValidateSkipsDisabledSections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detector.Enabled = false
	cfg.Detector.WindowSize = 0
	cfg.Devices.Enabled = false
	cfg.Devices.WhitelistPath = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled sections should not be validated: %v", err)
	}
}

func TestLoggerConfig(t *testing.T) {
	lc, err := DefaultConfig().Logging.LoggerConfig("hidwatchd")
	if err != nil {
		t.Fatalf("LoggerConfig: %v", err)
	}
	if lc.Component != "hidwatchd" {
		t.Errorf("component = %s", lc.Component)
	}
	if lc.MaxSize != 50 {
		t.Errorf("max size = %d", lc.MaxSize)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Alerts.StorePath = filepath.Join(dir, "data", "alerts.db")
	cfg.Alerts.AuditPath = filepath.Join(dir, "logs", "audit.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, sub := range []string{"data", "logs"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("%s not created: %v", sub, err)
		}
	}
}
