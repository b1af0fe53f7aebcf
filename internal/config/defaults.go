package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// The agent runs as a system service, so defaults are machine-wide.
//
// Platform paths:
//   - Linux:   /etc/hidwatch, /var/lib/hidwatch, /var/log/hidwatch
//   - macOS:   /Library/Application Support/hidwatch, /Library/Logs/hidwatch
//   - Windows: %ProgramData%\HIDWatcher (the historical install location)

// PlatformConfigDir returns the platform-specific config directory.
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		return "/etc/hidwatch"
	case "darwin":
		return macOSDataDir()
	case "windows":
		return windowsDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformDataDir returns the platform-specific data directory.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "linux":
		return "/var/lib/hidwatch"
	case "darwin":
		return macOSDataDir()
	case "windows":
		return windowsDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "linux":
		return "/var/log/hidwatch"
	case "darwin":
		return filepath.Join("/Library", "Logs", "hidwatch")
	case "windows":
		return filepath.Join(windowsDataDir(), "logs")
	default:
		return filepath.Join(fallbackDataDir(), "logs")
	}
}

func macOSDataDir() string {
	return filepath.Join("/Library", "Application Support", "hidwatch")
}

func windowsDataDir() string {
	programData := os.Getenv("ProgramData")
	if programData == "" {
		programData = `C:\ProgramData`
	}
	return filepath.Join(programData, "HIDWatcher")
}

func fallbackDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hidwatch")
}

// DefaultPaths lists every default path for a platform.
type DefaultPaths struct {
	ConfigDir string
	DataDir   string
	LogDir    string

	ConfigFile    string
	WhitelistFile string
	PublicKeyFile string
	StoreFile     string
	AuditFile     string
	LogFile       string
}

// GetDefaultPaths returns all default paths for the current platform.
func GetDefaultPaths() *DefaultPaths {
	configDir := PlatformConfigDir()
	dataDir := HIDWatchDir()
	logDir := PlatformLogDir()

	return &DefaultPaths{
		ConfigDir:     configDir,
		DataDir:       dataDir,
		LogDir:        logDir,
		ConfigFile:    filepath.Join(configDir, "hidwatch.toml"),
		WhitelistFile: filepath.Join(configDir, "whitelist.json"),
		PublicKeyFile: filepath.Join(configDir, "whitelist_ed25519.pub"),
		StoreFile:     filepath.Join(dataDir, "alerts.db"),
		AuditFile:     filepath.Join(logDir, "audit.log"),
		LogFile:       filepath.Join(logDir, "hidwatch.log"),
	}
}
