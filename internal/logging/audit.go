package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types.
const (
	AuditEventAlert        AuditEventType = "alert"
	AuditEventWhitelist    AuditEventType = "whitelist"
	AuditEventStartup      AuditEventType = "startup"
	AuditEventShutdown     AuditEventType = "shutdown"
	AuditEventConfigLoaded AuditEventType = "config_loaded"
)

// AuditEvent is one line of the security audit log.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType AuditEventType    `json:"event_type"`
	Component string            `json:"component"`
	Host      string            `json:"host,omitempty"`
	AlertID   string            `json:"alert_id,omitempty"`
	Severity  string            `json:"severity,omitempty"`
	Source    string            `json:"source,omitempty"`
	Message   string            `json:"message"`
	Result    string            `json:"result,omitempty"` // "success", "failure"
	Details   map[string]string `json:"details,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	// FilePath is the path to the audit log file.
	FilePath string

	// MaxSize is the maximum size in MB before rotation.
	MaxSize int64

	// MaxAge is the maximum age in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// Compress determines if rotated logs should be compressed.
	Compress bool

	// Component is the component name for audit events.
	Component string
}

// DefaultAuditConfig returns default audit logger configuration.
func DefaultAuditConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		FilePath:   defaultLogPath("audit.log"),
		MaxSize:    50,
		MaxAge:     90,
		MaxBackups: 10,
		Compress:   true,
		Component:  "hidwatch",
	}
}

// AuditLogger appends JSON audit events to a rotated file.
type AuditLogger struct {
	config  *AuditLoggerConfig
	rotator *FileRotator
	host    string
	mu      sync.Mutex
}

// NewAuditLogger creates a new AuditLogger.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}

	rotator, err := NewFileRotator(&Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}

	host, _ := os.Hostname()
	return &AuditLogger{config: cfg, rotator: rotator, host: host}, nil
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Component == "" {
		event.Component = a.config.Component
	}
	if event.Host == "" {
		event.Host = a.host
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.rotator.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// LogStartup records agent startup.
func (a *AuditLogger) LogStartup(version string, details map[string]string) error {
	if details == nil {
		details = make(map[string]string)
	}
	details["version"] = version
	return a.Log(AuditEvent{
		EventType: AuditEventStartup,
		Message:   "agent started",
		Result:    "success",
		Details:   details,
	})
}

// LogShutdown records agent shutdown.
func (a *AuditLogger) LogShutdown(reason string) error {
	return a.Log(AuditEvent{
		EventType: AuditEventShutdown,
		Message:   "agent stopped",
		Result:    "success",
		Details:   map[string]string{"reason": reason},
	})
}

// LogWhitelist records the outcome of loading the device whitelist.
func (a *AuditLogger) LogWhitelist(path string, verified bool, entries int, err error) error {
	ev := AuditEvent{
		EventType: AuditEventWhitelist,
		Message:   "whitelist loaded",
		Result:    "success",
		Details: map[string]string{
			"path":     path,
			"verified": fmt.Sprintf("%t", verified),
			"entries":  fmt.Sprintf("%d", entries),
		},
	}
	if err != nil {
		ev.Message = "whitelist verification failed"
		ev.Result = "failure"
		ev.Error = err.Error()
	}
	return a.Log(ev)
}

// Close closes the audit log.
func (a *AuditLogger) Close() error {
	return a.rotator.Close()
}

// Sync flushes buffered audit events.
func (a *AuditLogger) Sync() error {
	return a.rotator.Sync()
}
