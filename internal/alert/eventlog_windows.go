//go:build windows

package alert

import (
	"fmt"

	"golang.org/x/sys/windows/svc/eventlog"

	"hidwatch/internal/logging"
)

// OpenEventLog registers source with the Application log if needed and
// opens it for writing. Registration needs administrator rights and fails
// when the source already exists; writing works in both cases.
func OpenEventLog(source string, logger *logging.Logger) (*EventLogSink, error) {
	if err := eventlog.InstallAsEventCreate(source, eventlog.Error|eventlog.Warning|eventlog.Info); err != nil && logger != nil {
		logger.Debug("event source not registered", "source", source, "error", err)
	}

	l, err := eventlog.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open event log source %q: %w", source, err)
	}
	return &EventLogSink{w: l, Logger: logger}, nil
}
