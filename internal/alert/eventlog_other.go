//go:build !windows

package alert

import "hidwatch/internal/logging"

// OpenEventLog always fails with ErrEventLogUnsupported.
func OpenEventLog(source string, logger *logging.Logger) (*EventLogSink, error) {
	return nil, ErrEventLogUnsupported
}
