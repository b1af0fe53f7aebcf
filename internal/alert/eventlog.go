package alert

import (
	"errors"
	"strings"

	"hidwatch/internal/logging"
)

// EventLogSource is the Windows Event Log source alerts are reported under.
const EventLogSource = "HID Keystroke Monitor"

// ErrEventLogUnsupported is returned by OpenEventLog on platforms without
// a Windows Event Log.
var ErrEventLogUnsupported = errors.New("alert: event log is only available on windows")

// Event IDs by alert source.
const (
	EventIDDevices  uint32 = 1
	EventIDDetector uint32 = 2
	EventIDAgent    uint32 = 3
)

// eventWriter is the subset of *eventlog.Log the sink writes through.
type eventWriter interface {
	Info(eid uint32, msg string) error
	Warning(eid uint32, msg string) error
	Close() error
}

// EventLogSink reports alerts to the Windows Event Log. Warnings are
// written as Warning entries and everything else as Information.
type EventLogSink struct {
	w      eventWriter
	Logger *logging.Logger
}

// Emit writes a to the event log.
func (s *EventLogSink) Emit(a Alert) {
	eid := eventID(a.Source)
	msg := eventMessage(a)

	var err error
	if a.Severity == SeverityWarning {
		err = s.w.Warning(eid, msg)
	} else {
		err = s.w.Info(eid, msg)
	}
	if err != nil && s.Logger != nil {
		s.Logger.Error("event log write failed", "alert_id", a.ID, "error", err)
	}
}

// Close releases the event source handle.
func (s *EventLogSink) Close() error {
	return s.w.Close()
}

func eventID(source string) uint32 {
	switch source {
	case SourceDevices:
		return EventIDDevices
	case SourceDetector:
		return EventIDDetector
	default:
		return EventIDAgent
	}
}

// eventMessage puts the alert text first, as Event Viewer shows it in the
// preview pane, followed by one attribute per line.
func eventMessage(a Alert) string {
	if len(a.Attrs) == 0 {
		return a.Message
	}
	var b strings.Builder
	b.WriteString(a.Message)
	b.WriteString("\r\n")
	for _, k := range a.AttrKeys() {
		b.WriteString("\r\n")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(a.Attrs[k])
	}
	return b.String()
}
