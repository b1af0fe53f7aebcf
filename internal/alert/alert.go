// Package alert carries security alerts from the detector and the device
// watch loop to their sinks.
//
// Emitting is fire-and-forget: a Sink never reports failure to the caller,
// and neither the detector nor the watch loop waits on persistence.
package alert

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity grades an alert.
type Severity int

const (
	// SeverityInfo marks lifecycle records (startup, shutdown).
	SeverityInfo Severity = iota
	// SeverityWarning marks suspected injection and unapproved devices.
	SeverityWarning
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "info":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	default:
		return SeverityInfo, fmt.Errorf("alert: unknown severity %q", s)
	}
}

// Alert sources.
const (
	SourceDetector = "keystroke-detector"
	SourceDevices  = "device-watch"
	SourceAgent    = "agent"
)

// Alert is a timestamped, human-readable security message.
type Alert struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Severity  Severity          `json:"severity"`
	Source    string            `json:"source"`
	Message   string            `json:"message"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// New builds an alert stamped with a fresh ID and the current time.
func New(source string, severity Severity, message string) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		Source:    source,
		Message:   message,
	}
}

// With returns a copy of a with an extra attribute.
func (a Alert) With(key, value string) Alert {
	attrs := make(map[string]string, len(a.Attrs)+1)
	for k, v := range a.Attrs {
		attrs[k] = v
	}
	attrs[key] = value
	a.Attrs = attrs
	return a
}

// AttrKeys returns the attribute keys in sorted order.
func (a Alert) AttrKeys() []string {
	keys := make([]string, 0, len(a.Attrs))
	for k := range a.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sink receives alerts. Implementations must be safe for concurrent use:
// the detector and the device watch loop emit from different goroutines.
type Sink interface {
	Emit(a Alert)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Alert)

// Emit calls f(a).
func (f SinkFunc) Emit(a Alert) { f(a) }

// Discard drops every alert.
var Discard Sink = SinkFunc(func(Alert) {})

// Multi fans every alert out to each sink in order.
type Multi []Sink

// Emit forwards a to every sink.
func (m Multi) Emit(a Alert) {
	for _, s := range m {
		if s != nil {
			s.Emit(a)
		}
	}
}

// Recorder keeps every emitted alert in memory. It is used by tests and by
// hidwatchctl replay.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

// Emit stores a.
func (r *Recorder) Emit(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

// Alerts returns a copy of the recorded alerts.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// Len returns the number of recorded alerts.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// Reset forgets all recorded alerts.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = nil
}
