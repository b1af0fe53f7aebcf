package alert

import (
	"context"
	"log/slog"

	"hidwatch/internal/logging"
)

// LogSink writes alerts to a structured logger at warn (or info) level.
type LogSink struct {
	Logger *logging.Logger
}

// Emit logs a.
func (s LogSink) Emit(a Alert) {
	level := slog.LevelWarn
	if a.Severity == SeverityInfo {
		level = slog.LevelInfo
	}

	args := make([]any, 0, 6+2*len(a.Attrs))
	args = append(args, "alert_id", a.ID, "source", a.Source, "severity", a.Severity.String())
	for _, k := range a.AttrKeys() {
		args = append(args, k, a.Attrs[k])
	}
	s.Logger.Log(context.Background(), level, a.Message, args...)
}

// AuditSink appends alerts to the JSON audit log. Write failures are
// reported to Logger, if set, and otherwise dropped.
type AuditSink struct {
	Audit  *logging.AuditLogger
	Logger *logging.Logger
}

// Emit records a as an audit event.
func (s AuditSink) Emit(a Alert) {
	err := s.Audit.Log(logging.AuditEvent{
		Timestamp: a.Timestamp,
		EventType: logging.AuditEventAlert,
		AlertID:   a.ID,
		Severity:  a.Severity.String(),
		Source:    a.Source,
		Message:   a.Message,
		Details:   a.Attrs,
	})
	if err != nil && s.Logger != nil {
		s.Logger.Error("audit write failed", "alert_id", a.ID, "error", err)
	}
}
