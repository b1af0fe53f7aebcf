package alert

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hidwatch/internal/logging"
)

type eventEntry struct {
	kind string
	eid  uint32
	msg  string
}

type fakeEventLog struct {
	entries []eventEntry
	err     error
	closed  bool
}

func (f *fakeEventLog) Info(eid uint32, msg string) error {
	f.entries = append(f.entries, eventEntry{"info", eid, msg})
	return f.err
}

func (f *fakeEventLog) Warning(eid uint32, msg string) error {
	f.entries = append(f.entries, eventEntry{"warning", eid, msg})
	return f.err
}

func (f *fakeEventLog) Close() error {
	f.closed = true
	return nil
}

func TestEventLogSinkSeverityMapping(t *testing.T) {
	w := &fakeEventLog{}
	sink := &EventLogSink{w: w}

	sink.Emit(New(SourceDevices, SeverityWarning, "Unapproved HID Device Detected: 1B4F:9206"))
	sink.Emit(New(SourceDetector, SeverityWarning, "Suspicious keystroke burst"))
	sink.Emit(New(SourceAgent, SeverityInfo, "Keystroke timing is not monitored on this host."))

	require.Len(t, w.entries, 3)
	assert.Equal(t, eventEntry{"warning", EventIDDevices, "Unapproved HID Device Detected: 1B4F:9206"}, w.entries[0])
	assert.Equal(t, "warning", w.entries[1].kind)
	assert.Equal(t, EventIDDetector, w.entries[1].eid)
	assert.Equal(t, "info", w.entries[2].kind)
	assert.Equal(t, EventIDAgent, w.entries[2].eid)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestEventLogSinkMessageListsAttrs(t *testing.T) {
	w := &fakeEventLog{}
	sink := &EventLogSink{w: w}

	sink.Emit(New(SourceDetector, SeverityWarning, "Suspicious keystroke burst").
		With("variance_ms2", "0.00").
		With("mean_ms", "5.00"))

	require.Len(t, w.entries, 1)
	assert.Equal(t, "Suspicious keystroke burst\r\n\r\nmean_ms: 5.00\r\nvariance_ms2: 0.00", w.entries[0].msg)
}

func TestEventLogSinkReportsWriteErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, &logging.Config{Level: logging.LevelInfo, Format: logging.FormatJSON})
	sink := &EventLogSink{w: &fakeEventLog{err: errors.New("access denied")}, Logger: logger}

	sink.Emit(New(SourceDevices, SeverityWarning, "Unapproved HID Device Detected: 1B4F:9206"))

	assert.Contains(t, buf.String(), "event log write failed")
	assert.Contains(t, buf.String(), "access denied")
}
