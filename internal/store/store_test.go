package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hidwatch/internal/alert"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesDirectory(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nested", "dir", "alerts.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestMigrationsApplied(t *testing.T) {
	s := openTestStore(t)

	v, err := SchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion(), v)

	// Running again is a no-op.
	require.NoError(t, MigrateDB(s.db))
	v, err = SchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion(), v)
}

func TestInsertAndListAlerts(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := alert.New(alert.SourceDetector, alert.SeverityWarning, "Suspicious keystroke burst")
	older.Timestamp = base
	newer := alert.New(alert.SourceDevices, alert.SeverityWarning, "Unapproved HID Device Detected: 1234:ABCD").
		With("device", "1234:ABCD")
	newer.Timestamp = base.Add(time.Second)

	require.NoError(t, s.InsertAlert(older))
	require.NoError(t, s.InsertAlert(newer))

	alerts, err := s.ListAlerts("", 0)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, newer.ID, alerts[0].ID)
	assert.Equal(t, "1234:ABCD", alerts[0].Attrs["device"])
	assert.Equal(t, alert.SeverityWarning, alerts[0].Severity)
	assert.True(t, alerts[1].Timestamp.Equal(base))
	assert.Nil(t, alerts[1].Attrs)

	limited, err := s.ListAlerts("", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	bySource, err := s.ListAlerts(alert.SourceDetector, 0)
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, older.ID, bySource[0].ID)

	n, err := s.CountAlerts()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDeviceSightings(t *testing.T) {
	s := openTestStore(t)

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		a := alert.New(alert.SourceDevices, alert.SeverityWarning, "Unapproved HID Device Detected: 1234:ABCD").
			With("device", "1234:ABCD")
		a.Timestamp = first.Add(time.Duration(i) * time.Minute)
		s.Emit(a)
	}

	sightings, err := s.Sightings()
	require.NoError(t, err)
	require.Len(t, sightings, 1)
	assert.Equal(t, "1234:ABCD", sightings[0].DeviceID)
	assert.Equal(t, int64(3), sightings[0].Count)
	assert.True(t, sightings[0].FirstSeen.Equal(first))
	assert.True(t, sightings[0].LastSeen.Equal(first.Add(2*time.Minute)))
	assert.Zero(t, s.WriteErrors())
}

func TestEmitDuplicateIDReportsError(t *testing.T) {
	s := openTestStore(t)

	var got error
	s.OnError = func(err error) { got = err }

	a := alert.New(alert.SourceAgent, alert.SeverityInfo, "agent started")
	s.Emit(a)
	s.Emit(a)

	require.Error(t, got)
	assert.Equal(t, uint64(1), s.WriteErrors())

	n, err := s.CountAlerts()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPruneBefore(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	old := alert.New(alert.SourceAgent, alert.SeverityInfo, "old")
	old.Timestamp = now.Add(-48 * time.Hour)
	fresh := alert.New(alert.SourceAgent, alert.SeverityInfo, "fresh")
	fresh.Timestamp = now

	require.NoError(t, s.InsertAlert(old))
	require.NoError(t, s.InsertAlert(fresh))

	removed, err := s.PruneBefore(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	alerts, err := s.ListAlerts("", 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "fresh", alerts[0].Message)
}

func TestInsertAfterCloseFails(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.InsertAlert(alert.New(alert.SourceAgent, alert.SeverityInfo, "late"))
	require.Error(t, err)
}
