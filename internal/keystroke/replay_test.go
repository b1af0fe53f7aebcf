package keystroke

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadIntervals(t *testing.T) {
	input := `# recorded from a Digispark
5, 5, 6
7	8

120 # pause
`
	got, err := ReadIntervals(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 5, 6, 7, 8, 120}, got)
}

func TestReadIntervalsRejectsGarbage(t *testing.T) {
	_, err := ReadIntervals(strings.NewReader("5\nfive\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReplayReportsEpisodes(t *testing.T) {
	var intervals []int64
	intervals = append(intervals, repeat(5, 20)...) // first burst
	intervals = append(intervals, repeat(5, 10)...) // inside the 500ms quarantine
	intervals = append(intervals, 1000)             // after the deadline
	intervals = append(intervals, repeat(5, 20)...) // second burst

	report, err := Replay(DefaultPolicy(), epoch, intervals)
	require.NoError(t, err)

	assert.Equal(t, 52, report.Events)
	assert.Equal(t, 12, report.Suppressed)
	require.Len(t, report.Episodes, 2)

	assert.Equal(t, 20, report.Episodes[0].Event)
	assert.Equal(t, epoch.Add(100*time.Millisecond), report.Episodes[0].At)
	assert.Equal(t, "5.00", report.Episodes[0].MeanMs)
	assert.Equal(t, "0.00", report.Episodes[0].VarianceMs2)
	assert.Equal(t, 51, report.Episodes[1].Event)

	assert.Equal(t, uint64(2), report.Stats.Episodes)
	assert.Equal(t, uint64(52), report.Stats.EventsSeen)
}

func TestReplayHumanTyping(t *testing.T) {
	intervals := []int64{180, 95, 240, 130, 310, 88, 150, 210, 175, 99, 260, 140, 120, 205, 330, 115, 90, 185, 220, 160, 145}
	report, err := Replay(DefaultPolicy(), epoch, intervals)
	require.NoError(t, err)
	assert.Empty(t, report.Episodes)
	assert.Zero(t, report.Suppressed)
}

func TestReplayInvalidPolicy(t *testing.T) {
	p := DefaultPolicy()
	p.WindowSize = 0
	_, err := Replay(p, epoch, []int64{5})
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}
