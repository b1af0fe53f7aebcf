package keystroke

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"hidwatch/internal/alert"
)

// ReadIntervals parses recorded key-down intervals in milliseconds. Values
// may be separated by whitespace or commas; text after '#' is ignored.
func ReadIntervals(r io.Reader) ([]int64, error) {
	var out []int64
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		for _, f := range fields {
			v, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid interval %q", line, f)
			}
			out = append(out, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read intervals: %w", err)
	}
	return out, nil
}

// Episode is one quarantine raised during a replay.
type Episode struct {
	// Event is the zero-based index of the key-down that triggered it.
	Event       int
	At          time.Time
	MeanMs      string
	VarianceMs2 string
}

// ReplayReport summarizes a replay.
type ReplayReport struct {
	Events     int
	Suppressed int
	Episodes   []Episode
	Stats      Stats
}

// Replay runs intervals through a fresh detector with policy. The first
// key-down is at start. Quarantines are always deferred so a replay never
// sleeps; suppression windows are measured on the recorded timeline.
func Replay(policy Policy, start time.Time, intervalsMs []int64) (ReplayReport, error) {
	policy.Mode = QuarantineDeferred

	var (
		report  ReplayReport
		current int
		at      = start
	)
	sink := alert.SinkFunc(func(a alert.Alert) {
		report.Episodes = append(report.Episodes, Episode{
			Event:       current,
			At:          at,
			MeanMs:      a.Attrs["mean_ms"],
			VarianceMs2: a.Attrs["variance_ms2"],
		})
	})

	d, err := NewDetector(policy, sink, WithClock(func() time.Time { return at }))
	if err != nil {
		return ReplayReport{}, err
	}

	press := func() {
		if d.OnKeyDown(at) == Suppress {
			report.Suppressed++
		}
		report.Events++
	}

	press()
	for i, ms := range intervalsMs {
		current = i + 1
		at = at.Add(time.Duration(ms) * time.Millisecond)
		press()
	}

	report.Stats = d.Stats()
	return report, nil
}
