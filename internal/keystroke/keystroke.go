// Package keystroke detects scripted keystroke injection from key-down timing.
//
// IMPORTANT: This package measures the time between key-down events - it
// does NOT capture or record which keys are pressed. A Detector sees
// "a key went down at t", never "the key was h".
//
// The input boundary (an OS hook, the Linux evdev reader, or a replay) calls
// Detector.OnKeyDown once per key-down, in order, and acts on the Verdict.
//
// Platform support:
//   - Linux: observes /dev/input/event* (requires input group or root);
//     it cannot retract events, so suppression is reported, not enforced
//   - Other platforms: no built-in source; embed the Detector in a host hook
package keystroke

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Event is one key-down observation.
type Event struct {
	Time time.Time
	// Device names where the event came from, if known.
	Device string
}

// Source produces key-down events.
type Source interface {
	// Start begins producing events. The channel is closed when ctx is
	// done or the source fails.
	Start(ctx context.Context) (<-chan Event, error)

	// Available returns true if the source can run on this platform
	// with current permissions.
	Available() (bool, string)
}

// Forwarder is told the verdict for every event a Pump processes.
type Forwarder interface {
	Forward(ev Event, v Verdict)
}

// ForwarderFunc adapts a function to the Forwarder interface.
type ForwarderFunc func(Event, Verdict)

// Forward calls f(ev, v).
func (f ForwarderFunc) Forward(ev Event, v Verdict) { f(ev, v) }

// ErrNotAvailable is returned when no key-down source exists on this platform.
var ErrNotAvailable = errors.New("keystroke: key-down source not available on this platform")

// ErrAlreadyRunning is returned when Start is called while already running.
var ErrAlreadyRunning = errors.New("keystroke: source already running")

// Pump feeds events from src through d until ctx is done or the source
// closes its channel. fwd may be nil.
func Pump(ctx context.Context, src Source, d *Detector, fwd Forwarder) error {
	events, err := src.Start(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			v := d.OnKeyDown(ev.Time)
			if fwd != nil {
				fwd.Forward(ev, v)
			}
		}
	}
}

// SimulatedSource is a source for tests and replays that doesn't read a
// real keyboard.
type SimulatedSource struct {
	mu      sync.Mutex
	ch      chan Event
	running bool
}

// NewSimulated creates a simulated source buffering up to n events.
func NewSimulated(n int) *SimulatedSource {
	if n < 1 {
		n = 1
	}
	return &SimulatedSource{ch: make(chan Event, n)}
}

// Start returns the event channel.
func (s *SimulatedSource) Start(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrAlreadyRunning
	}
	s.running = true
	return s.ch, nil
}

// Press queues a key-down at the given time. It blocks when the buffer is full.
func (s *SimulatedSource) Press(at time.Time) {
	s.ch <- Event{Time: at, Device: "simulated"}
}

// PressIntervals queues a key-down at start and then one per interval,
// given in milliseconds.
func (s *SimulatedSource) PressIntervals(start time.Time, intervalsMs []int64) time.Time {
	at := start
	s.Press(at)
	for _, ms := range intervalsMs {
		at = at.Add(time.Duration(ms) * time.Millisecond)
		s.Press(at)
	}
	return at
}

// Close ends the event stream.
func (s *SimulatedSource) Close() {
	close(s.ch)
}

// Available returns true (simulated is always available).
func (s *SimulatedSource) Available() (bool, string) {
	return true, "simulated source (for testing)"
}

// FeedIntervals drives d directly with a first key-down at start followed by
// one key-down per interval. It returns the verdict for every call.
func FeedIntervals(d *Detector, start time.Time, intervalsMs []int64) []Verdict {
	verdicts := make([]Verdict, 0, len(intervalsMs)+1)
	at := start
	verdicts = append(verdicts, d.OnKeyDown(at))
	for _, ms := range intervalsMs {
		at = at.Add(time.Duration(ms) * time.Millisecond)
		verdicts = append(verdicts, d.OnKeyDown(at))
	}
	return verdicts
}
