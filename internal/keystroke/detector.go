package keystroke

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hidwatch/internal/alert"
	"hidwatch/internal/logging"
	"hidwatch/internal/timing"
)

// Verdict tells the input boundary what to do with a key-down event.
type Verdict int

const (
	// Allow delivers the event.
	Allow Verdict = iota
	// Suppress drops the event.
	Suppress
)

func (v Verdict) String() string {
	if v == Suppress {
		return "suppress"
	}
	return "allow"
}

// GateState is the state of the suppression gate.
type GateState int32

const (
	GateNormal GateState = iota
	GateSuppressing
)

func (s GateState) String() string {
	if s == GateSuppressing {
		return "suppressing"
	}
	return "normal"
}

// QuarantineMode selects how the quarantine period is enforced.
type QuarantineMode int

const (
	// QuarantineBlocking sleeps for the quarantine duration while holding
	// the detector lock, stalling every caller of OnKeyDown.
	QuarantineBlocking QuarantineMode = iota

	// QuarantineDeferred records a deadline instead of sleeping. Events
	// arriving before the deadline are suppressed without being measured.
	QuarantineDeferred
)

func (m QuarantineMode) String() string {
	switch m {
	case QuarantineBlocking:
		return "blocking"
	case QuarantineDeferred:
		return "deferred"
	default:
		return fmt.Sprintf("QuarantineMode(%d)", int(m))
	}
}

// ParseQuarantineMode parses "blocking" or "deferred".
func ParseQuarantineMode(s string) (QuarantineMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "blocking":
		return QuarantineBlocking, nil
	case "deferred":
		return QuarantineDeferred, nil
	default:
		return QuarantineBlocking, fmt.Errorf("keystroke: unknown quarantine mode %q", s)
	}
}

// Policy holds the detection thresholds.
type Policy struct {
	// WindowSize is the number of intervals analyzed together.
	WindowSize int
	// MeanThresholdMs: a full window averaging below this is fast.
	MeanThresholdMs float64
	// VarianceThreshold (ms²): a full window varying less than this is regular.
	VarianceThreshold float64
	// Quarantine is how long input stays suppressed after a burst.
	Quarantine time.Duration
	Mode       QuarantineMode
}

// DefaultPolicy returns the reference policy: 20 intervals, mean below
// 10 ms and variance below 2 ms², 500 ms blocking quarantine.
func DefaultPolicy() Policy {
	return Policy{
		WindowSize:        20,
		MeanThresholdMs:   10.0,
		VarianceThreshold: 2.0,
		Quarantine:        500 * time.Millisecond,
		Mode:              QuarantineBlocking,
	}
}

// ErrInvalidPolicy is wrapped by Policy.Validate failures.
var ErrInvalidPolicy = errors.New("keystroke: invalid policy")

// Validate checks p for values the detector cannot run with.
func (p Policy) Validate() error {
	switch {
	case p.WindowSize < 1:
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidPolicy, p.WindowSize)
	case p.MeanThresholdMs < 0:
		return fmt.Errorf("%w: mean threshold must not be negative", ErrInvalidPolicy)
	case p.VarianceThreshold < 0:
		return fmt.Errorf("%w: variance threshold must not be negative", ErrInvalidPolicy)
	case p.Quarantine <= 0:
		return fmt.Errorf("%w: quarantine must be positive, got %s", ErrInvalidPolicy, p.Quarantine)
	case p.Mode != QuarantineBlocking && p.Mode != QuarantineDeferred:
		return fmt.Errorf("%w: %s", ErrInvalidPolicy, p.Mode)
	}
	return nil
}

// Stats are running counters. No key content is ever recorded.
type Stats struct {
	EventsSeen     uint64
	Suppressed     uint64
	Episodes       uint64
	ClockAnomalies uint64
}

// Option configures a Detector.
type Option func(*Detector)

// WithSleep replaces time.Sleep for blocking quarantines.
func WithSleep(sleep func(time.Duration)) Option {
	return func(d *Detector) { d.sleep = sleep }
}

// WithClock replaces time.Now. Only State uses it, to expire a deferred
// quarantine without waiting for the next event.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithLogger sets the logger for clock anomalies and episodes.
func WithLogger(l *logging.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// Detector decides, one key-down at a time, whether input looks injected.
//
// OnKeyDown holds a single lock for its whole duration. In blocking mode that
// includes the quarantine sleep, so concurrent callers queue behind it.
type Detector struct {
	policy Policy
	sink   alert.Sink
	logger *logging.Logger
	sleep  func(time.Duration)
	now    func() time.Time

	mu       sync.Mutex
	window   *timing.Window
	prev     time.Time
	hasPrev  bool
	deadline time.Time

	// Mirrors readable without mu.
	state      atomic.Int32
	deadlineNs atomic.Int64

	eventsSeen     atomic.Uint64
	suppressed     atomic.Uint64
	episodes       atomic.Uint64
	clockAnomalies atomic.Uint64
}

// NewDetector returns a Detector in the Normal state with an empty window.
func NewDetector(policy Policy, sink alert.Sink, opts ...Option) (*Detector, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = alert.Discard
	}
	d := &Detector{
		policy: policy,
		sink:   sink,
		sleep:  time.Sleep,
		now:    time.Now,
		window: timing.NewWindow(policy.WindowSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logging.Nop()
	}
	return d, nil
}

// Policy returns the policy the detector was built with.
func (d *Detector) Policy() Policy { return d.policy }

// OnKeyDown processes one key-down event observed at time at.
func (d *Detector) OnKeyDown(at time.Time) Verdict {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.eventsSeen.Add(1)

	if !d.hasPrev {
		d.prev = at
		d.hasPrev = true
		return Allow
	}

	interval := at.Sub(d.prev).Milliseconds()
	d.prev = at

	if d.policy.Mode == QuarantineDeferred && !d.deadline.IsZero() {
		if at.Before(d.deadline) {
			d.suppressed.Add(1)
			return Suppress
		}
		d.endQuarantine()
	}

	if interval <= 0 {
		d.clockAnomalies.Add(1)
		d.logger.Debug("non-positive key interval", "interval_ms", interval)
	}
	d.window.Record(interval)

	if !d.window.IsFull() {
		return Allow
	}

	mean, variance, err := d.window.MeanAndVariance()
	if err != nil {
		return Allow
	}
	if mean >= d.policy.MeanThresholdMs || variance >= d.policy.VarianceThreshold {
		return Allow
	}

	d.beginQuarantine(at, mean, variance)
	return Suppress
}

func (d *Detector) beginQuarantine(at time.Time, mean, variance float64) {
	d.state.Store(int32(GateSuppressing))
	d.suppressed.Add(1)
	d.episodes.Add(1)

	d.sink.Emit(alert.New(alert.SourceDetector, alert.SeverityWarning,
		"Suspicious keystroke timing detected. Input temporarily blocked.").
		With("mean_ms", fmt.Sprintf("%.2f", mean)).
		With("variance_ms2", fmt.Sprintf("%.2f", variance)).
		With("window", fmt.Sprintf("%d", d.policy.WindowSize)).
		With("quarantine", d.policy.Quarantine.String()))

	if d.policy.Mode == QuarantineDeferred {
		d.deadline = at.Add(d.policy.Quarantine)
		d.deadlineNs.Store(d.deadline.UnixNano())
		return
	}

	d.sleep(d.policy.Quarantine)
	d.endQuarantine()
}

func (d *Detector) endQuarantine() {
	d.window.Clear()
	d.deadline = time.Time{}
	d.deadlineNs.Store(0)
	d.state.Store(int32(GateNormal))
}

// State returns the gate state without taking the detector lock, so it can
// be observed while a blocking quarantine is in progress.
func (d *Detector) State() GateState {
	s := GateState(d.state.Load())
	if s == GateSuppressing && d.policy.Mode == QuarantineDeferred {
		if ns := d.deadlineNs.Load(); ns != 0 && d.now().UnixNano() >= ns {
			return GateNormal
		}
	}
	return s
}

// Stats returns a snapshot of the counters.
func (d *Detector) Stats() Stats {
	return Stats{
		EventsSeen:     d.eventsSeen.Load(),
		Suppressed:     d.suppressed.Load(),
		Episodes:       d.episodes.Load(),
		ClockAnomalies: d.clockAnomalies.Load(),
	}
}

// WindowLen returns the number of buffered intervals.
func (d *Detector) WindowLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window.Len()
}
