// Package timing keeps a fixed-size window of inter-keystroke intervals
// and derives the statistics the anomaly detector decides on.
//
// Intervals are whole milliseconds. Only the gaps between key-down events
// are stored; nothing about which keys were pressed ever reaches this package.
package timing

import "errors"

// ErrInsufficientData is returned by MeanAndVariance when the window has
// not yet filled to capacity.
var ErrInsufficientData = errors.New("timing: insufficient data")

// Window is a FIFO ring of the most recent intervals.
//
// Window is not safe for concurrent use; the owner serializes access.
type Window struct {
	buf   []int64
	start int // index of the oldest entry
	size  int
}

// NewWindow creates a window holding at most capacity intervals.
// A capacity below 1 is treated as 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]int64, capacity)}
}

// Record appends an interval, evicting the oldest one when the window is full.
func (w *Window) Record(intervalMs int64) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = intervalMs
		w.size++
		return
	}
	w.buf[w.start] = intervalMs
	w.start = (w.start + 1) % len(w.buf)
}

// IsFull reports whether the window holds exactly Cap() intervals.
func (w *Window) IsFull() bool {
	return w.size == len(w.buf)
}

// Len returns the number of intervals currently held.
func (w *Window) Len() int {
	return w.size
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Clear empties the window.
func (w *Window) Clear() {
	w.start = 0
	w.size = 0
}

// Values returns a copy of the held intervals, oldest first.
func (w *Window) Values() []int64 {
	out := make([]int64, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// MeanAndVariance returns the arithmetic mean and population variance of
// the window in ms and ms². It fails with ErrInsufficientData unless the
// window is full.
func (w *Window) MeanAndVariance() (mean, variance float64, err error) {
	if !w.IsFull() {
		return 0, 0, ErrInsufficientData
	}

	n := float64(w.size)
	var sum float64
	for i := 0; i < w.size; i++ {
		sum += float64(w.buf[i])
	}
	mean = sum / n

	var sq float64
	for i := 0; i < w.size; i++ {
		d := float64(w.buf[i]) - mean
		sq += d * d
	}
	variance = sq / n

	return mean, variance, nil
}
