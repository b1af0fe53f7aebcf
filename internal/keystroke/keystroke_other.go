//go:build !linux

package keystroke

import (
	"context"

	"hidwatch/internal/logging"
)

// StubSource is used on platforms without a built-in key-down source.
type StubSource struct{}

// NewPlatformSource returns a stub source.
func NewPlatformSource(*logging.Logger) Source {
	return StubSource{}
}

// Available returns false on unsupported platforms.
func (StubSource) Available() (bool, string) {
	return false, "no built-in key-down source for this platform; embed the detector in an input hook"
}

// Start returns ErrNotAvailable.
func (StubSource) Start(context.Context) (<-chan Event, error) {
	return nil, ErrNotAvailable
}
