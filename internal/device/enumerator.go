package device

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by enumerators on platforms they don't cover.
var ErrNotSupported = errors.New("device: enumeration not supported on this platform")

// Info describes one attached device.
type Info struct {
	ID   ID
	Name string
	// Path is the platform identifier: a sysfs entry on Linux, a device
	// instance ID on Windows.
	Path string
}

// Enumerator lists currently attached HID devices.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Info, error)
}

// EnumeratorFunc adapts a function to the Enumerator interface.
type EnumeratorFunc func(ctx context.Context) ([]Info, error)

// Enumerate calls f(ctx).
func (f EnumeratorFunc) Enumerate(ctx context.Context) ([]Info, error) { return f(ctx) }

// StaticEnumerator always reports the same devices.
type StaticEnumerator []Info

// Enumerate returns a copy of s.
func (s StaticEnumerator) Enumerate(context.Context) ([]Info, error) {
	out := make([]Info, len(s))
	copy(out, s)
	return out, nil
}
