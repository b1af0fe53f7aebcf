//go:build !linux && !windows

package device

import "context"

// NewPlatformEnumerator returns an enumerator that always fails with
// ErrNotSupported, which the watcher treats as zero devices.
func NewPlatformEnumerator() Enumerator {
	return EnumeratorFunc(func(context.Context) ([]Info, error) {
		return nil, ErrNotSupported
	})
}
