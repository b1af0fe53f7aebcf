package device

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"hidwatch/internal/logging"
)

// DefaultHotplugDir is watched for input device nodes appearing.
const DefaultHotplugDir = "/dev/input"

// hotplugSettle is how long to wait for a burst of node events to finish
// before asking for a rescan.
const hotplugSettle = 100 * time.Millisecond

// WatchHotplug watches dir and sends on the returned channel shortly after
// an input event node is created or removed. The channel is closed when ctx
// is done or the watcher fails.
func WatchHotplug(ctx context.Context, dir string, logger *logging.Logger) (<-chan struct{}, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer watcher.Close()

		var settle <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasPrefix(filepath.Base(event.Name), "event") {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Remove) == 0 {
					continue
				}
				logger.Debug("input node changed", "name", event.Name, "op", event.Op.String())
				if settle == nil {
					settle = time.After(hotplugSettle)
				}
			case <-settle:
				settle = nil
				select {
				case out <- struct{}{}:
				default:
					// rescan already pending
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("hot-plug watcher error", "error", err)
			}
		}
	}()
	return out, nil
}
