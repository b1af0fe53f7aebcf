//go:build linux

package keystroke

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"hidwatch/internal/logging"
)

// EvdevSource reads key-down events from /dev/input/event* devices.
//
// Reading evdev does not grab the device, so a Suppress verdict cannot stop
// the event from reaching other readers.
type EvdevSource struct {
	// Devices overrides keyboard discovery when non-empty.
	Devices []string
	Logger  *logging.Logger

	mu      sync.Mutex
	running bool
}

// NewPlatformSource returns the evdev source.
func NewPlatformSource(logger *logging.Logger) Source {
	return &EvdevSource{Logger: logger}
}

// Available checks if we can read input devices.
func (s *EvdevSource) Available() (bool, string) {
	devices, err := s.devices()
	if err != nil {
		return false, fmt.Sprintf("cannot find keyboard devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard devices found"
	}

	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return true, fmt.Sprintf("found keyboard device: %s", dev)
		}
	}

	return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
}

func (s *EvdevSource) devices() ([]string, error) {
	if len(s.Devices) > 0 {
		return s.Devices, nil
	}
	return findKeyboardDevices("/proc/bus/input/devices")
}

// findKeyboardDevices lists event nodes whose capability bitmap looks like a
// keyboard's.
func findKeyboardDevices(procPath string) ([]string, error) {
	f, err := os.Open(procPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]bool)
	var devices []string
	add := func(dev string) {
		if dev != "" && !seen[dev] {
			seen[dev] = true
			devices = append(devices, dev)
		}
	}

	scanner := bufio.NewScanner(f)
	var handler string
	isKeyboard := false
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(line) {
				if strings.HasPrefix(part, "event") {
					handler = "/dev/input/" + part
				}
			}
		case strings.HasPrefix(line, "B: KEY="):
			// Keyboards have many key bits set
			isKeyboard = len(strings.TrimPrefix(line, "B: KEY=")) > 20
		case line == "":
			if isKeyboard {
				add(handler)
			}
			handler = ""
			isKeyboard = false
		}
	}
	if isKeyboard {
		add(handler)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	matches, _ := filepath.Glob("/dev/input/by-id/*-kbd")
	for _, m := range matches {
		if target, err := filepath.EvalSymlinks(m); err == nil {
			add(target)
		}
	}
	return devices, nil
}

// Start opens every readable keyboard and streams their key-downs.
func (s *EvdevSource) Start(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrAlreadyRunning
	}

	devices, err := s.devices()
	if err != nil || len(devices) == 0 {
		return nil, ErrNotAvailable
	}

	var opened []inputDevice
	for _, path := range devices {
		dev, err := s.openInputDevice(path)
		if err != nil {
			s.logger().Debug("skip input device", "device", path, "error", err)
			continue
		}
		opened = append(opened, dev)
	}
	if len(opened) == 0 {
		return nil, fmt.Errorf("%w: no readable keyboard device", ErrNotAvailable)
	}

	s.running = true
	ch := make(chan Event, 64)
	go s.readLoop(ctx, opened, ch)
	return ch, nil
}

func (s *EvdevSource) logger() *logging.Logger {
	if s.Logger == nil {
		return logging.Nop()
	}
	return s.Logger
}

const (
	evKey    = 1
	keyPress = 1

	// struct input_event on 64-bit: timeval(16) type(2) code(2) value(4)
	inputEventSize = 24
	pollTimeoutMs  = 250
)

// evIOCSClockID is EVIOCSCLOCKID, _IOW('E', 0xa0, int).
const evIOCSClockID = 0x400445a0

// inputDevice is an open event node. Kernel event timestamps are mapped
// onto the process clock through the pair (base, baseNs) sampled at open.
type inputDevice struct {
	fd     int
	path   string
	clock  int32
	base   time.Time
	baseNs int64
}

// openInputDevice opens path and asks the kernel to stamp its events with
// CLOCK_MONOTONIC. Nodes that refuse keep CLOCK_REALTIME.
func (s *EvdevSource) openInputDevice(path string) (inputDevice, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return inputDevice{}, err
	}

	dev := inputDevice{fd: fd, path: path, clock: unix.CLOCK_REALTIME}
	if err := unix.IoctlSetPointerInt(fd, evIOCSClockID, unix.CLOCK_MONOTONIC); err != nil {
		s.logger().Debug("input device keeps realtime timestamps", "device", path, "error", err)
	} else {
		dev.clock = unix.CLOCK_MONOTONIC
	}

	var ts unix.Timespec
	if err := unix.ClockGettime(dev.clock, &ts); err != nil {
		unix.Close(fd)
		return inputDevice{}, fmt.Errorf("read clock: %w", err)
	}
	dev.base = time.Now()
	dev.baseNs = ts.Nano()
	return dev, nil
}

// eventTime converts an input_event timeval to a time comparable with
// time.Now.
func (d inputDevice) eventTime(sec, usec int64) time.Time {
	return d.base.Add(time.Duration(sec*int64(time.Second) + usec*int64(time.Microsecond) - d.baseNs))
}

func (s *EvdevSource) readLoop(ctx context.Context, devs []inputDevice, ch chan<- Event) {
	defer func() {
		for _, d := range devs {
			unix.Close(d.fd)
		}
		close(ch)
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	fds := make([]unix.PollFd, len(devs))
	for i, d := range devs {
		fds[i] = unix.PollFd{Fd: int32(d.fd), Events: unix.POLLIN}
	}
	buf := make([]byte, inputEventSize*64)

	for ctx.Err() == nil {
		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			s.logger().Error("poll input devices", "error", err)
			return
		}
		if n == 0 {
			continue
		}

		for i := range fds {
			rev := fds[i].Revents
			if rev&unix.POLLIN != 0 {
				if !s.readEvents(ctx, devs[i], buf, ch) {
					return
				}
			}
			if rev&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				s.logger().Info("input device went away", "device", devs[i].path)
				fds[i].Fd = -1
			}
		}
	}
}

// readEvents drains one read from dev and forwards its key-downs. It returns
// false when ctx is done.
func (s *EvdevSource) readEvents(ctx context.Context, dev inputDevice, buf []byte, ch chan<- Event) bool {
	nr, err := unix.Read(dev.fd, buf)
	if err != nil || nr < inputEventSize {
		return true
	}
	// Several key-downs can arrive in one read; each keeps its own kernel
	// timestamp so intervals reflect when the keys were pressed.
	for off := 0; off+inputEventSize <= nr; off += inputEventSize {
		ev := buf[off : off+inputEventSize]
		typ := binary.LittleEndian.Uint16(ev[16:18])
		value := int32(binary.LittleEndian.Uint32(ev[20:24]))
		if typ != evKey || value != keyPress {
			continue
		}
		sec := int64(binary.LittleEndian.Uint64(ev[0:8]))
		usec := int64(binary.LittleEndian.Uint64(ev[8:16]))
		select {
		case ch <- Event{Time: dev.eventTime(sec, usec), Device: dev.path}:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
