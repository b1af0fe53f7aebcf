// Package device enumerates attached human-interface devices and checks
// them against an approved whitelist.
package device

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedID is returned for identifiers not of the form "VVVV:PPPP".
var ErrMalformedID = errors.New("device: malformed identifier")

// ID is a USB vendor/product identifier pair.
type ID struct {
	Vendor  uint16
	Product uint16
}

// String returns the canonical "VVVV:PPPP" form in uppercase hex.
func (id ID) String() string {
	return fmt.Sprintf("%04X:%04X", id.Vendor, id.Product)
}

// ParseID parses "VVVV:PPPP" in either case.
func ParseID(s string) (ID, error) {
	vs, ps, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(vs) != 4 || len(ps) != 4 {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformedID, s)
	}
	v, err := strconv.ParseUint(vs, 16, 16)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformedID, s)
	}
	p, err := strconv.ParseUint(ps, 16, 16)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformedID, s)
	}
	return ID{Vendor: uint16(v), Product: uint16(p)}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Windows device paths and instance IDs embed "VID_xxxx&PID_xxxx";
// interface paths use lowercase.
var vidPidPattern = regexp.MustCompile(`(?i)VID_([0-9A-F]{4})&PID_([0-9A-F]{4})`)

// ParseDevicePath extracts the identifier from a Windows device path such as
// `\\?\hid#vid_046d&pid_c52b&mi_00#...` or `HID\VID_046D&PID_C52B\...`.
func ParseDevicePath(path string) (ID, bool) {
	m := vidPidPattern.FindStringSubmatch(path)
	if m == nil {
		return ID{}, false
	}
	id, err := ParseID(m[1] + ":" + m[2])
	if err != nil {
		return ID{}, false
	}
	return id, true
}

// WellKnownVendors maps USB vendor IDs to names for log output.
var WellKnownVendors = map[uint16]string{
	0x045E: "Microsoft",
	0x046D: "Logitech",
	0x04D9: "Holtek (generic)",
	0x05AC: "Apple",
	0x0609: "Primax",
	0x0951: "Kingston (HyperX)",
	0x0A5C: "Broadcom",
	0x1038: "SteelSeries",
	0x1050: "Yubico",
	0x1532: "Razer",
	0x16C0: "Van Ooijen (V-USB, common on injection boards)",
	0x17EF: "Lenovo",
	0x1B1C: "Corsair",
	0x1B4F: "SparkFun",
	0x1D50: "OpenMoko",
	0x2341: "Arduino",
	0x239A: "Adafruit",
	0x258A: "SINO WEALTH (generic)",
	0x3297: "ZSA (Moonlander/Ergodox)",
	0x4653: "Keychron",
	0x8087: "Intel",
	0xFEED: "Custom/QMK",
}

// VendorName returns a human-readable vendor name, or "" if unknown.
func (id ID) VendorName() string {
	return WellKnownVendors[id.Vendor]
}
