// Package whitelist loads the approved-device list and verifies its
// detached signature.
//
// Two JSON shapes are accepted:
//
//	{"046D:C52B": "Logitech USB Receiver", "045E:07A5": ""}
//	{"devices": ["046D:C52B", "045E:07A5"]}
//
// The first is what operators have historically deployed; values are
// free-form descriptions and are ignored.
package whitelist

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"hidwatch/internal/device"
	"hidwatch/internal/logging"
	"hidwatch/internal/signer"
)

// Errors
var (
	ErrMalformed         = errors.New("whitelist: malformed document")
	ErrNoPublicKey       = errors.New("whitelist: no public key configured for signature verification")
	ErrSignatureMissing  = signer.ErrSignatureMissing
	ErrSignatureMismatch = signer.ErrSignatureMismatch
)

// Options control how Load verifies the file.
type Options struct {
	// PublicKeyPath names an OpenSSH or raw Ed25519 public key.
	PublicKeyPath string
	// PublicKey takes precedence over PublicKeyPath when set.
	PublicKey ed25519.PublicKey
	// Debug skips signature verification.
	Debug bool

	Logger *logging.Logger
	Audit  *logging.AuditLogger
}

// Load reads, verifies and parses the whitelist at path. The signature is
// checked against the same bytes that are parsed.
func Load(path string, opts Options) (*device.Whitelist, error) {
	wl, err := load(path, opts)
	if opts.Audit != nil {
		entries := 0
		if wl != nil {
			entries = wl.Len()
		}
		if auditErr := opts.Audit.LogWhitelist(path, err == nil && !opts.Debug, entries, err); auditErr != nil && opts.Logger != nil {
			opts.Logger.Error("audit write failed", "error", auditErr)
		}
	}
	return wl, err
}

func load(path string, opts Options) (*device.Whitelist, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read whitelist: %w", err)
	}

	if opts.Debug {
		logger.Warn("Whitelist loaded in debug mode. Signature not verified.", "path", path)
	} else {
		pub := opts.PublicKey
		if pub == nil {
			if opts.PublicKeyPath == "" {
				return nil, ErrNoPublicKey
			}
			pub, err = signer.LoadPublicKey(opts.PublicKeyPath)
			if err != nil {
				return nil, fmt.Errorf("load whitelist public key: %w", err)
			}
		}
		if err := signer.VerifyBytes(pub, path, data); err != nil {
			return nil, fmt.Errorf("verify whitelist: %w", err)
		}
	}

	wl, err := Parse(data)
	if err != nil {
		return nil, err
	}
	logger.Info("whitelist loaded", "path", path, "entries", wl.Len(), "verified", !opts.Debug)
	return wl, nil
}

// Parse decodes either accepted JSON shape.
func Parse(data []byte) (*device.Whitelist, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if list, ok := raw["devices"]; ok && len(raw) == 1 {
		var keys []string
		if err := json.Unmarshal(list, &keys); err != nil {
			return nil, fmt.Errorf("%w: devices: %v", ErrMalformed, err)
		}
		return fromKeys(keys)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fromKeys(keys)
}

func fromKeys(keys []string) (*device.Whitelist, error) {
	ids := make([]device.ID, 0, len(keys))
	for _, k := range keys {
		id, err := device.ParseID(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		ids = append(ids, id)
	}
	return device.NewWhitelist(ids...), nil
}

// Marshal encodes devices in the keyed-object form, with each device's name
// as the description.
func Marshal(devices []device.Info) ([]byte, error) {
	entries := make(map[string]string, len(devices))
	for _, d := range devices {
		key := d.ID.String()
		if _, ok := entries[key]; ok && d.Name == "" {
			continue
		}
		entries[key] = d.Name
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("encode whitelist: %w", err)
	}
	return buf.Bytes(), nil
}
