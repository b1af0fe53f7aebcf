// hidwatchctl is the operator CLI for hidwatch: it manages the signed device
// whitelist, inspects attached devices and stored alerts, and replays
// recorded keystroke timing through the detector.
package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"hidwatch/internal/agent"
	"hidwatch/internal/alert"
	"hidwatch/internal/config"
	"hidwatch/internal/device"
	"hidwatch/internal/keystroke"
	"hidwatch/internal/signer"
	"hidwatch/internal/store"
	"hidwatch/internal/whitelist"
)

var (
	configPath = flag.String("config", "", "path to config file")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch cmd {
	case "keygen":
		err = cmdKeygen(args)
	case "sign":
		err = cmdSign(args)
	case "verify":
		err = cmdVerify(args)
	case "devices":
		err = cmdDevices(args)
	case "snapshot":
		err = cmdSnapshot(args)
	case "alerts":
		err = cmdAlerts(args)
	case "replay":
		err = cmdReplay(args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `hidwatchctl - Control utility for hidwatch

Usage: hidwatchctl [options] <command> [args]

Commands:
  keygen [-out path]              Generate an Ed25519 whitelist signing key
  snapshot [-o file]              Write a whitelist approving attached devices
  sign -key <priv> <whitelist>    Write <whitelist>.sig
  verify [-pub key] <whitelist>   Check a whitelist signature
  devices [-no-verify]            List attached HID devices and their status
  alerts [-db path] [-limit n]    Print stored alerts
  alerts -sightings               Print unapproved device sightings
  replay <intervals-file>         Run recorded key intervals (ms) through the detector
  help                            Show this help message

Options:
  -config <path>  Path to config file (default: `+config.ConfigPath()+`)

Private keys protected by a passphrase are read with HIDWATCH_KEY_PASSPHRASE.`)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func cmdKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	out := fs.String("out", "whitelist_ed25519", "private key path (public key is written to <path>.pub)")
	comment := fs.String("comment", "hidwatch whitelist", "key comment")
	fs.Parse(args)

	if _, err := os.Stat(*out); err == nil {
		return fmt.Errorf("%s already exists", *out)
	}

	pub, err := signer.GenerateKeyFiles(*out, *comment)
	if err != nil {
		return err
	}

	fmt.Printf("Private key: %s\n", *out)
	fmt.Printf("Public key:  %s.pub\n", *out)
	fmt.Printf("Fingerprint: %x\n", pub[:8])
	fmt.Println()
	fmt.Println("Install the public key on every agent and keep the private key offline.")
	return nil
}

func loadSigningKey(path string) (ed25519.PrivateKey, error) {
	if pass := os.Getenv("HIDWATCH_KEY_PASSPHRASE"); pass != "" {
		return signer.LoadPrivateKeyWithPassphrase(path, []byte(pass))
	}
	return signer.LoadPrivateKey(path)
}

func cmdSign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	keyPath := fs.String("key", "", "Ed25519 private key (OpenSSH format)")
	fs.Parse(args)

	if *keyPath == "" || fs.NArg() != 1 {
		return errors.New("usage: hidwatchctl sign -key <private-key> <whitelist.json>")
	}
	path := fs.Arg(0)

	// Never sign a document the agent would reject.
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	wl, err := whitelist.Parse(data)
	if err != nil {
		return err
	}

	priv, err := loadSigningKey(*keyPath)
	if err != nil {
		if errors.Is(err, signer.ErrKeyDecryption) {
			return fmt.Errorf("%w (set HIDWATCH_KEY_PASSPHRASE)", err)
		}
		return err
	}

	sigPath, err := signer.SignFile(priv, path)
	if err != nil {
		return err
	}
	fmt.Printf("Signed %s (%d devices)\n", path, wl.Len())
	fmt.Printf("Signature: %s\n", sigPath)
	return nil
}

func cmdVerify(args []string) error {
	cfg := loadConfig()

	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	pubPath := fs.String("pub", cfg.Devices.PublicKeyPath, "Ed25519 public key")
	fs.Parse(args)

	path := cfg.Devices.WhitelistPath
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	wl, err := whitelist.Load(path, whitelist.Options{PublicKeyPath: *pubPath})
	if err != nil {
		fmt.Printf("FAILED: %s\n", path)
		return err
	}

	fmt.Printf("VERIFIED: %s\n", path)
	fmt.Printf("  Public key: %s\n", *pubPath)
	fmt.Printf("  Devices:    %d\n", wl.Len())
	for _, id := range wl.IDs() {
		if vendor := id.VendorName(); vendor != "" {
			fmt.Printf("    %s  %s\n", id, vendor)
		} else {
			fmt.Printf("    %s\n", id)
		}
	}
	return nil
}

func enumerate(cfg *config.Config) ([]device.Info, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	devices, err := agent.PlatformEnumerator(cfg.Devices).Enumerate(ctx)
	if err != nil {
		return nil, err
	}

	// One row per identifier; composite devices list several interfaces.
	seen := make(map[device.ID]bool)
	out := devices[:0]
	for _, d := range devices {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func cmdDevices(args []string) error {
	cfg := loadConfig()

	fs := flag.NewFlagSet("devices", flag.ExitOnError)
	wlPath := fs.String("whitelist", cfg.Devices.WhitelistPath, "whitelist to compare against")
	noVerify := fs.Bool("no-verify", false, "read the whitelist without checking its signature")
	fs.Parse(args)

	devices, err := enumerate(cfg)
	if err != nil {
		return err
	}

	wl, err := whitelist.Load(*wlPath, whitelist.Options{
		PublicKeyPath: cfg.Devices.PublicKeyPath,
		Debug:         *noVerify,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: whitelist unavailable (%v); all devices shown as unapproved\n", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tSTATUS\tVENDOR\tNAME")
	unapproved := 0
	for _, d := range devices {
		status := "approved"
		if !wl.Contains(d.ID) {
			status = "UNAPPROVED"
			unapproved++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, status, d.ID.VendorName(), d.Name)
	}
	w.Flush()

	fmt.Printf("\n%d devices, %d unapproved\n", len(devices), unapproved)
	return nil
}

func cmdSnapshot(args []string) error {
	cfg := loadConfig()

	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	out := fs.String("o", "", "output file (default: stdout)")
	fs.Parse(args)

	devices, err := enumerate(cfg)
	if err != nil {
		return err
	}
	data, err := whitelist.Marshal(devices)
	if err != nil {
		return err
	}

	if *out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %d devices to %s\n", len(devices), *out)
	fmt.Printf("Review it, then: hidwatchctl sign -key <private-key> %s\n", *out)
	return nil
}

func cmdAlerts(args []string) error {
	cfg := loadConfig()

	fs := flag.NewFlagSet("alerts", flag.ExitOnError)
	dbPath := fs.String("db", cfg.Alerts.StorePath, "alert database")
	limit := fs.Int("limit", 50, "maximum alerts to show (0 for all)")
	source := fs.String("source", "", "filter by source ("+alert.SourceDetector+", "+alert.SourceDevices+", "+alert.SourceAgent+")")
	sightings := fs.Bool("sightings", false, "show unapproved device sightings instead")
	fs.Parse(args)

	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		fmt.Printf("No alert database at %s\n", *dbPath)
		return nil
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if *sightings {
		rows, err := st.Sightings()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "DEVICE\tCOUNT\tFIRST SEEN\tLAST SEEN")
		for _, s := range rows {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.DeviceID, s.Count,
				s.FirstSeen.Local().Format(time.DateTime), s.LastSeen.Local().Format(time.DateTime))
		}
		return nil
	}

	alerts, err := st.ListAlerts(*source, *limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "TIME\tSEVERITY\tSOURCE\tMESSAGE")
	for _, a := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Timestamp.Local().Format(time.DateTime), a.Severity, a.Source, a.Message)
	}
	return nil
}

func cmdReplay(args []string) error {
	cfg := loadConfig()

	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	window := fs.Int("window", cfg.Detector.WindowSize, "intervals per window")
	mean := fs.Float64("mean", cfg.Detector.MeanThresholdMs, "mean threshold (ms)")
	variance := fs.Float64("variance", cfg.Detector.VarianceThresholdMs2, "variance threshold (ms^2)")
	quarantine := fs.Duration("quarantine", cfg.Detector.Quarantine.Duration, "quarantine length")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("usage: hidwatchctl replay [flags] <intervals-file>")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	intervals, err := keystroke.ReadIntervals(f)
	if err != nil {
		return err
	}

	policy := keystroke.Policy{
		WindowSize:        *window,
		MeanThresholdMs:   *mean,
		VarianceThreshold: *variance,
		Quarantine:        *quarantine,
	}
	start := time.Unix(0, 0).UTC()
	report, err := keystroke.Replay(policy, start, intervals)
	if err != nil {
		return err
	}

	fmt.Printf("Key-downs:  %d\n", report.Events)
	fmt.Printf("Suppressed: %d\n", report.Suppressed)
	if report.Stats.ClockAnomalies > 0 {
		fmt.Printf("Non-positive intervals: %d\n", report.Stats.ClockAnomalies)
	}
	fmt.Printf("Episodes:   %d\n", len(report.Episodes))
	for i, ep := range report.Episodes {
		fmt.Printf("  %d. key-down #%d at +%s  mean=%sms variance=%sms²\n",
			i+1, ep.Event, ep.At.Sub(start), ep.MeanMs, ep.VarianceMs2)
	}
	return nil
}
