//go:build ignore

// keystroke-gen generates synthetic key-down intervals for exercising the
// timing detector without a keyboard or an injection device.
//
// Usage:
//
//	go run tools/keystroke-gen.go -output typist.txt -count 500
//	go run tools/keystroke-gen.go -output ducky.txt -profile injector
//	go run tools/keystroke-gen.go -profile typist-then-injector | hidwatchctl replay /dev/stdin
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"sort"
	"time"

	"hidwatch/internal/keystroke"
)

// TypingProfile defines parameters for simulating one source of key-downs.
type TypingProfile struct {
	Name             string
	Description      string
	MedianIntervalMs float64 // Median time between key-downs
	IntervalStdDevMs float64 // Spread of the log-normal interval
	BurstProbability float64 // Probability of a fast burst (e.g. a common word)
	BurstIntervalMs  float64 // Interval during bursts
	PauseProbability float64 // Probability of a thinking pause
	PauseMaxMs       float64 // Maximum pause duration

	// Injected profiles replay a script at a fixed delay plus jitter.
	Injected bool
	JitterMs float64

	// InjectAfter switches to Then after this many intervals.
	InjectAfter int
	Then        string
}

var profiles = map[string]TypingProfile{
	"typist": {
		Name:             "Human Typist",
		Description:      "Typical touch typist with natural variation",
		MedianIntervalMs: 180,
		IntervalStdDevMs: 90,
		BurstProbability: 0.1,
		BurstIntervalMs:  70,
		PauseProbability: 0.04,
		PauseMaxMs:       4000,
	},
	"fast-typist": {
		Name:             "Fast Typist",
		Description:      "Experienced typist sustaining over 100 wpm",
		MedianIntervalMs: 95,
		IntervalStdDevMs: 45,
		BurstProbability: 0.2,
		BurstIntervalMs:  40,
		PauseProbability: 0.02,
		PauseMaxMs:       2000,
	},
	"hunt-and-peck": {
		Name:             "Hunt and Peck",
		Description:      "Slow two-finger typing with long searches",
		MedianIntervalMs: 450,
		IntervalStdDevMs: 300,
		BurstProbability: 0.02,
		BurstIntervalMs:  200,
		PauseProbability: 0.1,
		PauseMaxMs:       8000,
	},
	"injector": {
		Name:             "Keystroke Injector",
		Description:      "USB injection device replaying a script at its default delay",
		MedianIntervalMs: 5,
		Injected:         true,
		JitterMs:         0.5,
	},
	"jittered-injector": {
		Name:             "Jittered Injector",
		Description:      "Injection script with a small random delay to look human",
		MedianIntervalMs: 8,
		Injected:         true,
		JitterMs:         1,
	},
	"typist-then-injector": {
		Name:             "Typist, then Injector",
		Description:      "Normal typing interrupted by an injection burst",
		MedianIntervalMs: 180,
		IntervalStdDevMs: 90,
		BurstProbability: 0.1,
		BurstIntervalMs:  70,
		PauseProbability: 0.04,
		PauseMaxMs:       4000,
		InjectAfter:      100,
		Then:             "injector",
	},
}

func main() {
	var (
		outputPath   = flag.String("output", "", "Output file path (default: stdout)")
		count        = flag.Int("count", 200, "Number of intervals to generate")
		profileName  = flag.String("profile", "typist", "Typing profile to use")
		seed         = flag.Int64("seed", 0, "Random seed; 0 = use current time")
		listProfiles = flag.Bool("list", false, "List available profiles")
	)
	flag.Parse()

	if *listProfiles {
		names := make([]string, 0, len(profiles))
		for name := range profiles {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("Available profiles:")
		for _, name := range names {
			fmt.Printf("  %-22s %s\n", name, profiles[name].Description)
		}
		os.Exit(0)
	}

	profile, ok := profiles[*profileName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown profile: %s\n", *profileName)
		fmt.Fprintf(os.Stderr, "Use -list to see available profiles\n")
		os.Exit(1)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	intervals := generateIntervals(rng, profile, *count)

	var out io.Writer = os.Stdout
	if *outputPath != "" {
		f, err := os.Create(*outputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "# profile=%s seed=%d\n", *profileName, *seed)
	for _, ms := range intervals {
		fmt.Fprintln(w, ms)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}

	// Statistics go to stderr so stdout can be piped.
	printStats(os.Stderr, profile, intervals)
}

func generateIntervals(rng *rand.Rand, profile TypingProfile, count int) []int64 {
	out := make([]int64, 0, count)
	inBurst := false
	burstRemaining := 0

	for i := 0; i < count; i++ {
		if profile.InjectAfter > 0 && i == profile.InjectAfter {
			rest := generateIntervals(rng, profiles[profile.Then], count-i)
			return append(out, rest...)
		}

		var intervalMs float64
		switch {
		case profile.Injected:
			intervalMs = profile.MedianIntervalMs + (rng.Float64()*2-1)*profile.JitterMs
		case inBurst && burstRemaining > 0:
			intervalMs = profile.BurstIntervalMs * (0.5 + rng.Float64())
			burstRemaining--
			if burstRemaining == 0 {
				inBurst = false
			}
		case rng.Float64() < profile.PauseProbability:
			intervalMs = profile.MedianIntervalMs + rng.Float64()*profile.PauseMaxMs
		case rng.Float64() < profile.BurstProbability:
			inBurst = true
			burstRemaining = 2 + rng.Intn(5)
			intervalMs = profile.BurstIntervalMs * (0.5 + rng.Float64())
		default:
			intervalMs = logNormalSample(rng, profile.MedianIntervalMs, profile.IntervalStdDevMs)
		}

		if intervalMs < 1 {
			intervalMs = 1
		}
		out = append(out, int64(math.Round(intervalMs)))
	}
	return out
}

// logNormalSample generates a sample from a log-normal distribution.
func logNormalSample(rng *rand.Rand, median, stdDev float64) float64 {
	mu := math.Log(median)
	sigma := math.Log(1 + stdDev/median)
	if sigma < 0.1 {
		sigma = 0.1
	}

	// Box-Muller transform
	u1 := rng.Float64()
	u2 := rng.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

	return math.Exp(mu + sigma*z)
}

func printStats(w io.Writer, profile TypingProfile, intervals []int64) {
	if len(intervals) == 0 {
		return
	}

	var sum, sumSq float64
	lo, hi := intervals[0], intervals[0]
	for _, v := range intervals {
		f := float64(v)
		sum += f
		sumSq += f * f
		lo = min(lo, v)
		hi = max(hi, v)
	}
	mean := sum / float64(len(intervals))
	variance := sumSq/float64(len(intervals)) - mean*mean

	report, err := keystroke.Replay(keystroke.DefaultPolicy(), time.Unix(0, 0), intervals)

	fmt.Fprintf(w, "\nGenerated %d intervals (%s)\n", len(intervals), profile.Name)
	fmt.Fprintf(w, "  Interval mean:     %.1f ms\n", mean)
	fmt.Fprintf(w, "  Interval variance: %.1f ms²\n", variance)
	fmt.Fprintf(w, "  Interval min/max:  %d / %d ms\n", lo, hi)
	if err == nil {
		fmt.Fprintf(w, "  Detector episodes: %d (default policy)\n", len(report.Episodes))
		fmt.Fprintf(w, "  Suppressed:        %d\n", report.Suppressed)
	}
}
