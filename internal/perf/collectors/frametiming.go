package collectors

import (
	"strconv"
	"strings"
	"sync"

	"github.com/hemiaoio/android-auto-test/internal/perf"
	"github.com/hemiaoio/android-auto-test/internal/shell"
)

// FrameTiming prefers a surface-flinger latency report (presentation
// timestamps) for live fps; when unavailable it falls back to a
// cumulative gfxinfo summary (total/janky frame counts only, no live
// fps).
type FrameTiming struct {
	exec shell.Executor

	mu           sync.Mutex
	lastSeenNs   int64 // last presentation timestamp already accounted for
	prevTotal    int64 // fallback: cumulative total frames
	prevJanky    int64 // fallback: cumulative janky frames
	haveFallback bool
}

func NewFrameTiming(exec shell.Executor) *FrameTiming {
	return &FrameTiming{exec: exec}
}

func (f *FrameTiming) Collect(targetSurface string) perf.FPSSample {
	f.mu.Lock()
	defer f.mu.Unlock()

	if targetSurface != "" {
		if sample, ok := f.collectLatency(targetSurface); ok {
			return sample
		}
	}
	return f.collectGfxFallback(targetSurface)
}

// collectLatency parses "dumpsys SurfaceFlinger --latency <surface>":
// a header line with the refresh period, followed by presentation
// timestamp triples. Only rows newer than lastSeenNs count.
func (f *FrameTiming) collectLatency(surface string) (perf.FPSSample, bool) {
	res, err := f.exec.Run(bgCtx(), "dumpsys SurfaceFlinger --latency "+surface, true, 0)
	if err != nil || res.Stdout == "" {
		return perf.FPSSample{}, false
	}

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) < 2 {
		return perf.FPSSample{}, false
	}

	var timestamps []int64
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ts, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || ts == 0 {
			continue
		}
		if ts > f.lastSeenNs {
			timestamps = append(timestamps, ts)
		}
	}
	if len(timestamps) == 0 {
		return perf.FPSSample{Current: 0, Average: 0}, true
	}
	f.lastSeenNs = timestamps[len(timestamps)-1]

	intervals := make([]float64, 0, len(timestamps)-1)
	jank, bigJank := 0, 0
	for i := 1; i < len(timestamps); i++ {
		ms := float64(timestamps[i]-timestamps[i-1]) / 1e6
		intervals = append(intervals, ms)
		if ms >= perf.BigJankThresholdMs {
			bigJank++
		} else if ms >= perf.JankThresholdMs {
			jank++
		}
	}

	elapsedSec := float64(timestamps[len(timestamps)-1]-timestamps[0]) / 1e9
	current := 0.0
	if elapsedSec > 0 {
		current = float64(len(timestamps)) / elapsedSec
	}

	return perf.FPSSample{
		Current:        current,
		Average:        current,
		Jank:           jank,
		BigJank:        bigJank,
		FrameIntervals: intervals,
	}, true
}

// collectGfxFallback parses "dumpsys gfxinfo <pkg>" for cumulative
// "Total frames rendered"/"Janky frames" counters, yielding deltas
// since the previous read with no live fps figure.
func (f *FrameTiming) collectGfxFallback(pkg string) perf.FPSSample {
	if pkg == "" {
		return perf.FPSSample{}
	}
	res, err := f.exec.Run(bgCtx(), "dumpsys gfxinfo "+pkg, true, 0)
	if err != nil {
		return perf.FPSSample{}
	}

	var total, janky int64
	for _, line := range strings.Split(res.Stdout, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Total frames rendered:") {
			total = parseTrailingInt(trimmed)
		}
		if strings.HasPrefix(trimmed, "Janky frames:") {
			janky = parseTrailingInt(trimmed)
		}
	}

	out := perf.FPSSample{}
	if f.haveFallback {
		out.Jank = int(janky - f.prevJanky)
		if out.Jank < 0 {
			out.Jank = 0
		}
	}
	f.prevTotal, f.prevJanky, f.haveFallback = total, janky, true
	return out
}

func parseTrailingInt(line string) int64 {
	fields := strings.Fields(line)
	for i := len(fields) - 1; i >= 0; i-- {
		digits := strings.TrimRight(fields[i], "%")
		if v, err := strconv.ParseInt(digits, 10, 64); err == nil {
			return v
		}
	}
	return 0
}
