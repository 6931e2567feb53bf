package collectors

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/hemiaoio/android-auto-test/internal/perf"
	"github.com/hemiaoio/android-auto-test/internal/shell"
)

// Memory reads system totals from /proc/meminfo and, when a target
// package is set, per-heap PSS breakdown from a dumpsys meminfo report.
type Memory struct {
	exec shell.Executor
}

func NewMemory(exec shell.Executor) *Memory {
	return &Memory{exec: exec}
}

func (m *Memory) Collect(pkg string) perf.MemorySample {
	out := perf.MemorySample{}
	out.TotalRAMKb, out.AvailableRAMKb = readMeminfo()

	if pkg != "" {
		res, err := m.exec.Run(bgCtx(), "dumpsys meminfo "+pkg, true, 0)
		if err == nil {
			out.TotalPSSKb, out.NativePSSKb, out.DalvikPSSKb, out.OtherPSSKb, out.HeapUsedKb, out.HeapMaxKb = parseMeminfoReport(res.Stdout)
		}
	}
	return out
}

func readMeminfo() (totalKb, availableKb int64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			totalKb = parseKbField(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			availableKb = parseKbField(line)
		}
	}
	return
}

func parseKbField(line string) int64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseInt(fields[1], 10, 64)
	return v
}

// parseMeminfoReport extracts PSS totals and the native/Dalvik/other
// breakdown by keyword match, per §4.8.
func parseMeminfoReport(report string) (total, native, dalvik, other, heapUsed, heapMax int64) {
	for _, line := range strings.Split(report, "\n") {
		lower := strings.ToLower(strings.TrimSpace(line))
		fields := strings.Fields(lower)
		if len(fields) == 0 {
			continue
		}
		val := firstInt(fields)
		switch {
		case strings.Contains(lower, "total pss"):
			total = val
		case strings.Contains(lower, "native heap"):
			native = val
		case strings.Contains(lower, "dalvik heap"):
			dalvik = val
		case strings.Contains(lower, "unknown") || strings.Contains(lower, "other"):
			other += val
		case strings.Contains(lower, "heap alloc"):
			heapUsed = val
		case strings.Contains(lower, "heap size"):
			heapMax = val
		}
	}
	return
}

func firstInt(fields []string) int64 {
	for _, f := range fields {
		if v, err := strconv.ParseInt(f, 10, 64); err == nil {
			return v
		}
	}
	return 0
}
