// Package collectors implements the pure, stateful readers over
// OS-exposed counters that back each perf metric family. The CPU and
// network collectors and the frame-timing fallback compute rates from
// the difference between consecutive reads, so their first read after
// construction yields zero; memory and battery report current readings.
package collectors

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/hemiaoio/android-auto-test/internal/perf"
	"github.com/hemiaoio/android-auto-test/internal/shell"
)

type cpuTotals struct {
	total, idle int64
}

// CPU computes system and target-process CPU percentage from the
// difference of cumulative counters between consecutive reads.
type CPU struct {
	exec shell.Executor

	mu        sync.Mutex
	prevSys   cpuTotals
	prevCores []cpuTotals
	prevProc  int64 // prior user+system ticks for the target process
	havePrev  bool
}

func NewCPU(exec shell.Executor) *CPU {
	return &CPU{exec: exec}
}

// Collect reads /proc/stat for system and per-core totals, and
// /proc/<pid>/stat for the target process if pkg resolves to a pid.
func (c *CPU) Collect(pkg string) perf.CPUSample {
	c.mu.Lock()
	defer c.mu.Unlock()

	sysTotal, cores := readProcStat()

	out := perf.CPUSample{}
	if c.havePrev {
		out.SystemPercent = percentDelta(c.prevSys, sysTotal)
		out.PerCore = make([]float64, len(cores))
		for i := range cores {
			if i < len(c.prevCores) {
				out.PerCore[i] = percentDelta(c.prevCores[i], cores[i])
			}
		}
	} else {
		out.PerCore = make([]float64, len(cores))
	}

	if pkg != "" {
		procTicks := readProcessTicks(c.exec, pkg)
		if c.havePrev {
			// Share of all CPU time: the process's tick delta over the
			// system-wide tick delta since the previous read.
			delta := procTicks - c.prevProc
			totalDelta := sysTotal.total - c.prevSys.total
			if delta > 0 && totalDelta > 0 {
				out.AppPercent = float64(delta) / float64(totalDelta) * 100.0
			}
		}
		c.prevProc = procTicks
	}

	c.prevSys = sysTotal
	c.prevCores = cores
	c.havePrev = true
	return out
}

func percentDelta(prev, cur cpuTotals) float64 {
	totalDelta := cur.total - prev.total
	idleDelta := cur.idle - prev.idle
	if totalDelta <= 0 {
		return 0
	}
	busy := totalDelta - idleDelta
	if busy < 0 {
		busy = 0
	}
	return float64(busy) / float64(totalDelta) * 100.0
}

// readProcStat parses /proc/stat's aggregate "cpu" line and each
// per-core "cpuN" line into cumulative (total, idle) pairs.
func readProcStat() (cpuTotals, []cpuTotals) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuTotals{}, nil
	}
	defer f.Close()

	var sys cpuTotals
	var cores []cpuTotals

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		var total int64
		vals := make([]int64, 0, len(fields)-1)
		for _, f := range fields[1:] {
			v, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				break
			}
			vals = append(vals, v)
			total += v
		}
		idle := int64(0)
		if len(vals) > 3 {
			idle = vals[3] // idle field
		}
		t := cpuTotals{total: total, idle: idle}
		if fields[0] == "cpu" {
			sys = t
		} else {
			cores = append(cores, t)
		}
	}
	return sys, cores
}

// readProcessTicks sums utime+stime for the named package's main
// process, resolved via a shell pidof lookup (privileged shell is not
// required for /proc reads on most Android configurations).
func readProcessTicks(exec shell.Executor, pkg string) int64 {
	res, err := exec.Run(bgCtx(), "pidof "+pkg, false, 0)
	if err != nil {
		return 0
	}
	pid := strings.TrimSpace(res.Stdout)
	if pid == "" {
		return 0
	}
	data, err := os.ReadFile("/proc/" + pid + "/stat")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 15 {
		return 0
	}
	utime, _ := strconv.ParseInt(fields[13], 10, 64)
	stime, _ := strconv.ParseInt(fields[14], 10, 64)
	return utime + stime
}
