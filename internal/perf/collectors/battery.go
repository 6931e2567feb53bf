package collectors

import (
	"os"
	"strconv"
	"strings"

	"github.com/hemiaoio/android-auto-test/internal/perf"
	"github.com/hemiaoio/android-auto-test/internal/shell"
)

// Battery reads from a per-battery sysfs-like tree
// (/sys/class/power_supply/battery/*) with a fallback to a text
// diagnostic (dumpsys battery) when sysfs is unavailable.
type Battery struct {
	exec shell.Executor
}

func NewBattery(exec shell.Executor) *Battery {
	return &Battery{exec: exec}
}

const sysfsBatteryDir = "/sys/class/power_supply/battery/"

func (b *Battery) Collect() perf.BatterySample {
	if sample, ok := b.collectSysfs(); ok {
		return sample
	}
	return b.collectDumpsysFallback()
}

func (b *Battery) collectSysfs() (perf.BatterySample, bool) {
	level, errLevel := readIntFile(sysfsBatteryDir + "capacity")
	if errLevel != nil {
		return perf.BatterySample{}, false
	}
	tempTenths, _ := readIntFile(sysfsBatteryDir + "temp")
	voltageUv, _ := readIntFile(sysfsBatteryDir + "voltage_now")
	currentUa, _ := readIntFile(sysfsBatteryDir + "current_now")
	status, _ := os.ReadFile(sysfsBatteryDir + "status")

	return perf.BatterySample{
		Level:        level,
		TemperatureC: float64(tempTenths) / 10.0,
		VoltageMv:    voltageUv / 1000,
		Charging:     strings.EqualFold(strings.TrimSpace(string(status)), "Charging"),
		CurrentNowMa: float64(currentUa) / 1000.0,
	}, true
}

func (b *Battery) collectDumpsysFallback() perf.BatterySample {
	res, err := b.exec.Run(bgCtx(), "dumpsys battery", false, 0)
	if err != nil {
		return perf.BatterySample{}
	}
	out := perf.BatterySample{}
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "level:"):
			out.Level = parseAfterColon(line)
		case strings.HasPrefix(line, "temperature:"):
			out.TemperatureC = float64(parseAfterColon(line)) / 10.0
		case strings.HasPrefix(line, "voltage:"):
			out.VoltageMv = parseAfterColon(line)
		case strings.HasPrefix(line, "status:"):
			v := parseAfterColon(line)
			out.Charging = v == 2 // BATTERY_STATUS_CHARGING
		}
	}
	return out
}

func parseAfterColon(line string) int {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return 0
	}
	v, _ := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
	return v
}

func readIntFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
