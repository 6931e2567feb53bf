package collectors

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hemiaoio/android-auto-test/internal/perf"
)

// Network sums cumulative bytes across non-loopback interfaces from
// /proc/net/dev; instantaneous speed is a divided difference against
// the prior sample.
type Network struct {
	mu       sync.Mutex
	prevRx   int64
	prevTx   int64
	prevAt   time.Time
	havePrev bool
}

func NewNetwork() *Network {
	return &Network{}
}

func (n *Network) Collect() perf.NetworkSample {
	n.mu.Lock()
	defer n.mu.Unlock()

	rx, tx := readProcNetDev()
	now := time.Now()

	out := perf.NetworkSample{RxBytes: rx, TxBytes: tx}
	if n.havePrev {
		elapsed := now.Sub(n.prevAt).Seconds()
		if elapsed > 0 {
			out.RxSpeed = float64(rx-n.prevRx) / elapsed
			out.TxSpeed = float64(tx-n.prevTx) / elapsed
		}
	}

	n.prevRx, n.prevTx, n.prevAt, n.havePrev = rx, tx, now, true
	return out
}

func readProcNetDev() (rx, tx int64) {
	f, err := os.Open("/proc/net/dev")
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo <= 2 {
			continue // header lines
		}
		line := scanner.Text()
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		iface := strings.TrimSpace(parts[0])
		if iface == "lo" {
			continue
		}
		fields := strings.Fields(parts[1])
		if len(fields) < 9 {
			continue
		}
		rxBytes, _ := strconv.ParseInt(fields[0], 10, 64)
		txBytes, _ := strconv.ParseInt(fields[8], 10, 64)
		rx += rxBytes
		tx += txBytes
	}
	return
}
