package perf

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math"
	"sync"
	"time"
)

// Collectors bundles the five pure metric readers the engine drives. A
// nil field is skipped if its metric is requested — callers wire only
// the collectors they have strategies for.
type Collectors struct {
	CPU         interface{ Collect(pkg string) CPUSample }
	Memory      interface{ Collect(pkg string) MemorySample }
	FrameTiming interface{ Collect(pkg string) FPSSample }
	Network     interface{ Collect() NetworkSample }
	Battery     interface{ Collect() BatterySample }
}

// Session is an active or stopped time-bounded sampling task.
type Session struct {
	ID          string
	PackageName string
	Metrics     []Metric
	IntervalMs  int
	StartedAt   time.Time
	StoppedAt   time.Time

	ring   *RingBuffer
	cancel context.CancelFunc
	done   chan struct{}
}

// Summary is returned by Stop: avg/min/max for CPU %, avg/max for
// memory PSS, avg/min for fps, total jank count.
type Summary struct {
	CPUAvg     float64 `json:"cpuAvg"`
	CPUMin     float64 `json:"cpuMin"`
	CPUMax     float64 `json:"cpuMax"`
	MemAvgKb   float64 `json:"memAvgPssKb"`
	MemMaxKb   float64 `json:"memMaxPssKb"`
	FPSAvg     float64 `json:"fpsAvg"`
	FPSMin     float64 `json:"fpsMin"`
	JankTotal  int     `json:"jankTotal"`
}

// Engine orchestrates collectors into discrete sampling sessions.
// Sessions are owned exclusively by the engine; they hold no transport
// references.
type Engine struct {
	collectors Collectors

	mu       sync.RWMutex
	sessions map[string]*Session

	broadcast *SampleBroadcaster
}

// SampleEvent is published on the engine's broadcast stream for every
// completed sampling tick of every running session.
type SampleEvent struct {
	SessionID string
	Sample    Sample
}

func NewEngine(c Collectors) *Engine {
	return &Engine{
		collectors: c,
		sessions:   make(map[string]*Session),
		broadcast:  NewSampleBroadcaster(64),
	}
}

// Subscribe returns a channel of sample events; see SampleBroadcaster
// for the lossy-on-overflow semantics.
func (e *Engine) Subscribe() (<-chan SampleEvent, func()) {
	return e.broadcast.Subscribe()
}

func newSessionID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// collectOnce runs the requested metric collection in parallel into one
// Sample, per §4.8's "Snapshot" and per-tick "Start" logic.
func (e *Engine) collectOnce(pkg string, metrics []Metric) Sample {
	sample := Sample{Timestamp: time.Now().UnixMilli()}

	var wg sync.WaitGroup
	for _, m := range metrics {
		m := m
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch m {
			case MetricCPU:
				if e.collectors.CPU != nil {
					v := e.collectors.CPU.Collect(pkg)
					sample.CPU = &v
				}
			case MetricMemory:
				if e.collectors.Memory != nil {
					v := e.collectors.Memory.Collect(pkg)
					sample.Memory = &v
				}
			case MetricFPS:
				if e.collectors.FrameTiming != nil {
					v := e.collectors.FrameTiming.Collect(pkg)
					sample.FPS = &v
				}
			case MetricNetwork:
				if e.collectors.Network != nil {
					v := e.collectors.Network.Collect()
					sample.Network = &v
				}
			case MetricBattery:
				if e.collectors.Battery != nil {
					v := e.collectors.Battery.Collect()
					sample.Battery = &v
				}
			}
		}()
	}
	wg.Wait()
	return sample
}

// Snapshot collects a single tick synchronously with no session
// created.
func (e *Engine) Snapshot(pkg string, metrics []Metric) Sample {
	return e.collectOnce(pkg, metrics)
}

// Start allocates a session id and spawns its repeating collection
// task.
func (e *Engine) Start(pkg string, metrics []Metric, intervalMs int) *Session {
	if intervalMs <= 0 {
		intervalMs = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:          newSessionID(),
		PackageName: pkg,
		Metrics:     metrics,
		IntervalMs:  intervalMs,
		StartedAt:   time.Now(),
		ring:        NewRingBuffer(1000),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	e.mu.Lock()
	e.sessions[s.ID] = s
	e.mu.Unlock()

	go e.run(ctx, s)
	return s
}

func (e *Engine) run(ctx context.Context, s *Session) {
	defer close(s.done)
	ticker := time.NewTicker(time.Duration(s.IntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample := e.collectOnce(s.PackageName, s.Metrics)
			s.ring.Append(sample)
			e.broadcast.Publish(SampleEvent{SessionID: s.ID, Sample: sample})
		}
	}
}

// Get returns a session by id.
func (e *Engine) Get(id string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	return s, ok
}

// Stop signals the session to stop at the next tick boundary and
// returns its summary, sample count, and the last 1000 raw samples.
func (e *Engine) Stop(id string) (*Session, Summary, []Sample, bool) {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if ok {
		delete(e.sessions, id)
	}
	e.mu.Unlock()
	if !ok {
		return nil, Summary{}, nil, false
	}

	s.cancel()
	<-s.done
	s.StoppedAt = time.Now()

	samples := s.ring.Snapshot()
	return s, summarize(samples), samples, true
}

func summarize(samples []Sample) Summary {
	var sum Summary
	var cpuN, memN, fpsN int
	sum.CPUMin, sum.FPSMin = math.MaxFloat64, math.MaxFloat64

	for _, sample := range samples {
		if sample.CPU != nil {
			cpuN++
			sum.CPUAvg += sample.CPU.SystemPercent
			if sample.CPU.SystemPercent > sum.CPUMax {
				sum.CPUMax = sample.CPU.SystemPercent
			}
			if sample.CPU.SystemPercent < sum.CPUMin {
				sum.CPUMin = sample.CPU.SystemPercent
			}
		}
		if sample.Memory != nil {
			memN++
			sum.MemAvgKb += float64(sample.Memory.TotalPSSKb)
			if float64(sample.Memory.TotalPSSKb) > sum.MemMaxKb {
				sum.MemMaxKb = float64(sample.Memory.TotalPSSKb)
			}
		}
		if sample.FPS != nil {
			fpsN++
			sum.FPSAvg += sample.FPS.Current
			if sample.FPS.Current < sum.FPSMin {
				sum.FPSMin = sample.FPS.Current
			}
			sum.JankTotal += sample.FPS.Jank + sample.FPS.BigJank
		}
	}
	if cpuN > 0 {
		sum.CPUAvg /= float64(cpuN)
	} else {
		sum.CPUMin = 0
	}
	if memN > 0 {
		sum.MemAvgKb /= float64(memN)
	}
	if fpsN > 0 {
		sum.FPSAvg /= float64(fpsN)
	} else {
		sum.FPSMin = 0
	}
	return sum
}
