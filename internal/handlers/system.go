package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/hemiaoio/android-auto-test/internal/capability"
	"github.com/hemiaoio/android-auto-test/internal/router"
)

// RuntimeConfig holds the mutable, hot-reloadable subset of agent
// configuration that system.configure is allowed to touch.
type RuntimeConfig struct {
	mu                sync.RWMutex
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

func NewRuntimeConfig(heartbeatIntervalMs, heartbeatTimeoutMs int) *RuntimeConfig {
	return &RuntimeConfig{
		heartbeatInterval: time.Duration(heartbeatIntervalMs) * time.Millisecond,
		heartbeatTimeout:  time.Duration(heartbeatTimeoutMs) * time.Millisecond,
	}
}

func (c *RuntimeConfig) HeartbeatInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heartbeatInterval
}

func (c *RuntimeConfig) HeartbeatTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heartbeatTimeout
}

func (c *RuntimeConfig) set(key string, value json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch key {
	case "heartbeat_interval_ms":
		var ms int
		if err := json.Unmarshal(value, &ms); err != nil {
			return err
		}
		c.heartbeatInterval = time.Duration(ms) * time.Millisecond
	case "heartbeat_timeout_ms":
		var ms int
		if err := json.Unmarshal(value, &ms); err != nil {
			return err
		}
		c.heartbeatTimeout = time.Duration(ms) * time.Millisecond
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// System wires the system.* handlers to the resolver, the router's own
// method list, a mutable runtime config, and a shutdown hook the engine
// supplies.
type System struct {
	resolver  *capability.Resolver
	router    *router.Router
	cfg       *RuntimeConfig
	startedAt time.Time
	shutdown  func()
}

func NewSystem(resolver *capability.Resolver, r *router.Router, cfg *RuntimeConfig, shutdown func()) *System {
	return &System{resolver: resolver, router: r, cfg: cfg, startedAt: time.Now(), shutdown: shutdown}
}

func (s *System) RegisterHandlers(r *router.Router) {
	r.Register(&systemCapabilitiesHandler{s})
	r.Register(&systemHeartbeatHandler{s})
	r.Register(&systemConfigureHandler{s})
	r.Register(&systemShutdownHandler{s})
}

type systemCapabilitiesHandler struct{ s *System }

func (h *systemCapabilitiesHandler) Method() string          { return "system.capabilities" }
func (h *systemCapabilitiesHandler) Validate(params []byte) error { return nil }

func (h *systemCapabilitiesHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	snap := h.s.resolver.Snapshot()
	methods := h.s.router.Methods()
	return map[string]any{
		"flags": map[string]any{
			"privileged_shell":   snap.PrivilegedShell,
			"accessibility":      snap.Accessibility,
			"platform_api_level": snap.PlatformAPILevel,
		},
		"activeStrategyNames": snap.ActiveStrategyNames,
		"loadedPluginIds":     snap.LoadedPluginIDs,
		"registeredMethods":   methods,
	}, nil
}

type systemHeartbeatHandler struct{ s *System }

func (h *systemHeartbeatHandler) Method() string          { return "system.heartbeat" }
func (h *systemHeartbeatHandler) Validate(params []byte) error { return nil }

func (h *systemHeartbeatHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	uptimeMs := time.Since(h.s.startedAt).Milliseconds()
	free, total := memStats()
	return map[string]any{
		"uptime":      uptimeMs,
		"freeMemory":  free,
		"totalMemory": total,
		"timestamp":   time.Now().UnixMilli(),
	}, nil
}

func memStats() (free, total int64) {
	var info syscall.Sysinfo_t
	if err := syscall.Sysinfo(&info); err != nil {
		var rt runtime.MemStats
		runtime.ReadMemStats(&rt)
		return int64(rt.Sys - rt.HeapInuse), int64(rt.Sys)
	}
	unit := uint64(info.Unit)
	return int64(info.Freeram * unit), int64(info.Totalram * unit)
}

type configureParams struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type systemConfigureHandler struct{ s *System }

func (h *systemConfigureHandler) Method() string { return "system.configure" }
func (h *systemConfigureHandler) Validate(params []byte) error {
	var p configureParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	if p.Key == "" {
		return fmt.Errorf("key is required")
	}
	return nil
}

func (h *systemConfigureHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p configureParams
	_ = json.Unmarshal(params, &p)
	if err := h.s.cfg.set(p.Key, p.Value); err != nil {
		return map[string]bool{"success": false}, nil
	}
	return map[string]bool{"success": true}, nil
}

type systemShutdownHandler struct{ s *System }

func (h *systemShutdownHandler) Method() string          { return "system.shutdown" }
func (h *systemShutdownHandler) Validate(params []byte) error { return nil }

func (h *systemShutdownHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	if h.s.shutdown != nil {
		go h.s.shutdown()
	}
	return map[string]bool{"success": true}, nil
}
