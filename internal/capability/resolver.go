// Package capability tracks runtime capability flags and the strategies
// registered for each operation family, exposing "best available"
// resolution per family. Mutation is safe under concurrent resolution;
// readers see a consistent snapshot.
package capability

import (
	"sync"

	"github.com/hemiaoio/android-auto-test/internal/strategy"
)

// Flags are the runtime capability flags consulted by resolution.
type Flags struct {
	PrivilegedShell  bool
	Accessibility    bool
	PlatformAPILevel int
}

// Snapshot is the immutable view exposed to handlers and plugins.
type Snapshot struct {
	PrivilegedShell     bool           `json:"privileged_shell"`
	Accessibility       bool           `json:"accessibility"`
	PlatformAPILevel    int            `json:"platform_api_level"`
	ActiveStrategyNames ActiveNames    `json:"active_strategy_names"`
	LoadedPluginIDs     []string       `json:"loaded_plugin_ids"`
}

type ActiveNames struct {
	Input     string `json:"input"`
	Capture   string `json:"capture"`
	Hierarchy string `json:"hierarchy"`
}

// PluginIDLister is implemented by the plugin registry; kept as a narrow
// interface here to avoid an import cycle between capability and plugin.
type PluginIDLister interface {
	LoadedPluginIDs() []string
}

// Resolver holds capability flags and the three strategy registries,
// and resolves "best available" per family per §4.5.
type Resolver struct {
	mu    sync.RWMutex
	flags Flags

	input     *strategy.Registry[strategy.InputStrategy]
	capture   *strategy.Registry[strategy.CaptureStrategy]
	hierarchy *strategy.Registry[strategy.HierarchyStrategy]

	plugins PluginIDLister
}

func New() *Resolver {
	return &Resolver{
		input:     strategy.NewRegistry[strategy.InputStrategy](),
		capture:   strategy.NewRegistry[strategy.CaptureStrategy](),
		hierarchy: strategy.NewRegistry[strategy.HierarchyStrategy](),
	}
}

// SetPluginIDLister wires the plugin registry for snapshot reporting.
// Called once during engine wiring.
func (r *Resolver) SetPluginIDLister(l PluginIDLister) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = l
}

func (r *Resolver) RegisterInput(s strategy.InputStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input.Register(s)
}

func (r *Resolver) RegisterCapture(s strategy.CaptureStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture.Register(s)
}

func (r *Resolver) RegisterHierarchy(s strategy.HierarchyStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hierarchy.Register(s)
}

// UpdateCapabilities replaces the current flags.
func (r *Resolver) UpdateCapabilities(f Flags) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags = f
}

func (r *Resolver) Flags() Flags {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags
}

// ResolveInput implements §4.5's input policy: prefer a
// requires-privilege strategy when privileged shell is available; else
// prefer a strategy named "accessibility" when accessibility is
// available; else the first non-privileged strategy.
func (r *Resolver) ResolveInput() (strategy.InputStrategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.flags.PrivilegedShell {
		if s, ok := r.input.FirstPrivileged(); ok {
			return s, true
		}
	}
	if r.flags.Accessibility {
		if s, ok := r.input.ByName("accessibility"); ok {
			return s, true
		}
	}
	return r.input.FirstNonPrivileged()
}

// ResolveCapture implements §4.5's capture policy: prefer privileged
// when available, else the first non-privileged strategy.
func (r *Resolver) ResolveCapture() (strategy.CaptureStrategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.flags.PrivilegedShell {
		if s, ok := r.capture.FirstPrivileged(); ok {
			return s, true
		}
	}
	return r.capture.FirstNonPrivileged()
}

// ResolveHierarchy implements §4.5's hierarchy policy: prefer
// "accessibility" when accessibility is available, else the first
// remaining strategy.
func (r *Resolver) ResolveHierarchy() (strategy.HierarchyStrategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.flags.Accessibility {
		if s, ok := r.hierarchy.ByName("accessibility"); ok {
			return s, true
		}
	}
	return r.hierarchy.First()
}

// Snapshot produces the immutable capability view.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		PrivilegedShell:  r.flags.PrivilegedShell,
		Accessibility:    r.flags.Accessibility,
		PlatformAPILevel: r.flags.PlatformAPILevel,
	}
	if s, ok := r.resolveInputLocked(); ok {
		snap.ActiveStrategyNames.Input = s.Name()
	}
	if s, ok := r.resolveCaptureLocked(); ok {
		snap.ActiveStrategyNames.Capture = s.Name()
	}
	if s, ok := r.resolveHierarchyLocked(); ok {
		snap.ActiveStrategyNames.Hierarchy = s.Name()
	}
	if r.plugins != nil {
		snap.LoadedPluginIDs = r.plugins.LoadedPluginIDs()
	} else {
		snap.LoadedPluginIDs = []string{}
	}
	return snap
}

// The *Locked helpers duplicate Resolve* under an already-held RLock,
// since Snapshot cannot re-acquire it (sync.RWMutex is not reentrant).
func (r *Resolver) resolveInputLocked() (strategy.InputStrategy, bool) {
	if r.flags.PrivilegedShell {
		if s, ok := r.input.FirstPrivileged(); ok {
			return s, true
		}
	}
	if r.flags.Accessibility {
		if s, ok := r.input.ByName("accessibility"); ok {
			return s, true
		}
	}
	return r.input.FirstNonPrivileged()
}

func (r *Resolver) resolveCaptureLocked() (strategy.CaptureStrategy, bool) {
	if r.flags.PrivilegedShell {
		if s, ok := r.capture.FirstPrivileged(); ok {
			return s, true
		}
	}
	return r.capture.FirstNonPrivileged()
}

func (r *Resolver) resolveHierarchyLocked() (strategy.HierarchyStrategy, bool) {
	if r.flags.Accessibility {
		if s, ok := r.hierarchy.ByName("accessibility"); ok {
			return s, true
		}
	}
	return r.hierarchy.First()
}
