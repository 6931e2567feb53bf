// Package plugin implements the plugin registry described in spec.md
// §4.7: manifest discovery, lifecycle management (LOADED -> INITIALIZED
// -> STARTED -> STOPPED / ERROR), dependency checking, handler
// registration with rollback, and the process-wide event bus.
package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/tailscale/hujson"

	"github.com/hemiaoio/android-auto-test/internal/agenterr"
	"github.com/hemiaoio/android-auto-test/internal/capability"
	"github.com/hemiaoio/android-auto-test/internal/router"
	"github.com/hemiaoio/android-auto-test/internal/shell"
)

// ManifestFileName is the fixed relative path within a plugin bundle
// where its manifest lives.
const ManifestFileName = "plugin.jsonc"

// Manifest is the on-disk plugin descriptor, parsed as JWCC via hujson.
type Manifest struct {
	ID                   string   `json:"id"`
	Version              string   `json:"version"`
	DisplayName          string   `json:"display_name"`
	EntryPoint           string   `json:"entry_point"`
	MinAgentVersion      string   `json:"min_agent_version"`
	RequiredCapabilities []string `json:"required_capabilities"`
	Dependencies         []string `json:"dependencies"`
}

// State is a plugin's lifecycle state.
type State string

const (
	StateLoaded      State = "LOADED"
	StateInitialized State = "INITIALIZED"
	StateStarted     State = "STARTED"
	StateStopped     State = "STOPPED"
	StateError       State = "ERROR"
)

// Context is exposed to a plugin's lifecycle hooks.
type Context struct {
	AgentVersion     string
	Capabilities     capability.Flags
	PlatformAPILevel int
	DataDir          string
	Shell            shell.Executor
	Emit             func(eventType string, payload any)
}

// Entry is the interface a plugin's entry point implements.
type Entry interface {
	OnInit(ctx context.Context, pctx Context) error
	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
	OnDestroy(ctx context.Context) error
	Handlers() []router.Handler
}

// EntryFactory constructs a plugin's entry point given its manifest's
// declared entry_point identifier. Bundles register their factories
// with the registry before Load is called (out-of-process plugin
// loading — e.g. via Go plugin.so or a subprocess bridge — is left to
// the deployment, per spec.md's scope).
type EntryFactory func(manifest Manifest) (Entry, error)

type loadedPlugin struct {
	manifest Manifest
	entry    Entry
	state    State
	handlers []string // registered method names, for rollback/unload
	err      error
}

// Registry discovers, loads, and lifecycle-manages plugins. Load and
// Unload are serialized by mu, per spec.md §4.7.
type Registry struct {
	mu       sync.Mutex
	plugins  map[string]*loadedPlugin
	router   *router.Router
	bus      *EventBus
	factories map[string]EntryFactory
	pctx     func() Context
}

func New(r *router.Router, bus *EventBus, pctxFn func() Context) *Registry {
	return &Registry{
		plugins:   make(map[string]*loadedPlugin),
		router:    r,
		bus:       bus,
		factories: make(map[string]EntryFactory),
		pctx:      pctxFn,
	}
}

// RegisterFactory binds an entry_point identifier to the constructor
// used when a manifest declares it.
func (reg *Registry) RegisterFactory(entryPoint string, factory EntryFactory) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.factories[entryPoint] = factory
}

// LoadManifest reads and parses a plugin manifest from bundleDir/plugin.jsonc.
func LoadManifest(bundleDir string) (Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(bundleDir, ManifestFileName))
	if err != nil {
		return Manifest{}, agenterr.New(agenterr.CodeFileNotFound, err.Error())
	}
	std, err := hujson.Standardize(raw)
	if err != nil {
		return Manifest{}, agenterr.New(agenterr.CodePluginInitFailed, fmt.Sprintf("malformed manifest: %v", err))
	}
	var m Manifest
	if err := json.Unmarshal(std, &m); err != nil {
		return Manifest{}, agenterr.New(agenterr.CodePluginInitFailed, fmt.Sprintf("malformed manifest: %v", err))
	}
	if m.ID == "" {
		return Manifest{}, agenterr.New(agenterr.CodePluginInitFailed, "manifest missing id")
	}
	return m, nil
}

// Load locates the manifest, instantiates the declared entry, and sets
// state := LOADED.
func (reg *Registry) Load(ctx context.Context, bundleDir string) (string, error) {
	loadID := uuid.NewString()
	manifest, err := LoadManifest(bundleDir)
	if err != nil {
		return loadID, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	factory, ok := reg.factories[manifest.EntryPoint]
	if !ok {
		return loadID, agenterr.Newf(agenterr.CodePluginInitFailed, "unknown entry point: %s", manifest.EntryPoint)
	}
	entry, err := factory(manifest)
	if err != nil {
		return loadID, agenterr.New(agenterr.CodePluginInitFailed, err.Error())
	}

	reg.plugins[manifest.ID] = &loadedPlugin{manifest: manifest, entry: entry, state: StateLoaded}
	return loadID, nil
}

// Init calls on_init and advances state to INITIALIZED.
func (reg *Registry) Init(ctx context.Context, id string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	p, ok := reg.plugins[id]
	if !ok {
		return agenterr.Newf(agenterr.CodePluginInitFailed, "unknown plugin: %s", id)
	}
	pctx := Context{}
	if reg.pctx != nil {
		pctx = reg.pctx()
	}
	if err := p.entry.OnInit(ctx, pctx); err != nil {
		p.state = StateError
		p.err = err
		return agenterr.New(agenterr.CodePluginInitFailed, err.Error())
	}
	p.state = StateInitialized
	return nil
}

// Start registers the plugin's handlers, calls on_start, and advances
// state to STARTED. Any handler exception aborts loading and rolls
// back partially registered handlers, moving state to ERROR.
// Dependencies must all be STARTED first, or this fails with
// PLUGIN/dependency-missing.
func (reg *Registry) Start(ctx context.Context, id string) (err error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	p, ok := reg.plugins[id]
	if !ok {
		return agenterr.Newf(agenterr.CodePluginInitFailed, "unknown plugin: %s", id)
	}
	for _, dep := range p.manifest.Dependencies {
		depPlugin, ok := reg.plugins[dep]
		if !ok || depPlugin.state != StateStarted {
			return agenterr.Newf(agenterr.CodePluginDependencyMissing, "dependency not started: %s", dep)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin panic during start: %v", r)
		}
		if err != nil {
			for _, method := range p.handlers {
				reg.router.Unregister(method)
			}
			p.handlers = nil
			p.state = StateError
			p.err = err
		}
	}()

	for _, h := range p.entry.Handlers() {
		reg.router.Register(h)
		p.handlers = append(p.handlers, h.Method())
	}
	if err = p.entry.OnStart(ctx); err != nil {
		return agenterr.New(agenterr.CodePluginInitFailed, err.Error())
	}
	p.state = StateStarted
	return nil
}

// Unload unregisters handlers, calls on_stop then on_destroy, and drops
// the reference.
func (reg *Registry) Unload(ctx context.Context, id string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	p, ok := reg.plugins[id]
	if !ok {
		return agenterr.Newf(agenterr.CodePluginInitFailed, "unknown plugin: %s", id)
	}
	for _, method := range p.handlers {
		reg.router.Unregister(method)
	}
	p.handlers = nil

	if p.entry != nil {
		_ = p.entry.OnStop(ctx)
		_ = p.entry.OnDestroy(ctx)
	}
	p.state = StateStopped
	delete(reg.plugins, id)
	return nil
}

// LoadedPluginIDs implements capability.PluginIDLister: only STARTED
// plugins are reported as "loaded" for capability-snapshot purposes.
func (reg *Registry) LoadedPluginIDs() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	ids := make([]string, 0, len(reg.plugins))
	for id, p := range reg.plugins {
		if p.state == StateStarted {
			ids = append(ids, id)
		}
	}
	return ids
}

// State returns a plugin's current lifecycle state.
func (reg *Registry) State(id string) (State, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	p, ok := reg.plugins[id]
	if !ok {
		return "", false
	}
	return p.state, true
}
