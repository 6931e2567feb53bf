// Package engine wires the Agent's components together: transport,
// router, capability resolver, built-in strategies, command handlers,
// the performance engine, and the plugin registry. It owns process-wide
// state (spec.md §5) with a defined init (start transport, register
// built-ins, load plugins) and teardown (stop transport, unload
// plugins, cancel supervisor).
package engine

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hemiaoio/android-auto-test/internal/appmgr"
	"github.com/hemiaoio/android-auto-test/internal/auth"
	"github.com/hemiaoio/android-auto-test/internal/capability"
	"github.com/hemiaoio/android-auto-test/internal/config"
	"github.com/hemiaoio/android-auto-test/internal/deviceinfo"
	"github.com/hemiaoio/android-auto-test/internal/handlers"
	"github.com/hemiaoio/android-auto-test/internal/perf"
	"github.com/hemiaoio/android-auto-test/internal/perf/collectors"
	"github.com/hemiaoio/android-auto-test/internal/plugin"
	"github.com/hemiaoio/android-auto-test/internal/protocol"
	"github.com/hemiaoio/android-auto-test/internal/router"
	"github.com/hemiaoio/android-auto-test/internal/shell"
	"github.com/hemiaoio/android-auto-test/internal/store"
	"github.com/hemiaoio/android-auto-test/internal/strategy/builtin"
	"github.com/hemiaoio/android-auto-test/internal/transport"
)

// Engine is the single process-wide Agent instance installed by the
// host process (spec.md §5).
type Engine struct {
	cfg config.Config

	resolver  *capability.Resolver
	router    *router.Router
	auth      *auth.Authenticator
	transport *transport.Server
	perf      *perf.Engine
	plugins   *plugin.Registry
	bus       *plugin.EventBus
	shell     shell.Executor

	runtimeCfg *handlers.RuntimeConfig

	cancel context.CancelFunc
}

// New builds an Engine from cfg but does not start it.
func New(cfg config.Config) *Engine {
	exec := shell.New("su")

	resolver := capability.New()
	resolver.RegisterInput(builtin.NewShellInput(exec))
	resolver.RegisterCapture(builtin.NewShellCapture(exec))
	resolver.RegisterHierarchy(builtin.NewShellHierarchy(exec))

	rt := router.New()

	var backingStore store.Store
	if cfg.RedisAddr != "" {
		backingStore = store.NewRedisStore(cfg.RedisAddr)
		log.Printf("engine: using redis idempotency store addr=%s", cfg.RedisAddr)
	} else {
		backingStore = store.NewMemoryStore()
		log.Printf("engine: using in-memory idempotency store")
	}
	rt.SetIdempotencyCache(backingStore, 5*time.Minute)

	authenticator := auth.New(cfg.AuthToken)

	perfEngine := perf.NewEngine(perf.Collectors{
		CPU:         collectors.NewCPU(exec),
		Memory:      collectors.NewMemory(exec),
		FrameTiming: collectors.NewFrameTiming(exec),
		Network:     collectors.NewNetwork(),
		Battery:     collectors.NewBattery(exec),
	})

	bus := plugin.NewEventBus(64)
	runtimeCfg := handlers.NewRuntimeConfig(cfg.HeartbeatIntervalMs, cfg.HeartbeatTimeoutMs)

	e := &Engine{
		cfg:        cfg,
		resolver:   resolver,
		router:     rt,
		auth:       authenticator,
		perf:       perfEngine,
		bus:        bus,
		shell:      exec,
		runtimeCfg: runtimeCfg,
	}

	pluginRegistry := plugin.New(rt, bus, e.pluginContext)
	e.plugins = pluginRegistry
	resolver.SetPluginIDLister(pluginRegistry)

	e.transport = transport.New(transport.Config{
		Host:        cfg.Host,
		ControlPort: cfg.ControlPort,
		BinaryPort:  cfg.BinaryPort,
		EventPort:   cfg.EventPort,
	}, authenticator, rt, nil, nil)

	e.registerBuiltinHandlers(exec)
	return e
}

func (e *Engine) registerBuiltinHandlers(exec shell.Executor) {
	handlers.NewDevice(e.resolver, exec, deviceinfo.New(exec)).RegisterHandlers(e.router)
	handlers.NewUI(e.resolver).RegisterHandlers(e.router)
	handlers.NewApp(appmgr.New(exec)).RegisterHandlers(e.router)
	handlers.NewSystem(e.resolver, e.router, e.runtimeCfg, e.Stop).RegisterHandlers(e.router)
	perf.RegisterHandlers(e.router, e.perf)
}

func (e *Engine) pluginContext() plugin.Context {
	return plugin.Context{
		Capabilities: e.resolver.Flags(),
		DataDir:      e.cfg.DataDir,
		Shell:        e.shell,
		Emit: func(eventType string, payload any) {
			e.bus.Publish(plugin.Event{Type: eventType, Payload: payload})
			if env, err := protocol.NewEvent(uuid.NewString(), eventType, payload, time.Now().UnixMilli()); err == nil {
				e.transport.Broadcast(env)
			}
		},
	}
}

// Start runs full init per spec.md §5: start transport, load plugin
// bundles from cfg.PluginDir, and begin servicing connections.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.detectCapabilities(ctx)

	if err := e.transport.Start(); err != nil {
		return err
	}
	e.loadPluginBundles(ctx)

	// Forward every perf sample to the event channel as a perf.sample event.
	samples, unsubscribe := e.perf.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-samples:
				if env, err := protocol.NewEvent(uuid.NewString(), "perf.sample", map[string]any{"sessionId": ev.SessionID, "sample": ev.Sample}, time.Now().UnixMilli()); err == nil {
					e.transport.Broadcast(env)
				}
			}
		}
	}()
	log.Printf("engine: started control=%d binary=%d event=%d", e.cfg.ControlPort, e.cfg.BinaryPort, e.cfg.EventPort)
	return nil
}

// detectCapabilities probes for privileged shell access once at
// startup: a successful "id" run via the privilege-escalation prefix
// means device.shell's asPrivileged path and the shell-backed
// privileged strategies are usable.
func (e *Engine) detectCapabilities(ctx context.Context) {
	flags := e.resolver.Flags()
	if _, err := e.shell.Run(ctx, "id", true, 3*time.Second); err == nil {
		flags.PrivilegedShell = true
	}
	e.resolver.UpdateCapabilities(flags)
}

// loadPluginBundles scans cfg.PluginDir for subdirectories containing a
// manifest and loads/inits/starts each, in directory order. A single
// plugin's failure is logged and skipped rather than aborting startup.
func (e *Engine) loadPluginBundles(ctx context.Context) {
	if e.cfg.PluginDir == "" {
		return
	}
	entries, err := os.ReadDir(e.cfg.PluginDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("engine: plugin directory scan failed dir=%s err=%v", e.cfg.PluginDir, err)
		}
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		bundleDir := filepath.Join(e.cfg.PluginDir, entry.Name())
		if err := e.loadOnePlugin(ctx, bundleDir); err != nil {
			log.Printf("engine: plugin load failed dir=%s err=%v", bundleDir, err)
		}
	}
}

func (e *Engine) loadOnePlugin(ctx context.Context, bundleDir string) error {
	manifest, err := plugin.LoadManifest(bundleDir)
	if err != nil {
		return err
	}
	if _, err := e.plugins.Load(ctx, bundleDir); err != nil {
		return err
	}
	if err := e.plugins.Init(ctx, manifest.ID); err != nil {
		return err
	}
	return e.plugins.Start(ctx, manifest.ID)
}

// Stop runs full teardown per spec.md §5: stop transport, unload
// plugins, cancel the supervisor scope.
func (e *Engine) Stop() {
	e.transport.Stop(context.Background())
	for _, id := range e.plugins.LoadedPluginIDs() {
		if err := e.plugins.Unload(context.Background(), id); err != nil {
			log.Printf("engine: plugin unload failed id=%s err=%v", id, err)
		}
	}
	if e.cancel != nil {
		e.cancel()
	}
	log.Printf("engine: stopped")
}

// Router exposes the underlying router, primarily for tests and for
// wiring additional plugin factories before Start.
func (e *Engine) Router() *router.Router         { return e.router }
func (e *Engine) Resolver() *capability.Resolver { return e.resolver }
func (e *Engine) Plugins() *plugin.Registry      { return e.plugins }
func (e *Engine) EventBus() *plugin.EventBus     { return e.bus }
