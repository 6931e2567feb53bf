package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hemiaoio/android-auto-test/internal/agenterr"
	"github.com/hemiaoio/android-auto-test/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct{ method string }

func (f fakeHandler) Method() string          { return f.method }
func (f fakeHandler) Validate(params []byte) error { return nil }
func (f fakeHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	return "ok", nil
}

type fakeEntry struct {
	initErr, startErr error
	inited, started, stopped, destroyed bool
	handlers []router.Handler
}

func (f *fakeEntry) OnInit(ctx context.Context, pctx Context) error {
	f.inited = true
	return f.initErr
}
func (f *fakeEntry) OnStart(ctx context.Context) error {
	f.started = true
	return f.startErr
}
func (f *fakeEntry) OnStop(ctx context.Context) error    { f.stopped = true; return nil }
func (f *fakeEntry) OnDestroy(ctx context.Context) error { f.destroyed = true; return nil }
func (f *fakeEntry) Handlers() []router.Handler          { return f.handlers }

func writeManifest(t *testing.T, dir string, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(body), 0o644))
}

func TestLoadManifestParsesJWCCWithCommentsAndTrailingCommas(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
  // identifies this plugin uniquely
  "id": "com.example.ocr",
  "version": "1.0.0",
  "display_name": "OCR Helper",
  "entry_point": "ocr",
  "min_agent_version": "1.0.0",
  "required_capabilities": ["accessibility",],
  "dependencies": [],
}`)

	m, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "com.example.ocr", m.ID)
	assert.Equal(t, "ocr", m.EntryPoint)
	assert.Equal(t, []string{"accessibility"}, m.RequiredCapabilities)
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(t.TempDir())
	require.Error(t, err)
	ae, ok := err.(*agenterr.AgentError)
	require.True(t, ok)
	assert.Equal(t, agenterr.CodeFileNotFound, ae.Code)
}

func TestLoadManifestMissingID(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"entry_point": "x"}`)
	_, err := LoadManifest(dir)
	require.Error(t, err)
}

func newRegistryWithEntry(t *testing.T, entryPoint string, entry *fakeEntry) (*Registry, *router.Router) {
	t.Helper()
	rt := router.New()
	reg := New(rt, NewEventBus(64), func() Context { return Context{} })
	reg.RegisterFactory(entryPoint, func(m Manifest) (Entry, error) { return entry, nil })
	return reg, rt
}

func TestPluginLifecycleLoadInitStartUnload(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"id": "p1", "entry_point": "fake"}`)

	entry := &fakeEntry{handlers: []router.Handler{fakeHandler{method: "p1.do"}}}
	reg, rt := newRegistryWithEntry(t, "fake", entry)

	_, err := reg.Load(context.Background(), dir)
	require.NoError(t, err)
	state, ok := reg.State("p1")
	require.True(t, ok)
	assert.Equal(t, StateLoaded, state)

	require.NoError(t, reg.Init(context.Background(), "p1"))
	assert.True(t, entry.inited)
	state, _ = reg.State("p1")
	assert.Equal(t, StateInitialized, state)

	require.NoError(t, reg.Start(context.Background(), "p1"))
	assert.True(t, entry.started)
	state, _ = reg.State("p1")
	assert.Equal(t, StateStarted, state)
	assert.Contains(t, rt.Methods(), "p1.do")

	require.NoError(t, reg.Unload(context.Background(), "p1"))
	assert.True(t, entry.stopped)
	assert.True(t, entry.destroyed)
	assert.NotContains(t, rt.Methods(), "p1.do")
	_, ok = reg.State("p1")
	assert.False(t, ok)
}

func TestPluginStartFailsAndRollsBackHandlersOnStartError(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"id": "p2", "entry_point": "fake"}`)

	entry := &fakeEntry{
		startErr: agenterr.New(agenterr.CodePluginInitFailed, "boom"),
		handlers: []router.Handler{fakeHandler{method: "p2.do"}},
	}
	reg, rt := newRegistryWithEntry(t, "fake", entry)

	_, err := reg.Load(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, reg.Init(context.Background(), "p2"))

	err = reg.Start(context.Background(), "p2")
	require.Error(t, err)

	state, _ := reg.State("p2")
	assert.Equal(t, StateError, state)
	assert.NotContains(t, rt.Methods(), "p2.do")
}

func TestPluginStartFailsWhenDependencyNotStarted(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"id": "p3", "entry_point": "fake", "dependencies": ["p3-base"]}`)

	entry := &fakeEntry{}
	reg, _ := newRegistryWithEntry(t, "fake", entry)

	_, err := reg.Load(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, reg.Init(context.Background(), "p3"))

	err = reg.Start(context.Background(), "p3")
	require.Error(t, err)
	ae, ok := err.(*agenterr.AgentError)
	require.True(t, ok)
	assert.Equal(t, agenterr.CodePluginDependencyMissing, ae.Code)
}

func TestPluginStartSucceedsWhenDependencyIsStarted(t *testing.T) {
	baseDir := t.TempDir()
	writeManifest(t, baseDir, `{"id": "base", "entry_point": "fake"}`)
	depDir := t.TempDir()
	writeManifest(t, depDir, `{"id": "dependent", "entry_point": "fake", "dependencies": ["base"]}`)

	rt := router.New()
	reg := New(rt, NewEventBus(64), func() Context { return Context{} })
	reg.RegisterFactory("fake", func(m Manifest) (Entry, error) { return &fakeEntry{}, nil })

	_, err := reg.Load(context.Background(), baseDir)
	require.NoError(t, err)
	require.NoError(t, reg.Init(context.Background(), "base"))
	require.NoError(t, reg.Start(context.Background(), "base"))

	_, err = reg.Load(context.Background(), depDir)
	require.NoError(t, err)
	require.NoError(t, reg.Init(context.Background(), "dependent"))
	require.NoError(t, reg.Start(context.Background(), "dependent"))

	assert.ElementsMatch(t, []string{"base", "dependent"}, reg.LoadedPluginIDs())
}
