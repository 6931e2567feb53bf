package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hemiaoio/android-auto-test/internal/strategy"
)

type fakeInput struct {
	name       string
	privileged bool
}

func (f *fakeInput) Name() string             { return f.name }
func (f *fakeInput) RequiresPrivilege() bool  { return f.privileged }
func (f *fakeInput) Tap(context.Context, strategy.Point) error { return nil }
func (f *fakeInput) Swipe(context.Context, strategy.Point, strategy.Point, int) error { return nil }
func (f *fakeInput) Gesture(context.Context, []strategy.Point, int) error { return nil }
func (f *fakeInput) KeyEvent(context.Context, int) error { return nil }
func (f *fakeInput) TypeText(context.Context, string) error { return nil }

func TestResolveInputPrefersPrivilegedWhenAvailable(t *testing.T) {
	r := New()
	r.RegisterInput(&fakeInput{name: "shell", privileged: true})
	r.RegisterInput(&fakeInput{name: "accessibility", privileged: false})
	r.UpdateCapabilities(Flags{PrivilegedShell: true, Accessibility: true})

	s, ok := r.ResolveInput()
	assert.True(t, ok)
	assert.Equal(t, "shell", s.Name())
}

func TestResolveInputFallsBackToAccessibility(t *testing.T) {
	r := New()
	r.RegisterInput(&fakeInput{name: "accessibility", privileged: false})
	r.RegisterInput(&fakeInput{name: "plain", privileged: false})
	r.UpdateCapabilities(Flags{PrivilegedShell: false, Accessibility: true})

	s, ok := r.ResolveInput()
	assert.True(t, ok)
	assert.Equal(t, "accessibility", s.Name())
}

func TestResolveInputFallsBackToFirstNonPrivileged(t *testing.T) {
	r := New()
	r.RegisterInput(&fakeInput{name: "plain", privileged: false})
	r.UpdateCapabilities(Flags{})

	s, ok := r.ResolveInput()
	assert.True(t, ok)
	assert.Equal(t, "plain", s.Name())
}

func TestResolveInputNoneRegistered(t *testing.T) {
	r := New()
	_, ok := r.ResolveInput()
	assert.False(t, ok)
}

func TestSnapshotReflectsActiveStrategies(t *testing.T) {
	r := New()
	r.RegisterInput(&fakeInput{name: "shell", privileged: true})
	r.UpdateCapabilities(Flags{PrivilegedShell: true, PlatformAPILevel: 33})

	snap := r.Snapshot()
	assert.Equal(t, "shell", snap.ActiveStrategyNames.Input)
	assert.Equal(t, 33, snap.PlatformAPILevel)
	assert.Empty(t, snap.LoadedPluginIDs)
}
