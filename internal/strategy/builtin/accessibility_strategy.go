package builtin

import (
	"context"
	"fmt"
	"sync"

	"github.com/hemiaoio/android-auto-test/internal/strategy"
)

// AccessibilityBridge is the fixed contract the out-of-scope
// accessibility-service effector must satisfy. The agent core only
// depends on this interface; a real deployment plugs in a bridge to the
// platform's accessibility framework.
type AccessibilityBridge interface {
	Tap(ctx context.Context, p strategy.Point) error
	Swipe(ctx context.Context, from, to strategy.Point, durationMs int) error
	KeyEvent(ctx context.Context, keyCode int) error
	TypeText(ctx context.Context, text string) error
	CurrentTree(ctx context.Context) ([]*strategy.Element, error)
}

// AccessibilityInputStrategy delegates input delivery to the
// accessibility bridge. Live, cheap, and does not require privilege.
type AccessibilityInputStrategy struct {
	bridge AccessibilityBridge
}

func NewAccessibilityInput(bridge AccessibilityBridge) *AccessibilityInputStrategy {
	return &AccessibilityInputStrategy{bridge: bridge}
}

func (s *AccessibilityInputStrategy) Name() string            { return "accessibility" }
func (s *AccessibilityInputStrategy) RequiresPrivilege() bool { return false }

func (s *AccessibilityInputStrategy) Tap(ctx context.Context, p strategy.Point) error {
	return s.bridge.Tap(ctx, p)
}

func (s *AccessibilityInputStrategy) Swipe(ctx context.Context, from, to strategy.Point, durationMs int) error {
	return s.bridge.Swipe(ctx, from, to, durationMs)
}

func (s *AccessibilityInputStrategy) Gesture(ctx context.Context, points []strategy.Point, durationMs int) error {
	if len(points) < 2 {
		return fmt.Errorf("gesture requires at least 2 points")
	}
	step := durationMs / max(1, len(points)-1)
	for i := 0; i < len(points)-1; i++ {
		if err := s.bridge.Swipe(ctx, points[i], points[i+1], step); err != nil {
			return err
		}
	}
	return nil
}

func (s *AccessibilityInputStrategy) KeyEvent(ctx context.Context, keyCode int) error {
	return s.bridge.KeyEvent(ctx, keyCode)
}

func (s *AccessibilityInputStrategy) TypeText(ctx context.Context, text string) error {
	return s.bridge.TypeText(ctx, text)
}

// AccessibilityHierarchyStrategy reads the live tree from the bridge.
type AccessibilityHierarchyStrategy struct {
	bridge AccessibilityBridge
}

func NewAccessibilityHierarchy(bridge AccessibilityBridge) *AccessibilityHierarchyStrategy {
	return &AccessibilityHierarchyStrategy{bridge: bridge}
}

func (s *AccessibilityHierarchyStrategy) Name() string            { return "accessibility" }
func (s *AccessibilityHierarchyStrategy) RequiresPrivilege() bool { return false }

func (s *AccessibilityHierarchyStrategy) Dump(ctx context.Context) ([]*strategy.Element, error) {
	return s.bridge.CurrentTree(ctx)
}

// MediaProjectionCaptureStrategy represents the non-privileged capture
// path (framework capture requiring a one-time user consent prompt). It
// is the fallback used when no privileged shell capture is available.
type MediaProjectionCaptureStrategy struct {
	bridge AccessibilityBridge // not set by NewMediaProjectionCapture and not read by Screenshot
	capture func(ctx context.Context, quality int, scale float64) ([]byte, error)
}

func NewMediaProjectionCapture(capture func(ctx context.Context, quality int, scale float64) ([]byte, error)) *MediaProjectionCaptureStrategy {
	return &MediaProjectionCaptureStrategy{capture: capture}
}

func (s *MediaProjectionCaptureStrategy) Name() string            { return "mediaprojection" }
func (s *MediaProjectionCaptureStrategy) RequiresPrivilege() bool { return false }

func (s *MediaProjectionCaptureStrategy) Screenshot(ctx context.Context, quality int, scale float64) ([]byte, string, error) {
	data, err := s.capture(ctx, quality, scale)
	if err != nil {
		return nil, "", err
	}
	return data, "png", nil
}

// InMemoryAccessibilityBridge is a minimal, test-friendly
// AccessibilityBridge backed by a settable in-memory tree. Real
// deployments replace this with a bridge to the platform's
// accessibility-service IPC channel.
type InMemoryAccessibilityBridge struct {
	mu   sync.RWMutex
	tree []*strategy.Element
}

func NewInMemoryAccessibilityBridge() *InMemoryAccessibilityBridge {
	return &InMemoryAccessibilityBridge{}
}

func (b *InMemoryAccessibilityBridge) SetTree(tree []*strategy.Element) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tree = tree
}

func (b *InMemoryAccessibilityBridge) CurrentTree(ctx context.Context) ([]*strategy.Element, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree, nil
}

func (b *InMemoryAccessibilityBridge) Tap(ctx context.Context, p strategy.Point) error             { return nil }
func (b *InMemoryAccessibilityBridge) Swipe(ctx context.Context, from, to strategy.Point, ms int) error { return nil }
func (b *InMemoryAccessibilityBridge) KeyEvent(ctx context.Context, keyCode int) error             { return nil }
func (b *InMemoryAccessibilityBridge) TypeText(ctx context.Context, text string) error             { return nil }
