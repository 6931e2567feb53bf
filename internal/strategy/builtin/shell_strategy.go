// Package builtin provides the agent's default strategy
// implementations: a privileged-shell backend usable when the device
// grants shell access, and a minimal accessibility-service backend. The
// engine registers the shell strategies first, so strategies registered
// later (e.g. a media-projection capture strategy) follow them; the
// resolution policy in internal/capability decides which one is used.
package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/hemiaoio/android-auto-test/internal/shell"
	"github.com/hemiaoio/android-auto-test/internal/strategy"
)

// ShellInputStrategy delivers input via shell-level "input" commands.
// It requires privilege because the underlying shell commands do.
type ShellInputStrategy struct {
	exec shell.Executor
}

func NewShellInput(exec shell.Executor) *ShellInputStrategy {
	return &ShellInputStrategy{exec: exec}
}

func (s *ShellInputStrategy) Name() string            { return "shell" }
func (s *ShellInputStrategy) RequiresPrivilege() bool { return true }

func (s *ShellInputStrategy) Tap(ctx context.Context, p strategy.Point) error {
	_, err := s.exec.Run(ctx, fmt.Sprintf("input tap %d %d", p.X, p.Y), true, 0)
	return err
}

func (s *ShellInputStrategy) Swipe(ctx context.Context, from, to strategy.Point, durationMs int) error {
	_, err := s.exec.Run(ctx, fmt.Sprintf("input swipe %d %d %d %d %d", from.X, from.Y, to.X, to.Y, durationMs), true, 0)
	return err
}

func (s *ShellInputStrategy) Gesture(ctx context.Context, points []strategy.Point, durationMs int) error {
	if len(points) < 2 {
		return fmt.Errorf("gesture requires at least 2 points")
	}
	for i := 0; i < len(points)-1; i++ {
		if err := s.Swipe(ctx, points[i], points[i+1], durationMs/max(1, len(points)-1)); err != nil {
			return err
		}
	}
	return nil
}

func (s *ShellInputStrategy) KeyEvent(ctx context.Context, keyCode int) error {
	_, err := s.exec.Run(ctx, fmt.Sprintf("input keyevent %d", keyCode), true, 0)
	return err
}

func (s *ShellInputStrategy) TypeText(ctx context.Context, text string) error {
	escaped := strings.ReplaceAll(text, " ", "%s")
	_, err := s.exec.Run(ctx, fmt.Sprintf("input text %q", escaped), true, 0)
	return err
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ShellCaptureStrategy captures the screen via a shell-level screencap
// invocation writing PNG bytes to stdout.
type ShellCaptureStrategy struct {
	exec shell.Executor
}

func NewShellCapture(exec shell.Executor) *ShellCaptureStrategy {
	return &ShellCaptureStrategy{exec: exec}
}

func (s *ShellCaptureStrategy) Name() string            { return "shell" }
func (s *ShellCaptureStrategy) RequiresPrivilege() bool { return true }

func (s *ShellCaptureStrategy) Screenshot(ctx context.Context, quality int, scale float64) ([]byte, string, error) {
	res, err := s.exec.Run(ctx, "screencap -p", true, 0)
	if err != nil {
		return nil, "", err
	}
	return []byte(res.Stdout), "png", nil
}

// ShellHierarchyStrategy dumps the UI hierarchy via a uiautomator-style
// shell snapshot. It is the fallback when accessibility is unavailable.
type ShellHierarchyStrategy struct {
	exec shell.Executor
}

func NewShellHierarchy(exec shell.Executor) *ShellHierarchyStrategy {
	return &ShellHierarchyStrategy{exec: exec}
}

func (s *ShellHierarchyStrategy) Name() string            { return "shell" }
func (s *ShellHierarchyStrategy) RequiresPrivilege() bool { return true }

func (s *ShellHierarchyStrategy) Dump(ctx context.Context) ([]*strategy.Element, error) {
	if _, err := s.exec.Run(ctx, "uiautomator dump /sdcard/window_dump.xml", true, 0); err != nil {
		return nil, err
	}
	res, err := s.exec.Run(ctx, "cat /sdcard/window_dump.xml", true, 0)
	if err != nil {
		return nil, err
	}
	return parseHierarchyXML([]byte(res.Stdout))
}
