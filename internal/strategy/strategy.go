// Package strategy defines the three capability-aware operation
// families (input, screen-capture, hierarchy) as insertion-ordered
// registries of named, registered values — never inheritance
// hierarchies.
package strategy

import "context"

// Family identifies one of the three operation families.
type Family string

const (
	FamilyInput    Family = "input"
	FamilyCapture  Family = "capture"
	FamilyHierarchy Family = "hierarchy"
)

// Point is a device-screen coordinate.
type Point struct{ X, Y int }

// Rect is an axis-aligned bounding box in device-screen coordinates.
type Rect struct{ Left, Top, Right, Bottom int }

func (r Rect) Center() Point {
	return Point{X: (r.Left + r.Right) / 2, Y: (r.Top + r.Bottom) / 2}
}

// Element is one node of a UI hierarchy snapshot.
type Element struct {
	ID                string
	ClassName         string
	Bounds            Rect
	ResourceID        string
	Text              string
	ContentDesc       string
	PackageName       string
	Clickable         bool
	Enabled           bool
	Scrollable        bool
	Focusable         bool
	Checked           bool
	Selected          bool
	Children          []*Element
}

// InputStrategy delivers touch and key input to the device.
type InputStrategy interface {
	Name() string
	RequiresPrivilege() bool
	Tap(ctx context.Context, p Point) error
	Swipe(ctx context.Context, from, to Point, durationMs int) error
	Gesture(ctx context.Context, points []Point, durationMs int) error
	KeyEvent(ctx context.Context, keyCode int) error
	TypeText(ctx context.Context, text string) error
}

// CaptureStrategy produces a full-screen image.
type CaptureStrategy interface {
	Name() string
	RequiresPrivilege() bool
	Screenshot(ctx context.Context, quality int, scale float64) (data []byte, format string, err error)
}

// HierarchyStrategy snapshots the on-screen UI tree.
type HierarchyStrategy interface {
	Name() string
	RequiresPrivilege() bool
	Dump(ctx context.Context) ([]*Element, error)
}

// Registry is an insertion-ordered list of named strategies for a
// single family. Registration is additive. Registry has no locking of
// its own; capability.Resolver guards the registries it holds.
type Registry[T interface {
	Name() string
	RequiresPrivilege() bool
}] struct {
	entries []T
}

func NewRegistry[T interface {
	Name() string
	RequiresPrivilege() bool
}]() *Registry[T] {
	return &Registry[T]{}
}

func (r *Registry[T]) Register(s T) {
	r.entries = append(r.entries, s)
}

func (r *Registry[T]) All() []T {
	out := make([]T, len(r.entries))
	copy(out, r.entries)
	return out
}

// ByName returns the first entry with the given name, if any.
func (r *Registry[T]) ByName(name string) (T, bool) {
	for _, e := range r.entries {
		if e.Name() == name {
			return e, true
		}
	}
	var zero T
	return zero, false
}

// FirstNonPrivileged returns the first entry not requiring privilege.
func (r *Registry[T]) FirstNonPrivileged() (T, bool) {
	for _, e := range r.entries {
		if !e.RequiresPrivilege() {
			return e, true
		}
	}
	var zero T
	return zero, false
}

// FirstPrivileged returns the first entry requiring privilege.
func (r *Registry[T]) FirstPrivileged() (T, bool) {
	for _, e := range r.entries {
		if e.RequiresPrivilege() {
			return e, true
		}
	}
	var zero T
	return zero, false
}

// First returns the first registered entry, if any.
func (r *Registry[T]) First() (T, bool) {
	if len(r.entries) == 0 {
		var zero T
		return zero, false
	}
	return r.entries[0], true
}
