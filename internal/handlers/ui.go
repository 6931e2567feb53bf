package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hemiaoio/android-auto-test/internal/agenterr"
	"github.com/hemiaoio/android-auto-test/internal/capability"
	"github.com/hemiaoio/android-auto-test/internal/router"
	"github.com/hemiaoio/android-auto-test/internal/strategy"
)

// UI bundles the dependencies shared by the ui.* handlers. It also
// caches the last toast seen via a write-through accessibility or shell
// strategy hook, kept as plain state here since no strategy currently
// pushes toast events.
type UI struct {
	resolver *capability.Resolver

	mu        sync.Mutex
	lastToast string
	toastAt   int64
}

func NewUI(resolver *capability.Resolver) *UI {
	return &UI{resolver: resolver}
}

func (u *UI) RegisterHandlers(r *router.Router) {
	r.Register(&uiFindHandler{u})
	r.Register(&uiDumpHandler{u})
	r.Register(&uiClickHandler{u})
	r.Register(&uiLongClickHandler{u})
	r.Register(&uiDoubleClickHandler{u})
	r.Register(&uiTypeHandler{u})
	r.Register(&uiSwipeHandler{u})
	r.Register(&uiScrollHandler{u})
	r.Register(&uiWaitForHandler{u})
	r.Register(&uiToastHandler{u})
	r.Register(&uiGestureHandler{u})
	r.Register(&uiPinchHandler{u})
}

func (u *UI) dump(ctx context.Context) ([]*strategy.Element, error) {
	h, ok := u.resolver.ResolveHierarchy()
	if !ok {
		return nil, agenterr.New(agenterr.CodeHierarchyUnavailable, "no hierarchy strategy available")
	}
	return h.Dump(ctx)
}

func elementJSON(el *strategy.Element) map[string]any {
	return map[string]any{
		"resourceId":  el.ResourceID,
		"text":        el.Text,
		"className":   el.ClassName,
		"contentDesc": el.ContentDesc,
		"packageName": el.PackageName,
		"bounds": map[string]int{
			"left": el.Bounds.Left, "top": el.Bounds.Top,
			"right": el.Bounds.Right, "bottom": el.Bounds.Bottom,
		},
		"clickable":  el.Clickable,
		"enabled":    el.Enabled,
		"scrollable": el.Scrollable,
		"focusable":  el.Focusable,
		"checked":    el.Checked,
		"selected":   el.Selected,
	}
}

type findParams struct {
	Selector Selector `json:"selector"`
}

type uiFindHandler struct{ u *UI }

func (h *uiFindHandler) Method() string { return "ui.find" }
func (h *uiFindHandler) Validate(params []byte) error {
	var p findParams
	return json.Unmarshal(params, &p)
}

func (h *uiFindHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p findParams
	_ = json.Unmarshal(params, &p)
	roots, err := h.u.dump(ctx)
	if err != nil {
		return nil, err
	}
	matches := FindAll(roots, &p.Selector)
	elements := make([]map[string]any, len(matches))
	for i, el := range matches {
		elements[i] = elementJSON(el)
	}
	return map[string]any{"elements": elements, "count": len(elements)}, nil
}

type uiDumpHandler struct{ u *UI }

func (h *uiDumpHandler) Method() string          { return "ui.dump" }
func (h *uiDumpHandler) Validate(params []byte) error { return nil }

func (h *uiDumpHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	roots, err := h.u.dump(ctx)
	if err != nil {
		return nil, err
	}
	var flatten func(el *strategy.Element) []map[string]any
	flatten = func(el *strategy.Element) []map[string]any {
		out := []map[string]any{elementJSON(el)}
		for _, c := range el.Children {
			out = append(out, flatten(c)...)
		}
		return out
	}
	var elements []map[string]any
	for _, r := range roots {
		elements = append(elements, flatten(r)...)
	}
	return map[string]any{"elements": elements}, nil
}

// pointOrSelectorParams is shared by click/longClick/doubleClick.
type pointOrSelectorParams struct {
	X          *int      `json:"x,omitempty"`
	Y          *int      `json:"y,omitempty"`
	Selector   *Selector `json:"selector,omitempty"`
	DurationMs int       `json:"durationMs,omitempty"`
}

// resolvePoint resolves x/y directly, or via the selector's first match
// centre, per §4.6's click-by-selector contract.
func (u *UI) resolvePoint(ctx context.Context, p pointOrSelectorParams) (strategy.Point, error) {
	if p.X != nil && p.Y != nil {
		return strategy.Point{X: *p.X, Y: *p.Y}, nil
	}
	if p.Selector == nil {
		return strategy.Point{}, agenterr.New(agenterr.CodeValidationError, "either x/y or selector is required")
	}
	roots, err := u.dump(ctx)
	if err != nil {
		return strategy.Point{}, err
	}
	el, ok := FindFirst(roots, p.Selector)
	if !ok {
		return strategy.Point{}, agenterr.New(agenterr.CodeElementNotFound, "Element not found")
	}
	return el.Bounds.Center(), nil
}

type uiClickHandler struct{ u *UI }

func (h *uiClickHandler) Method() string { return "ui.click" }
func (h *uiClickHandler) Validate(params []byte) error {
	var p pointOrSelectorParams
	return json.Unmarshal(params, &p)
}

func (h *uiClickHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p pointOrSelectorParams
	_ = json.Unmarshal(params, &p)
	pt, err := h.u.resolvePoint(ctx, p)
	if err != nil {
		// §7 scenario 3: a missed selector click is reported as a
		// success-shaped result carrying an in-result failure, not a
		// wire error.
		if ae, ok := err.(*agenterr.AgentError); ok && ae.Code == agenterr.CodeElementNotFound {
			return map[string]any{"success": false, "error": ae.Message}, nil
		}
		return nil, err
	}
	in, ok := h.u.resolver.ResolveInput()
	if !ok {
		return nil, agenterr.New(agenterr.CodePrivilegeRequired, "no input strategy available")
	}
	if err := in.Tap(ctx, pt); err != nil {
		return map[string]any{"success": false, "error": err.Error()}, nil
	}
	return map[string]any{"success": true, "x": pt.X, "y": pt.Y}, nil
}

type uiLongClickHandler struct{ u *UI }

func (h *uiLongClickHandler) Method() string { return "ui.longClick" }
func (h *uiLongClickHandler) Validate(params []byte) error {
	var p pointOrSelectorParams
	return json.Unmarshal(params, &p)
}

func (h *uiLongClickHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p pointOrSelectorParams
	_ = json.Unmarshal(params, &p)
	pt, err := h.u.resolvePoint(ctx, p)
	if err != nil {
		if ae, ok := err.(*agenterr.AgentError); ok && ae.Code == agenterr.CodeElementNotFound {
			return map[string]any{"success": false, "error": ae.Message}, nil
		}
		return nil, err
	}
	duration := p.DurationMs
	if duration <= 0 {
		duration = 800
	}
	in, ok := h.u.resolver.ResolveInput()
	if !ok {
		return nil, agenterr.New(agenterr.CodePrivilegeRequired, "no input strategy available")
	}
	if err := in.Swipe(ctx, pt, pt, duration); err != nil {
		return map[string]any{"success": false, "error": err.Error()}, nil
	}
	return map[string]any{"success": true}, nil
}

type uiDoubleClickHandler struct{ u *UI }

func (h *uiDoubleClickHandler) Method() string { return "ui.doubleClick" }
func (h *uiDoubleClickHandler) Validate(params []byte) error {
	var p pointOrSelectorParams
	return json.Unmarshal(params, &p)
}

func (h *uiDoubleClickHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p pointOrSelectorParams
	_ = json.Unmarshal(params, &p)
	pt, err := h.u.resolvePoint(ctx, p)
	if err != nil {
		if ae, ok := err.(*agenterr.AgentError); ok && ae.Code == agenterr.CodeElementNotFound {
			return map[string]any{"success": false, "error": ae.Message}, nil
		}
		return nil, err
	}
	in, ok := h.u.resolver.ResolveInput()
	if !ok {
		return nil, agenterr.New(agenterr.CodePrivilegeRequired, "no input strategy available")
	}
	if err := in.Tap(ctx, pt); err != nil {
		return map[string]any{"success": false, "error": err.Error()}, nil
	}
	time.Sleep(100 * time.Millisecond)
	if err := in.Tap(ctx, pt); err != nil {
		return map[string]any{"success": false, "error": err.Error()}, nil
	}
	return map[string]any{"success": true}, nil
}

type typeParams struct {
	Text     string    `json:"text"`
	Selector *Selector `json:"selector,omitempty"`
}

type uiTypeHandler struct{ u *UI }

func (h *uiTypeHandler) Method() string { return "ui.type" }
func (h *uiTypeHandler) Validate(params []byte) error {
	var p typeParams
	return json.Unmarshal(params, &p)
}

func (h *uiTypeHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p typeParams
	_ = json.Unmarshal(params, &p)
	if p.Selector != nil {
		pp := pointOrSelectorParams{Selector: p.Selector}
		if _, err := h.u.resolvePoint(ctx, pp); err != nil {
			if ae, ok := err.(*agenterr.AgentError); ok && ae.Code == agenterr.CodeElementNotFound {
				return map[string]any{"success": false, "error": ae.Message}, nil
			}
			return nil, err
		}
	}
	in, ok := h.u.resolver.ResolveInput()
	if !ok {
		return nil, agenterr.New(agenterr.CodePrivilegeRequired, "no input strategy available")
	}
	if err := in.TypeText(ctx, p.Text); err != nil {
		return map[string]any{"success": false, "error": err.Error()}, nil
	}
	return map[string]any{"success": true}, nil
}

type swipeParams struct {
	X1, Y1, X2, Y2 int
	DurationMs     int `json:"durationMs"`
}

type uiSwipeHandler struct{ u *UI }

func (h *uiSwipeHandler) Method() string { return "ui.swipe" }
func (h *uiSwipeHandler) Validate(params []byte) error {
	var p swipeParams
	return json.Unmarshal(params, &p)
}

func (h *uiSwipeHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p swipeParams
	_ = json.Unmarshal(params, &p)
	duration := p.DurationMs
	if duration <= 0 {
		duration = 300
	}
	in, ok := h.u.resolver.ResolveInput()
	if !ok {
		return nil, agenterr.New(agenterr.CodePrivilegeRequired, "no input strategy available")
	}
	from := strategy.Point{X: p.X1, Y: p.Y1}
	to := strategy.Point{X: p.X2, Y: p.Y2}
	if err := in.Swipe(ctx, from, to, duration); err != nil {
		return map[string]any{"success": false, "error": err.Error()}, nil
	}
	return map[string]any{"success": true}, nil
}

type scrollParams struct {
	Direction  string `json:"direction"`
	Distance   int    `json:"distance"`
	CentreX    int    `json:"centreX"`
	CentreY    int    `json:"centreY"`
	DurationMs int    `json:"durationMs"`
}

type uiScrollHandler struct{ u *UI }

func (h *uiScrollHandler) Method() string { return "ui.scroll" }
func (h *uiScrollHandler) Validate(params []byte) error {
	var p scrollParams
	return json.Unmarshal(params, &p)
}

func (h *uiScrollHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p scrollParams
	_ = json.Unmarshal(params, &p)
	direction := p.Direction
	if direction == "" {
		direction = "down"
	}
	distance := p.Distance
	if distance <= 0 {
		distance = 400
	}
	centre := strategy.Point{X: p.CentreX, Y: p.CentreY}
	to := offsetPoint(centre, direction, distance)

	in, ok := h.u.resolver.ResolveInput()
	if !ok {
		return nil, agenterr.New(agenterr.CodePrivilegeRequired, "no input strategy available")
	}
	duration := p.DurationMs
	if duration <= 0 {
		duration = 300
	}
	if err := in.Swipe(ctx, centre, to, duration); err != nil {
		return map[string]any{"success": false, "error": err.Error()}, nil
	}
	return map[string]any{"success": true}, nil
}

func offsetPoint(p strategy.Point, direction string, distance int) strategy.Point {
	switch direction {
	case "up":
		return strategy.Point{X: p.X, Y: p.Y - distance}
	case "down":
		return strategy.Point{X: p.X, Y: p.Y + distance}
	case "left":
		return strategy.Point{X: p.X - distance, Y: p.Y}
	case "right":
		return strategy.Point{X: p.X + distance, Y: p.Y}
	default:
		return strategy.Point{X: p.X, Y: p.Y + distance}
	}
}

type waitForParams struct {
	Selector  Selector `json:"selector"`
	TimeoutMs *int     `json:"timeoutMs"`
	Condition string   `json:"condition"`
	PollMs    int      `json:"pollMs"`
}

type uiWaitForHandler struct{ u *UI }

func (h *uiWaitForHandler) Method() string { return "ui.waitFor" }
func (h *uiWaitForHandler) Validate(params []byte) error {
	var p waitForParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	if p.Condition != "" && p.Condition != "exists" && p.Condition != "gone" {
		return fmt.Errorf("condition must be exists or gone")
	}
	return nil
}

func (h *uiWaitForHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p waitForParams
	_ = json.Unmarshal(params, &p)
	condition := p.Condition
	if condition == "" {
		condition = "exists"
	}
	pollMs := p.PollMs
	if pollMs <= 0 {
		pollMs = 500
	}
	timeoutMs := 10000
	if p.TimeoutMs != nil {
		timeoutMs = *p.TimeoutMs
	}

	check := func() (bool, *strategy.Element, error) {
		roots, err := h.u.dump(ctx)
		if err != nil {
			return false, nil, err
		}
		el, found := FindFirst(roots, &p.Selector)
		satisfied := (condition == "exists" && found) || (condition == "gone" && !found)
		return satisfied, el, nil
	}

	if timeoutMs == 0 {
		satisfied, el, err := check()
		if err != nil {
			return nil, err
		}
		if satisfied {
			return waitForResult(condition, el, true, false), nil
		}
		return waitForResult(condition, nil, condition == "gone", true), nil
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		satisfied, el, err := check()
		if err != nil {
			return nil, err
		}
		if satisfied {
			return waitForResult(condition, el, true, false), nil
		}
		if time.Now().After(deadline) {
			return waitForResult(condition, nil, condition == "gone", true), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(pollMs) * time.Millisecond):
		}
	}
}

func waitForResult(condition string, el *strategy.Element, found, timedOut bool) map[string]any {
	out := map[string]any{"found": found, "timed_out": timedOut}
	if el != nil {
		out["element"] = elementJSON(el)
	}
	return out
}

type uiToastHandler struct{ u *UI }

func (h *uiToastHandler) Method() string          { return "ui.toast" }
func (h *uiToastHandler) Validate(params []byte) error { return nil }

func (h *uiToastHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	h.u.mu.Lock()
	defer h.u.mu.Unlock()
	return map[string]any{"text": h.u.lastToast, "timestamp": h.u.toastAt}, nil
}

// RecordToast lets a strategy push an observed toast; no built-in
// strategy currently calls this, since toast capture requires a
// log-watching bridge out of scope for the shell/accessibility
// strategies this agent ships with.
func (u *UI) RecordToast(text string, at int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastToast = text
	u.toastAt = at
}

type gestureParams struct {
	Points     []strategy.Point `json:"points"`
	DurationMs int              `json:"durationMs"`
}

type uiGestureHandler struct{ u *UI }

func (h *uiGestureHandler) Method() string { return "ui.gesture" }
func (h *uiGestureHandler) Validate(params []byte) error {
	var p gestureParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	if len(p.Points) < 2 {
		return fmt.Errorf("points must contain at least two points")
	}
	return nil
}

func (h *uiGestureHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p gestureParams
	_ = json.Unmarshal(params, &p)
	duration := p.DurationMs
	if duration <= 0 {
		duration = 300
	}
	in, ok := h.u.resolver.ResolveInput()
	if !ok {
		return nil, agenterr.New(agenterr.CodePrivilegeRequired, "no input strategy available")
	}
	if err := in.Gesture(ctx, p.Points, duration); err != nil {
		return map[string]any{"success": false, "error": err.Error()}, nil
	}
	return map[string]any{"success": true}, nil
}

type pinchParams struct {
	CentreX    int    `json:"centreX"`
	CentreY    int    `json:"centreY"`
	Direction  string `json:"direction"`
	Distance   int    `json:"distance"`
	DurationMs int    `json:"durationMs"`
}

type uiPinchHandler struct{ u *UI }

func (h *uiPinchHandler) Method() string { return "ui.pinch" }
func (h *uiPinchHandler) Validate(params []byte) error {
	var p pinchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	if p.Direction != "in" && p.Direction != "out" {
		return fmt.Errorf("direction must be in or out")
	}
	return nil
}

// pinch performs two concurrent radiating swipes, per §4.6.
func (h *uiPinchHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p pinchParams
	_ = json.Unmarshal(params, &p)
	distance := p.Distance
	if distance <= 0 {
		distance = 300
	}
	duration := p.DurationMs
	if duration <= 0 {
		duration = 300
	}
	centre := strategy.Point{X: p.CentreX, Y: p.CentreY}
	a1 := strategy.Point{X: centre.X - distance, Y: centre.Y}
	a2 := strategy.Point{X: centre.X + distance, Y: centre.Y}
	b1 := strategy.Point{X: centre.X, Y: centre.Y - distance}
	b2 := strategy.Point{X: centre.X, Y: centre.Y + distance}

	var from1, to1, from2, to2 strategy.Point
	if p.Direction == "out" {
		from1, to1 = centre, a1
		from2, to2 = centre, b1
		_ = a2
		_ = b2
	} else {
		from1, to1 = a1, centre
		from2, to2 = b1, centre
	}

	in, ok := h.u.resolver.ResolveInput()
	if !ok {
		return nil, agenterr.New(agenterr.CodePrivilegeRequired, "no input strategy available")
	}

	var wg sync.WaitGroup
	var err1, err2 error
	wg.Add(2)
	go func() { defer wg.Done(); err1 = in.Swipe(ctx, from1, to1, duration) }()
	go func() { defer wg.Done(); err2 = in.Swipe(ctx, from2, to2, duration) }()
	wg.Wait()

	if err1 != nil || err2 != nil {
		return map[string]any{"success": false, "direction": p.Direction}, nil
	}
	return map[string]any{"success": true, "direction": p.Direction}, nil
}
