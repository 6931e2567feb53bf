// Package handlers implements the command-handler families serving
// device.*, ui.*, app.*, and system.* methods (the perf.* handlers live
// in internal/perf). Handlers delegate
// to resolver-selected strategies or the shell executor; they are pure
// with respect to the envelope.
package handlers

import (
	"regexp"
	"strings"

	"github.com/hemiaoio/android-auto-test/internal/strategy"
)

// TextMatch is a matching mode for string-valued selector fields.
type TextMatch string

const (
	MatchExact    TextMatch = "exact"
	MatchContains TextMatch = "contains"
	MatchRegex    TextMatch = "regex"
)

// StringMatcher pairs a value with how it should be compared.
type StringMatcher struct {
	Value string    `json:"value,omitempty"`
	Mode  TextMatch `json:"mode,omitempty"`
}

func (m *StringMatcher) matches(candidate string) bool {
	if m == nil || m.Value == "" {
		return true
	}
	switch m.Mode {
	case MatchContains:
		return strings.Contains(candidate, m.Value)
	case MatchRegex:
		re, err := regexp.Compile(m.Value)
		if err != nil {
			return false
		}
		return re.MatchString(candidate)
	default:
		return candidate == m.Value
	}
}

// Selector is the AND-combined, wildcard-on-absence match criteria
// described in §4.6. ResourceID/ClassName/PackageName are exact;
// Text/ContentDesc support exact/contains/regex.
type Selector struct {
	ResourceID  string         `json:"resourceId,omitempty"`
	Text        *StringMatcher `json:"text,omitempty"`
	ClassName   string         `json:"className,omitempty"`
	ContentDesc *StringMatcher `json:"contentDesc,omitempty"`
	PackageName string         `json:"packageName,omitempty"`

	Enabled    *bool `json:"enabled,omitempty"`
	Clickable  *bool `json:"clickable,omitempty"`
	Scrollable *bool `json:"scrollable,omitempty"`
	Focusable  *bool `json:"focusable,omitempty"`
	Checked    *bool `json:"checked,omitempty"`
	Selected   *bool `json:"selected,omitempty"`

	Child  *Selector `json:"child,omitempty"`
	Parent *Selector `json:"parent,omitempty"`
}

// IsEmpty reports whether every field is a wildcard.
func (s *Selector) IsEmpty() bool {
	if s == nil {
		return true
	}
	return s.ResourceID == "" && s.Text == nil && s.ClassName == "" &&
		s.ContentDesc == nil && s.PackageName == "" &&
		s.Enabled == nil && s.Clickable == nil && s.Scrollable == nil &&
		s.Focusable == nil && s.Checked == nil && s.Selected == nil &&
		s.Child == nil && s.Parent == nil
}

func boolMatches(want *bool, got bool) bool {
	return want == nil || *want == got
}

// matchesSelf checks only el's own fields, ignoring Child/Parent.
func (s *Selector) matchesSelf(el *strategy.Element) bool {
	if s.ResourceID != "" && el.ResourceID != s.ResourceID {
		return false
	}
	if !s.Text.matches(el.Text) {
		return false
	}
	if s.ClassName != "" && el.ClassName != s.ClassName {
		return false
	}
	if !s.ContentDesc.matches(el.ContentDesc) {
		return false
	}
	if s.PackageName != "" && el.PackageName != s.PackageName {
		return false
	}
	if !boolMatches(s.Enabled, el.Enabled) {
		return false
	}
	if !boolMatches(s.Clickable, el.Clickable) {
		return false
	}
	if !boolMatches(s.Scrollable, el.Scrollable) {
		return false
	}
	if !boolMatches(s.Focusable, el.Focusable) {
		return false
	}
	if !boolMatches(s.Checked, el.Checked) {
		return false
	}
	if !boolMatches(s.Selected, el.Selected) {
		return false
	}
	return true
}

// FindAll walks the forest in pre-order, returning every element
// matching the selector. An empty selector matches every element. Child
// selectors restrict by "has a matching descendant"; parent selectors by
// "has a matching ancestor restriction" expressed structurally as a
// nested selector on the element itself being the child.
func FindAll(roots []*strategy.Element, sel *Selector) []*strategy.Element {
	var out []*strategy.Element
	var walk func(el *strategy.Element, ancestors []*strategy.Element)
	walk = func(el *strategy.Element, ancestors []*strategy.Element) {
		if matches(el, sel, ancestors) {
			out = append(out, el)
		}
		nextAncestors := append(ancestors, el)
		for _, c := range el.Children {
			walk(c, nextAncestors)
		}
	}
	for _, r := range roots {
		walk(r, nil)
	}
	return out
}

func matches(el *strategy.Element, sel *Selector, ancestors []*strategy.Element) bool {
	if sel == nil || sel.IsEmpty() {
		return true
	}
	if !sel.matchesSelf(el) {
		return false
	}
	if sel.Child != nil && !hasMatchingDescendant(el, sel.Child) {
		return false
	}
	if sel.Parent != nil && !hasMatchingAncestor(ancestors, sel.Parent) {
		return false
	}
	return true
}

func hasMatchingDescendant(el *strategy.Element, sel *Selector) bool {
	for _, c := range el.Children {
		if sel.matchesSelf(c) || hasMatchingDescendant(c, sel) {
			return true
		}
	}
	return false
}

func hasMatchingAncestor(ancestors []*strategy.Element, sel *Selector) bool {
	for _, a := range ancestors {
		if sel.matchesSelf(a) {
			return true
		}
	}
	return false
}

// FindFirst returns the first pre-order match, or false if none.
func FindFirst(roots []*strategy.Element, sel *Selector) (*strategy.Element, bool) {
	all := FindAll(roots, sel)
	if len(all) == 0 {
		return nil, false
	}
	return all[0], true
}
