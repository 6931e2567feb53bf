package builtin

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/hemiaoio/android-auto-test/internal/strategy"
)

// xmlNode mirrors the uiautomator-style hierarchy dump format: nested
// <node> elements carrying a fixed attribute set.
type xmlNode struct {
	Class       string    `xml:"class,attr"`
	Text        string    `xml:"text,attr"`
	ResourceID  string    `xml:"resource-id,attr"`
	ContentDesc string    `xml:"content-desc,attr"`
	Package     string    `xml:"package,attr"`
	Bounds      string    `xml:"bounds,attr"`
	Clickable   string    `xml:"clickable,attr"`
	Enabled     string    `xml:"enabled,attr"`
	Scrollable  string    `xml:"scrollable,attr"`
	Focusable   string    `xml:"focusable,attr"`
	Checked     string    `xml:"checked,attr"`
	Selected    string    `xml:"selected,attr"`
	Nodes       []xmlNode `xml:"node"`
}

type xmlHierarchy struct {
	XMLName xml.Name  `xml:"hierarchy"`
	Nodes   []xmlNode `xml:"node"`
}

// parseHierarchyXML decodes a uiautomator-style dump into the Element
// tree. A nil/empty input yields an empty tree, not an error — some
// callers (the shell strategy against a bare accessibility tree) see no
// nodes at all.
func parseHierarchyXML(data []byte) ([]*strategy.Element, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var doc xmlHierarchy
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse hierarchy xml: %w", err)
	}
	out := make([]*strategy.Element, 0, len(doc.Nodes))
	for i := range doc.Nodes {
		out = append(out, convertNode(&doc.Nodes[i], strconv.Itoa(i)))
	}
	return out, nil
}

func convertNode(n *xmlNode, id string) *strategy.Element {
	el := &strategy.Element{
		ID:          id,
		ClassName:   n.Class,
		Text:        n.Text,
		ResourceID:  n.ResourceID,
		ContentDesc: n.ContentDesc,
		PackageName: n.Package,
		Bounds:      parseBounds(n.Bounds),
		Clickable:   n.Clickable == "true",
		Enabled:     n.Enabled == "true" || n.Enabled == "",
		Scrollable:  n.Scrollable == "true",
		Focusable:   n.Focusable == "true",
		Checked:     n.Checked == "true",
		Selected:    n.Selected == "true",
	}
	for i := range n.Nodes {
		el.Children = append(el.Children, convertNode(&n.Nodes[i], fmt.Sprintf("%s.%d", id, i)))
	}
	return el
}

// parseBounds parses the uiautomator "[left,top][right,bottom]" format.
func parseBounds(s string) strategy.Rect {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "][")
	if len(parts) != 2 {
		return strategy.Rect{}
	}
	left, top := splitPair(strings.TrimPrefix(parts[0], "["))
	right, bottom := splitPair(strings.TrimSuffix(parts[1], "]"))
	return strategy.Rect{Left: left, Top: top, Right: right, Bottom: bottom}
}

func splitPair(s string) (int, int) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0
	}
	a, _ := strconv.Atoi(parts[0])
	b, _ := strconv.Atoi(parts[1])
	return a, b
}
