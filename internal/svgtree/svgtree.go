// Package svgtree is the mutable vector tree shared by the import pipeline:
// an SVG-shaped element tree with ordered attributes and ordered children.
package svgtree

import "strconv"

// Attr is a single attribute. Attribute order is kept as inserted so that
// serialization is deterministic.
type Attr struct {
	Name  string
	Value string
}

// Node is one element of a vector tree.
type Node struct {
	Tag      string
	Attrs    []Attr
	Text     string  // Character data (text runs, style sheets)
	Children []*Node // Paint order; never reorder
}

// Viewport is the unscaled size of a source page in user units.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Primitive tags: shapes and text the simplified renderer can draw.
var primitiveTags = map[string]bool{
	"path":     true,
	"rect":     true,
	"circle":   true,
	"ellipse":  true,
	"polygon":  true,
	"polyline": true,
	"line":     true,
	"text":     true,
}

// IsPrimitive reports whether tag is a drawable shape or text element.
func IsPrimitive(tag string) bool {
	return primitiveTags[tag]
}

// New creates a node with the given tag and attributes.
func New(tag string, attrs ...Attr) *Node {
	n := &Node{Tag: tag}
	for _, a := range attrs {
		n.Set(a.Name, a.Value)
	}
	return n
}

// Get returns the attribute value and whether it is present.
func (n *Node) Get(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Attr returns the attribute value, or "" when absent.
func (n *Node) Attr(name string) string {
	v, _ := n.Get(name)
	return v
}

// Has reports whether the attribute is present.
func (n *Node) Has(name string) bool {
	_, ok := n.Get(name)
	return ok
}

// Set replaces an existing attribute in place or appends a new one.
func (n *Node) Set(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// SetFloat sets a numeric attribute using the shortest exact formatting.
func (n *Node) SetFloat(name string, v float64) {
	n.Set(name, FormatFloat(v))
}

// Del removes an attribute, reporting whether it was present.
func (n *Node) Del(name string) bool {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return true
		}
	}
	return false
}

// Append adds children in order and returns n.
func (n *Node) Append(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// Walk visits n and its descendants in document order. Returning false
// from fn skips the node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Find returns the first node in document order matching pred, or nil.
func (n *Node) Find(pred func(*Node) bool) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if pred(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

// Count returns the number of nodes (n included) matching pred.
func (n *Node) Count(pred func(*Node) bool) int {
	count := 0
	n.Walk(func(c *Node) bool {
		if pred(c) {
			count++
		}
		return true
	})
	return count
}

// RemoveWhere detaches every descendant matching pred together with its
// subtree. The root itself is never removed. Returns the removed nodes.
func (n *Node) RemoveWhere(pred func(*Node) bool) []*Node {
	var removed []*Node
	kept := n.Children[:0]
	for _, c := range n.Children {
		if pred(c) {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(n.Children); i++ {
		n.Children[i] = nil
	}
	n.Children = kept
	for _, c := range n.Children {
		removed = append(removed, c.RemoveWhere(pred)...)
	}
	return removed
}

// Clone returns a deep copy of the tree rooted at n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		Tag:  n.Tag,
		Text: n.Text,
	}
	if n.Attrs != nil {
		c.Attrs = append([]Attr(nil), n.Attrs...)
	}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return c
}

// Equal reports whether two trees have identical tags, attributes (in
// order), text and children.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Tag != b.Tag || a.Text != b.Text {
		return false
	}
	if len(a.Attrs) != len(b.Attrs) || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Attrs {
		if a.Attrs[i] != b.Attrs[i] {
			return false
		}
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

// FormatFloat renders v without a trailing exponent or needless zeros.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
