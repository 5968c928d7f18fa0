package normalize

import (
	"strings"

	"github.com/dgallion1/inkport/internal/svgtree"
)

// HasDrawableContent reports whether tree contains at least one shape or
// text node with literal paint, anywhere in the tree. It must be evaluated
// on a normalized tree: a shape painted only through a pattern or gradient
// does not count until Normalize has repaired its paint.
func HasDrawableContent(tree *svgtree.Node) bool {
	if tree == nil {
		return false
	}
	found := false
	tree.Walk(func(n *svgtree.Node) bool {
		if found {
			return false
		}
		if svgtree.IsPrimitive(n.Tag) && (hasLiteralPaint(n, "fill") || hasLiteralPaint(n, "stroke")) {
			found = true
			return false
		}
		return true
	})
	return found
}

func hasLiteralPaint(n *svgtree.Node, attr string) bool {
	v, ok := n.Get(attr)
	if !ok {
		return false
	}
	v = strings.TrimSpace(v)
	return v != "" && v != "none" && !IsPaintReference(v)
}
