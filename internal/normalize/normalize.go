// Package normalize simplifies a candidate vector tree so that the
// downstream renderer can display it: unsupported paint definitions are
// removed and every shape is left with literal, visible paint.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/dgallion1/inkport/internal/svgtree"
)

// Fallback paint applied when a reference is repaired or a shape would
// otherwise be invisible.
const (
	FallbackFill        = "none"
	FallbackStroke      = "#999"
	FallbackStrokeWidth = "0.25"
)

// OpacityFloor is the lowest fill/stroke opacity a shape may keep.
const OpacityFloor = 0.02

var opacityFloorText = svgtree.FormatFloat(OpacityFloor)

// definitionTags are paint definitions the simplified renderer cannot use.
var definitionTags = map[string]bool{
	"pattern":        true,
	"linearGradient": true,
	"radialGradient": true,
	"image":          true,
	"clipPath":       true,
}

// IsUnsupportedDefinition reports whether tag names a paint definition that
// Normalize removes.
func IsUnsupportedDefinition(tag string) bool {
	return definitionTags[tag]
}

// Normalize rewrites tree in place and returns it. The passes run in a
// fixed order: style folding, definition removal, paint repair, visibility
// repair, opacity floor. Applying Normalize to its own output is a no-op.
func Normalize(tree *svgtree.Node) *svgtree.Node {
	if tree == nil {
		return nil
	}

	tree.Walk(func(n *svgtree.Node) bool {
		if svgtree.IsPrimitive(n.Tag) {
			foldStyle(n)
		}
		return true
	})

	tree.RemoveWhere(func(n *svgtree.Node) bool {
		return definitionTags[n.Tag]
	})

	tree.Walk(func(n *svgtree.Node) bool {
		if !svgtree.IsPrimitive(n.Tag) {
			return true
		}
		n.Del("clip-path")
		repairPaint(n, "fill", FallbackFill)
		repairPaint(n, "stroke", FallbackStroke)
		ensureVisible(n)
		floorOpacity(n, "fill-opacity")
		floorOpacity(n, "stroke-opacity")
		return true
	})
	return tree
}

// repairPaint replaces a url(...) paint with a literal fallback. Every
// referenced paint server has been removed by this point.
func repairPaint(n *svgtree.Node, attr, fallback string) {
	if v, ok := n.Get(attr); ok && IsPaintReference(v) {
		n.Set(attr, fallback)
	}
}

func ensureVisible(n *svgtree.Node) {
	if isNonePaint(n, "fill") && isNonePaint(n, "stroke") {
		n.Set("stroke", FallbackStroke)
		n.Set("stroke-width", FallbackStrokeWidth)
		n.Set("fill", FallbackFill)
	}
}

// floorOpacity raises a parseable opacity below OpacityFloor. Values that
// do not parse count as fully opaque and are left untouched.
func floorOpacity(n *svgtree.Node, attr string) {
	v, ok := n.Get(attr)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) {
		return
	}
	if f < OpacityFloor {
		n.Set(attr, opacityFloorText)
	}
}

// IsPaintReference reports whether a paint value points at a definition.
func IsPaintReference(v string) bool {
	return strings.HasPrefix(strings.TrimSpace(v), "url(")
}

func isNonePaint(n *svgtree.Node, attr string) bool {
	v, ok := n.Get(attr)
	if !ok {
		return true
	}
	v = strings.TrimSpace(v)
	return v == "" || v == "none"
}
