// Package filter hides parts of a committed drawing by element tag and
// stroke width, and counts the classes a drawing contains.
package filter

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dgallion1/inkport/internal/svgtree"
)

// DefaultStrokeWidth is the width assumed for elements that set none.
const DefaultStrokeWidth = 1.0

// Selection is a multi-select filter. An empty set imposes no constraint.
type Selection struct {
	Tags    []string  `json:"tags"`
	Strokes []float64 `json:"strokes"`
}

// Empty reports whether the selection shows everything.
func (s Selection) Empty() bool {
	return len(s.Tags) == 0 && len(s.Strokes) == 0
}

// Normalized returns the selection with tags lower-cased, widths rounded,
// and both sorted and de-duplicated.
func (s Selection) Normalized() Selection {
	out := Selection{}
	seenTag := make(map[string]bool)
	for _, t := range s.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !seenTag[t] {
			seenTag[t] = true
			out.Tags = append(out.Tags, t)
		}
	}
	seenW := make(map[float64]bool)
	for _, w := range s.Strokes {
		w = round2(w)
		if !math.IsNaN(w) && !seenW[w] {
			seenW[w] = true
			out.Strokes = append(out.Strokes, w)
		}
	}
	sort.Strings(out.Tags)
	sort.Float64s(out.Strokes)
	return out
}

// containers are never hidden; hiding one would hide every child
// regardless of the selection.
var containers = map[string]bool{
	"svg": true, "g": true, "a": true, "switch": true, "defs": true,
	"symbol": true, "marker": true, "mask": true, "pattern": true,
	"clipPath": true, "linearGradient": true, "radialGradient": true,
	"style": true, "title": true, "desc": true, "metadata": true,
}

// Apply returns a copy of tree in which every element failing sel carries
// display="none". The input is not modified.
func Apply(tree *svgtree.Node, sel Selection) *svgtree.Node {
	if tree == nil {
		return nil
	}
	out := tree.Clone()
	sel = sel.Normalized()
	tags := make(map[string]bool, len(sel.Tags))
	for _, t := range sel.Tags {
		tags[t] = true
	}
	widths := make(map[float64]bool, len(sel.Strokes))
	for _, w := range sel.Strokes {
		widths[w] = true
	}

	out.Walk(func(n *svgtree.Node) bool {
		if containers[n.Tag] {
			return true
		}
		tagOK := len(tags) == 0 || tags[strings.ToLower(n.Tag)]
		strokeOK := true
		if len(widths) > 0 {
			w, ok := StrokeWidth(n)
			strokeOK = ok && widths[w]
		}
		if !tagOK || !strokeOK {
			n.Set("display", "none")
		}
		return true
	})
	return out
}

// StrokeWidth is an element's stroke-width attribute, or the width in its
// style attribute, rounded to two decimals. Elements with neither use
// DefaultStrokeWidth. ok is false when the value does not parse.
func StrokeWidth(n *svgtree.Node) (float64, bool) {
	raw, found := n.Get("stroke-width")
	if !found || strings.TrimSpace(raw) == "" {
		raw, found = svgtree.StyleValue(n.Attr("style"), "stroke-width")
	}
	if !found {
		return DefaultStrokeWidth, true
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "px")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return round2(v), true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Classes counts elements by tag and by stroke width, the way the
// analysis service reports them.
type Classes struct {
	Tags      map[string]int `json:"tags"`
	StrokesPx map[string]int `json:"strokes_px"`
}

// Count classifies the drawable elements of tree.
func Count(tree *svgtree.Node) Classes {
	c := Classes{Tags: make(map[string]int), StrokesPx: make(map[string]int)}
	if tree == nil {
		return c
	}
	tree.Walk(func(n *svgtree.Node) bool {
		if n.Tag == "defs" {
			return false
		}
		if !svgtree.IsPrimitive(n.Tag) && n.Tag != "image" {
			return true
		}
		c.Tags[n.Tag]++
		if w, ok := StrokeWidth(n); ok {
			c.StrokesPx[svgtree.FormatFloat(w)]++
		}
		return true
	})
	return c
}
