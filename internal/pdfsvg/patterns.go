package pdfsvg

import (
	"fmt"
	"math"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/inkport/internal/svgtree"
)

// gradientSamples is the number of stops sampled from a shading function.
const gradientSamples = 9

// patternPaint turns a pattern selection into a url() paint backed by a
// new definition. Unsupported patterns fall back to a neutral grey.
func (b *builder) patternPaint(name string, comps []float64, cs colorSpace, res pdflib.Value) string {
	pat := res.Key("Pattern").Key(name)
	if pat.IsNull() {
		return "none"
	}
	m := identity
	if mv := pat.Key("Matrix"); mv.Len() == 6 {
		for i := range m {
			m[i] = mv.Index(i).Float64()
		}
	}

	switch pat.Key("PatternType").Int64() {
	case 1:
		if id, ok := b.tilingPattern(pat, m, comps, cs); ok {
			return "url(#" + id + ")"
		}
	case 2:
		id, ok, err := b.gradient(pat.Key("Shading"), m)
		if err == nil && ok {
			return "url(#" + id + ")"
		}
	}
	return "#808080"
}

// tilingPattern renders the pattern cell into a <pattern> definition.
func (b *builder) tilingPattern(pat pdflib.Value, m matrix, comps []float64, cs colorSpace) (string, bool) {
	if b.depth >= maxFormDepth {
		return "", false
	}
	bbox := floats(pat.Key("BBox"), nil)
	if len(bbox) != 4 {
		return "", false
	}
	xstep := math.Abs(pat.Key("XStep").Float64())
	ystep := math.Abs(pat.Key("YStep").Float64())
	if xstep == 0 || ystep == 0 {
		return "", false
	}

	c := newCollector(b.ctx, b.cfg)
	c.depth = b.depth + 1
	res := pat.Key("Resources")
	c.stream(pat, res)

	id := b.newID("pattern")
	node := svgtree.New("pattern",
		svgtree.Attr{Name: "id", Value: id},
		svgtree.Attr{Name: "patternUnits", Value: "userSpaceOnUse"},
		svgtree.Attr{Name: "x", Value: svgtree.FormatFloat(round(bbox[0]))},
		svgtree.Attr{Name: "y", Value: svgtree.FormatFloat(round(bbox[1]))},
		svgtree.Attr{Name: "width", Value: svgtree.FormatFloat(round(xstep))},
		svgtree.Attr{Name: "height", Value: svgtree.FormatFloat(round(ystep))},
		svgtree.Attr{Name: "patternTransform", Value: m.String()},
	)

	// The cell is drawn with a fresh graphics state in pattern space.
	saved, savedStack, savedPath, savedClip := b.gs, b.stack, b.path.String(), b.clip
	b.gs = defaultState(identity)
	if pat.Key("PaintType").Int64() == 2 {
		// Uncoloured: the cell takes the colour given with the selection.
		color := cs.hex(comps)
		b.gs.fill, b.gs.stroke = color, color
	}
	b.stack = nil
	b.path.reset()
	b.clip = ""
	b.depth++
	err := b.run(c.ops, node)
	b.depth--
	b.gs, b.stack, b.clip = saved, savedStack, savedClip
	b.path.reset()
	b.path.sb.WriteString(savedPath)
	b.path.open = savedPath != ""
	if err != nil {
		return "", false
	}

	b.defs.Append(node)
	return id, true
}

// gradient adds an axial or radial gradient definition for a shading.
// ok is false for shading types that have no SVG gradient equivalent.
func (b *builder) gradient(sh pdflib.Value, m matrix) (id string, ok bool, err error) {
	kind := sh.Key("ShadingType").Int64()
	coords := floats(sh.Key("Coords"), nil)
	var node *svgtree.Node
	switch {
	case kind == 2 && len(coords) == 4:
		id = b.newID("gradient")
		node = svgtree.New("linearGradient",
			svgtree.Attr{Name: "id", Value: id},
			svgtree.Attr{Name: "gradientUnits", Value: "userSpaceOnUse"},
			svgtree.Attr{Name: "x1", Value: svgtree.FormatFloat(round(coords[0]))},
			svgtree.Attr{Name: "y1", Value: svgtree.FormatFloat(round(coords[1]))},
			svgtree.Attr{Name: "x2", Value: svgtree.FormatFloat(round(coords[2]))},
			svgtree.Attr{Name: "y2", Value: svgtree.FormatFloat(round(coords[3]))},
		)
	case kind == 3 && len(coords) == 6:
		id = b.newID("gradient")
		node = svgtree.New("radialGradient",
			svgtree.Attr{Name: "id", Value: id},
			svgtree.Attr{Name: "gradientUnits", Value: "userSpaceOnUse"},
			svgtree.Attr{Name: "fx", Value: svgtree.FormatFloat(round(coords[0]))},
			svgtree.Attr{Name: "fy", Value: svgtree.FormatFloat(round(coords[1]))},
			svgtree.Attr{Name: "fr", Value: svgtree.FormatFloat(round(coords[2]))},
			svgtree.Attr{Name: "cx", Value: svgtree.FormatFloat(round(coords[3]))},
			svgtree.Attr{Name: "cy", Value: svgtree.FormatFloat(round(coords[4]))},
			svgtree.Attr{Name: "r", Value: svgtree.FormatFloat(round(coords[5]))},
		)
	default:
		return "", false, nil
	}
	if m != identity {
		node.Set("gradientTransform", m.String())
	}

	cs := colorSpaceOf(sh.Key("ColorSpace"), 0)
	t0, t1 := 0.0, 1.0
	if dom := floats(sh.Key("Domain"), nil); len(dom) == 2 {
		t0, t1 = dom[0], dom[1]
	}
	fn := sh.Key("Function")
	for i := 0; i < gradientSamples; i++ {
		offset := float64(i) / float64(gradientSamples-1)
		comps, err := evalFunction(fn, t0+offset*(t1-t0), 0)
		if err != nil {
			return "", false, fmt.Errorf("shading function: %w", err)
		}
		node.Append(svgtree.New("stop",
			svgtree.Attr{Name: "offset", Value: svgtree.FormatFloat(round(offset))},
			svgtree.Attr{Name: "stop-color", Value: cs.hex(comps)},
		))
	}
	b.defs.Append(node)
	return id, true, nil
}
