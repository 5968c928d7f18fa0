package pdfsvg

import (
	"context"
	"fmt"
	"math"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/inkport/internal/ladder"
	"github.com/dgallion1/inkport/internal/svgtree"
)

type gstate struct {
	ctm         matrix
	fill        string
	stroke      string
	fillCS      colorSpace
	strokeCS    colorSpace
	lineWidth   float64
	lineCap     int
	lineJoin    int
	miterLimit  float64
	dash        []float64
	dashPhase   float64
	fillAlpha   float64
	strokeAlpha float64
	clip        string

	font       *fontEntry
	fontSize   float64
	charSpace  float64
	wordSpace  float64
	hScale     float64
	leading    float64
	rise       float64
	renderMode int
}

func defaultState(ctm matrix) gstate {
	return gstate{
		ctm:         ctm,
		fill:        "#000000",
		stroke:      "#000000",
		fillCS:      deviceGray,
		strokeCS:    deviceGray,
		lineWidth:   1,
		miterLimit:  10,
		fillAlpha:   1,
		strokeAlpha: 1,
		font:        defaultFont,
		hScale:      100,
	}
}

// builder is the graphics state machine that turns operators into SVG
// nodes. Coordinates are emitted in default page space; the page group
// flips the y axis once.
type builder struct {
	ctx   context.Context
	cfg   ladder.RenderPassConfig
	box   rect
	root  *svgtree.Node
	defs  *svgtree.Node
	body  *svgtree.Node
	fonts *fontTable

	gs    gstate
	stack []gstate
	path  pathBuilder
	clip  string // pending W / W* fill rule

	tm, tlm matrix
	ids     map[string]int
	depth   int
}

func newBuilder(ctx context.Context, box rect, vp svgtree.Viewport, cfg ladder.RenderPassConfig, embedFonts bool) *builder {
	w, h := svgtree.FormatFloat(vp.Width), svgtree.FormatFloat(vp.Height)
	root := svgtree.New("svg",
		svgtree.Attr{Name: "xmlns", Value: "http://www.w3.org/2000/svg"},
		svgtree.Attr{Name: "xmlns:xlink", Value: "http://www.w3.org/1999/xlink"},
		svgtree.Attr{Name: "viewBox", Value: "0 0 " + w + " " + h},
		svgtree.Attr{Name: "width", Value: w},
		svgtree.Attr{Name: "height", Value: h},
	)
	defs := svgtree.New("defs")
	flip := matrix{1, 0, 0, -1, -box.x0, box.y1}
	body := svgtree.New("g", svgtree.Attr{Name: "transform", Value: flip.String()})
	root.Append(defs, body)

	return &builder{
		ctx:   ctx,
		cfg:   cfg,
		box:   box,
		root:  root,
		defs:  defs,
		body:  body,
		fonts: newFontTable(defs, embedFonts),
		gs:    defaultState(identity),
		tm:    identity,
		tlm:   identity,
		ids:   make(map[string]int),
	}
}

func (b *builder) newID(prefix string) string {
	b.ids[prefix]++
	return fmt.Sprintf("%s%d", prefix, b.ids[prefix])
}

// run executes ops, appending output to out.
func (b *builder) run(ops []Operator, out *svgtree.Node) error {
	for i, op := range ops {
		if i%512 == 0 {
			if err := b.ctx.Err(); err != nil {
				return err
			}
		}
		if err := b.exec(op, out); err != nil {
			return fmt.Errorf("operator %d (%s): %w", i, op.Name, err)
		}
	}
	return nil
}

func (b *builder) exec(op Operator, out *svgtree.Node) error {
	args := op.Args
	n := numbers(args)
	num := func(i int) float64 {
		if i < len(n) {
			return n[i]
		}
		return 0
	}

	switch op.Name {
	// Graphics state.
	case "q":
		saved := b.gs
		saved.dash = append([]float64(nil), b.gs.dash...)
		b.stack = append(b.stack, saved)
	case "Q":
		if len(b.stack) > 0 {
			b.gs = b.stack[len(b.stack)-1]
			b.stack = b.stack[:len(b.stack)-1]
		}
	case "cm":
		if m, ok := matrixFrom(args); ok {
			b.gs.ctm = m.mul(b.gs.ctm)
		}
	case "w":
		b.gs.lineWidth = num(0)
	case "J":
		b.gs.lineCap = int(num(0))
	case "j":
		b.gs.lineJoin = int(num(0))
	case "M":
		b.gs.miterLimit = num(0)
	case "d":
		if len(args) == 2 && args[0].Kind == OperandArray {
			b.gs.dash = numbers(args[0].Arr)
			b.gs.dashPhase = args[1].Num
		}
	case "gs":
		if len(args) == 1 && args[0].Kind == OperandName {
			b.extGState(op.Res.Key("ExtGState").Key(args[0].Str))
		}
	case "ri", "i", "BX", "EX", "MP", "DP", "BMC", "BDC", "EMC", "d0", "d1":

	// Colour.
	case "g":
		b.gs.fillCS = deviceGray
		b.gs.fill = deviceGray.hex(n)
	case "G":
		b.gs.strokeCS = deviceGray
		b.gs.stroke = deviceGray.hex(n)
	case "rg":
		b.gs.fillCS = deviceRGB
		b.gs.fill = deviceRGB.hex(n)
	case "RG":
		b.gs.strokeCS = deviceRGB
		b.gs.stroke = deviceRGB.hex(n)
	case "k":
		b.gs.fillCS = deviceCMYK
		b.gs.fill = deviceCMYK.hex(n)
	case "K":
		b.gs.strokeCS = deviceCMYK
		b.gs.stroke = deviceCMYK.hex(n)
	case "cs":
		if len(args) == 1 {
			b.gs.fillCS = resolveColorSpace(args[0].Str, op.Res)
			b.gs.fill = b.gs.fillCS.initial()
		}
	case "CS":
		if len(args) == 1 {
			b.gs.strokeCS = resolveColorSpace(args[0].Str, op.Res)
			b.gs.stroke = b.gs.strokeCS.initial()
		}
	case "sc", "scn":
		b.gs.fill = b.selectColor(b.gs.fillCS, args, op.Res)
	case "SC", "SCN":
		b.gs.stroke = b.selectColor(b.gs.strokeCS, args, op.Res)

	// Path construction.
	case "m":
		b.path.moveTo(b.gs.ctm, num(0), num(1))
	case "l":
		b.path.lineTo(b.gs.ctm, num(0), num(1))
	case "c":
		b.path.curveTo(b.gs.ctm, num(0), num(1), num(2), num(3), num(4), num(5))
	case "v":
		b.path.curveFromCurrent(b.gs.ctm, num(0), num(1), num(2), num(3))
	case "y":
		b.path.curveTo(b.gs.ctm, num(0), num(1), num(2), num(3), num(2), num(3))
	case "h":
		b.path.close()
	case "re":
		b.path.rect(b.gs.ctm, num(0), num(1), num(2), num(3))

	// Path painting.
	case "S":
		b.paintPath(out, false, false, true)
	case "s":
		b.path.close()
		b.paintPath(out, false, false, true)
	case "f", "F":
		b.paintPath(out, true, false, false)
	case "f*":
		b.paintPath(out, true, true, false)
	case "B":
		b.paintPath(out, true, false, true)
	case "B*":
		b.paintPath(out, true, true, true)
	case "b":
		b.path.close()
		b.paintPath(out, true, false, true)
	case "b*":
		b.path.close()
		b.paintPath(out, true, true, true)
	case "n":
		b.paintPath(out, false, false, false)
	case "W":
		b.clip = "nonzero"
	case "W*":
		b.clip = "evenodd"

	// Text.
	case "BT":
		b.tm, b.tlm = identity, identity
	case "ET":
	case "Tf":
		if len(args) == 2 {
			b.gs.font = b.fonts.lookup(args[0].Str, op.Res)
			b.gs.fontSize = args[1].Num
			if b.fonts.err != nil {
				return b.fonts.err
			}
		}
	case "Tc":
		b.gs.charSpace = num(0)
	case "Tw":
		b.gs.wordSpace = num(0)
	case "Tz":
		b.gs.hScale = num(0)
	case "TL":
		b.gs.leading = num(0)
	case "Ts":
		b.gs.rise = num(0)
	case "Tr":
		b.gs.renderMode = int(num(0))
	case "Td":
		b.moveText(num(0), num(1))
	case "TD":
		b.gs.leading = -num(1)
		b.moveText(num(0), num(1))
	case "Tm":
		if m, ok := matrixFrom(args); ok {
			b.tm, b.tlm = m, m
		}
	case "T*":
		b.moveText(0, -b.gs.leading)
	case "Tj":
		if len(args) == 1 {
			b.showText(out, args[0].Str)
		}
	case "'":
		b.moveText(0, -b.gs.leading)
		if len(args) == 1 {
			b.showText(out, args[0].Str)
		}
	case "\"":
		if len(args) == 3 {
			b.gs.wordSpace, b.gs.charSpace = args[0].Num, args[1].Num
			b.moveText(0, -b.gs.leading)
			b.showText(out, args[2].Str)
		}
	case "TJ":
		if len(args) == 1 && args[0].Kind == OperandArray {
			for _, item := range args[0].Arr {
				switch item.Kind {
				case OperandString:
					b.showText(out, item.Str)
				case OperandNumber:
					b.advance(-item.Num / 1000 * b.gs.fontSize)
				}
			}
		}

	// XObjects, inline images and shadings.
	case "Do":
		if len(args) == 1 {
			b.image(out, args[0].Str)
		}
	case "EI":
		b.image(out, "")
	case "sh":
		if len(args) == 1 {
			b.shade(out, op.Res.Key("Shading").Key(args[0].Str))
		}
	}
	return nil
}

func (b *builder) extGState(v pdflib.Value) {
	if v.IsNull() {
		return
	}
	if lw := v.Key("LW"); !lw.IsNull() {
		b.gs.lineWidth = lw.Float64()
	}
	if lc := v.Key("LC"); !lc.IsNull() {
		b.gs.lineCap = int(lc.Int64())
	}
	if lj := v.Key("LJ"); !lj.IsNull() {
		b.gs.lineJoin = int(lj.Int64())
	}
	if ml := v.Key("ML"); !ml.IsNull() {
		b.gs.miterLimit = ml.Float64()
	}
	if ca := v.Key("CA"); !ca.IsNull() {
		b.gs.strokeAlpha = clamp01(ca.Float64())
	}
	if ca := v.Key("ca"); !ca.IsNull() {
		b.gs.fillAlpha = clamp01(ca.Float64())
	}
	if d := v.Key("D"); d.Len() == 2 {
		b.gs.dash = floats(d.Index(0), nil)
		b.gs.dashPhase = d.Index(1).Float64()
	}
}

// selectColor handles sc/scn. A trailing name selects a pattern; any
// numeric operands before it colour an uncoloured pattern.
func (b *builder) selectColor(cs colorSpace, args []Operand, res pdflib.Value) string {
	if len(args) > 0 && args[len(args)-1].Kind == OperandName {
		return b.patternPaint(args[len(args)-1].Str, numbers(args), cs, res)
	}
	return cs.hex(numbers(args))
}

func (b *builder) paintPath(out *svgtree.Node, fill, evenOdd, stroke bool) {
	d := b.path.String()
	if d != "" && (fill || stroke) {
		node := svgtree.New("path", svgtree.Attr{Name: "d", Value: d})
		b.applyPaint(node, fill, stroke)
		if fill && evenOdd {
			node.Set("fill-rule", "evenodd")
		}
		out.Append(node)
	}
	if b.clip != "" && d != "" {
		b.pushClip(d, b.clip)
	}
	b.clip = ""
	b.path.reset()
}

func (b *builder) applyPaint(node *svgtree.Node, fill, stroke bool) {
	if fill {
		node.Set("fill", b.gs.fill)
		if b.gs.fillAlpha < 1 {
			node.SetFloat("fill-opacity", round(b.gs.fillAlpha))
		}
	} else {
		node.Set("fill", "none")
	}
	if stroke {
		node.Set("stroke", b.gs.stroke)
		node.SetFloat("stroke-width", round(b.strokeWidth()))
		if b.gs.strokeAlpha < 1 {
			node.SetFloat("stroke-opacity", round(b.gs.strokeAlpha))
		}
		switch b.gs.lineCap {
		case 1:
			node.Set("stroke-linecap", "round")
		case 2:
			node.Set("stroke-linecap", "square")
		}
		switch b.gs.lineJoin {
		case 1:
			node.Set("stroke-linejoin", "round")
		case 2:
			node.Set("stroke-linejoin", "bevel")
		default:
			if b.gs.miterLimit > 0 && b.gs.miterLimit != 4 {
				node.SetFloat("stroke-miterlimit", round(math.Max(1, b.gs.miterLimit)))
			}
		}
		if dash := b.dashArray(); dash != "" {
			node.Set("stroke-dasharray", dash)
			if b.gs.dashPhase != 0 {
				node.SetFloat("stroke-dashoffset", round(b.gs.dashPhase*b.gs.ctm.scale()))
			}
		}
	}
	if b.gs.clip != "" {
		node.Set("clip-path", b.gs.clip)
	}
}

// strokeWidth is the line width in page space. A zero width means the
// thinnest visible line.
func (b *builder) strokeWidth() float64 {
	w := b.gs.lineWidth * b.gs.ctm.scale()
	if w <= 0 {
		return 0.1
	}
	return w
}

func (b *builder) dashArray() string {
	if len(b.gs.dash) == 0 {
		return ""
	}
	s := b.gs.ctm.scale()
	parts := make([]string, 0, len(b.gs.dash))
	total := 0.0
	for _, d := range b.gs.dash {
		total += d
		parts = append(parts, svgtree.FormatFloat(round(d*s)))
	}
	if total <= 0 {
		return ""
	}
	return strings.Join(parts, " ")
}

// pushClip intersects the current clip with path d.
func (b *builder) pushClip(d, rule string) {
	id := b.newID("clip")
	p := svgtree.New("path", svgtree.Attr{Name: "d", Value: d})
	if rule == "evenodd" {
		p.Set("clip-rule", "evenodd")
	}
	cp := svgtree.New("clipPath",
		svgtree.Attr{Name: "id", Value: id},
		svgtree.Attr{Name: "clipPathUnits", Value: "userSpaceOnUse"},
	)
	if b.gs.clip != "" {
		cp.Set("clip-path", b.gs.clip)
	}
	cp.Append(p)
	b.defs.Append(cp)
	b.gs.clip = "url(#" + id + ")"
}

func (b *builder) moveText(tx, ty float64) {
	b.tlm = translate(tx, ty).mul(b.tlm)
	b.tm = b.tlm
}

func (b *builder) advance(tx float64) {
	b.tm = translate(tx*b.gs.hScale/100, 0).mul(b.tm)
}

func (b *builder) showText(out *svgtree.Node, raw string) {
	f := b.gs.font
	size := b.gs.fontSize
	th := b.gs.hScale / 100
	trm := matrix{size * th, 0, 0, size, 0, b.gs.rise}.mul(b.tm).mul(b.gs.ctm)

	text := f.decode(raw)
	mode := b.gs.renderMode % 8
	if strings.TrimSpace(text) != "" && mode != 3 && mode != 7 && size != 0 {
		node := svgtree.New("text",
			svgtree.Attr{Name: "transform", Value: trm.flipY().String()},
			svgtree.Attr{Name: "font-size", Value: "1"},
			svgtree.Attr{Name: "font-family", Value: f.family},
			svgtree.Attr{Name: "xml:space", Value: "preserve"},
		)
		if f.weight != "" {
			node.Set("font-weight", f.weight)
		}
		if f.style != "" {
			node.Set("font-style", f.style)
		}
		fill := mode == 0 || mode == 2 || mode == 4 || mode == 6
		stroke := mode == 1 || mode == 2 || mode == 5 || mode == 6
		b.applyPaint(node, fill, stroke)
		if stroke {
			// Stroke width is in the text's local unit space.
			if s := trm.scale(); s > 0 {
				node.SetFloat("stroke-width", round(b.strokeWidth()/s))
			}
		}
		node.Text = text
		out.Append(node)
	}

	step := 1
	if f.twoByte {
		step = 2
	}
	for i := 0; i+step <= len(raw); i += step {
		code := int(raw[i])
		if step == 2 {
			code = code<<8 | int(raw[i+1])
		}
		tx := f.width(code)/1000*size + b.gs.charSpace
		if step == 1 && code == ' ' {
			tx += b.gs.wordSpace
		}
		b.advance(tx)
	}
}

// image places an image XObject (or an inline image when name is empty)
// over the unit square of the current transform. Pixel data is not
// decoded; the node records which XObject it stands for.
func (b *builder) image(out *svgtree.Node, name string) {
	placement := matrix{1, 0, 0, -1, 0, 1}.mul(b.gs.ctm)
	node := svgtree.New("image",
		svgtree.Attr{Name: "x", Value: "0"},
		svgtree.Attr{Name: "y", Value: "0"},
		svgtree.Attr{Name: "width", Value: "1"},
		svgtree.Attr{Name: "height", Value: "1"},
		svgtree.Attr{Name: "preserveAspectRatio", Value: "none"},
		svgtree.Attr{Name: "transform", Value: placement.String()},
	)
	if name != "" {
		node.Set("data-xobject", name)
	} else {
		node.Set("data-xobject", "inline")
	}
	if b.gs.fillAlpha < 1 {
		node.SetFloat("opacity", round(b.gs.fillAlpha))
	}
	if b.gs.clip != "" {
		node.Set("clip-path", b.gs.clip)
	}
	out.Append(node)
}

// shade paints a shading over the whole page, limited by the current
// clip. Shadings without a gradient equivalent are skipped.
func (b *builder) shade(out *svgtree.Node, sh pdflib.Value) {
	if sh.IsNull() {
		return
	}
	id, ok, err := b.gradient(sh, b.gs.ctm)
	if err != nil || !ok {
		return
	}
	var p pathBuilder
	p.rect(identity, b.box.x0, b.box.y0, b.box.width(), b.box.height())
	node := svgtree.New("path",
		svgtree.Attr{Name: "d", Value: p.String()},
		svgtree.Attr{Name: "fill", Value: "url(#" + id + ")"},
	)
	if b.gs.fillAlpha < 1 {
		node.SetFloat("fill-opacity", round(b.gs.fillAlpha))
	}
	if b.gs.clip != "" {
		node.Set("clip-path", b.gs.clip)
	}
	out.Append(node)
}
