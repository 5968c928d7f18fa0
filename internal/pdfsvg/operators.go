package pdfsvg

import (
	"context"
	"fmt"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/inkport/internal/ladder"
)

// maxFormDepth bounds Form XObject and tiling pattern nesting.
const maxFormDepth = 12

// OperandKind classifies an operator argument.
type OperandKind int

const (
	OperandOther OperandKind = iota
	OperandNumber
	OperandName
	OperandString
	OperandArray
)

// Operand is one decoded operator argument.
type Operand struct {
	Kind OperandKind
	Num  float64
	Str  string // name without the slash, or raw string bytes
	Arr  []Operand
}

// Num returns a numeric operand.
func Num(v float64) Operand { return Operand{Kind: OperandNumber, Num: v} }

// Name returns a name operand.
func Name(s string) Operand { return Operand{Kind: OperandName, Str: s} }

// Str returns a string operand.
func Str(s string) Operand { return Operand{Kind: OperandString, Str: s} }

// Arr returns an array operand.
func Arr(items ...Operand) Operand { return Operand{Kind: OperandArray, Arr: items} }

func operandOf(v pdflib.Value) Operand {
	switch v.Kind() {
	case pdflib.Integer, pdflib.Real:
		return Num(v.Float64())
	case pdflib.Name:
		return Name(v.Name())
	case pdflib.String:
		return Str(v.RawString())
	case pdflib.Bool:
		if v.Bool() {
			return Num(1)
		}
		return Num(0)
	case pdflib.Array:
		items := make([]Operand, v.Len())
		for i := range items {
			items[i] = operandOf(v.Index(i))
		}
		return Arr(items...)
	default:
		return Operand{}
	}
}

// Operator is one content stream instruction. Res is the resource
// dictionary in scope, which differs from the page's inside a Form XObject.
type Operator struct {
	Name string
	Args []Operand
	Res  pdflib.Value
}

// OperatorList is the adapter's operator list for one page and config.
type OperatorList struct {
	Ops     []Operator
	Config  ladder.RenderPassConfig
	Dropped int
}

// Len returns the operator count.
func (l *OperatorList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Ops)
}

// collector interprets content streams into a flat operator list,
// expanding Form XObjects and dropping what the config disables.
type collector struct {
	ctx     context.Context
	cfg     ladder.RenderPassConfig
	ops     []Operator
	dropped int
	depth   int
	inline  bool
}

func newCollector(ctx context.Context, cfg ladder.RenderPassConfig) *collector {
	return &collector{ctx: ctx, cfg: cfg}
}

// stream interprets strm, which may be a single stream or an array of
// streams forming one content stream.
func (c *collector) stream(strm, res pdflib.Value) {
	if err := c.ctx.Err(); err != nil {
		panic(abort{err})
	}
	pdflib.Interpret(strm, func(stk *pdflib.Stack, op string) {
		n := stk.Len()
		args := make([]Operand, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = operandOf(stk.Pop())
		}
		c.handle(op, args, res)
	})
}

func (c *collector) emit(name string, args []Operand, res pdflib.Value) {
	c.ops = append(c.ops, Operator{Name: name, Args: args, Res: res})
}

func (c *collector) drop() { c.dropped++ }

func (c *collector) handle(op string, args []Operand, res pdflib.Value) {
	// Inline image data is not tokenizable; everything up to EI is skipped.
	if c.inline {
		if op == "EI" {
			c.inline = false
			if c.cfg.DisableImage {
				c.drop()
			} else {
				c.emit("EI", nil, res)
			}
		}
		return
	}
	if len(c.ops)%512 == 0 {
		if err := c.ctx.Err(); err != nil {
			panic(abort{err})
		}
	}

	switch op {
	case "BI":
		c.inline = true
		return
	case "Do":
		c.xobject(args, res)
		return
	case "sh":
		if c.cfg.DisableImage {
			c.drop()
			return
		}
	case "scn", "SCN":
		if c.cfg.DisablePattern && len(args) > 0 && args[len(args)-1].Kind == OperandName {
			c.drop()
			return
		}
	case "cs", "CS":
		if c.cfg.DisablePattern && len(args) == 1 && isPatternSpace(args[0], res) {
			c.drop()
			return
		}
	}
	c.emit(op, args, res)
}

func (c *collector) xobject(args []Operand, res pdflib.Value) {
	if len(args) != 1 || args[0].Kind != OperandName {
		return
	}
	name := args[0].Str
	xo := res.Key("XObject").Key(name)
	switch xo.Key("Subtype").Name() {
	case "Image":
		if c.cfg.DisableImage {
			c.drop()
			return
		}
		c.emit("Do", args, res)
	case "Form":
		c.form(name, xo, res)
	default:
		c.drop()
	}
}

// form expands a Form XObject in place: q, its matrix, a clip to its
// bounding box, its content, Q.
func (c *collector) form(name string, xo, res pdflib.Value) {
	if c.depth >= maxFormDepth {
		panic(abort{fmt.Errorf("form %s nested deeper than %d", name, maxFormDepth)})
	}
	c.emit("q", nil, res)
	if m := xo.Key("Matrix"); m.Len() == 6 {
		args := make([]Operand, 6)
		for i := range args {
			args[i] = Num(m.Index(i).Float64())
		}
		c.emit("cm", args, res)
	}
	if bb := xo.Key("BBox"); bb.Len() == 4 {
		x0, y0 := bb.Index(0).Float64(), bb.Index(1).Float64()
		x1, y1 := bb.Index(2).Float64(), bb.Index(3).Float64()
		c.emit("re", []Operand{Num(x0), Num(y0), Num(x1 - x0), Num(y1 - y0)}, res)
		c.emit("W", nil, res)
		c.emit("n", nil, res)
	}
	formRes := xo.Key("Resources")
	if formRes.IsNull() {
		formRes = res
	}
	c.depth++
	c.stream(xo, formRes)
	c.depth--
	c.emit("Q", nil, res)
}

// isPatternSpace reports whether a cs/CS operand selects a Pattern colour
// space, either directly or through a named resource.
func isPatternSpace(arg Operand, res pdflib.Value) bool {
	if arg.Kind != OperandName {
		return false
	}
	if arg.Str == "Pattern" {
		return true
	}
	cs := res.Key("ColorSpace").Key(arg.Str)
	switch cs.Kind() {
	case pdflib.Name:
		return cs.Name() == "Pattern"
	case pdflib.Array:
		return cs.Index(0).Name() == "Pattern"
	}
	return false
}
