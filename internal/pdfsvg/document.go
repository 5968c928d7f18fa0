// Package pdfsvg is the page-rendering adapter: it reads PDF pages with
// ledongthuc/pdf, turns their content streams into operator lists and
// builds an SVG tree from those lists.
package pdfsvg

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/inkport/internal/ladder"
	"github.com/dgallion1/inkport/internal/svgtree"
)

// Document is an opened PDF.
type Document struct {
	r *pdflib.Reader
}

// Open parses a PDF held in memory.
func Open(data []byte) (doc *Document, err error) {
	if len(data) == 0 {
		return nil, errors.New("open pdf: empty input")
	}
	defer recoverError(&err, "open pdf")

	r, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &Document{r: r}, nil
}

// NumPages returns the page count.
func (d *Document) NumPages() (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	return d.r.NumPage()
}

// Page returns the page at the zero-based index.
func (d *Document) Page(index int) (page *Page, err error) {
	n := d.NumPages()
	if index < 0 || index >= n {
		return nil, fmt.Errorf("page %d out of range (document has %d)", index+1, n)
	}
	defer recoverError(&err, fmt.Sprintf("read page %d", index+1))

	p := d.r.Page(index + 1)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d not found", index+1)
	}
	box, err := pageBox(p.V)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", index+1, err)
	}
	return &Page{
		number: index + 1,
		v:      p.V,
		res:    p.Resources(),
		box:    box,
	}, nil
}

// Page is one page of a Document. It implements ladder.Page.
type Page struct {
	number int
	v      pdflib.Value
	res    pdflib.Value
	box    rect
}

var _ ladder.Page = (*Page)(nil)

// Number is the one-based page number.
func (p *Page) Number() int { return p.number }

// Viewport is the size of the visible page box in points.
func (p *Page) Viewport() svgtree.Viewport {
	return svgtree.Viewport{Width: p.box.width(), Height: p.box.height()}
}

// OperatorList interprets the page content with the features cfg disables
// filtered out.
func (p *Page) OperatorList(ctx context.Context, cfg ladder.RenderPassConfig) (list ladder.OperatorList, err error) {
	defer recoverError(&err, "operator list")

	c := newCollector(ctx, cfg)
	if contents := p.v.Key("Contents"); !contents.IsNull() {
		c.stream(contents, p.res)
	}
	return &OperatorList{Ops: c.ops, Config: cfg, Dropped: c.dropped}, nil
}

// BuildTree renders an operator list produced by this page into an SVG tree.
func (p *Page) BuildTree(ctx context.Context, ops ladder.OperatorList, vp svgtree.Viewport, embedFonts bool) (tree *svgtree.Node, err error) {
	list, ok := ops.(*OperatorList)
	if !ok || list == nil {
		return nil, fmt.Errorf("build tree: unexpected operator list %T", ops)
	}
	defer recoverError(&err, "build tree")

	b := newBuilder(ctx, p.box, vp, list.Config, embedFonts)
	if err := b.run(list.Ops, b.body); err != nil {
		return nil, err
	}
	if err := b.fonts.err; err != nil {
		return nil, err
	}
	return b.root, nil
}

type rect struct {
	x0, y0, x1, y1 float64
}

func (r rect) width() float64  { return r.x1 - r.x0 }
func (r rect) height() float64 { return r.y1 - r.y0 }

// pageBox returns the CropBox, or the MediaBox when no crop is set. Both
// are inheritable through the page tree.
func pageBox(page pdflib.Value) (rect, error) {
	for _, key := range []string{"CropBox", "MediaBox"} {
		v := inherited(page, key)
		if v.Len() != 4 {
			continue
		}
		r := rect{v.Index(0).Float64(), v.Index(1).Float64(), v.Index(2).Float64(), v.Index(3).Float64()}
		if r.x0 > r.x1 {
			r.x0, r.x1 = r.x1, r.x0
		}
		if r.y0 > r.y1 {
			r.y0, r.y1 = r.y1, r.y0
		}
		if r.width() > 0 && r.height() > 0 {
			return r, nil
		}
	}
	return rect{}, errors.New("no usable MediaBox")
}

func inherited(v pdflib.Value, key string) pdflib.Value {
	for depth := 0; !v.IsNull() && depth < 64; depth++ {
		if r := v.Key(key); !r.IsNull() {
			return r
		}
		v = v.Key("Parent")
	}
	return pdflib.Value{}
}

// abort carries an error out of an Interpret callback.
type abort struct{ err error }

// recoverError turns a panic raised by the PDF library, or an abort raised
// by this package, into *errp.
func recoverError(errp *error, op string) {
	r := recover()
	if r == nil {
		return
	}
	switch x := r.(type) {
	case abort:
		*errp = fmt.Errorf("%s: %w", op, x.err)
	case error:
		*errp = fmt.Errorf("%s: %w", op, x)
	default:
		*errp = fmt.Errorf("%s: %v", op, x)
	}
}
