package pdfsvg

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/go-text/typesetting/font"
	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/inkport/internal/svgtree"
)

// fontEntry is a page font as the text builder uses it.
type fontEntry struct {
	family  string
	weight  string
	style   string
	font    pdflib.Font
	enc     pdflib.TextEncoding
	twoByte bool
	dw      float64
}

func (f *fontEntry) decode(raw string) string {
	if f.enc == nil {
		return raw
	}
	return f.enc.Decode(raw)
}

// width returns the advance of code in text space units (1/1000 em).
func (f *fontEntry) width(code int) float64 {
	if f.twoByte {
		return f.dw
	}
	if w := f.font.Width(code); w > 0 {
		return w
	}
	return f.dw
}

// fontTable resolves Tf operands. With embedding on, every font that
// carries a TrueType or OpenType program is validated and inlined as an
// @font-face rule; a font program that cannot be embedded fails the build.
type fontTable struct {
	embed  bool
	defs   *svgtree.Node
	style  *svgtree.Node
	byKey  map[string]*fontEntry
	serial int
	err    error
}

func newFontTable(defs *svgtree.Node, embed bool) *fontTable {
	return &fontTable{embed: embed, defs: defs, byKey: make(map[string]*fontEntry)}
}

var defaultFont = &fontEntry{family: "Helvetica, sans-serif", dw: 500}

func (t *fontTable) lookup(name string, res pdflib.Value) *fontEntry {
	v := res.Key("Font").Key(name)
	if v.IsNull() {
		return defaultFont
	}
	key := name + "\x00" + v.Key("BaseFont").Name()
	if e, ok := t.byKey[key]; ok {
		return e
	}

	f := pdflib.Font{V: v}
	e := &fontEntry{font: f, dw: 500}
	e.family, e.weight, e.style = cssFamily(f.BaseFont())
	if v.Key("Subtype").Name() == "Type0" {
		e.twoByte = true
		e.dw = 1000
		if dw := v.Key("DescendantFonts").Index(0).Key("DW"); !dw.IsNull() {
			e.dw = dw.Float64()
		}
	}
	e.enc = f.Encoder()

	if t.embed && t.err == nil {
		if err := t.embedFont(e, v); err != nil {
			t.err = fmt.Errorf("embed font %s: %w", f.BaseFont(), err)
		}
	}
	t.byKey[key] = e
	return e
}

func (t *fontTable) embedFont(e *fontEntry, v pdflib.Value) error {
	desc := v.Key("FontDescriptor")
	if v.Key("Subtype").Name() == "Type0" {
		desc = v.Key("DescendantFonts").Index(0).Key("FontDescriptor")
	}
	if desc.IsNull() {
		// Standard fonts carry no program and need none.
		return nil
	}

	var program pdflib.Value
	mime := "font/ttf"
	switch {
	case !desc.Key("FontFile2").IsNull():
		program = desc.Key("FontFile2")
	case !desc.Key("FontFile3").IsNull():
		program = desc.Key("FontFile3")
		if sub := program.Key("Subtype").Name(); sub != "OpenType" {
			return fmt.Errorf("bare %s program is not a web font", sub)
		}
		mime = "font/otf"
	case !desc.Key("FontFile").IsNull():
		return fmt.Errorf("type1 program is not a web font")
	default:
		return nil
	}

	data, err := io.ReadAll(program.Reader())
	if err != nil {
		return fmt.Errorf("read font program: %w", err)
	}
	if _, err := font.ParseTTF(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse font program: %w", err)
	}

	t.serial++
	family := fmt.Sprintf("pdf-font-%d", t.serial)
	rule := fmt.Sprintf("@font-face{font-family:%q;src:url(data:%s;base64,%s)}",
		family, mime, base64.StdEncoding.EncodeToString(data))
	if t.style == nil {
		t.style = svgtree.New("style", svgtree.Attr{Name: "type", Value: "text/css"})
		t.defs.Append(t.style)
	}
	t.style.Text += rule
	e.family = fmt.Sprintf("%q, %s", family, e.family)
	return nil
}

// cssFamily maps a PDF BaseFont name such as "ABCDEF+Times-BoldItalic" to
// a CSS family list, weight and style.
func cssFamily(base string) (family, weight, style string) {
	if i := strings.IndexByte(base, '+'); i >= 0 {
		base = base[i+1:]
	}
	name := base
	if i := strings.IndexAny(name, "-,"); i > 0 {
		name = name[:i]
	}
	if name == "" {
		name = "Helvetica"
	}
	lower := strings.ToLower(base)
	generic := "sans-serif"
	switch {
	case strings.Contains(lower, "courier") || strings.Contains(lower, "mono"):
		generic = "monospace"
	case strings.Contains(lower, "times") || strings.Contains(lower, "serif") && !strings.Contains(lower, "sans"):
		generic = "serif"
	}
	if strings.Contains(lower, "bold") || strings.Contains(lower, "black") {
		weight = "bold"
	}
	if strings.Contains(lower, "italic") || strings.Contains(lower, "oblique") {
		style = "italic"
	}
	return name + ", " + generic, weight, style
}
