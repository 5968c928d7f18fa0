package pdfsvg

import (
	"strings"

	"github.com/dgallion1/inkport/internal/svgtree"
)

// pathBuilder accumulates SVG path data in page space.
type pathBuilder struct {
	sb     strings.Builder
	cx, cy float64
	open   bool
}

func (p *pathBuilder) point(x, y float64) {
	p.sb.WriteString(svgtree.FormatFloat(round(x)))
	p.sb.WriteByte(' ')
	p.sb.WriteString(svgtree.FormatFloat(round(y)))
}

func (p *pathBuilder) cmd(c byte, m matrix, pts ...float64) {
	if p.sb.Len() > 0 {
		p.sb.WriteByte(' ')
	}
	p.sb.WriteByte(c)
	for i := 0; i+1 < len(pts); i += 2 {
		x, y := m.apply(pts[i], pts[i+1])
		if i > 0 {
			p.sb.WriteByte(' ')
		}
		p.point(x, y)
		p.cx, p.cy = x, y
	}
}

func (p *pathBuilder) moveTo(m matrix, x, y float64) {
	p.cmd('M', m, x, y)
	p.open = true
}

func (p *pathBuilder) lineTo(m matrix, x, y float64) {
	if !p.open {
		p.moveTo(m, x, y)
		return
	}
	p.cmd('L', m, x, y)
}

func (p *pathBuilder) curveTo(m matrix, x1, y1, x2, y2, x3, y3 float64) {
	if !p.open {
		p.moveTo(m, x1, y1)
	}
	p.cmd('C', m, x1, y1, x2, y2, x3, y3)
}

// curveFromCurrent is the "v" operator: the current point is the first
// control point.
func (p *pathBuilder) curveFromCurrent(m matrix, x2, y2, x3, y3 float64) {
	if !p.open {
		p.moveTo(m, x2, y2)
	}
	cx, cy := p.cx, p.cy
	p.sb.WriteString(" C")
	p.point(cx, cy)
	for _, pt := range [][2]float64{{x2, y2}, {x3, y3}} {
		x, y := m.apply(pt[0], pt[1])
		p.sb.WriteByte(' ')
		p.point(x, y)
		p.cx, p.cy = x, y
	}
}

func (p *pathBuilder) rect(m matrix, x, y, w, h float64) {
	p.cmd('M', m, x, y)
	p.cmd('L', m, x+w, y)
	p.cmd('L', m, x+w, y+h)
	p.cmd('L', m, x, y+h)
	p.close()
	p.open = true
}

func (p *pathBuilder) close() {
	if p.sb.Len() > 0 {
		p.sb.WriteString(" Z")
	}
}

func (p *pathBuilder) String() string { return p.sb.String() }

func (p *pathBuilder) reset() {
	p.sb.Reset()
	p.open = false
}
