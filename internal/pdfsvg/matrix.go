package pdfsvg

import (
	"math"
	"strings"

	"github.com/dgallion1/inkport/internal/svgtree"
)

// matrix is an affine transform [a b c d e f] mapping
// x' = a*x + c*y + e, y' = b*x + d*y + f.
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

func translate(tx, ty float64) matrix { return matrix{1, 0, 0, 1, tx, ty} }

// mul returns the transform that applies m first, then n.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// scale is the mean linear scale factor of m, used for line widths.
func (m matrix) scale() float64 {
	return math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2]))
}

// flipY composes m with a vertical flip of the local unit space, so that
// content drawn top-down in SVG lands upright under the page's y-flip.
func (m matrix) flipY() matrix {
	return matrix{m[0], m[1], -m[2], -m[3], m[4], m[5]}
}

func (m matrix) String() string {
	parts := make([]string, len(m))
	for i, v := range m {
		parts[i] = svgtree.FormatFloat(round(v))
	}
	return "matrix(" + strings.Join(parts, " ") + ")"
}

func matrixFrom(ops []Operand) (matrix, bool) {
	if len(ops) != 6 {
		return identity, false
	}
	var m matrix
	for i, o := range ops {
		if o.Kind != OperandNumber {
			return identity, false
		}
		m[i] = o.Num
	}
	return m, true
}

// round trims coordinates to 4 decimals to keep the output compact.
func round(v float64) float64 {
	r := math.Round(v*1e4) / 1e4
	if r == 0 {
		return 0
	}
	return r
}
