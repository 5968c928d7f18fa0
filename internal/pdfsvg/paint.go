package pdfsvg

import (
	"fmt"
	"io"
	"math"

	pdflib "github.com/ledongthuc/pdf"
)

// colorSpace is the subset of a PDF colour space needed to turn colour
// components into an sRGB hex string.
type colorSpace struct {
	family  string // gray, rgb, cmyk, lab, tint, indexed, pattern
	n       int
	base    *colorSpace
	lookup  string
	hival   int
	under   *colorSpace // underlying space of an uncoloured pattern space
	pattern bool
}

var (
	deviceGray = colorSpace{family: "gray", n: 1}
	deviceRGB  = colorSpace{family: "rgb", n: 3}
	deviceCMYK = colorSpace{family: "cmyk", n: 4}
)

// resolveColorSpace looks a cs/CS operand up. Unknown spaces fall back to
// a device space chosen by component count where one is known.
func resolveColorSpace(name string, res pdflib.Value) colorSpace {
	switch name {
	case "DeviceGray", "G", "CalGray":
		return deviceGray
	case "DeviceRGB", "RGB", "CalRGB":
		return deviceRGB
	case "DeviceCMYK", "CMYK":
		return deviceCMYK
	case "Pattern":
		return colorSpace{family: "pattern", pattern: true}
	}
	return colorSpaceOf(res.Key("ColorSpace").Key(name), 0)
}

func colorSpaceOf(v pdflib.Value, depth int) colorSpace {
	if depth > 4 {
		return deviceGray
	}
	switch v.Kind() {
	case pdflib.Name:
		switch v.Name() {
		case "DeviceRGB", "CalRGB":
			return deviceRGB
		case "DeviceCMYK":
			return deviceCMYK
		case "Pattern":
			return colorSpace{family: "pattern", pattern: true}
		}
		return deviceGray
	case pdflib.Array:
	default:
		return deviceGray
	}

	switch v.Index(0).Name() {
	case "DeviceGray", "CalGray":
		return deviceGray
	case "DeviceRGB", "CalRGB":
		return deviceRGB
	case "DeviceCMYK":
		return deviceCMYK
	case "Lab":
		return colorSpace{family: "lab", n: 3}
	case "ICCBased":
		switch v.Index(1).Key("N").Int64() {
		case 1:
			return deviceGray
		case 4:
			return deviceCMYK
		default:
			return deviceRGB
		}
	case "Separation":
		return colorSpace{family: "tint", n: 1}
	case "DeviceN":
		return colorSpace{family: "tint", n: max(1, v.Index(1).Len())}
	case "Indexed", "I":
		base := colorSpaceOf(v.Index(1), depth+1)
		cs := colorSpace{family: "indexed", n: 1, base: &base, hival: int(v.Index(2).Int64())}
		switch lut := v.Index(3); lut.Kind() {
		case pdflib.String:
			cs.lookup = lut.RawString()
		case pdflib.Stream:
			if b, err := io.ReadAll(lut.Reader()); err == nil {
				cs.lookup = string(b)
			}
		}
		return cs
	case "Pattern":
		cs := colorSpace{family: "pattern", pattern: true}
		if v.Len() > 1 {
			under := colorSpaceOf(v.Index(1), depth+1)
			cs.under = &under
		}
		return cs
	}
	return deviceGray
}

// initial is the colour a space starts at after cs/CS.
func (cs colorSpace) initial() string {
	if cs.pattern {
		return "none"
	}
	return "#000000"
}

// hex converts components in cs to "#rrggbb".
func (cs colorSpace) hex(comps []float64) string {
	at := func(i int) float64 {
		if i < len(comps) {
			return clamp01(comps[i])
		}
		return 0
	}
	switch cs.family {
	case "rgb":
		return toHex(at(0), at(1), at(2))
	case "cmyk":
		return cmykHex(at(0), at(1), at(2), at(3))
	case "lab":
		l := 0.0
		if len(comps) > 0 {
			l = clamp01(comps[0] / 100)
		}
		return toHex(l, l, l)
	case "tint":
		var sum float64
		for i := 0; i < cs.n; i++ {
			sum += at(i)
		}
		g := 1 - sum/float64(cs.n)
		return toHex(g, g, g)
	case "indexed":
		if len(comps) == 0 || cs.base == nil {
			return "#000000"
		}
		idx := int(math.Round(comps[0]))
		idx = max(0, min(idx, cs.hival))
		n := cs.base.n
		if n == 0 || (idx+1)*n > len(cs.lookup) {
			return "#000000"
		}
		entry := make([]float64, n)
		for i := range entry {
			entry[i] = float64(cs.lookup[idx*n+i]) / 255
		}
		return cs.base.hex(entry)
	case "pattern":
		if cs.under != nil {
			return cs.under.hex(comps)
		}
		return "none"
	}
	g := at(0)
	return toHex(g, g, g)
}

func cmykHex(c, m, y, k float64) string {
	return toHex((1-c)*(1-k), (1-m)*(1-k), (1-y)*(1-k))
}

func toHex(r, g, b float64) string {
	return fmt.Sprintf("#%02x%02x%02x", to8(r), to8(g), to8(b))
}

func to8(v float64) int {
	return int(math.Round(clamp01(v) * 255))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func numbers(args []Operand) []float64 {
	out := make([]float64, 0, len(args))
	for _, a := range args {
		if a.Kind == OperandNumber {
			out = append(out, a.Num)
		}
	}
	return out
}

// evalFunction evaluates a PDF function at t. Exponential (type 2) and
// stitching (type 3) functions are supported, as is an array of
// single-output functions.
func evalFunction(fn pdflib.Value, t float64, depth int) ([]float64, error) {
	if depth > 8 {
		return nil, fmt.Errorf("function nesting too deep")
	}
	if fn.Kind() == pdflib.Array {
		var out []float64
		for i := 0; i < fn.Len(); i++ {
			v, err := evalFunction(fn.Index(i), t, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v...)
		}
		return out, nil
	}

	d0, d1 := 0.0, 1.0
	if dom := fn.Key("Domain"); dom.Len() >= 2 {
		d0, d1 = dom.Index(0).Float64(), dom.Index(1).Float64()
	}
	t = math.Max(d0, math.Min(d1, t))

	switch fn.Key("FunctionType").Int64() {
	case 2:
		c0 := floats(fn.Key("C0"), []float64{0})
		c1 := floats(fn.Key("C1"), []float64{1})
		n := fn.Key("N").Float64()
		if n == 0 {
			n = 1
		}
		x := math.Pow(t, n)
		out := make([]float64, min(len(c0), len(c1)))
		for i := range out {
			out[i] = c0[i] + x*(c1[i]-c0[i])
		}
		return out, nil
	case 3:
		fns := fn.Key("Functions")
		k := fns.Len()
		if k == 0 {
			return nil, fmt.Errorf("stitching function without subfunctions")
		}
		bounds := floats(fn.Key("Bounds"), nil)
		encode := floats(fn.Key("Encode"), nil)
		i := 0
		for i < len(bounds) && t >= bounds[i] {
			i++
		}
		i = min(i, k-1)
		lo, hi := d0, d1
		if i > 0 && i-1 < len(bounds) {
			lo = bounds[i-1]
		}
		if i < len(bounds) {
			hi = bounds[i]
		}
		e0, e1 := 0.0, 1.0
		if 2*i+1 < len(encode) {
			e0, e1 = encode[2*i], encode[2*i+1]
		}
		u := e0
		if hi > lo {
			u = e0 + (t-lo)*(e1-e0)/(hi-lo)
		}
		return evalFunction(fns.Index(i), u, depth+1)
	}
	return nil, fmt.Errorf("unsupported function type %d", fn.Key("FunctionType").Int64())
}

func floats(v pdflib.Value, def []float64) []float64 {
	if v.Kind() != pdflib.Array {
		return def
	}
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.Index(i).Float64()
	}
	return out
}
