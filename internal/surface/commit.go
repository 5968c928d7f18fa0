package surface

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dgallion1/inkport/internal/svgtree"
)

// Fit returns the uniform scale that fits vp into b without upscaling. A
// non-positive host dimension places no constraint on that axis.
func Fit(vp svgtree.Viewport, b Bounds) float64 {
	scale := 1.0
	if b.Width > 0 && vp.Width > 0 {
		scale = math.Min(scale, b.Width/vp.Width)
	}
	if b.Height > 0 && vp.Height > 0 {
		scale = math.Min(scale, b.Height/vp.Height)
	}
	return scale
}

// Commit sizes tree for host and makes it the host's single active import.
// The sizing attributes describe the scaled page, the view box the
// unscaled viewport. Returns the applied scale.
func Commit(host Host, tree *svgtree.Node, vp svgtree.Viewport) (float64, error) {
	if tree == nil {
		return 0, errors.New("commit: nil tree")
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		return 0, fmt.Errorf("commit: invalid viewport %gx%g", vp.Width, vp.Height)
	}

	scale := Fit(vp, host.BoundingBox())
	tree.Set("viewBox", fmt.Sprintf("0 0 %s %s", svgtree.FormatFloat(vp.Width), svgtree.FormatFloat(vp.Height)))
	tree.SetFloat("width", round4(vp.Width*scale))
	tree.SetFloat("height", round4(vp.Height*scale))

	if err := host.ReplaceImport(tree); err != nil {
		return scale, err
	}
	return scale, nil
}

// CommittedViewport recovers the unscaled viewport Commit recorded in a
// tree's viewBox.
func CommittedViewport(tree *svgtree.Node) (svgtree.Viewport, bool) {
	if tree == nil {
		return svgtree.Viewport{}, false
	}
	f := strings.Fields(strings.ReplaceAll(tree.Attr("viewBox"), ",", " "))
	if len(f) != 4 {
		return svgtree.Viewport{}, false
	}
	w, err1 := strconv.ParseFloat(f[2], 64)
	h, err2 := strconv.ParseFloat(f[3], 64)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return svgtree.Viewport{}, false
	}
	return svgtree.Viewport{Width: w, Height: h}, true
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
