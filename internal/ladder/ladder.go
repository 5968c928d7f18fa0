// Package ladder runs the vector import degradation ladder: a fixed,
// ordered list of render configurations tried until one yields a
// normalized tree with drawable content.
package ladder

import (
	"context"
	"strings"
	"time"

	"github.com/dgallion1/inkport/internal/svgtree"
)

// RenderPassConfig selects which optional paint features are disabled for
// one attempt.
type RenderPassConfig struct {
	EmbedFonts     bool `json:"embed_fonts"`
	DisablePattern bool `json:"disable_pattern"`
	DisableImage   bool `json:"disable_image"`
}

func (c RenderPassConfig) String() string {
	var parts []string
	if c.EmbedFonts {
		parts = append(parts, "embed")
	} else {
		parts = append(parts, "noEmbed")
	}
	if c.DisablePattern {
		parts = append(parts, "noPattern")
	}
	if c.DisableImage {
		parts = append(parts, "noImage")
	}
	return strings.Join(parts, "+")
}

// rungs is ordered by non-increasing fidelity. Each entry disables a
// superset of the features disabled by the one before it.
var rungs = [...]RenderPassConfig{
	{EmbedFonts: true},
	{},
	{DisablePattern: true},
	{DisablePattern: true, DisableImage: true},
}

// Rungs returns a copy of the ladder.
func Rungs() []RenderPassConfig {
	out := make([]RenderPassConfig, len(rungs))
	copy(out, rungs[:])
	return out
}

// OperatorList is the adapter's drawing instruction list for one page and
// configuration. The ladder never looks inside it.
type OperatorList interface {
	Len() int
}

// Page is one source page as seen through the page-rendering adapter.
type Page interface {
	Viewport() svgtree.Viewport
	OperatorList(ctx context.Context, cfg RenderPassConfig) (OperatorList, error)
	BuildTree(ctx context.Context, ops OperatorList, vp svgtree.Viewport, embedFonts bool) (*svgtree.Node, error)
}

// RejectReason says why a rung was rejected.
type RejectReason string

const (
	ReasonAdapterError      RejectReason = "adapter_error"
	ReasonNoDrawableContent RejectReason = "no_drawable_content"
)

// PassResult is the outcome of one rung: accepted with a tree, or rejected
// with a reason.
type PassResult struct {
	Rung      int              `json:"rung"`
	Config    RenderPassConfig `json:"config"`
	Accepted  bool             `json:"accepted"`
	Reason    RejectReason     `json:"reason,omitempty"`
	Error     string           `json:"error,omitempty"`
	Operators int              `json:"operators"`
	Duration  time.Duration    `json:"duration_ns"`

	Err  error         `json:"-"`
	Tree *svgtree.Node `json:"-"`
}

func accepted(rung int, cfg RenderPassConfig, tree *svgtree.Node) PassResult {
	return PassResult{Rung: rung, Config: cfg, Accepted: true, Tree: tree}
}

func rejected(rung int, cfg RenderPassConfig, reason RejectReason, err error) PassResult {
	return PassResult{Rung: rung, Config: cfg, Reason: reason, Err: err, Error: err.Error()}
}

// Status is the terminal state of an import.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusSkipped   Status = "skipped"
)

// Outcome is the result of RunImport. A skipped outcome left the host
// surface exactly as it was.
type Outcome struct {
	Status   Status           `json:"status"`
	Viewport svgtree.Viewport `json:"viewport"`
	Scale    float64          `json:"scale,omitempty"`
	Rung     int              `json:"rung,omitempty"`
	Passes   []PassResult     `json:"passes"`

	Tree *svgtree.Node `json:"-"`
	Err  error         `json:"-"`
}

// Committed reports whether the import replaced the host's active tree.
func (o Outcome) Committed() bool {
	return o.Status == StatusCommitted
}
