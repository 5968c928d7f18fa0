package ladder

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/inkport/internal/surface"
	"github.com/dgallion1/inkport/internal/svgtree"
)

type fakeOps int

func (f fakeOps) Len() int { return int(f) }

// rungScript describes what the fake adapter does on one rung.
type rungScript struct {
	opsErr   error
	buildErr error
	panics   bool
	tree     func() *svgtree.Node
}

type fakePage struct {
	vp      svgtree.Viewport
	script  []rungScript
	configs []RenderPassConfig
	embeds  []bool
}

func (p *fakePage) Viewport() svgtree.Viewport { return p.vp }

func (p *fakePage) rung() rungScript {
	return p.script[len(p.configs)-1]
}

func (p *fakePage) OperatorList(_ context.Context, cfg RenderPassConfig) (OperatorList, error) {
	p.configs = append(p.configs, cfg)
	s := p.rung()
	if s.opsErr != nil {
		return nil, s.opsErr
	}
	return fakeOps(len(p.configs)), nil
}

func (p *fakePage) BuildTree(_ context.Context, ops OperatorList, _ svgtree.Viewport, embedFonts bool) (*svgtree.Node, error) {
	p.embeds = append(p.embeds, embedFonts)
	s := p.rung()
	if s.panics {
		panic("broken font program")
	}
	if s.buildErr != nil {
		return nil, s.buildErr
	}
	return s.tree(), nil
}

func emptyTree() *svgtree.Node {
	return svgtree.New("svg").Append(svgtree.New("defs"), svgtree.New("g"))
}

func patternOnlyTree() *svgtree.Node {
	return svgtree.New("svg").Append(
		svgtree.New("defs").Append(svgtree.New("pattern", svgtree.Attr{Name: "id", Value: "p"})),
		svgtree.New("g").Append(svgtree.New("image", svgtree.Attr{Name: "width", Value: "1"})),
	)
}

func pathTree(id string) func() *svgtree.Node {
	return func() *svgtree.Node {
		return svgtree.New("svg").Append(
			svgtree.New("g").Append(svgtree.New("path",
				svgtree.Attr{Name: "id", Value: id},
				svgtree.Attr{Name: "d", Value: "M0 0L10 10"},
				svgtree.Attr{Name: "fill", Value: "url(#gone)"},
			)),
		)
	}
}

func newController() *Controller {
	return NewController(zerolog.Nop())
}

func TestRungs_FidelityNonIncreasing(t *testing.T) {
	r := Rungs()
	require.Len(t, r, 4)
	assert.Equal(t, RenderPassConfig{EmbedFonts: true}, r[0])
	assert.Equal(t, RenderPassConfig{}, r[1])
	assert.Equal(t, RenderPassConfig{DisablePattern: true}, r[2])
	assert.Equal(t, RenderPassConfig{DisablePattern: true, DisableImage: true}, r[3])

	disabled := func(c RenderPassConfig) []bool {
		return []bool{!c.EmbedFonts, c.DisablePattern, c.DisableImage}
	}
	for i := 1; i < len(r); i++ {
		prev, cur := disabled(r[i-1]), disabled(r[i])
		for f := range prev {
			if prev[f] {
				assert.True(t, cur[f], "rung %d re-enables a feature", i+1)
			}
		}
	}

	// Callers cannot reorder the ladder.
	r[0], r[3] = r[3], r[0]
	assert.Equal(t, RenderPassConfig{EmbedFonts: true}, Rungs()[0])
}

func TestRunImport_AdapterFailuresDoNotAbortLadder(t *testing.T) {
	page := &fakePage{
		vp: svgtree.Viewport{Width: 200, Height: 100},
		script: []rungScript{
			{opsErr: errors.New("malformed operator list")},
			{buildErr: errors.New("svg build failed")},
			{tree: pathTree("rung3")},
			{tree: pathTree("rung4")},
		},
	}
	host := surface.New(surface.Bounds{Width: 1000, Height: 1000})

	out := newController().RunImport(context.Background(), page, host)

	require.True(t, out.Committed(), "err: %v", out.Err)
	assert.Equal(t, 3, out.Rung)
	assert.Equal(t, "rung3", host.Current().Find(func(n *svgtree.Node) bool { return n.Tag == "path" }).Attr("id"))
	require.Len(t, out.Passes, 3)
	assert.Equal(t, ReasonAdapterError, out.Passes[0].Reason)
	assert.Equal(t, ReasonAdapterError, out.Passes[1].Reason)
	assert.True(t, IsAdapterError(out.Passes[0].Err))

	var ae *AdapterError
	require.ErrorAs(t, out.Passes[1].Err, &ae)
	assert.Equal(t, StageBuildTree, ae.Stage)
	assert.Equal(t, 2, ae.Rung)

	assert.Equal(t, Rungs()[:3], page.configs)
	assert.Equal(t, []bool{false, false}, page.embeds)
}

func TestRunImport_PanicInAdapterIsRecovered(t *testing.T) {
	page := &fakePage{
		vp: svgtree.Viewport{Width: 10, Height: 10},
		script: []rungScript{
			{panics: true},
			{tree: pathTree("rung2")},
		},
	}
	out := newController().RunImport(context.Background(), page, surface.New(surface.Bounds{}))
	require.True(t, out.Committed())
	assert.Equal(t, 2, out.Rung)
	assert.Equal(t, ReasonAdapterError, out.Passes[0].Reason)
	assert.Contains(t, out.Passes[0].Error, "panic")
	assert.Equal(t, []bool{true, false}, page.embeds)
}

func TestRunImport_FirstAcceptedRungWins(t *testing.T) {
	page := &fakePage{
		vp:     svgtree.Viewport{Width: 10, Height: 10},
		script: []rungScript{{tree: pathTree("rung1")}},
	}
	out := newController().RunImport(context.Background(), page, surface.New(surface.Bounds{}))
	require.True(t, out.Committed())
	assert.Equal(t, 1, out.Rung)
	assert.Len(t, page.configs, 1, "no further rungs after acceptance")
	assert.Equal(t, []bool{true}, page.embeds)
}

func TestRunImport_EndToEndThirdRung(t *testing.T) {
	page := &fakePage{
		vp: svgtree.Viewport{Width: 612, Height: 792},
		script: []rungScript{
			{tree: emptyTree},
			{tree: patternOnlyTree},
			{tree: pathTree("only")},
		},
	}
	host := surface.New(surface.Bounds{Width: 400, Height: 400})

	out := newController().RunImport(context.Background(), page, host)
	require.True(t, out.Committed())
	assert.Equal(t, 3, out.Rung)
	assert.Equal(t, ReasonNoDrawableContent, out.Passes[0].Reason)
	assert.Equal(t, ReasonNoDrawableContent, out.Passes[1].Reason)
	assert.Equal(t, 3, out.Passes[2].Operators)

	tree := host.Current()
	assert.Equal(t, 1, tree.Count(func(n *svgtree.Node) bool { return svgtree.IsPrimitive(n.Tag) }))
	path := tree.Find(func(n *svgtree.Node) bool { return n.Tag == "path" })
	assert.Equal(t, "only", path.Attr("id"))
	assert.Equal(t, "none", path.Attr("fill"))
	assert.Equal(t, "#999", path.Attr("stroke"))

	w, err := strconv.ParseFloat(tree.Attr("width"), 64)
	require.NoError(t, err)
	h, err := strconv.ParseFloat(tree.Attr("height"), 64)
	require.NoError(t, err)
	assert.LessOrEqual(t, w, 400.0)
	assert.LessOrEqual(t, h, 400.0)
	assert.LessOrEqual(t, out.Scale, 1.0)
	assert.InDelta(t, 400.0/792.0, out.Scale, 1e-9)
	assert.Equal(t, "0 0 612 792", tree.Attr("viewBox"))
}

func TestRunImport_NeverUpscales(t *testing.T) {
	page := &fakePage{
		vp:     svgtree.Viewport{Width: 100, Height: 50},
		script: []rungScript{{tree: pathTree("p")}},
	}
	host := surface.New(surface.Bounds{Width: 4000, Height: 4000})
	out := newController().RunImport(context.Background(), page, host)
	require.True(t, out.Committed())
	assert.Equal(t, 1.0, out.Scale)
	assert.Equal(t, "100", host.Current().Attr("width"))
	assert.Equal(t, "50", host.Current().Attr("height"))
}

func TestRunImport_ExhaustedLeavesHostUntouched(t *testing.T) {
	page := &fakePage{
		vp: svgtree.Viewport{Width: 10, Height: 10},
		script: []rungScript{
			{tree: emptyTree},
			{tree: emptyTree},
			{tree: patternOnlyTree},
			{tree: emptyTree},
		},
	}
	host := surface.New(surface.Bounds{Width: 10, Height: 10})
	previous := svgtree.New("svg", svgtree.Attr{Name: "id", Value: "previous"})
	require.NoError(t, host.ReplaceImport(previous))
	version := host.Version()

	out := newController().RunImport(context.Background(), page, host)

	assert.False(t, out.Committed())
	assert.Equal(t, StatusSkipped, out.Status)
	assert.ErrorIs(t, out.Err, ErrLadderExhausted)
	assert.Len(t, out.Passes, 4)
	assert.Nil(t, out.Tree)
	assert.Equal(t, version, host.Version())
	assert.Equal(t, "previous", host.Current().Attr("id"))
}

func TestRunImport_StaleClaimIsSkipped(t *testing.T) {
	page := &fakePage{
		vp:     svgtree.Viewport{Width: 10, Height: 10},
		script: []rungScript{{tree: pathTree("late")}},
	}
	host := surface.New(surface.Bounds{})
	stale := host.Claim()
	require.NoError(t, host.Claim().ReplaceImport(svgtree.New("svg", svgtree.Attr{Name: "id", Value: "newer"})))

	out := newController().RunImport(context.Background(), page, stale)
	assert.False(t, out.Committed())
	assert.ErrorIs(t, out.Err, surface.ErrStaleImport)
	assert.Equal(t, "newer", host.Current().Attr("id"))
}

func TestSearch_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := &fakePage{vp: svgtree.Viewport{Width: 1, Height: 1}}

	passes, idx, err := newController().Search(ctx, page)
	assert.Empty(t, passes)
	assert.Equal(t, -1, idx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderPassConfig_String(t *testing.T) {
	assert.Equal(t, "embed", RenderPassConfig{EmbedFonts: true}.String())
	assert.Equal(t, "noEmbed+noPattern+noImage", RenderPassConfig{DisablePattern: true, DisableImage: true}.String())
}
