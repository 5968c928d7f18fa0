package ladder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dgallion1/inkport/internal/normalize"
	"github.com/dgallion1/inkport/internal/surface"
	"github.com/dgallion1/inkport/internal/svgtree"
)

// Controller walks the ladder for one page at a time. It holds no per-import
// state and may be shared between goroutines.
type Controller struct {
	rungs []RenderPassConfig
	log   zerolog.Logger
}

// NewController returns a controller over the fixed ladder.
func NewController(log zerolog.Logger) *Controller {
	return &Controller{rungs: Rungs(), log: log}
}

// Search tries each rung in order and stops at the first accepted one. It
// never touches a host surface. The returned index is into passes, or -1
// when every rung was rejected or ctx ended first.
func (c *Controller) Search(ctx context.Context, page Page) ([]PassResult, int, error) {
	vp := page.Viewport()
	passes := make([]PassResult, 0, len(c.rungs))
	for i, cfg := range c.rungs {
		if err := ctx.Err(); err != nil {
			return passes, -1, err
		}
		rung := i + 1
		start := time.Now()
		res := c.attempt(ctx, page, vp, rung, cfg)
		res.Duration = time.Since(start)
		passes = append(passes, res)

		if res.Accepted {
			c.log.Info().Int("rung", rung).Str("config", cfg.String()).Msg("render pass accepted")
			return passes, len(passes) - 1, nil
		}
		ev := c.log.Warn()
		if res.Reason == ReasonNoDrawableContent {
			ev = c.log.Debug()
		}
		ev.Err(res.Err).Int("rung", rung).Str("config", cfg.String()).
			Str("reason", string(res.Reason)).Msg("render pass rejected")
	}
	c.log.Warn().Int("rungs", len(c.rungs)).Msg("all passes produced no drawable content, page skipped")
	return passes, -1, ErrLadderExhausted
}

// RunImport searches the ladder and commits the accepted tree to host.
// When no rung is accepted, or host refuses a stale commit, the outcome is
// skipped and host is left untouched.
func (c *Controller) RunImport(ctx context.Context, page Page, host surface.Host) Outcome {
	passes, idx, err := c.Search(ctx, page)
	out := Outcome{
		Status:   StatusSkipped,
		Viewport: page.Viewport(),
		Passes:   passes,
		Err:      err,
	}
	if idx < 0 {
		return out
	}

	res := passes[idx]
	scale, err := surface.Commit(host, res.Tree, out.Viewport)
	if err != nil {
		if errors.Is(err, surface.ErrStaleImport) {
			c.log.Info().Int("rung", res.Rung).Msg("newer import already committed, discarding")
		}
		out.Err = err
		return out
	}

	out.Status = StatusCommitted
	out.Tree = res.Tree
	out.Scale = scale
	out.Rung = res.Rung
	return out
}

// attempt runs one rung. Adapter failures, including panics raised inside
// the adapter, become a rejected result.
func (c *Controller) attempt(ctx context.Context, page Page, vp svgtree.Viewport, rung int, cfg RenderPassConfig) (res PassResult) {
	stage := StageOperatorList
	defer func() {
		if r := recover(); r != nil {
			res = rejected(rung, cfg, ReasonAdapterError,
				&AdapterError{Rung: rung, Stage: stage, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	ops, err := page.OperatorList(ctx, cfg)
	if err != nil {
		return rejected(rung, cfg, ReasonAdapterError, &AdapterError{Rung: rung, Stage: stage, Err: err})
	}

	stage = StageBuildTree
	tree, err := page.BuildTree(ctx, ops, vp, cfg.EmbedFonts)
	if err == nil && tree == nil {
		err = errors.New("adapter returned no tree")
	}
	if err != nil {
		return rejected(rung, cfg, ReasonAdapterError, &AdapterError{Rung: rung, Stage: stage, Err: err})
	}

	normalize.Normalize(tree)
	operators := 0
	if ops != nil {
		operators = ops.Len()
	}
	if !normalize.HasDrawableContent(tree) {
		res = rejected(rung, cfg, ReasonNoDrawableContent, ErrNoDrawableContent)
		res.Operators = operators
		return res
	}
	res = accepted(rung, cfg, tree)
	res.Operators = operators
	return res
}
