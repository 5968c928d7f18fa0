package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dgallion1/inkport/internal/ladder"
	"github.com/dgallion1/inkport/internal/pdfsvg"
	"github.com/dgallion1/inkport/internal/route"
	"github.com/dgallion1/inkport/internal/surface"
	"github.com/dgallion1/inkport/internal/svgtree"
)

// Worker processes a single import job.
type Worker struct {
	ladder  *ladder.Controller
	log     zerolog.Logger
	timeout time.Duration
}

func NewWorker(ctrl *ladder.Controller, log zerolog.Logger, timeout time.Duration) *Worker {
	return &Worker{
		ladder:  ctrl,
		log:     log,
		timeout: timeout,
	}
}

// Process routes the job's file and commits the result to the job's surface
// claim. PDFs go through the ladder; SVG and raster files are committed
// directly.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With().Str("job_id", job.ID).Str("session_id", job.SessionID).
		Str("filename", job.Filename).Logger()

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	job.SetStatus(StatusRendering, "routing")
	data := job.FileData()
	if len(data) == 0 {
		w.fail(job, log, ladder.Fatal("read upload", errors.New("file is empty")), "routing")
		return
	}
	if job.Claim() == nil {
		w.fail(job, log, errors.New("job has no surface claim"), "routing")
		return
	}

	src := route.Detect(data, job.Filename)
	job.SetKind(src.Kind)
	log = log.With().Str("kind", string(src.Kind)).Logger()

	switch src.Kind {
	case route.KindPDF:
		w.importPDF(ctx, log, job, data)
	case route.KindSVG:
		tree, vp, err := route.SVGTree(data)
		if err != nil {
			w.fail(job, log, ladder.Fatal("read svg", err), "routing")
			return
		}
		w.commitDirect(log, job, tree, vp)
	case route.KindRaster:
		tree, vp, err := route.RasterTree(data, src)
		if err != nil {
			w.fail(job, log, ladder.Fatal("read image", err), "routing")
			return
		}
		w.commitDirect(log, job, tree, vp)
	default:
		what := src.MIME
		if what == "" {
			what = "unrecognised content"
		}
		w.fail(job, log, ladder.Fatal("detect", fmt.Errorf("unsupported file type: %s", what)), "routing")
	}
}

func (w *Worker) importPDF(ctx context.Context, log zerolog.Logger, job *Job, data []byte) {
	job.SetStatus(StatusRendering, "opening")
	doc, err := pdfsvg.Open(data)
	if err != nil {
		w.fail(job, log, ladder.Fatal("open pdf", err), "opening")
		return
	}
	page, err := doc.Page(job.Page - 1)
	if err != nil {
		w.fail(job, log, ladder.Fatal("select page", err), "opening")
		return
	}

	job.SetStatus(StatusRendering, "ladder")
	log.Info().Int("page", job.Page).Int("pages", doc.NumPages()).Msg("rendering page")
	out := w.ladder.RunImport(ctx, page, job.Claim())
	job.SetOutcome(out)

	switch {
	case out.Committed():
		log.Info().Int("rung", out.Rung).Float64("scale", out.Scale).Msg("import committed")
		job.SetStatus(StatusCommitted, "done")
	case ctx.Err() != nil:
		job.AddError(fmt.Sprintf("cancelled: %s", ctx.Err()))
		job.SetStatus(StatusFailed, "ladder")
	default:
		if out.Err != nil {
			job.AddError(out.Err.Error())
		}
		log.Warn().Err(out.Err).Msg("import skipped")
		job.SetStatus(StatusSkipped, "done")
	}
}

// commitDirect commits a tree that bypasses the ladder and normalization.
func (w *Worker) commitDirect(log zerolog.Logger, job *Job, tree *svgtree.Node, vp svgtree.Viewport) {
	job.SetStatus(StatusRendering, "committing")
	scale, err := surface.Commit(job.Claim(), tree, vp)
	job.SetCommit(vp, scale)
	switch {
	case errors.Is(err, surface.ErrStaleImport):
		log.Info().Msg("newer import already committed, discarding")
		job.AddError(err.Error())
		job.SetStatus(StatusSkipped, "done")
	case err != nil:
		w.fail(job, log, err, "committing")
	default:
		log.Info().Float64("scale", scale).Msg("import committed")
		job.SetStatus(StatusCommitted, "done")
	}
}

func (w *Worker) fail(job *Job, log zerolog.Logger, err error, phase string) {
	ev := log.Error()
	if ladder.IsFatal(err) {
		// The upload itself is unusable.
		ev = log.Warn()
	}
	ev.Err(err).Str("phase", phase).Msg("import failed")
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, phase)
}
