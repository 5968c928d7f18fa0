package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/inkport/internal/config"
	"github.com/dgallion1/inkport/internal/ladder"
	"github.com/dgallion1/inkport/internal/route"
	"github.com/dgallion1/inkport/internal/surface"
	"github.com/dgallion1/inkport/internal/svgtree"
)

func pdfBytes(t *testing.T, pages int, draw func(pdf *gofpdf.Fpdf)) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "pt", "Letter", "")
	for range pages {
		pdf.AddPage()
		if draw != nil {
			draw(pdf)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func drawBox(pdf *gofpdf.Fpdf) {
	pdf.SetFillColor(0, 0, 255)
	pdf.Rect(100, 100, 200, 100, "F")
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestWorker() *Worker {
	return NewWorker(ladder.NewController(zerolog.Nop()), zerolog.Nop(), time.Minute)
}

func TestWorker_PDFCommitsThroughLadder(t *testing.T) {
	s := surface.New(surface.Bounds{Width: 306, Height: 396})
	job := NewJob("sess", "plan.pdf", pdfBytes(t, 1, drawBox), 1, s.Claim())

	newTestWorker().Process(context.Background(), job)

	snap := job.Snapshot()
	require.Equal(t, StatusCommitted, snap.Status, snap.Result.Errors)
	assert.Equal(t, route.KindPDF, snap.Kind)
	assert.Equal(t, 1, snap.Result.Rung)
	assert.Equal(t, 0.5, snap.Result.Scale)
	assert.Equal(t, svgtree.Viewport{Width: 612, Height: 792}, snap.Result.Viewport)
	require.Len(t, snap.Result.Passes, 1)
	assert.True(t, snap.Result.Passes[0].Accepted)

	tree := s.Current()
	require.NotNil(t, tree)
	assert.Equal(t, "306", tree.Attr("width"))
	assert.Equal(t, "0 0 612 792", tree.Attr("viewBox"))
	assert.NotNil(t, tree.Find(func(n *svgtree.Node) bool { return n.Attr("fill") == "#0000ff" }))
}

func TestWorker_EmptyPageIsSkipped(t *testing.T) {
	s := surface.New(surface.Bounds{Width: 100, Height: 100})
	job := NewJob("sess", "blank.pdf", pdfBytes(t, 1, nil), 1, s.Claim())

	newTestWorker().Process(context.Background(), job)

	snap := job.Snapshot()
	assert.Equal(t, StatusSkipped, snap.Status)
	assert.Len(t, snap.Result.Passes, len(ladder.Rungs()))
	for _, p := range snap.Result.Passes {
		assert.Equal(t, ladder.ReasonNoDrawableContent, p.Reason)
	}
	assert.Contains(t, snap.Result.Errors, ladder.ErrLadderExhausted.Error())
	assert.Zero(t, s.Version(), "skipped import must not touch the surface")
}

func TestWorker_PicksRequestedPage(t *testing.T) {
	s := surface.New(surface.Bounds{})
	page := 0
	data := pdfBytes(t, 2, func(pdf *gofpdf.Fpdf) {
		page++
		if page == 2 {
			drawBox(pdf)
		}
	})

	job := NewJob("sess", "two.pdf", data, 2, s.Claim())
	newTestWorker().Process(context.Background(), job)
	assert.Equal(t, StatusCommitted, job.Snapshot().Status)

	job = NewJob("sess", "two.pdf", data, 3, s.Claim())
	newTestWorker().Process(context.Background(), job)
	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "opening", snap.Phase)
	assert.Empty(t, snap.Result.Passes, "ladder never starts for a missing page")
}

func TestWorker_UnreadablePDFFails(t *testing.T) {
	s := surface.New(surface.Bounds{})
	job := NewJob("sess", "broken.pdf", []byte("%PDF-1.4\n%garbage without xref"), 1, s.Claim())

	newTestWorker().Process(context.Background(), job)

	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	require.NotEmpty(t, snap.Result.Errors)
	assert.Contains(t, snap.Result.Errors[0], "open pdf")
	assert.Zero(t, s.Version())
}

func TestWorker_SVGBypassesLadder(t *testing.T) {
	s := surface.New(surface.Bounds{Width: 50, Height: 50})
	svg := []byte(`<svg viewBox="0 0 200 100"><rect width="10" height="10" fill="url(#p)"/></svg>`)
	job := NewJob("sess", "logo.svg", svg, 1, s.Claim())

	newTestWorker().Process(context.Background(), job)

	snap := job.Snapshot()
	require.Equal(t, StatusCommitted, snap.Status, snap.Result.Errors)
	assert.Equal(t, route.KindSVG, snap.Kind)
	assert.Empty(t, snap.Result.Passes)
	assert.Equal(t, 0.25, snap.Result.Scale)

	// No normalization on the bypass path.
	rect := s.Current().Find(func(n *svgtree.Node) bool { return n.Tag == "rect" })
	assert.Equal(t, "url(#p)", rect.Attr("fill"))
}

func TestWorker_RasterIsWrapped(t *testing.T) {
	s := surface.New(surface.Bounds{Width: 1000, Height: 1000})
	job := NewJob("sess", "photo.png", pngBytes(t, 4, 3), 1, s.Claim())

	newTestWorker().Process(context.Background(), job)

	snap := job.Snapshot()
	require.Equal(t, StatusCommitted, snap.Status, snap.Result.Errors)
	assert.Equal(t, route.KindRaster, snap.Kind)
	assert.Equal(t, 1.0, snap.Result.Scale, "never upscaled")
	assert.NotNil(t, s.Current().Find(func(n *svgtree.Node) bool { return n.Tag == "image" }))
}

func TestWorker_UnsupportedFails(t *testing.T) {
	s := surface.New(surface.Bounds{})
	job := NewJob("sess", "notes.txt", []byte("just some words"), 1, s.Claim())

	newTestWorker().Process(context.Background(), job)

	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, route.KindUnknown, snap.Kind)
	assert.Contains(t, snap.Result.Errors[0], "unsupported file type")
}

func TestWorker_OlderImportFinishingLastIsDiscarded(t *testing.T) {
	s := surface.New(surface.Bounds{})
	older := NewJob("sess", "old.svg", []byte(`<svg width="10" height="10"><path d="M0 0"/></svg>`), 1, s.Claim())
	newer := NewJob("sess", "new.svg", []byte(`<svg width="20" height="20"><circle r="2"/></svg>`), 1, s.Claim())

	w := newTestWorker()
	w.Process(context.Background(), newer)
	w.Process(context.Background(), older)

	assert.Equal(t, StatusCommitted, newer.Snapshot().Status)
	snap := older.Snapshot()
	assert.Equal(t, StatusSkipped, snap.Status)
	assert.Contains(t, snap.Result.Errors, surface.ErrStaleImport.Error())
	assert.NotNil(t, s.Current().Find(func(n *svgtree.Node) bool { return n.Tag == "circle" }))
}

func TestWorker_CancelledImportFails(t *testing.T) {
	s := surface.New(surface.Bounds{})
	job := NewJob("sess", "plan.pdf", pdfBytes(t, 1, drawBox), 1, s.Claim())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	newTestWorker().Process(ctx, job)

	assert.Equal(t, StatusFailed, job.Snapshot().Status)
	assert.Zero(t, s.Version())
}

func testConfig(workers, queue int) config.Config {
	cfg := config.Defaults()
	cfg.WorkerCount = workers
	cfg.MaxQueueSize = queue
	return cfg
}

func TestOrchestrator_SubmitAndWait(t *testing.T) {
	o := NewOrchestrator(testConfig(2, 10), zerolog.Nop())
	o.Start(context.Background())
	defer o.Stop()

	s := surface.New(surface.Bounds{Width: 612, Height: 792})
	job := NewJob("sess", "plan.pdf", pdfBytes(t, 1, drawBox), 0, s.Claim())
	require.NoError(t, o.Submit(job))
	assert.Equal(t, 1, job.Page, "default page applied")
	assert.Same(t, job, o.GetJob(job.ID))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := job.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, snap.Status)
	assert.True(t, s.HasImport())
}

func TestOrchestrator_QueueFull(t *testing.T) {
	o := NewOrchestrator(testConfig(1, 1), zerolog.Nop())
	// Not started: nothing drains the queue.
	s := surface.New(surface.Bounds{})

	first := NewJob("sess", "a.svg", []byte("<svg/>"), 1, s.Claim())
	require.NoError(t, o.Submit(first))
	assert.Equal(t, 1, o.QueueDepth())

	second := NewJob("sess", "b.svg", []byte("<svg/>"), 1, s.Claim())
	err := o.Submit(second)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, StatusFailed, second.Snapshot().Status)

	o.Stop()
	assert.Equal(t, StatusFailed, first.Snapshot().Status, "queued jobs fail on shutdown")
	assert.Error(t, o.Submit(NewJob("sess", "c.svg", []byte("<svg/>"), 1, s.Claim())))
}
