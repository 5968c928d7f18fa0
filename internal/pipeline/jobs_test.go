package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/dgallion1/inkport/internal/ladder"
	"github.com/dgallion1/inkport/internal/surface"
	"github.com/dgallion1/inkport/internal/svgtree"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	// SHA-256 of empty input is well-known.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestNewJob(t *testing.T) {
	s := surface.New(surface.Bounds{})
	s.Claim()
	job := NewJob("sess", "a.pdf", []byte("x"), 2, s.Claim())

	if len(job.ID) != 26 {
		t.Errorf("expected a ULID job id, got %q", job.ID)
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
	if job.Result.Generation != 2 {
		t.Errorf("expected generation 2, got %d", job.Result.Generation)
	}
	if job.Kind != "unknown" {
		t.Errorf("expected unknown kind before routing, got %q", job.Kind)
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob("sess", "a.svg", []byte("<svg/>"), 1, nil)

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusRendering, "routing"},
		{StatusRendering, "ladder"},
		{StatusCommitted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJob_TerminalStatusIsFinal(t *testing.T) {
	job := NewJob("sess", "a.svg", []byte("<svg/>"), 1, nil)
	job.SetStatus(StatusFailed, "routing")
	job.SetStatus(StatusCommitted, "done")

	if job.Status != StatusFailed {
		t.Errorf("expected status to stay %q, got %q", StatusFailed, job.Status)
	}
	if job.FileData() != nil {
		t.Error("expected file data to be released once terminal")
	}
}

func TestJob_Wait(t *testing.T) {
	job := NewJob("sess", "a.svg", []byte("<svg/>"), 1, nil)
	go func() {
		time.Sleep(10 * time.Millisecond)
		job.SetStatus(StatusSkipped, "done")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := job.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Status != StatusSkipped {
		t.Errorf("expected status %q, got %q", StatusSkipped, snap.Status)
	}
}

func TestJob_WaitHonoursContext(t *testing.T) {
	job := NewJob("sess", "a.svg", []byte("<svg/>"), 1, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	snap, err := job.Wait(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if snap.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, snap.Status)
	}
}

func TestJob_AddError(t *testing.T) {
	job := NewJob("sess", "a.pdf", nil, 1, nil)
	job.AddError("rung 1 failed")
	job.AddError("rung 2 failed")

	snap := job.Snapshot()
	if len(snap.Result.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Result.Errors))
	}
	if snap.Result.Errors[0] != "rung 1 failed" {
		t.Errorf("expected first error %q, got %q", "rung 1 failed", snap.Result.Errors[0])
	}
}

func TestJob_SetOutcomeDropsTrees(t *testing.T) {
	job := NewJob("sess", "a.pdf", nil, 1, nil)
	job.SetOutcome(ladder.Outcome{
		Status:   ladder.StatusCommitted,
		Viewport: svgtree.Viewport{Width: 10, Height: 20},
		Scale:    0.5,
		Rung:     2,
		Passes: []ladder.PassResult{
			{Rung: 1, Reason: ladder.ReasonAdapterError, Error: "boom"},
			{Rung: 2, Accepted: true, Tree: svgtree.New("svg")},
		},
	})

	snap := job.Snapshot()
	if snap.Result.Rung != 2 || snap.Result.Scale != 0.5 {
		t.Errorf("expected rung 2 at scale 0.5, got rung %d at %g", snap.Result.Rung, snap.Result.Scale)
	}
	if len(snap.Result.Passes) != 2 {
		t.Fatalf("expected 2 passes, got %d", len(snap.Result.Passes))
	}
	if snap.Result.Passes[1].Tree != nil {
		t.Error("expected pass trees to be dropped from the job")
	}
}

func TestJob_SnapshotSlicesNotNil(t *testing.T) {
	// Snapshot should always return non-nil slices.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Result.Errors == nil || snap.Result.Passes == nil {
		t.Error("expected non-nil slices in snapshot")
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := NewJob("sess", "old.svg", nil, 1, nil)
	expired.SetStatus(StatusCommitted, "done")
	store.Put(expired)

	running := NewJob("sess", "slow.pdf", nil, 1, nil)
	running.SetStatus(StatusRendering, "ladder")
	store.Put(running)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	// Add a fresh job.
	fresh := NewJob("sess", "new.svg", nil, 1, nil)
	fresh.SetStatus(StatusCommitted, "done")
	store.Put(fresh)

	store.Cleanup()

	if store.Get(expired.ID) != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get(running.ID) == nil {
		t.Error("expected unfinished job to survive cleanup")
	}
	if store.Get(fresh.ID) == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}
