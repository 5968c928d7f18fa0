package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dgallion1/inkport/internal/ladder"
	"github.com/dgallion1/inkport/internal/route"
	"github.com/dgallion1/inkport/internal/surface"
	"github.com/dgallion1/inkport/internal/svgtree"
)

// JobStatus represents the state of an import job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRendering JobStatus = "rendering"
	StatusCommitted JobStatus = "committed"
	StatusSkipped   JobStatus = "skipped"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition will happen.
func (s JobStatus) Terminal() bool {
	return s == StatusCommitted || s == StatusSkipped || s == StatusFailed
}

// Job tracks the state of a single import onto a session surface.
type Job struct {
	mu sync.Mutex

	ID        string `json:"job_id"`
	SessionID string `json:"session_id"`

	Status   JobStatus  `json:"status"`
	Phase    string     `json:"phase"`
	Filename string     `json:"filename"`
	Kind     route.Kind `json:"kind"`
	Page     int        `json:"page"`

	Result Result `json:"result"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	claim    *surface.Claim
	errors   []string
	done     chan struct{}
}

// Result is what an import did to its surface.
type Result struct {
	Viewport   svgtree.Viewport    `json:"viewport"`
	Scale      float64             `json:"scale,omitempty"`
	Rung       int                 `json:"rung,omitempty"`
	Generation uint64              `json:"generation"`
	Passes     []ladder.PassResult `json:"passes"`
	Errors     []string            `json:"errors"`
}

// NewJob creates a queued job. The claim fixes the job's place in the
// surface's commit order, so it must be taken when the job is submitted.
// page is 1-based and only used for PDFs.
func NewJob(sessionID, filename string, data []byte, page int, claim *surface.Claim) *Job {
	now := time.Now()
	j := &Job{
		ID:          ulid.Make().String(),
		SessionID:   sessionID,
		Status:      StatusQueued,
		Phase:       "queued",
		Filename:    filename,
		Kind:        route.KindUnknown,
		Page:        page,
		ContentHash: ContentHashHex(data),
		CreatedAt:   now,
		UpdatedAt:   now,
		fileData:    data,
		claim:       claim,
		done:        make(chan struct{}),
	}
	if claim != nil {
		j.Result.Generation = claim.Generation()
	}
	return j
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes finished jobs that have not changed within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		snap := job.Snapshot()
		if snap.Status.Terminal() && now.Sub(snap.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically. Reaching a terminal status
// releases waiters and drops the file bytes.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return
	}
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
	if status.Terminal() {
		j.fileData = nil
		close(j.done)
	}
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Result.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetKind records how the file was routed.
func (j *Job) SetKind(k route.Kind) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Kind = k
	j.UpdatedAt = time.Now()
}

// SetOutcome records the ladder's per-rung results and the commit.
func (j *Job) SetOutcome(out ladder.Outcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Result.Viewport = out.Viewport
	j.Result.Scale = out.Scale
	j.Result.Rung = out.Rung
	j.Result.Passes = make([]ladder.PassResult, len(out.Passes))
	for i, p := range out.Passes {
		p.Tree = nil
		j.Result.Passes[i] = p
	}
	j.UpdatedAt = time.Now()
}

// SetCommit records a direct commit that bypassed the ladder.
func (j *Job) SetCommit(vp svgtree.Viewport, scale float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Result.Viewport = vp
	j.Result.Scale = scale
	j.UpdatedAt = time.Now()
}

// FileData returns the raw file bytes, or nil once the job has finished.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// Claim returns the surface claim taken at submission.
func (j *Job) Claim() *surface.Claim {
	return j.claim
}

// Done is closed when the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job is terminal or ctx ends, and returns the latest
// snapshot either way.
func (j *Job) Wait(ctx context.Context) (JobSnapshot, error) {
	select {
	case <-j.done:
		return j.Snapshot(), nil
	case <-ctx.Done():
		return j.Snapshot(), ctx.Err()
	}
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string     `json:"job_id"`
	SessionID   string     `json:"session_id"`
	Status      JobStatus  `json:"status"`
	Phase       string     `json:"phase"`
	Filename    string     `json:"filename"`
	Kind        route.Kind `json:"kind"`
	Page        int        `json:"page,omitempty"`
	Result      Result     `json:"result"`
	ContentHash string     `json:"content_hash,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Result.Errors...)
	passes := append([]ladder.PassResult{}, j.Result.Passes...)
	return JobSnapshot{
		ID:        j.ID,
		SessionID: j.SessionID,
		Status:    j.Status,
		Phase:     j.Phase,
		Filename:  j.Filename,
		Kind:      j.Kind,
		Page:      j.Page,
		Result: Result{
			Viewport:   j.Result.Viewport,
			Scale:      j.Result.Scale,
			Rung:       j.Result.Rung,
			Generation: j.Result.Generation,
			Passes:     passes,
			Errors:     errs,
		},
		ContentHash: j.ContentHash,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
