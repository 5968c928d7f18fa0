package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dgallion1/inkport/internal/config"
	"github.com/dgallion1/inkport/internal/ladder"
)

// ErrQueueFull is returned by Submit when no worker can take the job.
var ErrQueueFull = errors.New("job queue is full")

// Orchestrator manages the import worker pool.
type Orchestrator struct {
	jobs   *JobStore
	queue  chan *Job
	ladder *ladder.Controller
	log    zerolog.Logger
	cfg    config.Config

	mu     sync.RWMutex // Guards closed against Submit racing Stop
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch the workers.
func NewOrchestrator(cfg config.Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:   NewJobStore(cfg.JobTTL),
		queue:  make(chan *Job, cfg.MaxQueueSize),
		ladder: ladder.NewController(log.With().Str("component", "ladder").Logger()),
		log:    log,
		cfg:    cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.ladder, o.log, o.cfg.ImportTimeout)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop shuts down the pipeline. Jobs still queued are marked failed.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	for job := range o.queue {
		job.AddError("server shutting down")
		job.SetStatus(StatusFailed, "queued")
	}
}

// Submit queues a new job for processing. A job without a page imports the
// configured default page.
func (o *Orchestrator) Submit(job *Job) error {
	if job.Page <= 0 {
		job.Page = o.cfg.PDFPage
	}
	o.jobs.Put(job)

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		job.AddError("server shutting down")
		job.SetStatus(StatusFailed, "queued")
		return errors.New("pipeline stopped")
	}
	select {
	case o.queue <- job:
		return nil
	default:
		job.AddError(ErrQueueFull.Error())
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
