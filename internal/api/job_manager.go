package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/heatmapimage/server/internal/jobstore"
	"github.com/heatmapimage/server/internal/service"
)

// ErrQueueFull is returned by Submit when no worker can take the job.
var ErrQueueFull = errors.New("job queue is full; try again later")

// JobManagerConfig contains configuration for the job manager.
type JobManagerConfig struct {
	Workers       int           // Concurrent renders (default 1)
	QueueSize     int           // Pending jobs held in memory (default 100)
	SQLitePath    string        // Path to SQLite database
	Retention     time.Duration // How long finished jobs are kept (default 24h)
	CleanupPeriod time.Duration
}

// Executor runs one job. The manager records the final status from its
// return value and the context.
type Executor func(ctx context.Context, store *jobstore.Store, job *jobstore.RenderJob) error

// JobManager runs render jobs on a worker pool with SQLite persistence.
type JobManager struct {
	cfg      JobManagerConfig
	store    *jobstore.Store
	queue    chan string // job IDs
	running  map[string]context.CancelFunc
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	// Executor is called to produce the job's image.
	Executor Executor
}

// NewJobManager creates a new job manager with SQLite persistence.
func NewJobManager(cfg JobManagerConfig) (*JobManager, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 1 * time.Hour
	}

	store, err := jobstore.NewStore(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	return &JobManager{
		cfg:     cfg,
		store:   store,
		queue:   make(chan string, cfg.QueueSize),
		running: make(map[string]context.CancelFunc),
		stopCh:  make(chan struct{}),
	}, nil
}

// Store returns the underlying store for direct access.
func (jm *JobManager) Store() *jobstore.Store {
	return jm.store
}

// Start starts the worker goroutines and cleanup ticker, after failing jobs
// interrupted by a previous shutdown and re-queueing waiting ones.
func (jm *JobManager) Start() {
	if err := jm.store.MarkRunningAsFailed("server restarted"); err != nil {
		log.Printf("[JobManager] failed to mark running jobs as failed: %v", err)
	}

	queued, err := jm.store.ListQueuedJobs()
	if err != nil {
		log.Printf("[JobManager] failed to list queued jobs: %v", err)
	} else {
		for _, job := range queued {
			select {
			case jm.queue <- job.ID:
				log.Printf("[JobManager] re-queued job %s", job.ID)
			default:
				log.Printf("[JobManager] queue full, cannot re-queue job %s", job.ID)
				jm.store.UpdateJobStatus(job.ID, jobstore.JobStatusFailed, ErrQueueFull.Error())
			}
		}
	}

	for i := 0; i < jm.cfg.Workers; i++ {
		jm.wg.Add(1)
		go jm.worker()
	}

	go jm.cleaner()
}

// Stop cancels running jobs and waits for the workers to exit.
func (jm *JobManager) Stop() {
	jm.stopOnce.Do(func() {
		close(jm.stopCh)
		jm.mu.Lock()
		for _, cancel := range jm.running {
			cancel()
		}
		jm.mu.Unlock()
		close(jm.queue)
		jm.wg.Wait()
		jm.store.Close()
	})
}

func (jm *JobManager) worker() {
	defer jm.wg.Done()
	for jobID := range jm.queue {
		select {
		case <-jm.stopCh:
			// Left queued; re-queued on the next Start.
			continue
		default:
		}
		jm.runJob(jobID)
	}
}

func (jm *JobManager) runJob(jobID string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jm.mu.Lock()
	jm.running[jobID] = cancel
	jm.mu.Unlock()

	defer func() {
		jm.mu.Lock()
		delete(jm.running, jobID)
		jm.mu.Unlock()
	}()

	started, err := jm.store.UpdateJobStarted(jobID)
	if err != nil {
		log.Printf("[JobManager] failed to update job %s as started: %v", jobID, err)
		return
	}
	if !started {
		// Cancelled or deleted while queued.
		return
	}
	job, err := jm.store.GetJob(jobID)
	if err != nil || job == nil {
		log.Printf("[JobManager] job %s vanished before running: %v", jobID, err)
		return
	}

	begin := time.Now()
	var execErr error
	if jm.Executor != nil {
		execErr = jm.Executor(ctx, jm.store, job)
	}

	switch {
	case ctx.Err() == context.Canceled && jm.stopping():
		// Interrupted by shutdown; the next Start runs it again.
		if _, err := jm.store.RequeueJob(jobID); err != nil {
			log.Printf("[JobManager] failed to re-queue job %s: %v", jobID, err)
		} else {
			log.Printf("[JobManager] job %s interrupted by shutdown, re-queued", jobID)
		}
	case ctx.Err() == context.Canceled:
		jm.store.UpdateJobStatus(jobID, jobstore.JobStatusCancelled, "cancelled by user")
	case execErr != nil:
		log.Printf("[JobManager] job %s failed: %v", jobID, execErr)
		jm.store.UpdateJobStatus(jobID, jobstore.JobStatusFailed, execErr.Error())
	default:
		log.Printf("[JobManager] job %s completed in %s", jobID, time.Since(begin).Round(time.Millisecond))
		jm.store.UpdateJobStatus(jobID, jobstore.JobStatusCompleted, "")
	}
}

func (jm *JobManager) stopping() bool {
	select {
	case <-jm.stopCh:
		return true
	default:
		return false
	}
}

func (jm *JobManager) cleaner() {
	ticker := time.NewTicker(jm.cfg.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.cleanup()
		}
	}
}

func (jm *JobManager) cleanup() {
	deleted, err := jm.store.DeleteExpiredJobs(jm.cfg.Retention)
	if err != nil {
		log.Printf("[JobManager] cleanup error: %v", err)
	} else if deleted > 0 {
		log.Printf("[JobManager] cleaned up %d expired jobs", deleted)
	}
}

// Submit records a render of datasetID and enqueues it. When the queue is
// full the job is stored as failed and ErrQueueFull is returned with it.
func (jm *JobManager) Submit(datasetID, format string, params service.RenderParams) (*jobstore.RenderJob, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	job := &jobstore.RenderJob{
		ID:        uuid.NewString(),
		DatasetID: datasetID,
		Status:    jobstore.JobStatusQueued,
		Format:    format,
		Params:    raw,
		CreatedAt: time.Now(),
	}

	if err := jm.store.CreateJob(job); err != nil {
		return nil, err
	}

	select {
	case jm.queue <- job.ID:
	default:
		jm.store.UpdateJobStatus(job.ID, jobstore.JobStatusFailed, ErrQueueFull.Error())
		job.Status = jobstore.JobStatusFailed
		job.Error = ErrQueueFull.Error()
		return job, ErrQueueFull
	}

	return job, nil
}

// Get returns a job by ID.
func (jm *JobManager) Get(id string) *jobstore.RenderJob {
	job, err := jm.store.GetJob(id)
	if err != nil {
		log.Printf("[JobManager] error getting job %s: %v", id, err)
		return nil
	}
	return job
}

// List returns the jobs of a dataset, newest first.
func (jm *JobManager) List(datasetID string) ([]*jobstore.RenderJob, error) {
	return jm.store.ListJobsByDataset(datasetID)
}

// Result returns the stored image of a job.
func (jm *JobManager) Result(id string) (*jobstore.Result, error) {
	return jm.store.GetResult(id)
}

// Cancel attempts to cancel a queued or running job.
func (jm *JobManager) Cancel(id string) bool {
	jm.mu.Lock()
	cancel, ok := jm.running[id]
	jm.mu.Unlock()

	if ok && cancel != nil {
		cancel()
		return true
	}

	job, err := jm.store.GetJob(id)
	if err != nil || job == nil {
		return false
	}
	if job.Status == jobstore.JobStatusQueued {
		jm.store.UpdateJobStatus(id, jobstore.JobStatusCancelled, "cancelled before start")
		return true
	}
	return false
}

// Delete deletes a job and its result.
func (jm *JobManager) Delete(id string) error {
	return jm.store.DeleteJob(id)
}

// RenderExecutor renders jobs through the services of registry and stores
// the encoded image.
func RenderExecutor(registry *DatasetRegistry) Executor {
	return func(ctx context.Context, store *jobstore.Store, job *jobstore.RenderJob) error {
		svc := registry.Get(job.DatasetID)
		if svc == nil {
			return fmt.Errorf("dataset not found: %s", job.DatasetID)
		}
		var params service.RenderParams
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return fmt.Errorf("invalid job params: %w", err)
		}

		store.UpdateJobProgress(job.ID, "layout", 0, 2)
		lm, err := svc.Layout(params)
		if err != nil {
			return err
		}

		store.UpdateJobProgress(job.ID, "render", 1, 2)
		data, format, err := svc.Render(ctx, params)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := store.SaveResult(job.ID, format.ContentType(), data, lm.ImageWidth(), lm.ImageHeight()); err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
		store.UpdateJobProgress(job.ID, "done", 2, 2)
		log.Printf("[JobManager] job %s: %dx%d %s, %s", job.ID, lm.ImageWidth(), lm.ImageHeight(),
			format, humanize.Bytes(uint64(len(data))))
		return nil
	}
}
