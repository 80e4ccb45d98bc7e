package jobqueue

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yardwatch/yardwatch/internal/errors"
	"github.com/yardwatch/yardwatch/internal/logger"
)

const (
	DefaultMaxJobs            = 100
	DefaultMaxArchivedJobs    = 100
	DefaultProcessingInterval = time.Second
	defaultStopTimeout        = 10 * time.Second
)

// JobQueue manages a queue of jobs that can be retried
type JobQueue struct {
	jobs               []*Job // pending, running and retrying
	archivedJobs       []*Job // terminal jobs, oldest first
	mu                 sync.Mutex
	stats              JobStatsSnapshot
	stopCh             chan struct{}
	wakeCh             chan struct{}
	runningJobs        sync.WaitGroup
	isRunning          bool
	maxArchivedJobs    int
	maxJobs            int
	processCtx         context.Context
	processCancel      context.CancelFunc
	processingInterval time.Duration
	now                func() time.Time
	log                logger.Logger
}

// NewJobQueue creates a new job queue with default settings
func NewJobQueue() *JobQueue {
	return NewJobQueueWithOptions(DefaultMaxJobs, DefaultMaxArchivedJobs, nil)
}

// NewJobQueueWithOptions creates a new job queue with custom settings.
// maxJobs bounds the number of non-terminal jobs.
func NewJobQueueWithOptions(maxJobs, maxArchivedJobs int, log logger.Logger) *JobQueue {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	if log == nil {
		log = logger.Global().Module("jobqueue")
	}
	return &JobQueue{
		stopCh:             make(chan struct{}),
		wakeCh:             make(chan struct{}, 1),
		maxArchivedJobs:    maxArchivedJobs,
		maxJobs:            maxJobs,
		processingInterval: DefaultProcessingInterval,
		now:                time.Now,
		log:                log,
	}
}

// SetProcessingInterval sets how often due retries are checked
func (q *JobQueue) SetProcessingInterval(interval time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processingInterval = interval
}

// SetClock replaces the time source used for scheduling. Tests only.
func (q *JobQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Start starts the job queue processing
func (q *JobQueue) Start() {
	q.StartWithContext(context.Background())
}

// StartWithContext starts the job queue processing. Cancelling ctx cancels
// every running job.
func (q *JobQueue) StartWithContext(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return
	}
	q.isRunning = true
	q.stopCh = make(chan struct{})
	q.processCtx, q.processCancel = context.WithCancel(ctx)

	go q.processJobs(q.processCtx, q.stopCh)
}

// Stop stops the job queue processing
func (q *JobQueue) Stop() error {
	return q.StopWithTimeout(defaultStopTimeout)
}

// StopWithTimeout cancels running jobs and waits for them to return.
func (q *JobQueue) StopWithTimeout(timeout time.Duration) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	q.processCancel()
	close(q.stopCh)
	q.mu.Unlock()

	c := make(chan struct{})
	go func() {
		q.runningJobs.Wait()
		close(c)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c:
		return nil
	case <-timer.C:
		return errors.New(fmt.Errorf("timed out waiting for jobs to complete after %v", timeout)).
			Component("jobqueue").
			Category(errors.CategoryJobQueue).
			Build()
	}
}

// Enqueue adds a job and wakes the processor. The job runs as soon as the
// processor picks it up.
func (q *JobQueue) Enqueue(action Action, data any, config RetryConfig) (JobInfo, error) {
	if action == nil {
		return JobInfo{}, ErrNilAction
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return JobInfo{}, ErrQueueStopped
	}
	if len(q.jobs) >= q.maxJobs {
		q.stats.RejectedJobs++
		return JobInfo{}, fmt.Errorf("%w: maximum queue size (%d) reached", ErrQueueFull, q.maxJobs)
	}

	now := q.now()
	maxAttempts := 1
	if config.Enabled {
		maxAttempts = config.MaxRetries + 1
		if config.MaxRetries <= 0 {
			maxAttempts = 0
		}
	}
	job := &Job{
		ID:          uuid.NewString(),
		Action:      action,
		Data:        data,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		NextRetryAt: now,
		Status:      JobStatusPending,
		Config:      config,
	}
	q.jobs = append(q.jobs, job)
	q.stats.TotalJobs++

	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
	return job.info(), nil
}

// Cancel stops a job. A running job has its context cancelled; a waiting
// job is marked cancelled without running again. Cancelling a finished job
// is a no-op.
func (q *JobQueue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := q.findLocked(id)
	if job == nil {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil
	}

	job.cancelRequested = true
	switch job.Status {
	case JobStatusPending, JobStatusRetrying:
		q.finishLocked(job, JobStatusCancelled, job.LastError)
	case JobStatusRunning:
		if job.cancel != nil {
			job.cancel()
		}
	}
	q.log.Info("job cancellation requested", logger.String("job_id", id), logger.String("status", job.Status.String()))
	return nil
}

// Get returns a snapshot of a job, active or archived.
func (q *JobQueue) Get(id string) (JobInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := q.findLocked(id)
	if job == nil {
		return JobInfo{}, ErrJobNotFound
	}
	return job.info(), nil
}

func (q *JobQueue) findLocked(id string) *Job {
	for _, job := range q.jobs {
		if job.ID == id {
			return job
		}
	}
	for _, job := range q.archivedJobs {
		if job.ID == id {
			return job
		}
	}
	return nil
}

// Stats returns a snapshot of the current job statistics
func (q *JobQueue) Stats() JobStatsSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.MaxQueueSize = q.maxJobs
	for _, job := range q.jobs {
		switch job.Status {
		case JobStatusPending:
			s.PendingJobs++
		case JobStatusRunning:
			s.RunningJobs++
		case JobStatusRetrying:
			s.RetryingJobs++
		}
	}
	return s
}

// GetMaxJobs returns the maximum number of jobs allowed in the queue
func (q *JobQueue) GetMaxJobs() int {
	return q.maxJobs
}

// processJobs is the main job processing loop
func (q *JobQueue) processJobs(ctx context.Context, stopCh <-chan struct{}) {
	q.mu.Lock()
	interval := q.processingInterval
	q.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			q.log.Debug("job queue processing stopped")
			return
		case <-ctx.Done():
			q.log.Debug("job queue processing stopped via context", logger.Error(ctx.Err()))
			return
		case <-q.wakeCh:
		case <-ticker.C:
		}
		q.cleanupStaleJobs()
		q.processDueJobs(ctx)
	}
}

// cleanupStaleJobs moves terminal jobs to the archive
func (q *JobQueue) cleanupStaleJobs() {
	q.mu.Lock()
	defer q.mu.Unlock()

	active := q.jobs[:0]
	for _, job := range q.jobs {
		if job.Status.Terminal() {
			q.archivedJobs = append(q.archivedJobs, job)
		} else {
			active = append(active, job)
		}
	}
	clear(q.jobs[len(active):])
	q.jobs = active

	if excess := len(q.archivedJobs) - q.maxArchivedJobs; excess > 0 {
		q.archivedJobs = q.archivedJobs[excess:]
	}
}

// processDueJobs starts jobs whose scheduled time has passed
func (q *JobQueue) processDueJobs(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, job := range q.jobs {
		if (job.Status != JobStatusPending && job.Status != JobStatusRetrying) || job.NextRetryAt.After(now) {
			continue
		}
		job.Status = JobStatusRunning
		job.Attempts++
		if job.Attempts > 1 {
			q.stats.RetryAttempts++
		}

		execCtx, cancel := context.WithCancel(ctx)
		execCtx = context.WithValue(execCtx, jobKey{}, jobContext{
			id:      job.ID,
			attempt: job.Attempts,
			final:   !job.Config.Enabled || (job.MaxAttempts > 0 && job.Attempts >= job.MaxAttempts),
		})
		execCtx = logger.WithTraceID(execCtx, job.ID)
		job.cancel = cancel

		q.runningJobs.Add(1)
		go func(j *Job) {
			defer q.runningJobs.Done()
			defer cancel()
			q.executeJob(execCtx, j)
		}(job)
	}
}

// ProcessImmediately runs due jobs without waiting for the ticker. Tests only.
func (q *JobQueue) ProcessImmediately(ctx context.Context) {
	q.cleanupStaleJobs()
	q.processDueJobs(ctx)
}

// executeJob runs one attempt and schedules what happens next
func (q *JobQueue) executeJob(ctx context.Context, job *Job) {
	log := q.log.With(logger.String("job_id", job.ID), logger.Int("attempt", job.Attempts))
	if job.Attempts > 1 {
		log.Info("retrying job", logger.Int("max_attempts", job.MaxAttempts))
	}

	err := q.safeExecute(ctx, job)

	q.mu.Lock()
	defer q.mu.Unlock()
	job.cancel = nil

	switch {
	case err == nil:
		q.finishLocked(job, JobStatusCompleted, nil)
		log.Info("job completed")

	case job.cancelRequested || (ctx.Err() != nil && errors.Is(err, context.Canceled)):
		q.finishLocked(job, JobStatusCancelled, err)
		log.Info("job cancelled")

	case IsPermanent(err) || !job.Config.Enabled:
		q.finishLocked(job, JobStatusFailed, err)
		log.Error("job failed permanently", logger.Error(err))

	case job.MaxAttempts > 0 && job.Attempts >= job.MaxAttempts:
		q.finishLocked(job, JobStatusFailed, err)
		log.Error("job failed after max attempts", logger.Int("max_attempts", job.MaxAttempts), logger.Error(err))

	default:
		delay := calculateBackoffDelay(job.Config, job.Attempts)
		var retry *RetryError
		if errors.As(err, &retry) {
			delay = retry.Delay
		}
		job.Status = JobStatusRetrying
		job.LastError = err
		job.NextRetryAt = q.now().Add(delay)
		log.Warn("job failed, will retry", logger.Duration("delay", delay), logger.Error(err))
		q.scheduleWake(delay)
	}
}

// safeExecute converts a panicking action into an error
func (q *JobQueue) safeExecute(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("job panicked",
				logger.String("job_id", job.ID),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
			err = fmt.Errorf("job execution panicked: %v", r)
		}
	}()
	return job.Action.Execute(ctx, job.Data)
}

// scheduleWake nudges the processor when a retry becomes due so delays
// shorter than the ticker interval are honoured. Must hold q.mu.
func (q *JobQueue) scheduleWake(delay time.Duration) {
	if !q.isRunning || delay >= q.processingInterval {
		return
	}
	time.AfterFunc(delay, func() {
		select {
		case q.wakeCh <- struct{}{}:
		default:
		}
	})
}

func (q *JobQueue) finishLocked(job *Job, status JobStatus, err error) {
	job.Status = status
	job.LastError = err
	job.FinishedAt = q.now()
	switch status {
	case JobStatusCompleted:
		q.stats.SuccessfulJobs++
	case JobStatusFailed:
		q.stats.FailedJobs++
	case JobStatusCancelled:
		q.stats.CancelledJobs++
	}
}

// calculateBackoffDelay calculates the delay before the next retry attempt
func calculateBackoffDelay(config RetryConfig, attemptNum int) time.Duration {
	multiplier := config.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	backoff := float64(config.InitialDelay) * math.Pow(multiplier, float64(attemptNum-1))

	// ±10% jitter
	backoff *= 0.9 + 0.2*rand.Float64()

	if config.MaxDelay > 0 && backoff > float64(config.MaxDelay) {
		backoff = float64(config.MaxDelay)
	}
	return time.Duration(backoff)
}

// GetDefaultRetryConfig returns a default retry configuration
func GetDefaultRetryConfig(enabled bool) RetryConfig {
	if !enabled {
		return RetryConfig{Enabled: false}
	}
	return RetryConfig{
		Enabled:      true,
		MaxRetries:   5,
		InitialDelay: 10 * time.Second,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2.0,
	}
}
