package jobqueue

import (
	"context"
	"time"
)

// Job represents a unit of work in the job queue. Fields are guarded by
// the owning queue's mutex; callers read jobs through JobInfo snapshots.
type Job struct {
	ID          string
	Action      Action
	Data        any
	Attempts    int
	MaxAttempts int // 0 means unlimited
	CreatedAt   time.Time
	NextRetryAt time.Time
	FinishedAt  time.Time
	Status      JobStatus
	LastError   error
	Config      RetryConfig

	cancel          context.CancelFunc // set while running
	cancelRequested bool
}

// JobInfo is a point-in-time copy of a job's state.
type JobInfo struct {
	ID          string    `json:"id"`
	Status      JobStatus `json:"-"`
	StatusText  string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	CreatedAt   time.Time `json:"created_at"`
	NextRetryAt time.Time `json:"next_retry_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
}

func (j *Job) info() JobInfo {
	info := JobInfo{
		ID:          j.ID,
		Status:      j.Status,
		StatusText:  j.Status.String(),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		CreatedAt:   j.CreatedAt,
		FinishedAt:  j.FinishedAt,
	}
	if j.Status == JobStatusRetrying || j.Status == JobStatusPending {
		info.NextRetryAt = j.NextRetryAt
	}
	if j.LastError != nil {
		info.LastError = j.LastError.Error()
	}
	return info
}

// JobStatsSnapshot provides a point-in-time snapshot of job statistics
type JobStatsSnapshot struct {
	TotalJobs      int `json:"total"`
	SuccessfulJobs int `json:"successful"`
	FailedJobs     int `json:"failed"`
	CancelledJobs  int `json:"cancelled"`
	RejectedJobs   int `json:"rejected"` // queue full
	RetryAttempts  int `json:"retry_attempts"`

	PendingJobs  int `json:"pending"`
	RunningJobs  int `json:"running"`
	RetryingJobs int `json:"retrying"`
	MaxQueueSize int `json:"max_size"`
}

type jobKey struct{}

type jobContext struct {
	id      string
	attempt int
	final   bool
}

// HandleFromContext returns the job ID and attempt number (1-based) of the
// job executing with ctx.
func HandleFromContext(ctx context.Context) (id string, attempt int, ok bool) {
	jc, ok := ctx.Value(jobKey{}).(jobContext)
	return jc.id, jc.attempt, ok
}

// IsFinalAttempt reports whether a failure of the job executing with ctx
// will not be retried. It is false outside the queue.
func IsFinalAttempt(ctx context.Context) bool {
	jc, ok := ctx.Value(jobKey{}).(jobContext)
	return ok && jc.final
}
