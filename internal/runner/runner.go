// Package runner executes one detection job: it opens a camera, runs the
// model on every frame, classifies the result and persists debounced
// incidents until the job is stopped or fails.
//
// A job moves through Starting, Running, then Stopping or Failed, and ends
// Terminated. A failed job returns jobqueue.RetryAfter so the queue runs it
// again after the configured backoff.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/yardwatch/yardwatch/internal/classifier"
	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/datastore"
	"github.com/yardwatch/yardwatch/internal/framesource"
	"github.com/yardwatch/yardwatch/internal/incident"
	"github.com/yardwatch/yardwatch/internal/inference"
	"github.com/yardwatch/yardwatch/internal/jobqueue"
	"github.com/yardwatch/yardwatch/internal/logger"
	"github.com/yardwatch/yardwatch/internal/observability/metrics"
	"github.com/yardwatch/yardwatch/internal/stopsignal"
)

// Args identify a job. They are the job queue payload.
type Args struct {
	CameraID    uint
	ModelPath   string
	RecordingID uint
	Kind        classifier.Kind
}

// Catalog is the part of the relational store a job reads and updates.
type Catalog interface {
	GetCameraByID(ctx context.Context, id uint) (*datastore.Camera, error)
	GetRecording(ctx context.Context, id uint) (*datastore.Recording, error)
	GetZoneConfidence(ctx context.Context, cameraID uint) (datastore.ZoneConfidence, error)
	GetZoneRequiredScenarios(ctx context.Context, recordingID uint) ([]string, error)
	UpdateRecordingStopped(ctx context.Context, recordingID uint, at time.Time) error
}

// FrameSource opens cameras.
type FrameSource interface {
	Acquire(ctx context.Context, t framesource.Target) (framesource.Source, error)
}

// Gate is the debounce check.
type Gate interface {
	ShouldSkip(ctx context.Context, recordingID uint, eventKey string, now time.Time) (bool, error)
	Mark(recordingID uint, eventKey string, now time.Time)
}

// Persister stores incidents.
type Persister interface {
	Persist(ctx context.Context, ev incident.Event) (uint, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() if interrupted.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config holds the tunables of a job.
type Config struct {
	TargetInterval     time.Duration // minimum time per iteration
	RetryBackoff       time.Duration // delay before a failed job runs again
	FallbackConfidence float64
	Params             classifier.Params
	FallbackVideo      map[string]string // keyed by kind
	DeviceIndex        int               // local capture device tried last; -1 disables
	Annotate           bool
	JPEGQuality        int
}

// ConfigFromSettings maps detection settings onto a Config.
func ConfigFromSettings(s *conf.DetectionSettings) Config {
	return Config{
		TargetInterval:     s.TargetInterval,
		RetryBackoff:       s.RetryBackoff,
		FallbackConfidence: s.FallbackConfidence,
		Params: classifier.Params{
			Subject:            s.ProximityClasses.Subject,
			Hazard:             s.ProximityClasses.Hazard,
			DefectClasses:      s.DefectClasses,
			ProximityThreshold: s.ProximityThreshold,
		},
		FallbackVideo: s.FallbackVideo,
		Annotate:      s.Annotate,
		JPEGQuality:   s.JPEGQuality,
	}
}

// Deps are the collaborators of a Runner. Clock, Sleeper, Metrics, Stops
// and Log are optional.
type Deps struct {
	Catalog   Catalog
	Frames    FrameSource
	Models    inference.Loader
	Gate      Gate
	Persister Persister
	Stops     stopsignal.Store
	Metrics   *metrics.DetectorMetrics
	Clock     Clock
	Sleeper   Sleeper
	Log       logger.Logger

	// OnState is called on every state change.
	OnState func(recordingID uint, s State)
}

// Runner is the job queue action for detection jobs. One Runner serves
// every job of a worker.
type Runner struct {
	cfg  Config
	deps Deps
}

// New creates a Runner.
func New(cfg Config, deps Deps) *Runner {
	if cfg.TargetInterval < 0 {
		cfg.TargetInterval = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 10 * time.Second
	}
	if cfg.FallbackConfidence <= 0 {
		cfg.FallbackConfidence = classifier.DefaultConfidence
	}
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.Sleeper == nil {
		deps.Sleeper = timerSleeper{}
	}
	if deps.Log == nil {
		deps.Log = logger.Global().Module("runner")
	}
	return &Runner{cfg: cfg, deps: deps}
}

// Execute runs a job until it is stopped or fails. It implements
// jobqueue.Action; data must be an Args.
func (r *Runner) Execute(ctx context.Context, data any) error {
	args, ok := data.(Args)
	if !ok {
		return jobqueue.Permanent(fmt.Errorf("runner: unexpected job data %T", data))
	}
	defer r.deps.Metrics.JobStarted()()

	j := &job{
		Runner: r,
		args:   args,
		kind:   args.Kind.String(),
		log: r.deps.Log.WithContext(ctx).With(
			logger.Uint64("recording_id", uint64(args.RecordingID)),
			logger.Uint64("camera_id", uint64(args.CameraID)),
			logger.String("kind", args.Kind.String())),
	}
	if _, attempt, ok := jobqueue.HandleFromContext(ctx); ok {
		j.log = j.log.With(logger.Int("attempt", attempt))
	}
	return j.run(ctx)
}
