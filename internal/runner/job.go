package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yardwatch/yardwatch/internal/annotate"
	"github.com/yardwatch/yardwatch/internal/classifier"
	"github.com/yardwatch/yardwatch/internal/errors"
	"github.com/yardwatch/yardwatch/internal/framesource"
	"github.com/yardwatch/yardwatch/internal/incident"
	"github.com/yardwatch/yardwatch/internal/inference"
	"github.com/yardwatch/yardwatch/internal/jobqueue"
	"github.com/yardwatch/yardwatch/internal/logger"
)

// cleanupTimeout bounds bookkeeping done after the job context is gone.
const cleanupTimeout = 10 * time.Second

// State is a job lifecycle state.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateFailed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// errStopRequested ends the loop when the stop flag is seen.
var errStopRequested = errors.NewStd("stop requested")

// job is the per-execution state.
type job struct {
	*Runner
	args  Args
	kind  string
	log   logger.Logger
	state State

	source     framesource.Source
	released   sync.Once
	detector   inference.Detector
	classifier classifier.Classifier
	rules      classifier.Rules
}

func (j *job) transition(s State) {
	if j.state == s {
		return
	}
	j.log.Debug("job state changed", logger.String("from", j.state.String()), logger.String("to", s.String()))
	j.state = s
	if j.deps.OnState != nil {
		j.deps.OnState(j.args.RecordingID, s)
	}
}

// release frees the frame source once, whichever path ends the job.
func (j *job) release() {
	j.released.Do(func() {
		if j.source == nil {
			return
		}
		if err := j.source.Release(); err != nil {
			j.log.Warn("frame source release failed", logger.Error(err))
		}
	})
}

func (j *job) run(ctx context.Context) error {
	j.state = StateStarting
	if j.deps.OnState != nil {
		j.deps.OnState(j.args.RecordingID, StateStarting)
	}
	defer j.transition(StateTerminated)
	defer j.release()

	active, err := j.start(ctx)
	if j.detector != nil {
		defer func() { _ = j.detector.Close() }()
	}
	switch {
	case err != nil && isStop(ctx, err):
		return j.stop(ctx)
	case err != nil:
		return j.fail(ctx, err)
	case !active:
		j.log.Info("recording is no longer active, nothing to do")
		return nil
	}

	j.transition(StateRunning)
	j.log.Info("detection started",
		logger.String("origin", j.source.Origin()),
		logger.Float64("threshold", j.rules.Threshold),
		logger.Int("required_items", len(j.rules.Required)))

	err = j.loop(ctx)
	if isStop(ctx, err) {
		return j.stop(ctx)
	}
	return j.fail(ctx, err)
}

// start resolves everything the loop needs. active is false when the
// recording was already stopped.
func (j *job) start(ctx context.Context) (active bool, err error) {
	if j.stopRequested(ctx) {
		return false, errStopRequested
	}

	camera, err := j.deps.Catalog.GetCameraByID(ctx, j.args.CameraID)
	if err != nil {
		return false, err
	}
	rec, err := j.deps.Catalog.GetRecording(ctx, j.args.RecordingID)
	if err != nil {
		return false, err
	}
	if !rec.Status {
		return false, nil
	}
	zc, err := j.deps.Catalog.GetZoneConfidence(ctx, camera.ID)
	if err != nil {
		return false, err
	}
	j.rules.Threshold = classifier.ResolveThreshold(rec.ConfidenceFraction(), zc.Zone, zc.Plant, j.cfg.FallbackConfidence)

	if j.args.Kind == classifier.KindPPE {
		if j.rules.Required, err = j.deps.Catalog.GetZoneRequiredScenarios(ctx, j.args.RecordingID); err != nil {
			return false, err
		}
	}
	if j.classifier, err = classifier.ForKind(j.args.Kind, j.cfg.Params); err != nil {
		return false, jobqueue.Permanent(err)
	}

	j.source, err = j.deps.Frames.Acquire(ctx, framesource.Target{
		Primary:     camera.Address,
		Fallback:    j.cfg.FallbackVideo[j.kind],
		DeviceIndex: j.cfg.DeviceIndex,
	})
	if err != nil {
		return false, err
	}
	if j.detector, err = j.deps.Models.Load(ctx, j.args.ModelPath); err != nil {
		return false, err
	}
	if fl, ok := j.detector.(inference.FloorLowerer); ok {
		fl.LowerFloor(j.rules.Threshold)
	}
	return true, nil
}

// loop runs iterations until an error or a stop. It never returns nil.
func (j *job) loop(ctx context.Context) error {
	for {
		started := j.deps.Clock.Now()

		if j.stopRequested(ctx) {
			return errStopRequested
		}
		if err := j.iterate(ctx); err != nil {
			return err
		}

		if wait := j.cfg.TargetInterval - j.deps.Clock.Now().Sub(started); wait > 0 {
			if err := j.deps.Sleeper.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
}

// iterate processes one frame. Persistence problems are logged and do not
// end the job.
func (j *job) iterate(ctx context.Context) error {
	frame, err := j.source.Next(ctx)
	if err != nil {
		return err
	}

	inferStart := time.Now()
	dets, err := j.detector.Detect(ctx, frame.Image)
	if err != nil {
		return err
	}
	j.deps.Metrics.ObserveInference(j.kind, time.Since(inferStart))
	j.deps.Metrics.FrameProcessed(j.kind)

	result := j.classifier.Classify(dets, j.rules)
	if !result.IsEvent() {
		return nil
	}
	j.record(ctx, frame, dets, result)
	return nil
}

func (j *job) record(ctx context.Context, frame *framesource.Frame, dets []inference.Detection, result classifier.Result) {
	now := j.deps.Clock.Now().UTC()
	key := result.EventKey()
	log := j.log.With(logger.String("event_key", key))

	// a lookup error leaves skip false and is logged by the gate
	if skip, _ := j.deps.Gate.ShouldSkip(ctx, j.args.RecordingID, key, now); skip {
		j.deps.Metrics.DebounceSkipped(j.kind)
		return
	}
	j.deps.Gate.Mark(j.args.RecordingID, key, now)

	img := frame.Image
	if j.cfg.Annotate {
		img = annotate.Draw(frame.Image, classifier.Qualifying(dets, j.rules.Threshold))
	}
	encoded, err := annotate.Encode(img, j.cfg.JPEGQuality)
	if err != nil {
		log.Error("frame encoding failed, incident dropped", logger.Error(err))
		j.deps.Metrics.PersistFailed(j.kind)
		return
	}

	_, err = j.deps.Persister.Persist(ctx, incident.Event{
		RecordingID: j.args.RecordingID,
		Kind:        j.kind,
		ClassName:   key,
		Confidence:  result.Score(),
		BBox:        result.Box(),
		Frame:       encoded,
		Timestamp:   now,
	})
	if err != nil {
		log.Error("incident persist failed, continuing", logger.Error(err))
		j.deps.Metrics.PersistFailed(j.kind)
		return
	}
	j.deps.Metrics.IncidentStored(j.kind, key)
}

func (j *job) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if j.deps.Stops == nil {
		return false
	}
	set, err := j.deps.Stops.IsSet(ctx, j.args.RecordingID)
	if err != nil {
		j.log.Warn("stop flag check failed", logger.Error(err))
		return false
	}
	return set
}

func isStop(ctx context.Context, err error) bool {
	return errors.Is(err, errStopRequested) || ctx.Err() != nil
}

// stop releases the source and marks the recording stopped. It returns
// ctx.Err() when the job context was cancelled so the queue records the
// job as cancelled.
func (j *job) stop(ctx context.Context) error {
	j.transition(StateStopping)
	j.release()

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if j.deps.Stops != nil {
		if err := j.deps.Stops.Clear(cctx, j.args.RecordingID); err != nil {
			j.log.Warn("stop flag clear failed", logger.Error(err))
		}
	}
	j.markStopped(cctx)
	j.log.Info("detection stopped")
	return ctx.Err()
}

// markStopped closes the recording so its camera can take a new job.
func (j *job) markStopped(ctx context.Context) {
	if err := j.deps.Catalog.UpdateRecordingStopped(ctx, j.args.RecordingID, j.deps.Clock.Now().UTC()); err != nil {
		j.log.Error("marking recording stopped failed", logger.Error(err))
	}
}

// fail releases the source and asks the queue to retry after the backoff.
// Missing catalog rows are not retried. When no retry follows, the
// recording is marked stopped.
func (j *job) fail(ctx context.Context, err error) error {
	j.transition(StateFailed)
	j.release()

	switch {
	case jobqueue.IsPermanent(err):
	case errors.IsNotFound(err):
		err = jobqueue.Permanent(err)
	default:
		reason := string(errors.CategoryOf(err))
		err = jobqueue.RetryAfter(j.cfg.RetryBackoff, fmt.Errorf("%s job for recording %d: %w", j.kind, j.args.RecordingID, err))
		if !jobqueue.IsFinalAttempt(ctx) {
			j.deps.Metrics.JobRetried(j.kind, reason)
			j.log.Warn("detection job failed, retrying",
				logger.Duration("backoff", j.cfg.RetryBackoff),
				logger.String("reason", reason),
				logger.Error(err))
			return err
		}
		j.log.Error("detection job failed on its last attempt", logger.String("reason", reason), logger.Error(err))
		j.closeRecording(ctx)
		return err
	}

	j.log.Error("detection job failed permanently", logger.Error(err))
	j.closeRecording(ctx)
	return err
}

func (j *job) closeRecording(ctx context.Context) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	j.markStopped(cctx)
}
