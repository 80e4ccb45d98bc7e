// Package dispatch turns start and stop requests into recordings and
// detection jobs. It never runs detection itself.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/yardwatch/yardwatch/internal/classifier"
	"github.com/yardwatch/yardwatch/internal/datastore"
	"github.com/yardwatch/yardwatch/internal/errors"
	"github.com/yardwatch/yardwatch/internal/jobqueue"
	"github.com/yardwatch/yardwatch/internal/logger"
	"github.com/yardwatch/yardwatch/internal/runner"
	"github.com/yardwatch/yardwatch/internal/stopsignal"
)

var (
	ErrCameraBusy        = errors.NewStd("camera already has an active recording")
	ErrInvalidConfidence = errors.NewStd("confidence must be between 0 and 100")
)

// Catalog is the part of the relational store the dispatcher needs.
type Catalog interface {
	GetCameraByID(ctx context.Context, id uint) (*datastore.Camera, error)
	GetRecording(ctx context.Context, id uint) (*datastore.Recording, error)
	IsCameraAvailable(ctx context.Context, cameraID uint) (bool, error)
	CreateRecording(ctx context.Context, rec *datastore.Recording, scenarioIDs []uint) error
	GetDetectionType(ctx context.Context, id uint) (*datastore.DetectionType, error)
	UpdateRecordingTaskHandle(ctx context.Context, recordingID uint, handle string) error
	UpdateRecordingStopped(ctx context.Context, recordingID uint, at time.Time) error
}

// Queue accepts jobs. *jobqueue.JobQueue satisfies it.
type Queue interface {
	Enqueue(action jobqueue.Action, data any, config jobqueue.RetryConfig) (jobqueue.JobInfo, error)
	Cancel(id string) error
}

// StartRequest describes a new recording.
type StartRequest struct {
	CameraID        uint     `json:"camera_id"`
	DetectionTypeID uint     `json:"detection_type_id"`
	Confidence      *float64 `json:"confidence,omitempty"` // percentage, nil inherits zone and plant
	Scenarios       []uint   `json:"scenarios,omitempty"`
	Name            string   `json:"name,omitempty"`
}

// Started is the outcome of a successful Start.
type Started struct {
	RecordingID uint   `json:"recording_id"`
	Handle      string `json:"handle"`
	Kind        string `json:"kind"`
}

// Dispatcher submits detection jobs to the queue.
type Dispatcher struct {
	catalog Catalog
	queue   Queue
	action  jobqueue.Action
	stops   stopsignal.Store
	retry   jobqueue.RetryConfig
	log     logger.Logger
	now     func() time.Time
}

// New creates a Dispatcher. maxRetries 0 retries without limit; backoff is
// the delay used when a job fails without asking for a specific one.
func New(catalog Catalog, queue Queue, action jobqueue.Action, stops stopsignal.Store, maxRetries int, backoff time.Duration, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Global().Module("dispatch")
	}
	if backoff <= 0 {
		backoff = 10 * time.Second
	}
	return &Dispatcher{
		catalog: catalog,
		queue:   queue,
		action:  action,
		stops:   stops,
		retry: jobqueue.RetryConfig{
			Enabled:      true,
			MaxRetries:   maxRetries,
			InitialDelay: backoff,
			MaxDelay:     backoff,
			Multiplier:   1,
		},
		log: log,
		now: time.Now,
	}
}

// Start creates a recording for a camera and submits its job.
func (d *Dispatcher) Start(ctx context.Context, req StartRequest) (Started, error) {
	if c := req.Confidence; c != nil && (*c < 0 || *c > 100) {
		return Started{}, errors.New(ErrInvalidConfidence).
			Component("dispatch").
			Category(errors.CategoryValidation).
			Context("confidence", *c).
			Build()
	}

	camera, err := d.catalog.GetCameraByID(ctx, req.CameraID)
	if err != nil {
		return Started{}, err
	}
	available, err := d.catalog.IsCameraAvailable(ctx, camera.ID)
	if err != nil {
		return Started{}, err
	}
	if !available {
		return Started{}, errors.New(ErrCameraBusy).
			Component("dispatch").
			Category(errors.CategoryConflict).
			Context("camera_id", camera.ID).
			Build()
	}

	dt, err := d.catalog.GetDetectionType(ctx, req.DetectionTypeID)
	if err != nil {
		return Started{}, err
	}
	kind, err := classifier.ParseKind(dt.Kind)
	if err != nil {
		return Started{}, errors.New(err).
			Component("dispatch").
			Category(errors.CategoryConfiguration).
			Context("detection_type_id", dt.ID).
			Build()
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = camera.Name + " " + dt.Name
	}
	rec := &datastore.Recording{
		Name:            name,
		StartTime:       d.now().UTC(),
		Confidence:      req.Confidence,
		CameraID:        camera.ID,
		DetectionTypeID: dt.ID,
	}
	if err := d.catalog.CreateRecording(ctx, rec, req.Scenarios); err != nil {
		return Started{}, err
	}

	handle, err := d.Submit(camera.ID, dt.ModelPath, rec.ID, kind)
	if err != nil {
		// the camera stays blocked by an active recording without a job
		if uerr := d.catalog.UpdateRecordingStopped(context.WithoutCancel(ctx), rec.ID, d.now()); uerr != nil {
			d.log.Error("closing unsubmitted recording failed", logger.Uint64("recording_id", uint64(rec.ID)), logger.Error(uerr))
		}
		return Started{}, err
	}
	if err := d.catalog.UpdateRecordingTaskHandle(ctx, rec.ID, handle); err != nil {
		d.log.Warn("storing job handle failed", logger.Uint64("recording_id", uint64(rec.ID)), logger.Error(err))
	}

	d.log.Info("detection submitted",
		logger.Uint64("recording_id", uint64(rec.ID)),
		logger.Uint64("camera_id", uint64(camera.ID)),
		logger.String("kind", kind.String()),
		logger.String("handle", handle))
	return Started{RecordingID: rec.ID, Handle: handle, Kind: kind.String()}, nil
}

// Submit enqueues a detection job and returns its handle.
func (d *Dispatcher) Submit(cameraID uint, modelPath string, recordingID uint, kind classifier.Kind) (string, error) {
	info, err := d.queue.Enqueue(d.action, runner.Args{
		CameraID:    cameraID,
		ModelPath:   modelPath,
		RecordingID: recordingID,
		Kind:        kind,
	}, d.retry)
	if err != nil {
		return "", errors.New(err).
			Component("dispatch").
			Category(errors.CategoryJobQueue).
			Context("recording_id", recordingID).
			Build()
	}
	return info.ID, nil
}

// Cancel cancels a job by handle. Unknown handles are not an error.
func (d *Dispatcher) Cancel(handle string) error {
	if handle == "" {
		return nil
	}
	if err := d.queue.Cancel(handle); err != nil && !errors.Is(err, jobqueue.ErrJobNotFound) {
		return err
	}
	return nil
}

// SignalStop sets the out-of-band stop flag for a recording.
func (d *Dispatcher) SignalStop(ctx context.Context, recordingID uint) error {
	return d.stops.Signal(ctx, recordingID)
}

// Stop signals, cancels and marks a recording stopped. Stopping an already
// stopped recording is a no-op.
func (d *Dispatcher) Stop(ctx context.Context, recordingID uint) error {
	rec, err := d.catalog.GetRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	if !rec.Status {
		return nil
	}

	var errs []error
	if err := d.SignalStop(ctx, recordingID); err != nil {
		errs = append(errs, err)
	}
	if rec.TaskHandle != nil {
		if err := d.Cancel(*rec.TaskHandle); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.catalog.UpdateRecordingStopped(ctx, recordingID, d.now()); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	d.log.Info("detection stop requested", logger.Uint64("recording_id", uint64(recordingID)))
	return nil
}
