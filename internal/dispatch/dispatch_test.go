package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/yardwatch/yardwatch/internal/classifier"
	"github.com/yardwatch/yardwatch/internal/datastore"
	"github.com/yardwatch/yardwatch/internal/errors"
	"github.com/yardwatch/yardwatch/internal/jobqueue"
	"github.com/yardwatch/yardwatch/internal/logger"
	"github.com/yardwatch/yardwatch/internal/runner"
	"github.com/yardwatch/yardwatch/internal/stopsignal"
)

type fakeQueue struct {
	jobs      map[string]runner.Args
	cancelled []string
	err       error
	next      int
}

func (q *fakeQueue) Enqueue(_ jobqueue.Action, data any, cfg jobqueue.RetryConfig) (jobqueue.JobInfo, error) {
	if q.err != nil {
		return jobqueue.JobInfo{}, q.err
	}
	if q.jobs == nil {
		q.jobs = make(map[string]runner.Args)
	}
	q.next++
	id := string(rune('a' + q.next - 1))
	q.jobs[id] = data.(runner.Args)
	return jobqueue.JobInfo{ID: id}, nil
}

func (q *fakeQueue) Cancel(id string) error {
	if _, ok := q.jobs[id]; !ok {
		return jobqueue.ErrJobNotFound
	}
	q.cancelled = append(q.cancelled, id)
	return nil
}

type env struct {
	store  *datastore.Store
	queue  *fakeQueue
	stops  *stopsignal.MemoryStore
	d      *Dispatcher
	camera datastore.Camera
	ppe    datastore.DetectionType
}

func setup(t *testing.T) *env {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := datastore.NewStore(db, logger.NewNopLogger())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	e := &env{store: store, queue: &fakeQueue{}, stops: stopsignal.NewMemoryStore()}
	e.camera = datastore.Camera{Name: "dock-1", Address: "rtsp://10.0.0.5/stream"}
	require.NoError(t, db.Create(&e.camera).Error)
	e.ppe = datastore.DetectionType{Name: "PPE", Kind: "ppe", ModelPath: "models/best_ppe.tflite"}
	require.NoError(t, db.Create(&e.ppe).Error)

	action := jobqueue.ActionFunc(func(context.Context, any) error { return nil })
	e.d = New(store.Catalog(), e.queue, action, e.stops, 0, 0, logger.NewNopLogger())
	return e
}

func TestStartCreatesRecordingAndJob(t *testing.T) {
	e := setup(t)
	ctx := t.Context()
	conf := 80.0

	started, err := e.d.Start(ctx, StartRequest{CameraID: e.camera.ID, DetectionTypeID: e.ppe.ID, Confidence: &conf})
	require.NoError(t, err)
	assert.Equal(t, "ppe", started.Kind)
	require.NotEmpty(t, started.Handle)

	args := e.queue.jobs[started.Handle]
	assert.Equal(t, runner.Args{
		CameraID:    e.camera.ID,
		ModelPath:   "models/best_ppe.tflite",
		RecordingID: started.RecordingID,
		Kind:        classifier.KindPPE,
	}, args)

	rec, err := e.store.Catalog().GetRecording(ctx, started.RecordingID)
	require.NoError(t, err)
	assert.True(t, rec.Status)
	require.NotNil(t, rec.TaskHandle)
	assert.Equal(t, started.Handle, *rec.TaskHandle)
	assert.Equal(t, "dock-1 PPE", rec.Name)
	require.NotNil(t, rec.Confidence)
	assert.InDelta(t, 80.0, *rec.Confidence, 1e-9)
}

func TestStartRejectsBusyCamera(t *testing.T) {
	e := setup(t)
	ctx := t.Context()

	_, err := e.d.Start(ctx, StartRequest{CameraID: e.camera.ID, DetectionTypeID: e.ppe.ID})
	require.NoError(t, err)

	_, err = e.d.Start(ctx, StartRequest{CameraID: e.camera.ID, DetectionTypeID: e.ppe.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCameraBusy)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))
	assert.Len(t, e.queue.jobs, 1)
}

func TestStartUnknownCamera(t *testing.T) {
	e := setup(t)
	_, err := e.d.Start(t.Context(), StartRequest{CameraID: 404, DetectionTypeID: e.ppe.ID})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Empty(t, e.queue.jobs)
}

func TestStartInvalidConfidence(t *testing.T) {
	e := setup(t)
	bad := 140.0
	_, err := e.d.Start(t.Context(), StartRequest{CameraID: e.camera.ID, DetectionTypeID: e.ppe.ID, Confidence: &bad})
	assert.ErrorIs(t, err, ErrInvalidConfidence)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestStartQueueFullFreesCamera(t *testing.T) {
	e := setup(t)
	ctx := t.Context()
	e.queue.err = jobqueue.ErrQueueFull

	_, err := e.d.Start(ctx, StartRequest{CameraID: e.camera.ID, DetectionTypeID: e.ppe.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, jobqueue.ErrQueueFull)

	available, err := e.store.Catalog().IsCameraAvailable(ctx, e.camera.ID)
	require.NoError(t, err)
	assert.True(t, available)
}

func TestStopSignalsCancelsAndMarks(t *testing.T) {
	e := setup(t)
	ctx := t.Context()

	started, err := e.d.Start(ctx, StartRequest{CameraID: e.camera.ID, DetectionTypeID: e.ppe.ID})
	require.NoError(t, err)

	require.NoError(t, e.d.Stop(ctx, started.RecordingID))

	set, err := e.stops.IsSet(ctx, started.RecordingID)
	require.NoError(t, err)
	assert.True(t, set)
	assert.Equal(t, []string{started.Handle}, e.queue.cancelled)

	rec, err := e.store.Catalog().GetRecording(ctx, started.RecordingID)
	require.NoError(t, err)
	assert.False(t, rec.Status)
	assert.NotNil(t, rec.EndTime)
	assert.Nil(t, rec.TaskHandle)

	// second stop is a no-op
	require.NoError(t, e.d.Stop(ctx, started.RecordingID))
	assert.Len(t, e.queue.cancelled, 1)
}

func TestStopUnknownRecording(t *testing.T) {
	e := setup(t)
	err := e.d.Stop(t.Context(), 999)
	assert.True(t, errors.IsNotFound(err))
}

func TestCancelUnknownHandle(t *testing.T) {
	e := setup(t)
	assert.NoError(t, e.d.Cancel("missing"))
	assert.NoError(t, e.d.Cancel(""))
}
