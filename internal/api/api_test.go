package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/datastore"
	"github.com/yardwatch/yardwatch/internal/dispatch"
	"github.com/yardwatch/yardwatch/internal/errors"
	"github.com/yardwatch/yardwatch/internal/jobqueue"
	"github.com/yardwatch/yardwatch/internal/logger"
)

type fakeDispatcher struct {
	started  []dispatch.StartRequest
	stopped  []uint
	startErr error
	stopErr  error
}

func (d *fakeDispatcher) Start(_ context.Context, req dispatch.StartRequest) (dispatch.Started, error) {
	if d.startErr != nil {
		return dispatch.Started{}, d.startErr
	}
	d.started = append(d.started, req)
	return dispatch.Started{RecordingID: 11, Handle: "job-1", Kind: "ppe"}, nil
}

func (d *fakeDispatcher) Stop(_ context.Context, id uint) error {
	if d.stopErr != nil {
		return d.stopErr
	}
	d.stopped = append(d.stopped, id)
	return nil
}

type fakeJobs struct{ jobs map[string]jobqueue.JobInfo }

func (j *fakeJobs) Get(id string) (jobqueue.JobInfo, error) {
	info, ok := j.jobs[id]
	if !ok {
		return jobqueue.JobInfo{}, jobqueue.ErrJobNotFound
	}
	return info, nil
}

func (j *fakeJobs) Stats() jobqueue.JobStatsSnapshot {
	return jobqueue.JobStatsSnapshot{RunningJobs: len(j.jobs), MaxQueueSize: 10}
}

type fakeStore struct {
	types     []datastore.DetectionType
	incidents []datastore.Incident
	limit     int
	listErr   error
}

func (f *fakeStore) ListDetectionTypes(context.Context) ([]datastore.DetectionType, error) {
	return f.types, nil
}

func (f *fakeStore) ListByRecording(_ context.Context, id uint, limit int) ([]datastore.Incident, error) {
	f.limit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []datastore.Incident
	for _, in := range f.incidents {
		if in.RecordingID == id {
			out = append(out, in)
		}
	}
	return out, nil
}

type testServer struct {
	*Server
	dispatcher *fakeDispatcher
	store      *fakeStore
}

func newTestServer(t *testing.T, opts ...ServerOption) *testServer {
	t.Helper()
	ts := &testServer{
		dispatcher: &fakeDispatcher{},
		store: &fakeStore{
			types: []datastore.DetectionType{{ID: 1, Name: "PPE compliance", Kind: "ppe", ModelPath: "models/best_ppe.tflite"}},
			incidents: []datastore.Incident{{
				ID: 3, RecordingID: 11, ClassName: "vest", Confidence: 0, FrameSize: 2,
				Timestamp: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
			}},
		},
	}
	jobs := &fakeJobs{jobs: map[string]jobqueue.JobInfo{
		"job-1": {ID: "job-1", Status: jobqueue.JobStatusRunning, StatusText: "running", Attempts: 1},
	}}
	base := []ServerOption{
		WithLogger(logger.NewNopLogger()),
		WithDispatcher(ts.dispatcher),
		WithJobs(jobs),
		WithCatalog(ts.store),
		WithIncidents(ts.store),
		WithMetrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("yardwatch_frames_processed_total 1\n"))
		})),
	}
	ts.Server = New(&conf.APISettings{Enabled: true, Listen: "127.0.0.1:0"}, append(base, opts...)...)
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.Echo().ServeHTTP(rec, req)
	return rec
}

func TestStartDetection(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/detection/start", `{"camera_id":2,"detection_type_id":1,"confidence":80,"scenarios":[1,2]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var got dispatch.Started
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "job-1", got.Handle)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	require.Len(t, ts.dispatcher.started, 1)
	req := ts.dispatcher.started[0]
	assert.Equal(t, uint(2), req.CameraID)
	require.NotNil(t, req.Confidence)
	assert.InDelta(t, 80.0, *req.Confidence, 1e-9)
	assert.Equal(t, []uint{1, 2}, req.Scenarios)
}

func TestStartDetectionErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"missing fields", `{"camera_id":2}`, nil, http.StatusBadRequest},
		{"malformed", `{"camera_id":`, nil, http.StatusBadRequest},
		{"busy camera", `{"camera_id":2,"detection_type_id":1}`,
			errors.New(dispatch.ErrCameraBusy).Category(errors.CategoryConflict).Build(), http.StatusConflict},
		{"unknown camera", `{"camera_id":2,"detection_type_id":1}`,
			errors.New(datastore.ErrCameraNotFound).Category(errors.CategoryNotFound).Build(), http.StatusNotFound},
		{"queue full", `{"camera_id":2,"detection_type_id":1}`,
			errors.New(jobqueue.ErrQueueFull).Category(errors.CategoryJobQueue).Build(), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if tt.err != nil {
				ts.dispatcher.startErr = tt.err
			}
			rec := ts.do(http.MethodPost, "/api/v1/detection/start", tt.body)
			assert.Equal(t, tt.want, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Code)
			assert.NotEmpty(t, body.TraceID)
		})
	}
}

func TestStopDetection(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/detection/stop/11", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uint{11}, ts.dispatcher.stopped)

	rec = ts.do(http.MethodPost, "/api/v1/detection/stop/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.dispatcher.stopErr = errors.New(datastore.ErrRecordingNotFound).Category(errors.CategoryNotFound).Build()
	rec = ts.do(http.MethodPost, "/api/v1/detection/stop/12", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDetectionTypesHidesModelPath(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/v1/detection/types", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"ppe"`)
	assert.NotContains(t, rec.Body.String(), "tflite")
}

func TestGetJob(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/jobs/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"running"`)

	rec = ts.do(http.MethodGet, "/api/v1/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListIncidents(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/recordings/11/incidents?limit=5000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxIncidentLimit, ts.store.limit)

	var got []IncidentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "vest", got[0].ClassName)
	assert.Equal(t, 2, got[0].FrameBytes)

	rec = ts.do(http.MethodGet, "/api/v1/recordings/11/incidents?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"max_size":10`)

	rec = ts.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "frames_processed_total")
}

func TestHealthDegraded(t *testing.T) {
	ts := newTestServer(t, WithHealthCheck(func(context.Context) error {
		return errors.NewStd("database unreachable")
	}))
	rec := ts.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
	assert.NotContains(t, rec.Body.String(), "unreachable")
}

func TestServerErrorsHideDetails(t *testing.T) {
	ts := newTestServer(t)
	ts.store.listErr = errors.New(errors.NewStd("dial tcp 10.1.2.3:3306: connect: connection refused")).
		Category(errors.CategoryDatabase).
		Build()

	rec := ts.do(http.MethodGet, "/api/v1/recordings/11/incidents", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "failed to list incidents", body.Error)
	assert.NotContains(t, rec.Body.String(), "10.1.2.3")

	ts.dispatcher.startErr = errors.New(dispatch.ErrCameraBusy).Category(errors.CategoryConflict).Build()
	rec = ts.do(http.MethodPost, "/api/v1/detection/start", `{"camera_id":2,"detection_type_id":1}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, dispatch.ErrCameraBusy.Error(), "client errors keep their cause")
}

func TestUnknownRouteUsesErrorShape(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":404`)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- ts.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
