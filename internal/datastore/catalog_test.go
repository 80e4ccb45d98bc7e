package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yardwatch/yardwatch/internal/errors"
)

func TestGetCameraByIDNotFound(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)

	_, err := store.Catalog().GetCameraByID(context.Background(), 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCameraNotFound)
	assert.True(t, errors.IsNotFound(err))
}

func TestGetZoneConfidenceConvertsPercent(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	f := seedFixture(t, store, ptr(50.0), ptr(60.0), nil)

	zc, err := store.Catalog().GetZoneConfidence(context.Background(), f.camera.ID)
	require.NoError(t, err)
	require.NotNil(t, zc.Zone)
	require.NotNil(t, zc.Plant)
	assert.InDelta(t, 0.6, *zc.Zone, 1e-9)
	assert.InDelta(t, 0.5, *zc.Plant, 1e-9)

	rec, err := store.Catalog().GetRecording(context.Background(), f.recording.ID)
	require.NoError(t, err)
	assert.Nil(t, rec.ConfidenceFraction())
}

func TestGetZoneConfidenceKeepsExplicitZero(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	f := seedFixture(t, store, ptr(75.0), ptr(0.0), nil)

	zc, err := store.Catalog().GetZoneConfidence(context.Background(), f.camera.ID)
	require.NoError(t, err)
	require.NotNil(t, zc.Zone)
	assert.Zero(t, *zc.Zone)
}

func TestGetZoneRequiredScenarios(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := seedFixture(t, store, nil, nil, nil)

	hardhat := Scenario{Name: "HardHat"}
	vest := Scenario{Name: "vest"}
	gloves := Scenario{Name: "gloves"}
	require.NoError(t, store.DB.Create(&hardhat).Error)
	require.NoError(t, store.DB.Create(&vest).Error)
	require.NoError(t, store.DB.Create(&gloves).Error)
	require.NoError(t, store.DB.Create(&ZoneScenario{ZoneID: f.zone.ID, ScenarioID: hardhat.ID}).Error)
	require.NoError(t, store.DB.Create(&ZoneScenario{ZoneID: f.zone.ID, ScenarioID: vest.ID}).Error)

	// zone checklist, lower-cased
	names, err := store.Catalog().GetZoneRequiredScenarios(ctx, f.recording.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"hardhat", "vest"}, names)

	// recording scenarios take precedence
	require.NoError(t, store.DB.Create(&RecordingScenario{RecordingID: f.recording.ID, ScenarioID: gloves.ID}).Error)
	names, err = store.Catalog().GetZoneRequiredScenarios(ctx, f.recording.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"gloves"}, names)
}

func TestRecordingLifecycle(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	catalog := store.Catalog()
	f := seedFixture(t, store, nil, nil, nil)

	available, err := catalog.IsCameraAvailable(ctx, f.camera.ID)
	require.NoError(t, err)
	assert.False(t, available, "fixture recording is active")

	require.NoError(t, catalog.UpdateRecordingTaskHandle(ctx, f.recording.ID, "job-1"))
	rec, err := catalog.GetRecording(ctx, f.recording.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.TaskHandle)
	assert.Equal(t, "job-1", *rec.TaskHandle)

	stoppedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, catalog.UpdateRecordingStopped(ctx, f.recording.ID, stoppedAt))

	rec, err = catalog.GetRecording(ctx, f.recording.ID)
	require.NoError(t, err)
	assert.False(t, rec.Status)
	assert.Nil(t, rec.TaskHandle)
	require.NotNil(t, rec.EndTime)
	assert.True(t, stoppedAt.Equal(*rec.EndTime))

	available, err = catalog.IsCameraAvailable(ctx, f.camera.ID)
	require.NoError(t, err)
	assert.True(t, available)

	err = catalog.UpdateRecordingStopped(ctx, 999, stoppedAt)
	assert.ErrorIs(t, err, ErrRecordingNotFound)
}

func TestCreateRecordingWithScenarios(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := seedFixture(t, store, nil, nil, nil)
	require.NoError(t, store.Seed(ctx))

	var vest Scenario
	require.NoError(t, store.DB.Where("name = ?", "vest").First(&vest).Error)

	rec := &Recording{CameraID: f.camera.ID, DetectionTypeID: f.dtype.ID, Confidence: ptr(80.0)}
	require.NoError(t, store.Catalog().CreateRecording(ctx, rec, []uint{vest.ID}))
	assert.NotZero(t, rec.ID)
	assert.True(t, rec.Status)
	assert.False(t, rec.StartTime.IsZero())

	names, err := store.Catalog().GetZoneRequiredScenarios(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"vest"}, names)
	assert.InDelta(t, 0.8, *rec.ConfidenceFraction(), 1e-9)
}

func TestSeedIsIdempotent(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Seed(ctx))
	require.NoError(t, store.Seed(ctx))

	types, err := store.Catalog().ListDetectionTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, len(DefaultDetectionTypes))
	assert.Equal(t, "ppe", types[0].Kind)

	dt, err := store.Catalog().GetDetectionType(ctx, types[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "proximity", dt.Kind)

	_, err = store.Catalog().GetDetectionType(ctx, 999)
	assert.ErrorIs(t, err, ErrDetectionTypeNotFound)
}
