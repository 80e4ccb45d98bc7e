package incident

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/yardwatch/yardwatch/internal/datastore"
	"github.com/yardwatch/yardwatch/internal/errors"
	"github.com/yardwatch/yardwatch/internal/inference"
	"github.com/yardwatch/yardwatch/internal/logger"
	"github.com/yardwatch/yardwatch/internal/notify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setupStore(t *testing.T) *datastore.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := datastore.NewStore(db, nil)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type captureNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
	return nil
}

func TestFormatBBox(t *testing.T) {
	t.Parallel()

	assert.Empty(t, FormatBBox(nil))
	assert.Equal(t, "[10.00, 20.50, 30.13, 40.00]", FormatBBox(&inference.BBox{X1: 10, Y1: 20.5, X2: 30.126, Y2: 40}))
}

func TestPersistStoresAndNotifies(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	notifier := &captureNotifier{}
	p := NewPersister(store.Incidents(), notifier, logger.NewNopLogger())

	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	ts := time.Date(2026, 3, 1, 13, 0, 0, 0, paris)
	frame := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}

	id, err := p.Persist(t.Context(), Event{
		RecordingID: 3,
		Kind:        "pallet",
		ClassName:   "pallet_bad",
		Confidence:  0.91,
		BBox:        &inference.BBox{X1: 1, Y1: 2, X2: 3, Y2: 4},
		Frame:       frame,
		Timestamp:   ts,
	})
	require.NoError(t, err)
	assert.NotZero(t, id)
	p.Wait()

	var stored datastore.Incident
	require.NoError(t, store.DB.First(&stored, id).Error)
	assert.Equal(t, "pallet_bad", stored.ClassName)
	assert.InDelta(t, 0.91, stored.Confidence, 1e-9)
	assert.Equal(t, "[1.00, 2.00, 3.00, 4.00]", stored.BBox)
	assert.Equal(t, frame, stored.Frame)
	assert.True(t, ts.Equal(stored.Timestamp))
	assert.Equal(t, 12, stored.Timestamp.UTC().Hour())

	require.Len(t, notifier.got, 1)
	assert.Equal(t, id, notifier.got[0].IncidentID)
	assert.Equal(t, "pallet", notifier.got[0].Kind)
}

func TestPersistWithoutBBox(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	p := NewPersister(store.Incidents(), nil, logger.NewNopLogger())

	id, err := p.Persist(t.Context(), Event{RecordingID: 1, ClassName: "person_forklift_proximity", Timestamp: time.Now()})
	require.NoError(t, err)

	var stored datastore.Incident
	require.NoError(t, store.DB.First(&stored, id).Error)
	assert.Empty(t, stored.BBox)
	assert.Zero(t, stored.Confidence)
}

type failingRepo struct{}

func (failingRepo) Create(context.Context, *datastore.Incident) error {
	return fmt.Errorf("database is locked")
}

func TestPersistFailure(t *testing.T) {
	t.Parallel()

	notifier := &captureNotifier{}
	p := NewPersister(failingRepo{}, notifier, logger.NewNopLogger())

	_, err := p.Persist(t.Context(), Event{RecordingID: 1, ClassName: "gloves", Timestamp: time.Now()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersist)
	assert.True(t, errors.IsCategory(err, errors.CategoryPersist))
	p.Wait()
	assert.Empty(t, notifier.got)
}
