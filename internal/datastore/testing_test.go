package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

func ptr[T any](v T) *T { return &v }

// setupTestStore opens a migrated in-memory SQLite store.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)

	store := NewStore(db, nil)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type fixture struct {
	plant     Plant
	zone      Zone
	camera    Camera
	dtype     DetectionType
	recording Recording
}

// seedFixture creates plant -> zone -> camera -> recording with the given
// confidences (percent, nil allowed).
func seedFixture(t *testing.T, s *Store, plantConf, zoneConf, recConf *float64) *fixture {
	t.Helper()

	f := &fixture{}
	f.plant = Plant{Name: "Annecy", Confidence: plantConf}
	require.NoError(t, s.DB.Create(&f.plant).Error)

	f.zone = Zone{Title: "Loading dock", Confidence: zoneConf, PlantID: &f.plant.ID}
	require.NoError(t, s.DB.Create(&f.zone).Error)

	f.camera = Camera{Name: "dock-1", Address: "rtsp://10.0.0.5/stream", ZoneID: &f.zone.ID}
	require.NoError(t, s.DB.Create(&f.camera).Error)

	f.dtype = DetectionType{Name: "ppe", Kind: "ppe", ModelPath: "models/best_ppe.tflite"}
	require.NoError(t, s.DB.Create(&f.dtype).Error)

	f.recording = Recording{
		StartTime:       time.Now().UTC(),
		Status:          true,
		Confidence:      recConf,
		CameraID:        f.camera.ID,
		DetectionTypeID: f.dtype.ID,
	}
	require.NoError(t, s.DB.Create(&f.recording).Error)
	return f
}
