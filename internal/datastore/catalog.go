package datastore

import (
	"context"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yardwatch/yardwatch/internal/errors"
)

// ZoneConfidence holds the zone and plant thresholds for a camera as
// fractions. Nil means not configured.
type ZoneConfidence struct {
	Zone  *float64
	Plant *float64
}

// Catalog is the narrow read and lifecycle contract the detection engine
// consumes from the relational store.
type Catalog interface {
	GetCameraByID(ctx context.Context, id uint) (*Camera, error)
	GetRecording(ctx context.Context, id uint) (*Recording, error)
	GetZoneConfidence(ctx context.Context, cameraID uint) (ZoneConfidence, error)
	// GetZoneRequiredScenarios returns lower-cased required item names,
	// taken from the recording's own scenarios or else the camera's zone.
	GetZoneRequiredScenarios(ctx context.Context, recordingID uint) ([]string, error)
	UpdateRecordingTaskHandle(ctx context.Context, recordingID uint, handle string) error
	UpdateRecordingStopped(ctx context.Context, recordingID uint, at time.Time) error
	// IsCameraAvailable reports true when no active recording uses the camera.
	IsCameraAvailable(ctx context.Context, cameraID uint) (bool, error)
	CreateRecording(ctx context.Context, rec *Recording, scenarioIDs []uint) error
	GetDetectionType(ctx context.Context, id uint) (*DetectionType, error)
	ListDetectionTypes(ctx context.Context) ([]DetectionType, error)
}

type catalogRepository struct {
	db *gorm.DB
}

// NewCatalog creates a Catalog backed by db.
func NewCatalog(db *gorm.DB) Catalog {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) GetCameraByID(ctx context.Context, id uint) (*Camera, error) {
	var camera Camera
	err := r.db.WithContext(ctx).First(&camera, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(ErrCameraNotFound, "camera_id", id)
	}
	if err != nil {
		return nil, dbError(err, "get_camera")
	}
	return &camera, nil
}

func (r *catalogRepository) GetRecording(ctx context.Context, id uint) (*Recording, error) {
	var rec Recording
	err := r.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(ErrRecordingNotFound, "recording_id", id)
	}
	if err != nil {
		return nil, dbError(err, "get_recording")
	}
	return &rec, nil
}

func (r *catalogRepository) GetZoneConfidence(ctx context.Context, cameraID uint) (ZoneConfidence, error) {
	camera, err := r.GetCameraByID(ctx, cameraID)
	if err != nil {
		return ZoneConfidence{}, err
	}
	if camera.ZoneID == nil {
		return ZoneConfidence{}, nil
	}

	var zone Zone
	err = r.db.WithContext(ctx).Preload("Plant").First(&zone, *camera.ZoneID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ZoneConfidence{}, notFound(ErrZoneNotFound, "zone_id", *camera.ZoneID)
	}
	if err != nil {
		return ZoneConfidence{}, dbError(err, "get_zone_confidence")
	}

	zc := ZoneConfidence{Zone: percentToFraction(zone.Confidence)}
	if zone.Plant != nil {
		zc.Plant = percentToFraction(zone.Plant.Confidence)
	}
	return zc, nil
}

func (r *catalogRepository) GetZoneRequiredScenarios(ctx context.Context, recordingID uint) ([]string, error) {
	rec, err := r.GetRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}

	var names []string
	err = r.db.WithContext(ctx).Model(&RecordingScenario{}).
		Joins("JOIN scenarios ON scenarios.id = recording_scenarios.scenario_id").
		Where("recording_scenarios.recording_id = ?", recordingID).
		Pluck("scenarios.name", &names).Error
	if err != nil {
		return nil, dbError(err, "get_recording_scenarios")
	}

	if len(names) == 0 {
		camera, err := r.GetCameraByID(ctx, rec.CameraID)
		if err != nil {
			return nil, err
		}
		if camera.ZoneID != nil {
			err = r.db.WithContext(ctx).Model(&ZoneScenario{}).
				Joins("JOIN scenarios ON scenarios.id = zone_scenarios.scenario_id").
				Where("zone_scenarios.zone_id = ?", *camera.ZoneID).
				Pluck("scenarios.name", &names).Error
			if err != nil {
				return nil, dbError(err, "get_zone_scenarios")
			}
		}
	}

	for i := range names {
		names[i] = strings.ToLower(strings.TrimSpace(names[i]))
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

func (r *catalogRepository) UpdateRecordingTaskHandle(ctx context.Context, recordingID uint, handle string) error {
	var value any
	if handle != "" {
		value = handle
	}
	res := r.db.WithContext(ctx).Model(&Recording{}).
		Where("id = ?", recordingID).
		Update("task_handle", value)
	if res.Error != nil {
		return dbError(res.Error, "update_task_handle")
	}
	if res.RowsAffected == 0 {
		return notFound(ErrRecordingNotFound, "recording_id", recordingID)
	}
	return nil
}

func (r *catalogRepository) UpdateRecordingStopped(ctx context.Context, recordingID uint, at time.Time) error {
	end := at.UTC()
	res := r.db.WithContext(ctx).Model(&Recording{}).
		Where("id = ?", recordingID).
		Updates(map[string]any{
			"status":      false,
			"end_time":    end,
			"task_handle": nil,
		})
	if res.Error != nil {
		return dbError(res.Error, "update_recording_stopped")
	}
	if res.RowsAffected == 0 {
		return notFound(ErrRecordingNotFound, "recording_id", recordingID)
	}
	return nil
}

func (r *catalogRepository) IsCameraAvailable(ctx context.Context, cameraID uint) (bool, error) {
	var active int64
	err := r.db.WithContext(ctx).Model(&Recording{}).
		Where("camera_id = ? AND status = ? AND end_time IS NULL", cameraID, true).
		Count(&active).Error
	if err != nil {
		return false, dbError(err, "is_camera_available")
	}
	return active == 0, nil
}

func (r *catalogRepository) CreateRecording(ctx context.Context, rec *Recording, scenarioIDs []uint) error {
	if rec.StartTime.IsZero() {
		rec.StartTime = time.Now().UTC()
	}
	rec.Status = true

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		for _, id := range scenarioIDs {
			link := RecordingScenario{RecordingID: rec.ID, ScenarioID: id}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return dbError(err, "create_recording")
	}
	return nil
}

func (r *catalogRepository) GetDetectionType(ctx context.Context, id uint) (*DetectionType, error) {
	var dt DetectionType
	err := r.db.WithContext(ctx).First(&dt, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(ErrDetectionTypeNotFound, "detection_type_id", id)
	}
	if err != nil {
		return nil, dbError(err, "get_detection_type")
	}
	return &dt, nil
}

func (r *catalogRepository) ListDetectionTypes(ctx context.Context) ([]DetectionType, error) {
	var types []DetectionType
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&types).Error; err != nil {
		return nil, dbError(err, "list_detection_types")
	}
	return types, nil
}
