package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/yardwatch/yardwatch/internal/errors"
)

// IncidentRepository persists and queries incidents.
type IncidentRepository interface {
	// Create inserts the incident in a transaction.
	Create(ctx context.Context, incident *Incident) error
	// LatestTimestamp returns the newest incident time for the recording and
	// class name. found is false when none exists.
	LatestTimestamp(ctx context.Context, recordingID uint, className string) (ts time.Time, found bool, err error)
	// ListByRecording returns incident metadata, newest first, without frames.
	ListByRecording(ctx context.Context, recordingID uint, limit int) ([]Incident, error)
}

type incidentRepository struct {
	db *gorm.DB
}

// NewIncidentRepository creates an IncidentRepository backed by db.
func NewIncidentRepository(db *gorm.DB) IncidentRepository {
	return &incidentRepository{db: db}
}

func (r *incidentRepository) Create(ctx context.Context, incident *Incident) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(incident).Error
	})
}

func (r *incidentRepository) LatestTimestamp(ctx context.Context, recordingID uint, className string) (time.Time, bool, error) {
	var incident Incident
	err := r.db.WithContext(ctx).
		Select("id", "timestamp").
		Where("recording_id = ? AND class_name = ?", recordingID, className).
		Order("timestamp DESC").
		Take(&incident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, dbError(err, "latest_incident")
	}
	return incident.Timestamp, true, nil
}

func (r *incidentRepository) ListByRecording(ctx context.Context, recordingID uint, limit int) ([]Incident, error) {
	var incidents []Incident
	query := r.db.WithContext(ctx).
		Omit("frame").
		Where("recording_id = ?", recordingID).
		Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&incidents).Error; err != nil {
		return nil, dbError(err, "list_incidents")
	}
	if len(incidents) == 0 {
		return incidents, nil
	}

	ids := make([]uint, len(incidents))
	for i := range incidents {
		ids[i] = incidents[i].ID
	}
	var sizes []struct {
		ID   uint
		Size int
	}
	if err := r.db.WithContext(ctx).Model(&Incident{}).
		Select("id, COALESCE(LENGTH(frame), 0) AS size").
		Where("id IN ?", ids).
		Scan(&sizes).Error; err != nil {
		return nil, dbError(err, "list_incidents")
	}
	bySize := make(map[uint]int, len(sizes))
	for _, s := range sizes {
		bySize[s.ID] = s.Size
	}
	for i := range incidents {
		incidents[i].FrameSize = bySize[incidents[i].ID]
	}
	return incidents, nil
}
