package datastore

import "time"

// Plant is a manufacturing site. Confidence is a percentage (0-100).
type Plant struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"type:varchar(100);uniqueIndex"`
	Description string `gorm:"type:varchar(100)"`
	Address     string `gorm:"type:varchar(100)"`
	Confidence  *float64

	Zones []Zone `gorm:"foreignKey:PlantID"`
}

func (Plant) TableName() string { return "plants" }

// Zone groups cameras within a plant and carries the PPE checklist.
type Zone struct {
	ID          uint   `gorm:"primaryKey"`
	Title       string `gorm:"type:varchar(100);index"`
	Description string `gorm:"type:varchar(100)"`
	Confidence  *float64
	PlantID     *uint `gorm:"index"`

	Plant   *Plant   `gorm:"foreignKey:PlantID"`
	Cameras []Camera `gorm:"foreignKey:ZoneID"`
}

func (Zone) TableName() string { return "zones" }

// Scenario is a named required item such as "hardhat".
type Scenario struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"type:varchar(100);uniqueIndex"`
	Description string `gorm:"type:varchar(100)"`
}

func (Scenario) TableName() string { return "scenarios" }

// ZoneScenario links a zone to a required scenario.
type ZoneScenario struct {
	ID         uint `gorm:"primaryKey"`
	ZoneID     uint `gorm:"not null;uniqueIndex:idx_zone_scenario"`
	ScenarioID uint `gorm:"not null;uniqueIndex:idx_zone_scenario"`

	Scenario *Scenario `gorm:"foreignKey:ScenarioID"`
}

func (ZoneScenario) TableName() string { return "zone_scenarios" }

// RecordingScenario overrides the zone checklist for one recording.
type RecordingScenario struct {
	ID          uint `gorm:"primaryKey"`
	RecordingID uint `gorm:"not null;uniqueIndex:idx_recording_scenario"`
	ScenarioID  uint `gorm:"not null;uniqueIndex:idx_recording_scenario"`

	Scenario *Scenario `gorm:"foreignKey:ScenarioID"`
}

func (RecordingScenario) TableName() string { return "recording_scenarios" }

// Camera is a video source. Address is an RTSP/HTTP URL or IP.
type Camera struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"type:varchar(100);index"`
	Description string `gorm:"type:varchar(100)"`
	Address     string `gorm:"type:varchar(255)"`
	ZoneID      *uint  `gorm:"index"`

	Zone *Zone `gorm:"foreignKey:ZoneID"`
}

func (Camera) TableName() string { return "cameras" }

// DetectionType names a model and the classifier kind that interprets it.
type DetectionType struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"type:varchar(100);uniqueIndex"`
	Kind        string `gorm:"type:varchar(32);not null"` // ppe, pallet or proximity
	ModelPath   string `gorm:"type:varchar(500);not null"`
	Description string `gorm:"type:varchar(255)"`
}

func (DetectionType) TableName() string { return "detection_types" }

// Recording is one detection job instance. It is soft-stopped by setting
// Status false and EndTime, never deleted.
type Recording struct {
	ID              uint   `gorm:"primaryKey"`
	Name            string `gorm:"type:varchar(100)"`
	StartTime       time.Time
	EndTime         *time.Time
	Status          bool     `gorm:"not null;default:true;index:idx_recording_camera_active"`
	TaskHandle      *string  `gorm:"type:varchar(256)"`
	Confidence      *float64 // percentage, nil falls back to zone and plant
	CameraID        uint     `gorm:"not null;index:idx_recording_camera_active"`
	DetectionTypeID uint     `gorm:"not null"`

	Camera        *Camera        `gorm:"foreignKey:CameraID"`
	DetectionType *DetectionType `gorm:"foreignKey:DetectionTypeID"`
}

func (Recording) TableName() string { return "recordings" }

// ConfidenceFraction returns the recording override as a 0-1 fraction.
func (r *Recording) ConfidenceFraction() *float64 {
	return percentToFraction(r.Confidence)
}

// Incident is one persisted detection event. Immutable once written.
type Incident struct {
	ID          uint      `gorm:"primaryKey"`
	RecordingID uint      `gorm:"not null;index:idx_incident_lookup,priority:1"`
	ClassName   string    `gorm:"type:varchar(256);index:idx_incident_lookup,priority:2"`
	Confidence  float64   `gorm:"not null"`
	BBox        string    `gorm:"type:varchar(256)"`
	Frame       []byte    `json:"-"`
	Timestamp   time.Time `gorm:"not null;index:idx_incident_lookup,priority:3"`

	// FrameSize is the stored frame length in bytes, filled by listings
	// that leave the frame out.
	FrameSize int `gorm:"-"`
}

func (Incident) TableName() string { return "incidents" }

// Models lists every entity managed by AutoMigrate, parents before children.
func Models() []any {
	return []any{
		&Plant{},
		&Zone{},
		&Scenario{},
		&ZoneScenario{},
		&Camera{},
		&DetectionType{},
		&Recording{},
		&RecordingScenario{},
		&Incident{},
	}
}

func percentToFraction(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v / 100
	return &f
}
