package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/yardwatch/yardwatch/internal/datastore"
)

// Migrator copies rows between two yardwatch databases.
type Migrator struct {
	batchSize int
	sourceDB  *gorm.DB
	targetDB  *gorm.DB
	clean     bool
}

// MigrationStats summarizes a run.
type MigrationStats struct {
	StartTime time.Time
	EndTime   time.Time
	Tables    []TableStats
}

// TableStats counts one table.
type TableStats struct {
	Name     string
	Copied   int64
	Duration time.Duration
}

// Print writes a summary table.
func (s *MigrationStats) Print(w io.Writer) {
	fmt.Fprintf(w, "\n%-22s %10s %12s\n", "Table", "Copied", "Duration")
	var total int64
	for _, t := range s.Tables {
		fmt.Fprintf(w, "%-22s %10d %12s\n", t.Name, t.Copied, t.Duration.Round(time.Millisecond))
		total += t.Copied
	}
	fmt.Fprintf(w, "%-22s %10d %12s\n", "TOTAL", total, s.EndTime.Sub(s.StartTime).Round(time.Millisecond))
}

// NewMigrator opens the SQLite source and the MySQL target.
func NewMigrator(cfg *Config) (*Migrator, error) {
	return newMigrator(sqlite.Open(cfg.SQLitePath), mysql.Open(cfg.MySQLDSNString()), cfg)
}

func newMigrator(source, target gorm.Dialector, cfg *Config) (*Migrator, error) {
	level := gorm_logger.Silent
	if cfg.Verbose {
		level = gorm_logger.Info
	}
	gormConfig := &gorm.Config{Logger: gorm_logger.Default.LogMode(level)}

	m := &Migrator{batchSize: cfg.BatchSize, clean: cfg.Clean}
	var err error
	if m.sourceDB, err = gorm.Open(source, gormConfig); err != nil {
		return nil, fmt.Errorf("failed to open source database: %w", err)
	}
	if m.targetDB, err = gorm.Open(target, gormConfig); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to open target database: %w", err)
	}
	if m.batchSize <= 0 {
		m.batchSize = 500
	}
	return m, nil
}

// Close closes both connections.
func (m *Migrator) Close() {
	for _, db := range []*gorm.DB{m.sourceDB, m.targetDB} {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// Run migrates the target schema and copies every table.
func (m *Migrator) Run(ctx context.Context) (*MigrationStats, error) {
	stats := &MigrationStats{StartTime: time.Now()}

	target := datastore.NewStore(m.targetDB, nil)
	if err := target.Migrate(); err != nil {
		return nil, err
	}
	if m.clean {
		if err := m.cleanTables(ctx); err != nil {
			return nil, fmt.Errorf("failed to clean target: %w", err)
		}
	}

	for _, t := range tables() {
		start := time.Now()
		copied, err := t.copy(ctx, m.sourceDB, m.targetDB, m.batchSize)
		if err != nil {
			return stats, fmt.Errorf("failed to copy %s: %w", t.name, err)
		}
		stats.Tables = append(stats.Tables, TableStats{Name: t.name, Copied: copied, Duration: time.Since(start)})
	}

	stats.EndTime = time.Now()
	return stats, nil
}

// cleanTables deletes target rows, children first.
func (m *Migrator) cleanTables(ctx context.Context) error {
	list := tables()
	for i := len(list) - 1; i >= 0; i-- {
		if err := m.targetDB.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(list[i].model).Error; err != nil {
			return fmt.Errorf("%s: %w", list[i].name, err)
		}
	}
	return nil
}

type table struct {
	name  string
	model any
	copy  func(ctx context.Context, src, dst *gorm.DB, batch int) (int64, error)
}

// tables lists the entities in insertion order.
func tables() []table {
	return []table{
		{"plants", &datastore.Plant{}, copyRows[datastore.Plant]},
		{"zones", &datastore.Zone{}, copyRows[datastore.Zone]},
		{"scenarios", &datastore.Scenario{}, copyRows[datastore.Scenario]},
		{"zone_scenarios", &datastore.ZoneScenario{}, copyRows[datastore.ZoneScenario]},
		{"cameras", &datastore.Camera{}, copyRows[datastore.Camera]},
		{"detection_types", &datastore.DetectionType{}, copyRows[datastore.DetectionType]},
		{"recordings", &datastore.Recording{}, copyRows[datastore.Recording]},
		{"recording_scenarios", &datastore.RecordingScenario{}, copyRows[datastore.RecordingScenario]},
		{"incidents", &datastore.Incident{}, copyRows[datastore.Incident]},
	}
}

// copyRows copies a table in primary key order. Existing rows are skipped.
func copyRows[T any](ctx context.Context, src, dst *gorm.DB, batch int) (int64, error) {
	var rows []T
	var copied int64
	res := src.WithContext(ctx).FindInBatches(&rows, batch, func(_ *gorm.DB, _ int) error {
		res := dst.WithContext(ctx).
			Omit(clause.Associations).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&rows)
		if res.Error != nil {
			return res.Error
		}
		copied += res.RowsAffected
		return nil
	})
	return copied, res.Error
}
