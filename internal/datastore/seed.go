package datastore

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultDetectionTypes are the models shipped with yardwatch.
var DefaultDetectionTypes = []DetectionType{
	{Name: "PPE compliance", Kind: "ppe", ModelPath: "models/best_ppe.tflite", Description: "Missing protective equipment"},
	{Name: "Pallet quality", Kind: "pallet", ModelPath: "models/best_pallet.tflite", Description: "Damaged pallets"},
	{Name: "Forklift proximity", Kind: "proximity", ModelPath: "models/forklift_best.tflite", Description: "Person near forklift"},
}

// DefaultScenarios are the PPE items the bundled model recognizes.
var DefaultScenarios = []Scenario{
	{Name: "hardhat", Description: "Hard hat"},
	{Name: "vest", Description: "High visibility vest"},
	{Name: "gloves", Description: "Safety gloves"},
	{Name: "goggles", Description: "Safety goggles"},
	{Name: "mask", Description: "Face mask"},
}

// Seed inserts the default detection types and scenarios. Existing rows,
// matched by name, are left untouched.
func (s *Store) Seed(ctx context.Context) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range DefaultDetectionTypes {
			dt := DefaultDetectionTypes[i]
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&dt).Error; err != nil {
				return err
			}
		}
		for i := range DefaultScenarios {
			sc := DefaultScenarios[i]
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&sc).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return dbError(err, "seed")
	}
	s.log.Info("seeded default data")
	return nil
}
