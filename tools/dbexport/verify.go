package main

import (
	"context"
	"fmt"
	"io"

	"gorm.io/gorm"
)

// Verify compares row counts of every table.
func Verify(ctx context.Context, source, target *gorm.DB, w io.Writer) error {
	fmt.Fprintf(w, "\n%-22s %10s %10s\n", "Table", "Source", "Target")

	var mismatched []string
	for _, t := range tables() {
		var src, dst int64
		if err := source.WithContext(ctx).Model(t.model).Count(&src).Error; err != nil {
			return fmt.Errorf("count source %s: %w", t.name, err)
		}
		if err := target.WithContext(ctx).Model(t.model).Count(&dst).Error; err != nil {
			return fmt.Errorf("count target %s: %w", t.name, err)
		}
		fmt.Fprintf(w, "%-22s %10d %10d\n", t.name, src, dst)
		if dst < src {
			mismatched = append(mismatched, t.name)
		}
	}
	if len(mismatched) > 0 {
		return fmt.Errorf("target is missing rows in %v", mismatched)
	}
	return nil
}
