// Package gorm provides GORM-based database operations for reflectra.
package gorm

import (
	"database/sql"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/reflectra/pkg/models"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core tables (Category, Session)
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				// Categories first: sessions reference them
				if err := tx.AutoMigrate(&Category{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Session{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("sessions", "categories")
			},
		},

		// Migration 002: Seed categories
		{
			ID: "002_seed_categories",
			Migrate: seedCategories,
			Rollback: func(tx *gorm.DB) error {
				names := make([]string, 0, len(models.SeedCategories))
				for _, c := range models.SeedCategories {
					names = append(names, c.Name)
				}
				return tx.Where("name IN ?", names).Delete(&Category{}).Error
			},
		},

		// Migration 003: Daily wellness scores
		{
			ID: "003_wellness_scores",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&WellnessScore{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("wellness_scores")
			},
		},

		// Migration 004: Reflection questions and answers
		{
			ID: "004_reflections",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Reflection{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("reflections")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return err
	}

	// Seed set must exist at all times, so re-assert it even when 002 already ran
	return seedCategories(db)
}

// seedCategories inserts the fixed seed set, leaving existing rows untouched.
func seedCategories(tx *gorm.DB) error {
	rows := make([]Category, 0, len(models.SeedCategories))
	for _, c := range models.SeedCategories {
		rows = append(rows, Category{
			Name:         c.Name,
			Description:  sql.NullString{String: c.Description, Valid: c.Description != ""},
			Color:        sql.NullString{String: c.Color, Valid: c.Color != ""},
			WellnessType: c.WellnessType,
		})
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&rows).Error
}
