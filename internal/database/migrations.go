package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillBlankCategories = "2026-03-01_backfill_blank_categories"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func registeredMigrations() []migrationDefinition {
	return []migrationDefinition{
		{name: migrationBackfillBlankCategories, apply: backfillBlankCategories},
	}
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range registeredMigrations() {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillBlankCategories moves rows written before categories were mandatory into "other".
func backfillBlankCategories(db *gorm.DB) error {
	return db.Exec("UPDATE confessions SET category = ? WHERE category IS NULL OR TRIM(category) = ''", "other").Error
}
