package database

import (
	"errors"
	"time"

	"github.com/arvoredolab/arvoredo/backend/internal/trees"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillNumeroArvore = "2026-06-18_backfill_numero_arvore"

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

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillNumeroArvore, apply: backfillNumeroArvore},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillNumeroArvore normalizes records imported before the "1" default
// was enforced on create.
func backfillNumeroArvore(db *gorm.DB) error {
	return db.Model(&trees.TreeRecord{}).
		Where("numero_arvore IS NULL OR numero_arvore = ''").
		Update("numero_arvore", "1").Error
}
