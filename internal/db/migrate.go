package db

import (
	"tradepulse/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.ProcessingRecord{},
		&models.RawItem{},
		&models.Position{},
		&models.Order{},
		&models.SystemSetting{},
	)
}
