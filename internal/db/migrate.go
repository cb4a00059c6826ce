package db

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/liurenlab/oracleops/internal/models"
	internalsettings "github.com/liurenlab/oracleops/internal/settings"
	"gorm.io/gorm"
)

// Migrate runs database migrations and seeds default rows.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.Provider{},
		&models.ModelConfig{},
		&models.PromptTemplate{},
		&models.UsageLog{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errSeed := ensureRateLimitSetting(conn); errSeed != nil {
		return errSeed
	}
	return nil
}

// ensureRateLimitSetting seeds the default interpretation rate limit row.
func ensureRateLimitSetting(conn *gorm.DB) error {
	var existing models.Setting
	errFind := conn.Where("key = ?", internalsettings.RateLimitKey).First(&existing).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: read rate limit setting: %w", errFind)
	}

	value, errMarshal := json.Marshal(internalsettings.DefaultRateLimit)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal rate limit default: %w", errMarshal)
	}
	setting := models.Setting{Key: internalsettings.RateLimitKey, Value: value}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: seed rate limit setting: %w", errCreate)
	}
	return nil
}
