package models

import (
	"time"

	"gorm.io/datatypes"
)

// Provider represents a third-party AI vendor exposing a completions-style API.
type Provider struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string `gorm:"type:varchar(64);not null;uniqueIndex"` // Unique vendor slug, immutable after creation.
	DisplayName string `gorm:"type:text"`                             // Human readable name.
	BaseURL     string `gorm:"type:text"`                             // API base URL.

	SupportedModels datatypes.JSON `gorm:"type:jsonb"` // Known model names list.

	RPMLimit int `gorm:"not null;default:0"` // Requests-per-minute hint.
	TPMLimit int `gorm:"not null;default:0"` // Tokens-per-minute hint.

	IsActive bool `gorm:"not null;default:true"` // Whether the vendor is usable.

	ModelConfigs []ModelConfig `gorm:"foreignKey:ProviderID"` // Configured models on this vendor.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
