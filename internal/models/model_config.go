package models

import (
	"time"

	"gorm.io/datatypes"
)

// ModelRole describes how a configured model participates in dispatch.
type ModelRole string

// Roles a configured model may hold. At most one primary exists system-wide.
const (
	RolePrimary   ModelRole = "primary"
	RoleSecondary ModelRole = "secondary"
	RoleDisabled  ModelRole = "disabled"
)

// ModelType describes the completion style a model serves.
type ModelType string

// Supported model types.
const (
	TypeChat       ModelType = "chat"
	TypeCompletion ModelType = "completion"
	TypeEmbedding  ModelType = "embedding"
)

// ModelParameters holds per-model request parameters stored as JSON.
type ModelParameters struct {
	Temperature      *float64 `json:"temperature,omitempty"`       // Sampling temperature.
	MaxTokens        *int     `json:"max_tokens,omitempty"`        // Completion token cap.
	TopP             *float64 `json:"top_p,omitempty"`             // Nucleus sampling cutoff.
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"` // Frequency penalty.
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`  // Presence penalty.
	Stream           bool     `json:"stream,omitempty"`            // Streaming flag, unused by dispatch.
}

// ModelConfig represents a configured, callable model bound to a provider.
type ModelConfig struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProviderID *uint64   `gorm:"index;uniqueIndex:idx_model_configs_provider_name"` // Owning provider ID, nil for custom entries.
	Provider   *Provider `gorm:"foreignKey:ProviderID"`                             // Owning provider.

	CustomProviderName string `gorm:"type:varchar(64)"` // Provider slug for provider-less entries.
	CustomAPIURL       string `gorm:"type:text"`        // Base URL for provider-less entries.

	Name        string `gorm:"type:varchar(255);not null;uniqueIndex:idx_model_configs_provider_name"` // Vendor-side model id, unique per provider.
	DisplayName string `gorm:"type:text"`                                                              // Human readable name.

	ModelType ModelType `gorm:"type:varchar(16);not null;default:chat"`            // chat, completion or embedding.
	Role      ModelRole `gorm:"type:varchar(16);not null;default:secondary;index"` // primary, secondary or disabled.
	Priority  int       `gorm:"not null;default:0;index"`                          // Lower is tried earlier among secondaries.

	Parameters datatypes.JSON `gorm:"type:jsonb"` // ModelParameters payload.

	ContextWindow   int     `gorm:"not null;default:0"`    // Context length in tokens.
	CostPer1KTokens float64 `gorm:"type:decimal(20,10)"`   // Cost per 1k tokens.

	EncryptedCredential string `gorm:"type:text"` // Vault ciphertext, empty when unset.

	IsActive bool `gorm:"not null;default:true"` // Whether the model is usable.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
