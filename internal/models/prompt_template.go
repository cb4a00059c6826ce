package models

import "time"

// PromptTemplate stores the text fragments composed into dispatch prompts.
// At most one template per family is active; the dispatcher reads the most
// recently updated active row and falls back to built-in defaults.
type PromptTemplate struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Family string `gorm:"type:varchar(64);not null;default:interpretation;index"` // Logical template family.
	Name   string `gorm:"type:text"`                                              // Display name.

	SystemPrompt   string `gorm:"type:text"` // System message body.
	UserIntro      string `gorm:"type:text"` // User message opening.
	UserGuidelines string `gorm:"type:text"` // User message closing guidance.

	IsActive bool `gorm:"not null;default:false;index"` // Whether this template is live.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
