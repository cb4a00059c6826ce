package models

import "time"

// Usage outcome status values.
const (
	UsageStatusSuccess = "success"
	UsageStatusFailed  = "failed"
)

// UsageLog records one dispatch attempt outcome for analytics.
type UsageLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Provider string `gorm:"type:varchar(64);not null;index"`  // Provider slug.
	Model    string `gorm:"type:varchar(255);not null;index"` // Vendor-side model id.

	ModelConfigID *uint64 `gorm:"index"` // Dispatched model config ID.

	PromptTokens     int `gorm:"not null;default:0"` // Prompt token count.
	CompletionTokens int `gorm:"not null;default:0"` // Completion token count.
	TotalTokens      int `gorm:"not null;default:0"` // Total token count.

	LatencyMs int64  `gorm:"not null;default:0"`              // Attempt latency in milliseconds.
	Status    string `gorm:"type:varchar(16);not null;index"` // success or failed.
	Error     string `gorm:"type:text"`                       // Failure detail, empty on success.

	UpstreamRequestID string `gorm:"type:text"` // Upstream request id when reported.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
