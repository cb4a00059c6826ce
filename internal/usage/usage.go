// Package usage persists dispatch attempt outcomes for analytics.
package usage

import (
	"context"
	"time"

	"github.com/liurenlab/oracleops/internal/dispatch"
	"github.com/liurenlab/oracleops/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const persistTimeout = 5 * time.Second

// errorDetailLimit caps the stored failure detail.
const errorDetailLimit = 4096

// GormRecorder persists dispatch attempts as usage log rows.
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder constructs a GormRecorder backed by GORM.
func NewGormRecorder(db *gorm.DB) *GormRecorder { return &GormRecorder{db: db} }

// Record persists one attempt. Persistence is detached from the request
// context so a cancelled dispatch still leaves its trace; failures are
// logged, never surfaced to the caller.
func (r *GormRecorder) Record(_ context.Context, attempt dispatch.Attempt) {
	if r == nil || r.db == nil {
		return
	}

	dbCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	status := models.UsageStatusFailed
	if attempt.Success {
		status = models.UsageStatusSuccess
	}

	detail := attempt.Error
	if len(detail) > errorDetailLimit {
		detail = detail[:errorDetailLimit]
	}

	var configID *uint64
	if attempt.ModelConfigID != 0 {
		id := attempt.ModelConfigID
		configID = &id
	}

	row := models.UsageLog{
		Provider:          attempt.Provider,
		Model:             attempt.Model,
		ModelConfigID:     configID,
		PromptTokens:      attempt.PromptTokens,
		CompletionTokens:  attempt.CompletionTokens,
		TotalTokens:       attempt.TotalTokens,
		LatencyMs:         attempt.LatencyMs,
		Status:            status,
		Error:             detail,
		UpstreamRequestID: attempt.UpstreamRequestID,
		CreatedAt:         time.Now().UTC(),
	}

	if errCreate := r.db.WithContext(dbCtx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).Warn("usage recorder: failed to persist usage log")
	}
}
