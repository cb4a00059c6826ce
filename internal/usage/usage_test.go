package usage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/liurenlab/oracleops/internal/dispatch"
	"github.com/liurenlab/oracleops/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "usage.db")
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.UsageLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestRecordPersistsSuccess(t *testing.T) {
	conn := newTestDB(t)
	recorder := NewGormRecorder(conn)

	recorder.Record(context.Background(), dispatch.Attempt{
		ModelConfigID:     7,
		Model:             "oracle-pro",
		Provider:          "openai",
		PromptTokens:      120,
		CompletionTokens:  80,
		TotalTokens:       200,
		LatencyMs:         910,
		Success:           true,
		UpstreamRequestID: "req-1",
	})

	var row models.UsageLog
	if err := conn.First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.Status != models.UsageStatusSuccess {
		t.Fatalf("status = %q", row.Status)
	}
	if row.ModelConfigID == nil || *row.ModelConfigID != 7 {
		t.Fatalf("model config id = %v", row.ModelConfigID)
	}
	if row.TotalTokens != 200 || row.LatencyMs != 910 || row.UpstreamRequestID != "req-1" {
		t.Fatalf("unexpected row: %+v", row)
	}
	if row.Error != "" {
		t.Fatalf("success row must not carry an error, got %q", row.Error)
	}
}

func TestRecordPersistsFailure(t *testing.T) {
	conn := newTestDB(t)
	recorder := NewGormRecorder(conn)

	recorder.Record(context.Background(), dispatch.Attempt{
		Model:    "oracle-lite",
		Provider: "zhipu",
		Error:    "unexpected status 429",
	})

	var row models.UsageLog
	if err := conn.First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.Status != models.UsageStatusFailed {
		t.Fatalf("status = %q", row.Status)
	}
	if row.Error != "unexpected status 429" {
		t.Fatalf("error = %q", row.Error)
	}
	if row.ModelConfigID != nil {
		t.Fatalf("zero config id must be stored as NULL, got %v", *row.ModelConfigID)
	}
}
