package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/liurenlab/oracleops/internal/models"
	"gorm.io/gorm"
)

// snapshot holds the last loaded settings rows keyed by setting key.
var snapshot atomic.Value

// Refresh reloads all settings rows into the in-memory snapshot.
func Refresh(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("settings: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var rows []models.Setting
	if errFind := conn.WithContext(ctx).Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: load: %w", errFind)
	}

	values := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		if row.Key == "" {
			continue
		}
		values[row.Key] = json.RawMessage(row.Value)
	}
	snapshot.Store(values)
	return nil
}

// DBConfigValue returns the raw JSON value for a setting key from the
// latest snapshot.
func DBConfigValue(key string) (json.RawMessage, bool) {
	values, ok := snapshot.Load().(map[string]json.RawMessage)
	if !ok {
		return nil, false
	}
	value, found := values[key]
	return value, found
}
