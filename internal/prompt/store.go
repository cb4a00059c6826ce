package prompt

import (
	"context"
	"errors"
	"fmt"

	"github.com/liurenlab/oracleops/internal/models"
	"gorm.io/gorm"
)

// DefaultFamily is the template family read by the dispatch engine.
const DefaultFamily = "interpretation"

// Store reads prompt templates from the catalog.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a template store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Active returns the most recently updated active template for a family,
// falling back to the built-in default when none exists.
func (s *Store) Active(ctx context.Context, family string) (Template, error) {
	if s == nil || s.db == nil {
		return DefaultTemplate(), fmt.Errorf("prompt store: nil db")
	}
	if family == "" {
		family = DefaultFamily
	}

	var row models.PromptTemplate
	errFind := s.db.WithContext(ctx).
		Where("family = ? AND is_active = ?", family, true).
		Order("updated_at DESC").
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return DefaultTemplate(), nil
		}
		return DefaultTemplate(), fmt.Errorf("prompt store: load active template: %w", errFind)
	}

	return Template{
		SystemPrompt:   row.SystemPrompt,
		UserIntro:      row.UserIntro,
		UserGuidelines: row.UserGuidelines,
	}, nil
}
