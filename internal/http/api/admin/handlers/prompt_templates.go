package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/liurenlab/oracleops/internal/models"
	"github.com/liurenlab/oracleops/internal/prompt"
	"gorm.io/gorm"
)

// PromptTemplateHandler manages admin CRUD for prompt templates.
type PromptTemplateHandler struct {
	db *gorm.DB // Database handle for templates.
}

// NewPromptTemplateHandler constructs a prompt template handler.
func NewPromptTemplateHandler(db *gorm.DB) *PromptTemplateHandler {
	return &PromptTemplateHandler{db: db}
}

// createPromptTemplateRequest captures the payload for creating a template.
type createPromptTemplateRequest struct {
	Family         string `json:"family"`          // Defaults to interpretation.
	Name           string `json:"name"`            // Display name.
	SystemPrompt   string `json:"system_prompt"`   // System message body.
	UserIntro      string `json:"user_intro"`      // User message opening.
	UserGuidelines string `json:"user_guidelines"` // User message closing guidance.
	IsActive       bool   `json:"is_active"`       // Activate on creation.
}

// updatePromptTemplateRequest captures optional fields for updating a
// template. Activation goes through Activate to keep one active per family.
type updatePromptTemplateRequest struct {
	Name           *string `json:"name"`
	SystemPrompt   *string `json:"system_prompt"`
	UserIntro      *string `json:"user_intro"`
	UserGuidelines *string `json:"user_guidelines"`
}

// Create inserts a template. Creating an active template deactivates every
// other template in the same family.
func (h *PromptTemplateHandler) Create(c *gin.Context) {
	var body createPromptTemplateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	family := strings.TrimSpace(body.Family)
	if family == "" {
		family = prompt.DefaultFamily
	}

	row := models.PromptTemplate{
		Family:         family,
		Name:           strings.TrimSpace(body.Name),
		SystemPrompt:   body.SystemPrompt,
		UserIntro:      body.UserIntro,
		UserGuidelines: body.UserGuidelines,
		IsActive:       body.IsActive,
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if row.IsActive {
			if errDeactivate := tx.Model(&models.PromptTemplate{}).
				Where("family = ?", family).
				Update("is_active", false).Error; errDeactivate != nil {
				return errDeactivate
			}
		}
		return tx.Create(&row).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create template failed"})
		return
	}
	c.JSON(http.StatusCreated, formatPromptTemplate(&row))
}

// List returns templates, optionally filtered by family.
func (h *PromptTemplateHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.PromptTemplate{})
	if family := strings.TrimSpace(c.Query("family")); family != "" {
		q = q.Where("family = ?", family)
	}

	var rows []models.PromptTemplate
	if errFind := q.Order("id ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list templates failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatPromptTemplate(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"templates": out, "total": len(out)})
}

// Get returns a template by ID.
func (h *PromptTemplateHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var row models.PromptTemplate
	if errFind := h.db.WithContext(c.Request.Context()).First(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatPromptTemplate(&row))
}

// Update applies a partial update to a template's text fields.
func (h *PromptTemplateHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var body updatePromptTemplateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var row models.PromptTemplate
	if errFind := h.db.WithContext(c.Request.Context()).First(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	updates := map[string]any{}
	if body.Name != nil {
		updates["name"] = strings.TrimSpace(*body.Name)
	}
	if body.SystemPrompt != nil {
		updates["system_prompt"] = *body.SystemPrompt
	}
	if body.UserIntro != nil {
		updates["user_intro"] = *body.UserIntro
	}
	if body.UserGuidelines != nil {
		updates["user_guidelines"] = *body.UserGuidelines
	}
	if len(updates) == 0 {
		c.JSON(http.StatusOK, formatPromptTemplate(&row))
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&row).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, formatPromptTemplate(&row))
}

// Activate marks one template active and deactivates the rest of its family
// in the same transaction.
func (h *PromptTemplateHandler) Activate(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var row models.PromptTemplate
		if errFind := tx.First(&row, id).Error; errFind != nil {
			return errFind
		}
		if errDeactivate := tx.Model(&models.PromptTemplate{}).
			Where("family = ? AND id <> ?", row.Family, row.ID).
			Update("is_active", false).Error; errDeactivate != nil {
			return errDeactivate
		}
		return tx.Model(&row).Update("is_active", true).Error
	})
	if errTx != nil {
		if errors.Is(errTx, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "activate failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a template.
func (h *PromptTemplateHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).Delete(&models.PromptTemplate{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// formatPromptTemplate shapes a template row for API responses.
func formatPromptTemplate(row *models.PromptTemplate) gin.H {
	return gin.H{
		"id":              row.ID,
		"family":          row.Family,
		"name":            row.Name,
		"system_prompt":   row.SystemPrompt,
		"user_intro":      row.UserIntro,
		"user_guidelines": row.UserGuidelines,
		"is_active":       row.IsActive,
		"created_at":      row.CreatedAt,
		"updated_at":      row.UpdatedAt,
	}
}
