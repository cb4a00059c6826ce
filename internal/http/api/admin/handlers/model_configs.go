package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/liurenlab/oracleops/internal/models"
	"github.com/liurenlab/oracleops/internal/registry"
	"gorm.io/gorm"
)

// ModelConfigHandler manages admin CRUD for configured models. Mutations go
// through the registry so credential encryption and the single-primary
// invariant hold regardless of the call path.
type ModelConfigHandler struct {
	db       *gorm.DB
	registry *registry.Registry
}

// NewModelConfigHandler constructs a model config handler.
func NewModelConfigHandler(db *gorm.DB, reg *registry.Registry) *ModelConfigHandler {
	return &ModelConfigHandler{db: db, registry: reg}
}

// modelConfigRequest captures the payload for creating a configured model.
type modelConfigRequest struct {
	ProviderID         *uint64                 `json:"provider_id"`          // Owning provider, nil for custom entries.
	CustomProviderName string                  `json:"custom_provider_name"` // Provider slug for custom entries.
	CustomAPIURL       string                  `json:"custom_api_url"`       // Base URL for custom entries.
	Name               string                  `json:"name"`                 // Vendor-side model id.
	DisplayName        string                  `json:"display_name"`         // Human readable name.
	ModelType          string                  `json:"model_type"`           // chat, completion or embedding.
	Role               string                  `json:"role"`                 // primary, secondary or disabled.
	Priority           int                     `json:"priority"`             // Dispatch order among secondaries.
	Parameters         *models.ModelParameters `json:"parameters"`           // Request parameters.
	ContextWindow      int                     `json:"context_window"`       // Context length in tokens.
	CostPer1KTokens    float64                 `json:"cost_per_1k_tokens"`   // Cost per 1k tokens.
	Credential         string                  `json:"credential"`           // Plaintext API key, encrypted at rest.
	IsActive           *bool                   `json:"is_active"`            // Defaults to true.
}

// updateModelConfigRequest captures optional fields for updating a model.
type updateModelConfigRequest struct {
	ProviderID         *uint64                 `json:"provider_id"`
	CustomProviderName *string                 `json:"custom_provider_name"`
	CustomAPIURL       *string                 `json:"custom_api_url"`
	Name               *string                 `json:"name"`
	DisplayName        *string                 `json:"display_name"`
	ModelType          *string                 `json:"model_type"`
	Role               *string                 `json:"role"`
	Priority           *int                    `json:"priority"`
	Parameters         *models.ModelParameters `json:"parameters"`
	ContextWindow      *int                    `json:"context_window"`
	CostPer1KTokens    *float64                `json:"cost_per_1k_tokens"`
	Credential         *string                 `json:"credential"`
	IsActive           *bool                   `json:"is_active"`
}

// Create registers a configured model.
func (h *ModelConfigHandler) Create(c *gin.Context) {
	var body modelConfigRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	row, errCreate := h.registry.Create(c.Request.Context(), registry.CreateInput{
		ProviderID:         body.ProviderID,
		CustomProviderName: body.CustomProviderName,
		CustomAPIURL:       body.CustomAPIURL,
		Name:               body.Name,
		DisplayName:        body.DisplayName,
		ModelType:          models.ModelType(strings.TrimSpace(body.ModelType)),
		Role:               models.ModelRole(strings.TrimSpace(body.Role)),
		Priority:           body.Priority,
		Parameters:         body.Parameters,
		ContextWindow:      body.ContextWindow,
		CostPer1KTokens:    body.CostPer1KTokens,
		Credential:         body.Credential,
		IsActive:           body.IsActive,
	})
	if errCreate != nil {
		h.writeRegistryError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, h.formatModelConfig(row))
}

// List returns configured models, optionally filtered by provider and role.
func (h *ModelConfigHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.ModelConfig{}).Preload("Provider")

	if rawProvider := strings.TrimSpace(c.Query("provider_id")); rawProvider != "" {
		providerID, errParse := strconv.ParseUint(rawProvider, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider id"})
			return
		}
		q = q.Where("provider_id = ?", providerID)
	}
	if role := strings.TrimSpace(c.Query("role")); role != "" {
		q = q.Where("role = ?", role)
	}
	if active := strings.TrimSpace(c.Query("is_active")); active != "" {
		q = q.Where("is_active = ?", active == "true" || active == "1")
	}

	var rows []models.ModelConfig
	if errFind := q.
		Order("CASE WHEN role = 'primary' THEN 0 ELSE 1 END ASC").
		Order("priority ASC").
		Order("id ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list models failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, h.formatModelConfig(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"models": out, "total": len(out)})
}

// Get returns a configured model by ID.
func (h *ModelConfigHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	row, errGet := h.registry.Get(c.Request.Context(), id)
	if errGet != nil {
		h.writeRegistryError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, h.formatModelConfig(row))
}

// Update applies a partial update to a configured model.
func (h *ModelConfigHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var body updateModelConfigRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	input := registry.UpdateInput{
		ProviderID:         body.ProviderID,
		CustomProviderName: body.CustomProviderName,
		CustomAPIURL:       body.CustomAPIURL,
		Name:               body.Name,
		DisplayName:        body.DisplayName,
		Priority:           body.Priority,
		Parameters:         body.Parameters,
		ContextWindow:      body.ContextWindow,
		CostPer1KTokens:    body.CostPer1KTokens,
		Credential:         body.Credential,
		IsActive:           body.IsActive,
	}
	if body.ModelType != nil {
		modelType := models.ModelType(strings.TrimSpace(*body.ModelType))
		input.ModelType = &modelType
	}
	if body.Role != nil {
		role := models.ModelRole(strings.TrimSpace(*body.Role))
		input.Role = &role
	}

	row, errUpdate := h.registry.Update(c.Request.Context(), id, input)
	if errUpdate != nil {
		h.writeRegistryError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, h.formatModelConfig(row))
}

// Promote makes a model the single primary.
func (h *ModelConfigHandler) Promote(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if errPromote := h.registry.Promote(c.Request.Context(), id); errPromote != nil {
		h.writeRegistryError(c, errPromote)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a configured model.
func (h *ModelConfigHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if errDelete := h.registry.Delete(c.Request.Context(), id); errDelete != nil {
		h.writeRegistryError(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}

// batchDeleteRequest captures the payload for a batch delete.
type batchDeleteRequest struct {
	IDs []uint64 `json:"ids"`
}

// BatchDelete removes several configured models atomically. The whole batch
// is rejected when any listed model is the primary.
func (h *ModelConfigHandler) BatchDelete(c *gin.Context) {
	var body batchDeleteRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids are required"})
		return
	}
	if errDelete := h.registry.BatchDelete(c.Request.Context(), body.IDs); errDelete != nil {
		h.writeRegistryError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": len(body.IDs)})
}

// writeRegistryError maps registry errors to HTTP responses.
func (h *ModelConfigHandler) writeRegistryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrModelNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, registry.ErrProviderNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider not found"})
	case errors.Is(err, registry.ErrDuplicateModelName):
		c.JSON(http.StatusConflict, gin.H{"error": "model name already exists for provider"})
	case errors.Is(err, registry.ErrCannotDeletePrimary):
		c.JSON(http.StatusConflict, gin.H{"error": "cannot delete the primary model"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// formatModelConfig shapes a model row for API responses. The credential is
// always masked; plaintext never appears in a response.
func (h *ModelConfigHandler) formatModelConfig(row *models.ModelConfig) gin.H {
	var providerName string
	if row.Provider != nil {
		providerName = row.Provider.Name
	} else if row.CustomProviderName != "" {
		providerName = row.CustomProviderName
	}

	var params models.ModelParameters
	if len(row.Parameters) > 0 {
		_ = json.Unmarshal(row.Parameters, &params)
	}

	return gin.H{
		"id":                   row.ID,
		"provider_id":          row.ProviderID,
		"provider_name":        providerName,
		"custom_provider_name": row.CustomProviderName,
		"custom_api_url":       row.CustomAPIURL,
		"name":                 row.Name,
		"display_name":         row.DisplayName,
		"model_type":           row.ModelType,
		"role":                 row.Role,
		"priority":             row.Priority,
		"parameters":           params,
		"context_window":       row.ContextWindow,
		"cost_per_1k_tokens":   row.CostPer1KTokens,
		"credential":           h.registry.MaskedCredential(row),
		"has_credential":       row.EncryptedCredential != "",
		"is_active":            row.IsActive,
		"created_at":           row.CreatedAt,
		"updated_at":           row.UpdatedAt,
	}
}
