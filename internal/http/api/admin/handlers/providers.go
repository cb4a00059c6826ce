package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	internaldb "github.com/liurenlab/oracleops/internal/db"
	"github.com/liurenlab/oracleops/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProviderHandler manages admin CRUD for providers.
type ProviderHandler struct {
	db *gorm.DB // Database handle for providers.
}

// NewProviderHandler constructs a provider handler.
func NewProviderHandler(db *gorm.DB) *ProviderHandler {
	return &ProviderHandler{db: db}
}

// createProviderRequest captures the payload for creating a provider.
type createProviderRequest struct {
	Name            string   `json:"name"`             // Unique vendor slug.
	DisplayName     string   `json:"display_name"`     // Human readable name.
	BaseURL         string   `json:"base_url"`         // API base URL.
	SupportedModels []string `json:"supported_models"` // Known model names.
	RPMLimit        int      `json:"rpm_limit"`        // Requests-per-minute hint.
	TPMLimit        int      `json:"tpm_limit"`        // Tokens-per-minute hint.
	IsActive        *bool    `json:"is_active"`        // Defaults to true.
}

// updateProviderRequest captures optional fields for updating a provider.
// The name is immutable after creation.
type updateProviderRequest struct {
	DisplayName     *string   `json:"display_name"`
	BaseURL         *string   `json:"base_url"`
	SupportedModels *[]string `json:"supported_models"`
	RPMLimit        *int      `json:"rpm_limit"`
	TPMLimit        *int      `json:"tpm_limit"`
	IsActive        *bool     `json:"is_active"`
}

// Create validates and inserts a provider.
func (h *ProviderHandler) Create(c *gin.Context) {
	var body createProviderRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	name := strings.ToLower(strings.TrimSpace(body.Name))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	var count int64
	if errCount := h.db.WithContext(c.Request.Context()).
		Model(&models.Provider{}).
		Where("name = ?", name).
		Count(&count).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "provider name already exists"})
		return
	}

	row := models.Provider{
		Name:        name,
		DisplayName: strings.TrimSpace(body.DisplayName),
		BaseURL:     strings.TrimSpace(body.BaseURL),
		RPMLimit:    body.RPMLimit,
		TPMLimit:    body.TPMLimit,
		IsActive:    true,
	}
	if body.IsActive != nil {
		row.IsActive = *body.IsActive
	}
	if len(body.SupportedModels) > 0 {
		payload, errMarshal := json.Marshal(body.SupportedModels)
		if errMarshal != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid supported models"})
			return
		}
		row.SupportedModels = datatypes.JSON(payload)
	}

	if errCreate := h.db.WithContext(c.Request.Context()).Create(&row).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create provider failed"})
		return
	}
	c.JSON(http.StatusCreated, formatProvider(&row))
}

// List returns providers, optionally filtered by name substring and status.
func (h *ProviderHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.Provider{})

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := internaldb.NormalizeLikePattern(h.db, "%"+search+"%")
		q = q.Where(internaldb.CaseInsensitiveLikeExpr(h.db, "name")+" OR "+
			internaldb.CaseInsensitiveLikeExpr(h.db, "display_name"), pattern, pattern)
	}
	if active := strings.TrimSpace(c.Query("is_active")); active != "" {
		q = q.Where("is_active = ?", active == "true" || active == "1")
	}

	var rows []models.Provider
	if errFind := q.Order("id ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list providers failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatProvider(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"providers": out, "total": len(out)})
}

// Get returns a provider by ID.
func (h *ProviderHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var row models.Provider
	if errFind := h.db.WithContext(c.Request.Context()).First(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatProvider(&row))
}

// Update applies a partial update to a provider.
func (h *ProviderHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var body updateProviderRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var row models.Provider
	if errFind := h.db.WithContext(c.Request.Context()).First(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	updates := map[string]any{}
	if body.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*body.DisplayName)
	}
	if body.BaseURL != nil {
		updates["base_url"] = strings.TrimSpace(*body.BaseURL)
	}
	if body.SupportedModels != nil {
		payload, errMarshal := json.Marshal(*body.SupportedModels)
		if errMarshal != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid supported models"})
			return
		}
		updates["supported_models"] = datatypes.JSON(payload)
	}
	if body.RPMLimit != nil {
		updates["rpm_limit"] = *body.RPMLimit
	}
	if body.TPMLimit != nil {
		updates["tpm_limit"] = *body.TPMLimit
	}
	if body.IsActive != nil {
		updates["is_active"] = *body.IsActive
	}
	if len(updates) == 0 {
		c.JSON(http.StatusOK, formatProvider(&row))
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&row).
		Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, formatProvider(&row))
}

// Delete removes a provider. Providers still referenced by model configs
// are rejected to avoid dangling dispatch entries.
func (h *ProviderHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var refs int64
	if errCount := h.db.WithContext(c.Request.Context()).
		Model(&models.ModelConfig{}).
		Where("provider_id = ?", id).
		Count(&refs).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if refs > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "provider still has model configs"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).Delete(&models.Provider{}, id)
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

// formatProvider shapes a provider row for API responses.
func formatProvider(row *models.Provider) gin.H {
	var supported []string
	if len(row.SupportedModels) > 0 {
		_ = json.Unmarshal(row.SupportedModels, &supported)
	}
	return gin.H{
		"id":               row.ID,
		"name":             row.Name,
		"display_name":     row.DisplayName,
		"base_url":         row.BaseURL,
		"supported_models": supported,
		"rpm_limit":        row.RPMLimit,
		"tpm_limit":        row.TPMLimit,
		"is_active":        row.IsActive,
		"created_at":       row.CreatedAt,
		"updated_at":       row.UpdatedAt,
	}
}

// parseIDParam parses the :id path segment, writing the error response on
// failure.
func parseIDParam(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
