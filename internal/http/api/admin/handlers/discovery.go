package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/liurenlab/oracleops/internal/discovery"
	"github.com/liurenlab/oracleops/internal/models"
	"gorm.io/gorm"
)

// DiscoveryHandler probes upstream providers for available models and
// credential validity. Credentials arrive in the request body and are used
// for the probe only, never persisted.
type DiscoveryHandler struct {
	db      *gorm.DB
	adapter *discovery.Adapter
}

// NewDiscoveryHandler constructs a discovery handler.
func NewDiscoveryHandler(db *gorm.DB, adapter *discovery.Adapter) *DiscoveryHandler {
	return &DiscoveryHandler{db: db, adapter: adapter}
}

// discoveryRequest captures the probe payload. provider_id fills in the
// provider name and base URL from the catalog; explicit fields override.
type discoveryRequest struct {
	ProviderID   *uint64 `json:"provider_id"`
	ProviderName string  `json:"provider_name"`
	BaseURL      string  `json:"base_url"`
	Credential   string  `json:"credential"`
}

// FetchModels lists the models a provider exposes.
func (h *DiscoveryHandler) FetchModels(c *gin.Context) {
	probe, ok := h.resolveProbe(c)
	if !ok {
		return
	}
	names, errFetch := h.adapter.FetchModels(c.Request.Context(), probe)
	if errFetch != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": errFetch.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": names, "total": len(names)})
}

// TestConnection verifies that a provider accepts the supplied credential.
func (h *DiscoveryHandler) TestConnection(c *gin.Context) {
	probe, ok := h.resolveProbe(c)
	if !ok {
		return
	}
	if errTest := h.adapter.TestConnection(c.Request.Context(), probe); errTest != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": errTest.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// resolveProbe builds the probe from the request body and catalog, writing
// the error response on failure.
func (h *DiscoveryHandler) resolveProbe(c *gin.Context) (discovery.Probe, bool) {
	var body discoveryRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return discovery.Probe{}, false
	}

	probe := discovery.Probe{
		ProviderName: strings.TrimSpace(body.ProviderName),
		BaseURL:      strings.TrimSpace(body.BaseURL),
		Credential:   strings.TrimSpace(body.Credential),
	}

	if body.ProviderID != nil {
		var provider models.Provider
		if errFind := h.db.WithContext(c.Request.Context()).First(&provider, *body.ProviderID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "provider not found"})
				return discovery.Probe{}, false
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return discovery.Probe{}, false
		}
		if probe.ProviderName == "" {
			probe.ProviderName = provider.Name
		}
		if probe.BaseURL == "" {
			probe.BaseURL = provider.BaseURL
		}
	}

	if probe.ProviderName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider name is required"})
		return discovery.Probe{}, false
	}
	return probe, true
}
