package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/liurenlab/oracleops/internal/config"
	"github.com/liurenlab/oracleops/internal/discovery"
	handlers "github.com/liurenlab/oracleops/internal/http/api/admin/handlers"
	"github.com/liurenlab/oracleops/internal/models"
	"github.com/liurenlab/oracleops/internal/registry"
	"github.com/liurenlab/oracleops/internal/security"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, reg *registry.Registry, adapter *discovery.Adapter) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	authed.PUT("/password", authHandler.ChangePassword)

	providerHandler := handlers.NewProviderHandler(db)
	authed.POST("/providers", providerHandler.Create)
	authed.GET("/providers", providerHandler.List)
	authed.GET("/providers/:id", providerHandler.Get)
	authed.PUT("/providers/:id", providerHandler.Update)
	authed.DELETE("/providers/:id", providerHandler.Delete)

	modelHandler := handlers.NewModelConfigHandler(db, reg)
	authed.POST("/model-configs", modelHandler.Create)
	authed.GET("/model-configs", modelHandler.List)
	authed.GET("/model-configs/:id", modelHandler.Get)
	authed.PUT("/model-configs/:id", modelHandler.Update)
	authed.DELETE("/model-configs/:id", modelHandler.Delete)
	authed.POST("/model-configs/:id/promote", modelHandler.Promote)
	authed.POST("/model-configs/batch-delete", modelHandler.BatchDelete)

	templateHandler := handlers.NewPromptTemplateHandler(db)
	authed.POST("/prompt-templates", templateHandler.Create)
	authed.GET("/prompt-templates", templateHandler.List)
	authed.GET("/prompt-templates/:id", templateHandler.Get)
	authed.PUT("/prompt-templates/:id", templateHandler.Update)
	authed.DELETE("/prompt-templates/:id", templateHandler.Delete)
	authed.POST("/prompt-templates/:id/activate", templateHandler.Activate)

	usageHandler := handlers.NewUsageHandler(db)
	authed.GET("/usage", usageHandler.List)
	authed.GET("/usage/summary", usageHandler.Summary)

	settingHandler := handlers.NewSettingHandler(db)
	authed.POST("/settings", settingHandler.Create)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Update)
	authed.DELETE("/settings/:key", settingHandler.Delete)

	discoveryHandler := handlers.NewDiscoveryHandler(db, adapter)
	authed.POST("/discovery/models", discoveryHandler.FetchModels)
	authed.POST("/discovery/test", discoveryHandler.TestConnection)
}

// adminAuthMiddleware validates admin session tokens and loads admin context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Next()
	}
}
