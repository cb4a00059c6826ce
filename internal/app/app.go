// Package app wires configuration, storage, and HTTP surfaces into a
// runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/liurenlab/oracleops/internal/config"
	"github.com/liurenlab/oracleops/internal/db"
	"github.com/liurenlab/oracleops/internal/discovery"
	"github.com/liurenlab/oracleops/internal/dispatch"
	adminapi "github.com/liurenlab/oracleops/internal/http/api/admin"
	"github.com/liurenlab/oracleops/internal/http/api/front"
	"github.com/liurenlab/oracleops/internal/prompt"
	"github.com/liurenlab/oracleops/internal/ratelimit"
	"github.com/liurenlab/oracleops/internal/registry"
	internalsettings "github.com/liurenlab/oracleops/internal/settings"
	internalusage "github.com/liurenlab/oracleops/internal/usage"
	"github.com/liurenlab/oracleops/internal/vault"

	log "github.com/sirupsen/logrus"
)

const discoveryProbeTimeout = 15 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the admin and interpretation server.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	vaultKey, errKey := config.LoadVaultKey(configPath)
	if errKey != nil {
		return errKey
	}
	credentialVault := vault.New(vaultKey)

	jwtCfg, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}
	dispatchCfg := config.LoadDispatchConfig(configPath)

	if errSeed := EnsureAdmin(ctx, conn); errSeed != nil {
		return errSeed
	}
	if errRefresh := internalsettings.Refresh(ctx, conn); errRefresh != nil {
		log.WithError(errRefresh).Warn("app: initial settings snapshot load failed")
	}

	reg := registry.New(conn, credentialVault)
	templates := prompt.NewStore(conn)
	recorder := internalusage.NewGormRecorder(conn)
	dispatcher := dispatch.NewDispatcher(reg, templates, recorder, dispatchCfg.RequestTimeout)
	limiter := ratelimit.NewManager(nil, nil, nil)
	adapter := discovery.NewAdapter(discoveryProbeTimeout)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	adminapi.RegisterAdminRoutes(engine, conn, jwtCfg, reg, adapter)
	front.RegisterFrontRoutes(engine, dispatcher, limiter, dispatchCfg.DefaultLanguage)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("server listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// corsMiddleware enables permissive CORS for the admin UI.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
