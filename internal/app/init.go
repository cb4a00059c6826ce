package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/liurenlab/oracleops/internal/models"
	internalsettings "github.com/liurenlab/oracleops/internal/settings"
	"github.com/liurenlab/oracleops/internal/vault"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Environment variables used to seed the first admin account.
const (
	EnvInitAdminUsername = "INIT_ADMIN_USERNAME"
	EnvInitAdminPassword = "INIT_ADMIN_PASSWORD"
)

// HasAdmin reports whether any admin account exists.
func HasAdmin(ctx context.Context, conn *gorm.DB) (bool, error) {
	var count int64
	if errCount := conn.WithContext(ctx).Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("count admins: %w", errCount)
	}
	return count > 0, nil
}

// EnsureAdmin seeds the first admin account from the environment when the
// admins table is empty. A fresh database without seed credentials boots
// with a warning; the admin API stays unusable until one is created.
func EnsureAdmin(ctx context.Context, conn *gorm.DB) error {
	exists, errCheck := HasAdmin(ctx, conn)
	if errCheck != nil {
		return errCheck
	}
	if exists {
		return nil
	}

	username := strings.TrimSpace(os.Getenv(EnvInitAdminUsername))
	password := os.Getenv(EnvInitAdminPassword)
	if username == "" || password == "" {
		log.Warnf("no admin account exists; set %s and %s to seed one", EnvInitAdminUsername, EnvInitAdminPassword)
		return nil
	}
	if len(password) < 6 {
		return fmt.Errorf("seed admin: password must be at least 6 characters")
	}
	return CreateAdminWithConn(conn, username, password, internalsettings.DefaultSiteName)
}

// CreateAdminWithConn creates an admin account and seeds the site name.
func CreateAdminWithConn(conn *gorm.DB, username, password, siteName string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}

	hashedPassword, errHash := vault.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	now := time.Now().UTC()
	admin := models.Admin{
		Username:  username,
		Password:  hashedPassword,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("create admin: %w", errCreate)
	}

	return upsertSiteNameSetting(conn, siteName)
}

// upsertSiteNameSetting stores the SITE_NAME setting in the database.
func upsertSiteNameSetting(conn *gorm.DB, siteName string) error {
	normalized := strings.TrimSpace(siteName)
	if normalized == "" {
		normalized = internalsettings.DefaultSiteName
	}
	payload, errMarshal := json.Marshal(normalized)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal SITE_NAME setting: %w", errMarshal)
	}
	value := datatypes.JSON(payload)

	now := time.Now().UTC()
	res := conn.Model(&models.Setting{}).Where("key = ?", internalsettings.SiteNameKey).
		Updates(map[string]any{
			"value":      value,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("db: update SITE_NAME setting: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	setting := models.Setting{
		Key:       internalsettings.SiteNameKey,
		Value:     value,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create SITE_NAME setting: %w", errCreate)
	}
	return nil
}
