package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/liurenlab/oracleops/internal/db"
	"github.com/liurenlab/oracleops/internal/models"
	"github.com/liurenlab/oracleops/internal/vault"
	"gorm.io/gorm"
)

func newTestRegistry(t *testing.T) (*Registry, *gorm.DB, *vault.Vault) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "oracleops-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.Provider{}, &models.ModelConfig{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	v := vault.New("registry-test-key")
	return New(conn, v), conn, v
}

func seedProvider(t *testing.T, conn *gorm.DB, name string) *models.Provider {
	t.Helper()
	provider := models.Provider{
		Name:        name,
		DisplayName: name,
		BaseURL:     "https://" + name + ".example.com",
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if errCreate := conn.Create(&provider).Error; errCreate != nil {
		t.Fatalf("seed provider %s: %v", name, errCreate)
	}
	return &provider
}

func mustCreate(t *testing.T, r *Registry, input CreateInput) *models.ModelConfig {
	t.Helper()
	row, errCreate := r.Create(context.Background(), input)
	if errCreate != nil {
		t.Fatalf("create model %s: %v", input.Name, errCreate)
	}
	return row
}

func countPrimaries(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.ModelConfig{}).Where("role = ?", models.RolePrimary).Count(&count).Error; err != nil {
		t.Fatalf("count primaries: %v", err)
	}
	return count
}

func TestCreateValidation(t *testing.T) {
	r, conn, _ := newTestRegistry(t)
	provider := seedProvider(t, conn, "alpha")

	missing := uint64(9999)
	if _, err := r.Create(context.Background(), CreateInput{ProviderID: &missing, Name: "m1", Credential: "sk-1"}); !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}

	mustCreate(t, r, CreateInput{ProviderID: &provider.ID, Name: "m1", Credential: "sk-1"})
	if _, err := r.Create(context.Background(), CreateInput{ProviderID: &provider.ID, Name: "m1", Credential: "sk-2"}); !errors.Is(err, ErrDuplicateModelName) {
		t.Fatalf("expected ErrDuplicateModelName, got %v", err)
	}

	// Same name under another provider is fine.
	other := seedProvider(t, conn, "beta")
	mustCreate(t, r, CreateInput{ProviderID: &other.ID, Name: "m1", Credential: "sk-3"})
}

func TestCreateEncryptsCredential(t *testing.T) {
	r, conn, v := newTestRegistry(t)
	provider := seedProvider(t, conn, "alpha")

	row := mustCreate(t, r, CreateInput{ProviderID: &provider.ID, Name: "m1", Credential: "sk-plaintext"})
	if row.EncryptedCredential == "" || row.EncryptedCredential == "sk-plaintext" {
		t.Fatalf("credential not encrypted: %q", row.EncryptedCredential)
	}
	plaintext, errDecrypt := v.Decrypt(row.EncryptedCredential)
	if errDecrypt != nil {
		t.Fatalf("decrypt stored credential: %v", errDecrypt)
	}
	if plaintext != "sk-plaintext" {
		t.Fatalf("stored credential mismatch: %q", plaintext)
	}
}

func TestSinglePrimaryInvariant(t *testing.T) {
	r, conn, _ := newTestRegistry(t)
	provider := seedProvider(t, conn, "alpha")

	first := mustCreate(t, r, CreateInput{ProviderID: &provider.ID, Name: "m1", Role: models.RolePrimary, Credential: "sk-1"})
	second := mustCreate(t, r, CreateInput{ProviderID: &provider.ID, Name: "m2", Role: models.RolePrimary, Credential: "sk-2"})

	if got := countPrimaries(t, conn); got != 1 {
		t.Fatalf("expected 1 primary after create, got %d", got)
	}

	var demoted models.ModelConfig
	if err := conn.First(&demoted, first.ID).Error; err != nil {
		t.Fatalf("reload first model: %v", err)
	}
	if demoted.Role != models.RoleSecondary {
		t.Fatalf("expected first model demoted to secondary, got %s", demoted.Role)
	}

	// Promote the old one back; the invariant must hold after each settle.
	if errPromote := r.Promote(context.Background(), first.ID); errPromote != nil {
		t.Fatalf("promote: %v", errPromote)
	}
	if got := countPrimaries(t, conn); got != 1 {
		t.Fatalf("expected 1 primary after promote, got %d", got)
	}
	var reloaded models.ModelConfig
	if err := conn.First(&reloaded, second.ID).Error; err != nil {
		t.Fatalf("reload second model: %v", err)
	}
	if reloaded.Role != models.RoleSecondary {
		t.Fatalf("expected previous primary demoted, got %s", reloaded.Role)
	}

	// Update with role=primary behaves like an explicit promotion.
	rolePrimary := models.RolePrimary
	if _, errUpdate := r.Update(context.Background(), second.ID, UpdateInput{Role: &rolePrimary}); errUpdate != nil {
		t.Fatalf("update: %v", errUpdate)
	}
	if got := countPrimaries(t, conn); got != 1 {
		t.Fatalf("expected 1 primary after update, got %d", got)
	}
}

func TestPromoteMissingModel(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	if err := r.Promote(context.Background(), 12345); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestDeleteRejectsPrimary(t *testing.T) {
	r, conn, _ := newTestRegistry(t)
	provider := seedProvider(t, conn, "alpha")

	primary := mustCreate(t, r, CreateInput{ProviderID: &provider.ID, Name: "m1", Role: models.RolePrimary, Credential: "sk-1"})
	secondary := mustCreate(t, r, CreateInput{ProviderID: &provider.ID, Name: "m2", Credential: "sk-2"})

	if err := r.Delete(context.Background(), primary.ID); !errors.Is(err, ErrCannotDeletePrimary) {
		t.Fatalf("expected ErrCannotDeletePrimary, got %v", err)
	}
	if err := r.BatchDelete(context.Background(), []uint64{primary.ID, secondary.ID}); !errors.Is(err, ErrCannotDeletePrimary) {
		t.Fatalf("expected ErrCannotDeletePrimary for batch, got %v", err)
	}

	// The rejected batch must not have deleted the secondary.
	var count int64
	if err := conn.Model(&models.ModelConfig{}).Count(&count).Error; err != nil {
		t.Fatalf("count models: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 models after rejected batch, got %d", count)
	}

	if err := r.Delete(context.Background(), secondary.ID); err != nil {
		t.Fatalf("delete secondary: %v", err)
	}
}

func TestListCandidatesOrdering(t *testing.T) {
	r, conn, _ := newTestRegistry(t)
	alpha := seedProvider(t, conn, "alpha")
	beta := seedProvider(t, conn, "beta")
	gamma := seedProvider(t, conn, "gamma")

	mustCreate(t, r, CreateInput{ProviderID: &alpha.ID, Name: "primary-model", Role: models.RolePrimary, Priority: 99, Credential: "sk-a"})
	mustCreate(t, r, CreateInput{ProviderID: &beta.ID, Name: "beta-model", Priority: 10, Credential: "sk-b"})
	mustCreate(t, r, CreateInput{ProviderID: &gamma.ID, Name: "gamma-model", Priority: 5, Credential: "sk-g"})

	candidates, errList := r.ListCandidates(context.Background())
	if errList != nil {
		t.Fatalf("list candidates: %v", errList)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}

	wantOrder := []string{"alpha", "gamma", "beta"}
	for i, want := range wantOrder {
		if candidates[i].ProviderName != want {
			t.Fatalf("candidate %d: expected provider %s, got %s", i, want, candidates[i].ProviderName)
		}
	}
	if candidates[0].Credential != "sk-a" {
		t.Fatalf("expected decrypted credential, got %q", candidates[0].Credential)
	}
}

func TestListCandidatesSkipsUnusableRows(t *testing.T) {
	r, conn, _ := newTestRegistry(t)
	provider := seedProvider(t, conn, "alpha")

	inactive := false
	mustCreate(t, r, CreateInput{ProviderID: &provider.ID, Name: "ok", Credential: "sk-1"})
	mustCreate(t, r, CreateInput{ProviderID: &provider.ID, Name: "inactive", Credential: "sk-2", IsActive: &inactive})
	mustCreate(t, r, CreateInput{ProviderID: &provider.ID, Name: "disabled", Role: models.RoleDisabled, Credential: "sk-3"})
	mustCreate(t, r, CreateInput{ProviderID: &provider.ID, Name: "no-credential"})

	// A row with a corrupt credential is skipped, not fatal.
	corrupt := mustCreate(t, r, CreateInput{ProviderID: &provider.ID, Name: "corrupt", Credential: "sk-4"})
	if err := conn.Model(&models.ModelConfig{}).Where("id = ?", corrupt.ID).Update("encrypted_credential", "bm90LXZhbGlkLWNpcGhlcnRleHQ=").Error; err != nil {
		t.Fatalf("corrupt credential: %v", err)
	}

	candidates, errList := r.ListCandidates(context.Background())
	if errList != nil {
		t.Fatalf("list candidates: %v", errList)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 usable candidate, got %d", len(candidates))
	}
	if candidates[0].Model.Name != "ok" {
		t.Fatalf("expected candidate \"ok\", got %q", candidates[0].Model.Name)
	}
}

func TestListCandidatesSkipsInactiveProvider(t *testing.T) {
	r, conn, _ := newTestRegistry(t)
	provider := seedProvider(t, conn, "alpha")
	mustCreate(t, r, CreateInput{ProviderID: &provider.ID, Name: "m1", Credential: "sk-1"})

	if err := conn.Model(&models.Provider{}).Where("id = ?", provider.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate provider: %v", err)
	}

	candidates, errList := r.ListCandidates(context.Background())
	if errList != nil {
		t.Fatalf("list candidates: %v", errList)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
}

func TestCustomProviderCandidate(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	mustCreate(t, r, CreateInput{
		CustomProviderName: "custom",
		CustomAPIURL:       "https://custom.example.com/v1",
		Name:               "custom-model",
		Credential:         "sk-custom",
	})

	candidates, errList := r.ListCandidates(context.Background())
	if errList != nil {
		t.Fatalf("list candidates: %v", errList)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].ProviderName != "custom" || candidates[0].BaseURL != "https://custom.example.com/v1" {
		t.Fatalf("unexpected candidate identity: %+v", candidates[0])
	}
}
