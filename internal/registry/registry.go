// Package registry maintains the catalog of configured completion models and
// projects it into the ordered candidate lists consumed by dispatch.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/liurenlab/oracleops/internal/models"
	"github.com/liurenlab/oracleops/internal/vault"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Validation errors surfaced to administrative callers.
var (
	ErrModelNotFound       = errors.New("registry: model not found")
	ErrProviderNotFound    = errors.New("registry: provider not found")
	ErrDuplicateModelName  = errors.New("registry: model name already registered for provider")
	ErrCannotDeletePrimary = errors.New("registry: cannot delete the primary model")
)

// Registry reads and mutates the model catalog.
type Registry struct {
	db    *gorm.DB
	vault *vault.Vault
}

// New constructs a Registry.
func New(db *gorm.DB, v *vault.Vault) *Registry {
	return &Registry{db: db, vault: v}
}

// Candidate is a configured model eligible for one dispatch attempt. The
// decrypted credential lives only on this value and must never be persisted
// or serialized.
type Candidate struct {
	Model        models.ModelConfig
	ProviderName string
	BaseURL      string
	Credential   string
}

// Parameters decodes the candidate's stored request parameters. Malformed
// payloads decode to the zero value.
func (c Candidate) Parameters() models.ModelParameters {
	var params models.ModelParameters
	if len(c.Model.Parameters) > 0 {
		_ = json.Unmarshal(c.Model.Parameters, &params)
	}
	return params
}

// ListCandidates returns the usable models in dispatch order: the primary
// first, then secondaries by ascending priority. Inactive or disabled rows,
// rows without a credential, and rows whose credential fails to decrypt are
// skipped; a decryption failure logs a warning instead of failing the
// listing. The list is computed fresh on every call.
func (r *Registry) ListCandidates(ctx context.Context) ([]Candidate, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("registry: not initialized")
	}

	var rows []models.ModelConfig
	errFind := r.db.WithContext(ctx).
		Preload("Provider").
		Where("is_active = ? AND role <> ?", true, models.RoleDisabled).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("registry: list models: %w", errFind)
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		providerName, baseURL := providerIdentity(&row)
		if providerName == "" {
			continue
		}
		if row.Provider != nil && !row.Provider.IsActive {
			continue
		}
		if strings.TrimSpace(row.EncryptedCredential) == "" {
			continue
		}

		credential, errDecrypt := r.vault.Decrypt(row.EncryptedCredential)
		if errDecrypt != nil {
			log.WithError(errDecrypt).Warnf("registry: skipping model %q (%s): credential decrypt failed", row.Name, providerName)
			continue
		}

		candidates = append(candidates, Candidate{
			Model:        row,
			ProviderName: providerName,
			BaseURL:      baseURL,
			Credential:   credential,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].Model, candidates[j].Model
		if (a.Role == models.RolePrimary) != (b.Role == models.RolePrimary) {
			return a.Role == models.RolePrimary
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})

	return candidates, nil
}

// providerIdentity resolves the provider slug and base URL for a row,
// preferring the bound provider over custom fields.
func providerIdentity(row *models.ModelConfig) (string, string) {
	if row.Provider != nil {
		return row.Provider.Name, row.Provider.BaseURL
	}
	return strings.TrimSpace(row.CustomProviderName), strings.TrimSpace(row.CustomAPIURL)
}

// CreateInput captures the payload for registering a model.
type CreateInput struct {
	ProviderID         *uint64
	CustomProviderName string
	CustomAPIURL       string
	Name               string
	DisplayName        string
	ModelType          models.ModelType
	Role               models.ModelRole
	Priority           int
	Parameters         *models.ModelParameters
	ContextWindow      int
	CostPer1KTokens    float64
	Credential         string
	IsActive           *bool
}

// UpdateInput captures optional fields for updating a model.
type UpdateInput struct {
	ProviderID         *uint64
	CustomProviderName *string
	CustomAPIURL       *string
	Name               *string
	DisplayName        *string
	ModelType          *models.ModelType
	Role               *models.ModelRole
	Priority           *int
	Parameters         *models.ModelParameters
	ContextWindow      *int
	CostPer1KTokens    *float64
	Credential         *string
	IsActive           *bool
}

// Create registers a model. A plaintext credential is encrypted before
// persisting; role=primary triggers the same promotion side effect as
// Promote within the same transaction.
func (r *Registry) Create(ctx context.Context, input CreateInput) (*models.ModelConfig, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("registry: not initialized")
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("registry: model name is required")
	}

	if input.ProviderID != nil {
		var provider models.Provider
		if errFind := r.db.WithContext(ctx).First(&provider, *input.ProviderID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return nil, ErrProviderNotFound
			}
			return nil, fmt.Errorf("registry: load provider: %w", errFind)
		}
	}

	if errDup := r.checkDuplicateName(ctx, input.ProviderID, name, 0); errDup != nil {
		return nil, errDup
	}

	role := input.Role
	if role == "" {
		role = models.RoleSecondary
	}
	modelType := input.ModelType
	if modelType == "" {
		modelType = models.TypeChat
	}

	now := time.Now().UTC()
	row := models.ModelConfig{
		ProviderID:         input.ProviderID,
		CustomProviderName: strings.TrimSpace(input.CustomProviderName),
		CustomAPIURL:       strings.TrimSpace(input.CustomAPIURL),
		Name:               name,
		DisplayName:        strings.TrimSpace(input.DisplayName),
		ModelType:          modelType,
		Role:               role,
		Priority:           input.Priority,
		ContextWindow:      input.ContextWindow,
		CostPer1KTokens:    input.CostPer1KTokens,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if input.IsActive != nil {
		row.IsActive = *input.IsActive
	}

	if input.Parameters != nil {
		payload, errMarshal := json.Marshal(input.Parameters)
		if errMarshal != nil {
			return nil, fmt.Errorf("registry: marshal parameters: %w", errMarshal)
		}
		row.Parameters = payload
	}

	if credential := strings.TrimSpace(input.Credential); credential != "" {
		ciphertext, errEncrypt := r.vault.Encrypt(credential)
		if errEncrypt != nil {
			return nil, errEncrypt
		}
		row.EncryptedCredential = ciphertext
	}

	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if row.Role == models.RolePrimary {
			if errDemote := demoteOthers(tx, 0); errDemote != nil {
				return errDemote
			}
		}
		return tx.Create(&row).Error
	})
	if errTx != nil {
		return nil, fmt.Errorf("registry: create model: %w", errTx)
	}
	return &row, nil
}

// Update applies a partial update. Setting role=primary promotes the row and
// demotes every other primary in the same transaction.
func (r *Registry) Update(ctx context.Context, id uint64, input UpdateInput) (*models.ModelConfig, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("registry: not initialized")
	}

	var row models.ModelConfig
	if errFind := r.db.WithContext(ctx).First(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("registry: load model: %w", errFind)
	}

	if input.ProviderID != nil {
		var provider models.Provider
		if errFind := r.db.WithContext(ctx).First(&provider, *input.ProviderID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return nil, ErrProviderNotFound
			}
			return nil, fmt.Errorf("registry: load provider: %w", errFind)
		}
		row.ProviderID = input.ProviderID
	}
	if input.CustomProviderName != nil {
		row.CustomProviderName = strings.TrimSpace(*input.CustomProviderName)
	}
	if input.CustomAPIURL != nil {
		row.CustomAPIURL = strings.TrimSpace(*input.CustomAPIURL)
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, fmt.Errorf("registry: model name is required")
		}
		row.Name = name
	}
	if input.DisplayName != nil {
		row.DisplayName = strings.TrimSpace(*input.DisplayName)
	}
	if input.ModelType != nil {
		row.ModelType = *input.ModelType
	}
	if input.Priority != nil {
		row.Priority = *input.Priority
	}
	if input.ContextWindow != nil {
		row.ContextWindow = *input.ContextWindow
	}
	if input.CostPer1KTokens != nil {
		row.CostPer1KTokens = *input.CostPer1KTokens
	}
	if input.IsActive != nil {
		row.IsActive = *input.IsActive
	}
	if input.Parameters != nil {
		payload, errMarshal := json.Marshal(input.Parameters)
		if errMarshal != nil {
			return nil, fmt.Errorf("registry: marshal parameters: %w", errMarshal)
		}
		row.Parameters = payload
	}
	if input.Credential != nil {
		if credential := strings.TrimSpace(*input.Credential); credential != "" {
			ciphertext, errEncrypt := r.vault.Encrypt(credential)
			if errEncrypt != nil {
				return nil, errEncrypt
			}
			row.EncryptedCredential = ciphertext
		} else {
			row.EncryptedCredential = ""
		}
	}
	if input.Role != nil {
		row.Role = *input.Role
	}

	if errDup := r.checkDuplicateName(ctx, row.ProviderID, row.Name, row.ID); errDup != nil {
		return nil, errDup
	}

	row.UpdatedAt = time.Now().UTC()
	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.Role != nil && *input.Role == models.RolePrimary {
			if errDemote := demoteOthers(tx, row.ID); errDemote != nil {
				return errDemote
			}
		}
		return tx.Save(&row).Error
	})
	if errTx != nil {
		return nil, fmt.Errorf("registry: update model: %w", errTx)
	}
	return &row, nil
}

// Promote transactionally makes the model the single primary: the target is
// written primary and every other primary row is demoted to secondary in the
// same transaction, so concurrent promotions serialize to one primary.
func (r *Registry) Promote(ctx context.Context, id uint64) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("registry: not initialized")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.ModelConfig
		if errFind := tx.First(&row, id).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrModelNotFound
			}
			return fmt.Errorf("registry: load model: %w", errFind)
		}

		if errDemote := demoteOthers(tx, id); errDemote != nil {
			return errDemote
		}

		return tx.Model(&models.ModelConfig{}).
			Where("id = ?", id).
			Updates(map[string]any{"role": models.RolePrimary, "updated_at": time.Now().UTC()}).Error
	})
}

// demoteOthers moves every primary row except excludeID to secondary.
func demoteOthers(tx *gorm.DB, excludeID uint64) error {
	q := tx.Model(&models.ModelConfig{}).Where("role = ?", models.RolePrimary)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if errDemote := q.Updates(map[string]any{"role": models.RoleSecondary, "updated_at": time.Now().UTC()}).Error; errDemote != nil {
		return fmt.Errorf("registry: demote primaries: %w", errDemote)
	}
	return nil
}

// Delete removes a model. Deleting the current primary is rejected.
func (r *Registry) Delete(ctx context.Context, id uint64) error {
	return r.BatchDelete(ctx, []uint64{id})
}

// BatchDelete removes a set of models. The whole batch is rejected when any
// target currently holds the primary role.
func (r *Registry) BatchDelete(ctx context.Context, ids []uint64) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("registry: not initialized")
	}
	if len(ids) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.ModelConfig
		if errFind := tx.Where("id IN ?", ids).Find(&rows).Error; errFind != nil {
			return fmt.Errorf("registry: load models: %w", errFind)
		}
		if len(rows) == 0 {
			return ErrModelNotFound
		}
		for _, row := range rows {
			if row.Role == models.RolePrimary {
				return ErrCannotDeletePrimary
			}
		}
		if errDelete := tx.Where("id IN ?", ids).Delete(&models.ModelConfig{}).Error; errDelete != nil {
			return fmt.Errorf("registry: delete models: %w", errDelete)
		}
		return nil
	})
}

// Get loads a single model row.
func (r *Registry) Get(ctx context.Context, id uint64) (*models.ModelConfig, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("registry: not initialized")
	}
	var row models.ModelConfig
	if errFind := r.db.WithContext(ctx).Preload("Provider").First(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("registry: load model: %w", errFind)
	}
	return &row, nil
}

// MaskedCredential returns the stored credential in display-safe masked
// form. Rows without a credential, or whose credential cannot be decrypted,
// yield an empty string; the plaintext never leaves this method.
func (r *Registry) MaskedCredential(row *models.ModelConfig) string {
	if r == nil || row == nil || row.EncryptedCredential == "" {
		return ""
	}
	plaintext, errDecrypt := r.vault.Decrypt(row.EncryptedCredential)
	if errDecrypt != nil {
		return ""
	}
	return vault.MaskSecret(plaintext)
}

// checkDuplicateName enforces name uniqueness within one provider scope.
func (r *Registry) checkDuplicateName(ctx context.Context, providerID *uint64, name string, excludeID uint64) error {
	q := r.db.WithContext(ctx).Model(&models.ModelConfig{}).Where("name = ?", name)
	if providerID != nil {
		q = q.Where("provider_id = ?", *providerID)
	} else {
		q = q.Where("provider_id IS NULL")
	}
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}

	var count int64
	if errCount := q.Count(&count).Error; errCount != nil {
		return fmt.Errorf("registry: check duplicate name: %w", errCount)
	}
	if count > 0 {
		return ErrDuplicateModelName
	}
	return nil
}
