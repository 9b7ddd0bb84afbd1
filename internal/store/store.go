// Package store holds the read-only lookups job handlers need: account and
// integration rows, and integration secrets, both owned and written by the
// onboarding/OAuth collaborator. The one write here is
// MarkIntegrationError, which sets an integration's status to 'error'.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"commerce-ingest-worker/internal/dbx"
	"commerce-ingest-worker/internal/model"
)

// Store wraps the pool for the handful of read queries job handlers need
// outside the per-run transaction.
type Store struct {
	pool *dbx.Pool
}

// New builds a Store bound to the process-wide pool.
func New(pool *dbx.Pool) *Store {
	return &Store{pool: pool}
}

// GetIntegration loads one integration row by id.
func (s *Store) GetIntegration(ctx context.Context, id uuid.UUID) (model.Integration, error) {
	var rows []model.Integration
	err := s.pool.DB.WithContext(ctx).Raw(
		`SELECT id, account_id, type, status, external_ref, created_at, updated_at
		 FROM integrations WHERE id = ?`, id,
	).Scan(&rows).Error
	if err != nil {
		return model.Integration{}, fmt.Errorf("store: get integration: %w", err)
	}
	if len(rows) == 0 {
		return model.Integration{}, fmt.Errorf("store: integration %s not found", id)
	}
	return rows[0], nil
}

// GetAccount loads one account row by id.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (model.Account, error) {
	var rows []model.Account
	err := s.pool.DB.WithContext(ctx).Raw(
		`SELECT id, currency, display_name FROM accounts WHERE id = ?`, id,
	).Scan(&rows).Error
	if err != nil {
		return model.Account{}, fmt.Errorf("store: get account: %w", err)
	}
	if len(rows) == 0 {
		return model.Account{}, fmt.Errorf("store: account %s not found", id)
	}
	return rows[0], nil
}

// GetSecret loads the decrypted-at-rest secret value for one integration
// key (e.g. commerce_offline_token). Decryption itself is the schema
// owner's concern; the worker treats the column as an opaque string.
func (s *Store) GetSecret(ctx context.Context, integrationID uuid.UUID, key string) (string, error) {
	var rows []struct{ EncryptedValue string }
	err := s.pool.DB.WithContext(ctx).Raw(
		`SELECT encrypted_value FROM integration_secrets WHERE integration_id = ? AND key = ?`,
		integrationID, key,
	).Scan(&rows).Error
	if err != nil {
		return "", fmt.Errorf("store: get secret: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("store: secret %q for integration %s not found", key, integrationID)
	}
	return rows[0].EncryptedValue, nil
}

// MarkIntegrationError sets status = 'error' on fatal auth failures: an
// auth_error additionally marks the integration, not just the run.
func MarkIntegrationError(ctx context.Context, tx *gorm.DB, integrationID uuid.UUID) error {
	res := tx.WithContext(ctx).Exec(
		`UPDATE integrations SET status = 'error', updated_at = now() WHERE id = ?`,
		integrationID,
	)
	if res.Error != nil {
		return fmt.Errorf("store: mark integration error: %w", res.Error)
	}
	return nil
}
