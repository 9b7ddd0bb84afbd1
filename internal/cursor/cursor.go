// Package cursor reads and writes per-(integration, job type, key)
// watermarks. Writes enforce the monotonic
// invariant: a cursor_value may only move forward.
package cursor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Get returns the stored cursor value, and false if no row exists yet.
func Get(ctx context.Context, tx *gorm.DB, integrationID uuid.UUID, jobType, key string) (string, bool, error) {
	var rows []struct{ CursorValue string }
	err := tx.WithContext(ctx).Raw(
		`SELECT cursor_value FROM sync_cursors WHERE integration_id = ? AND job_type = ? AND cursor_key = ?`,
		integrationID, jobType, key,
	).Scan(&rows).Error
	if err != nil {
		return "", false, fmt.Errorf("cursor: get: %w", err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].CursorValue, true, nil
}

// InitIfAbsent writes value only if no cursor row exists yet: a
// window_fill run initialises the cursor once, a fresh run never
// regresses it. Returns true if it actually wrote a row.
func InitIfAbsent(ctx context.Context, tx *gorm.DB, integrationID uuid.UUID, jobType, key, value string) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO sync_cursors (integration_id, job_type, cursor_key, cursor_value, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (integration_id, job_type, cursor_key) DO NOTHING`,
		integrationID, jobType, key, value,
	)
	if res.Error != nil {
		return false, fmt.Errorf("cursor: init: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AdvanceIfGreater writes value only if it is strictly greater than the
// stored value (lexicographic compare is sufficient because both sides
// are RFC3339 timestamps, and the cursor must only ever move forward).
// Returns true if it advanced.
func AdvanceIfGreater(ctx context.Context, tx *gorm.DB, integrationID uuid.UUID, jobType, key, value string) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO sync_cursors (integration_id, job_type, cursor_key, cursor_value, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (integration_id, job_type, cursor_key)
		 DO UPDATE SET cursor_value = EXCLUDED.cursor_value, updated_at = CURRENT_TIMESTAMP
		 WHERE sync_cursors.cursor_value < EXCLUDED.cursor_value`,
		integrationID, jobType, key, value,
	)
	if res.Error != nil {
		return false, fmt.Errorf("cursor: advance: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
