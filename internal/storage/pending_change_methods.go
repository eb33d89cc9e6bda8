package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/coldtrace/coldtrace-server/internal/models"
)

// ========== Pending Change Methods ==========

const pendingChangeColumns = `
        id, created_at, updated_at, tenant_id, sensor_id, type, params,
        status, sent_at, applied_at, last_checked_at`

func scanPendingChange(row interface{ Scan(...interface{}) error }) (*models.PendingChange, error) {
	change := &models.PendingChange{}
	err := row.Scan(
		&change.ID, &change.CreatedAt, &change.UpdatedAt, &change.TenantID,
		&change.SensorID, &change.Type, &change.Params, &change.Status,
		&change.SentAt, &change.AppliedAt, &change.LastCheckedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return change, nil
}

// CreatePendingChange records a dispatched configuration command
func (s *PostgresStore) CreatePendingChange(ctx context.Context, change *models.PendingChange) error {
	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}
	if change.Status == "" {
		change.Status = models.ChangeStatusSent
	}

	now := time.Now()
	change.CreatedAt = now
	change.UpdatedAt = now
	if change.SentAt.IsZero() {
		change.SentAt = now
	}

	query := `
        INSERT INTO pending_changes (
            id, created_at, updated_at, tenant_id, sensor_id, type, params,
            status, sent_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.getDB().ExecContext(ctx, query,
		change.ID, change.CreatedAt, change.UpdatedAt, change.TenantID,
		change.SensorID, change.Type, change.Params, change.Status, change.SentAt,
	)

	return err
}

// GetPendingChange gets a pending change by ID
func (s *PostgresStore) GetPendingChange(ctx context.Context, id uuid.UUID) (*models.PendingChange, error) {
	query := `SELECT` + pendingChangeColumns + ` FROM pending_changes WHERE id = $1`
	return scanPendingChange(s.getDB().QueryRowContext(ctx, query, id))
}

// ListSentPendingChanges returns sent changes for a sensor, oldest first.
// Selecting only sent rows makes re-confirmation idempotent: confirming an
// already-applied change is a no-op because it never appears here.
func (s *PostgresStore) ListSentPendingChanges(ctx context.Context, sensorID uuid.UUID) ([]*models.PendingChange, error) {
	query := `SELECT` + pendingChangeColumns + `
        FROM pending_changes
        WHERE sensor_id = $1 AND status = 'sent'
        ORDER BY sent_at ASC`

	rows, err := s.getDB().QueryContext(ctx, query, sensorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []*models.PendingChange
	for rows.Next() {
		change, err := scanPendingChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}

	return changes, nil
}

// MarkPendingChangeApplied transitions a sent change to applied (terminal)
func (s *PostgresStore) MarkPendingChangeApplied(ctx context.Context, id uuid.UUID, appliedAt time.Time) error {
	result, err := s.getDB().ExecContext(ctx, `
        UPDATE pending_changes
        SET status = 'applied', applied_at = $2, updated_at = $3
        WHERE id = $1 AND status = 'sent'`,
		id, appliedAt, time.Now(),
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// TouchPendingChange records when a change was last checked against an uplink
func (s *PostgresStore) TouchPendingChange(ctx context.Context, id uuid.UUID, checkedAt time.Time) error {
	_, err := s.getDB().ExecContext(ctx, `
        UPDATE pending_changes
        SET last_checked_at = $2, updated_at = $3
        WHERE id = $1`,
		id, checkedAt, time.Now(),
	)
	return err
}

// ListPendingChanges lists changes for a tenant
func (s *PostgresStore) ListPendingChanges(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.PendingChange, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pending_changes WHERE tenant_id = $1", tenantID,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT` + pendingChangeColumns + `
        FROM pending_changes
        WHERE tenant_id = $1
        ORDER BY sent_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var changes []*models.PendingChange
	for rows.Next() {
		change, err := scanPendingChange(rows)
		if err != nil {
			return nil, 0, err
		}
		changes = append(changes, change)
	}

	return changes, count, nil
}
