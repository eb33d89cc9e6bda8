package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/coldtrace/coldtrace-server/internal/models"
)

// ========== Payload Binding Methods ==========

// GetPayloadBinding gets the payload binding for a sensor
func (s *PostgresStore) GetPayloadBinding(ctx context.Context, sensorID uuid.UUID) (*models.PayloadBinding, error) {
	query := `
        SELECT id, sensor_id, payload_type, inferred_model, confidence,
               status, match_count, mismatch_count, created_at, updated_at
        FROM payload_bindings
        WHERE sensor_id = $1`

	binding := &models.PayloadBinding{}
	err := s.getDB().QueryRowContext(ctx, query, sensorID).Scan(
		&binding.ID, &binding.SensorID, &binding.PayloadType,
		&binding.InferredModel, &binding.Confidence, &binding.Status,
		&binding.MatchCount, &binding.MismatchCount,
		&binding.CreatedAt, &binding.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return binding, nil
}

// UpsertPayloadBinding inserts or replaces the one binding row per sensor
func (s *PostgresStore) UpsertPayloadBinding(ctx context.Context, binding *models.PayloadBinding) error {
	if binding.ID == uuid.Nil {
		binding.ID = uuid.New()
	}

	now := time.Now()
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = now
	}
	binding.UpdatedAt = now

	query := `
        INSERT INTO payload_bindings (
            id, sensor_id, payload_type, inferred_model, confidence,
            status, match_count, mismatch_count, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (sensor_id) DO UPDATE SET
            payload_type = EXCLUDED.payload_type,
            inferred_model = EXCLUDED.inferred_model,
            confidence = EXCLUDED.confidence,
            status = EXCLUDED.status,
            match_count = EXCLUDED.match_count,
            mismatch_count = EXCLUDED.mismatch_count,
            updated_at = EXCLUDED.updated_at`

	_, err := s.getDB().ExecContext(ctx, query,
		binding.ID, binding.SensorID, binding.PayloadType,
		binding.InferredModel, binding.Confidence, binding.Status,
		binding.MatchCount, binding.MismatchCount,
		binding.CreatedAt, binding.UpdatedAt,
	)

	return err
}
