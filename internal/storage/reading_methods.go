package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/coldtrace/coldtrace-server/internal/models"
)

// ========== Reading Methods ==========

// CreateReading inserts a full sensor reading row. Readings are append-only.
func (s *PostgresStore) CreateReading(ctx context.Context, reading *models.SensorReading) error {
	if reading.ID == uuid.Nil {
		reading.ID = uuid.New()
	}
	reading.CreatedAt = time.Now()

	query := `
        INSERT INTO sensor_readings (
            id, tenant_id, sensor_id, unit_id, temperature, humidity,
            battery_pct, battery_voltage, signal_strength, door_open,
            raw_payload, decoded_payload, decode_match, frame_counter,
            received_at, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := s.getDB().ExecContext(ctx, query,
		reading.ID, reading.TenantID, reading.SensorID, reading.UnitID,
		reading.Temperature, reading.Humidity, reading.BatteryPct,
		reading.BatteryVoltage, reading.SignalStrength, reading.DoorOpen,
		reading.RawPayload, reading.DecodedPayload, reading.DecodeMatch,
		reading.FrameCounter, reading.ReceivedAt, reading.CreatedAt,
	)

	return err
}

// CreateReadingMinimal inserts the reduced column set. Used as a fallback so
// a schema/column mismatch degrades gracefully instead of losing the reading.
func (s *PostgresStore) CreateReadingMinimal(ctx context.Context, reading *models.SensorReading) error {
	if reading.ID == uuid.Nil {
		reading.ID = uuid.New()
	}
	reading.CreatedAt = time.Now()

	query := `
        INSERT INTO sensor_readings (
            id, tenant_id, sensor_id, unit_id, temperature, battery_pct,
            received_at, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.getDB().ExecContext(ctx, query,
		reading.ID, reading.TenantID, reading.SensorID, reading.UnitID,
		reading.Temperature, reading.BatteryPct, reading.ReceivedAt,
		reading.CreatedAt,
	)

	return err
}

// ListReadings lists readings for a sensor, newest first
func (s *PostgresStore) ListReadings(ctx context.Context, tenantID, sensorID uuid.UUID, limit, offset int) ([]*models.SensorReading, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sensor_readings WHERE tenant_id = $1 AND sensor_id = $2",
		tenantID, sensorID,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, tenant_id, sensor_id, unit_id, temperature, humidity,
               battery_pct, battery_voltage, signal_strength, door_open,
               raw_payload, decoded_payload, decode_match, frame_counter,
               received_at, created_at
        FROM sensor_readings
        WHERE tenant_id = $1 AND sensor_id = $2
        ORDER BY received_at DESC
        LIMIT $3 OFFSET $4`

	rows, err := s.getDB().QueryContext(ctx, query, tenantID, sensorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var readings []*models.SensorReading
	for rows.Next() {
		reading := &models.SensorReading{}
		err := rows.Scan(
			&reading.ID, &reading.TenantID, &reading.SensorID, &reading.UnitID,
			&reading.Temperature, &reading.Humidity, &reading.BatteryPct,
			&reading.BatteryVoltage, &reading.SignalStrength, &reading.DoorOpen,
			&reading.RawPayload, &reading.DecodedPayload, &reading.DecodeMatch,
			&reading.FrameCounter, &reading.ReceivedAt, &reading.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		readings = append(readings, reading)
	}

	return readings, count, nil
}

// ========== Door Event Methods ==========

// CreateDoorEvent inserts a door event row
func (s *PostgresStore) CreateDoorEvent(ctx context.Context, event *models.DoorEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()

	query := `
        INSERT INTO door_events (
            id, tenant_id, sensor_id, unit_id, open, occurred_at, source,
            created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.getDB().ExecContext(ctx, query,
		event.ID, event.TenantID, event.SensorID, event.UnitID,
		event.Open, event.OccurredAt, event.Source, event.CreatedAt,
	)

	return err
}

// GetLastDoorEvent returns the most recent door event, keyed by the unit the
// sensor monitors when one is assigned, by the sensor itself otherwise.
func (s *PostgresStore) GetLastDoorEvent(ctx context.Context, sensorID uuid.UUID, unitID *uuid.UUID) (*models.DoorEvent, error) {
	var row *sql.Row
	if unitID != nil {
		row = s.getDB().QueryRowContext(ctx, `
            SELECT id, tenant_id, sensor_id, unit_id, open, occurred_at,
                   source, created_at
            FROM door_events
            WHERE unit_id = $1
            ORDER BY occurred_at DESC
            LIMIT 1`, unitID)
	} else {
		row = s.getDB().QueryRowContext(ctx, `
            SELECT id, tenant_id, sensor_id, unit_id, open, occurred_at,
                   source, created_at
            FROM door_events
            WHERE sensor_id = $1
            ORDER BY occurred_at DESC
            LIMIT 1`, sensorID)
	}

	event := &models.DoorEvent{}
	err := row.Scan(
		&event.ID, &event.TenantID, &event.SensorID, &event.UnitID,
		&event.Open, &event.OccurredAt, &event.Source, &event.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return event, nil
}

// ListDoorEvents lists door events for a tenant, newest first
func (s *PostgresStore) ListDoorEvents(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.DoorEvent, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM door_events WHERE tenant_id = $1", tenantID,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, tenant_id, sensor_id, unit_id, open, occurred_at, source,
               created_at
        FROM door_events
        WHERE tenant_id = $1
        ORDER BY occurred_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.DoorEvent
	for rows.Next() {
		event := &models.DoorEvent{}
		err := rows.Scan(
			&event.ID, &event.TenantID, &event.SensorID, &event.UnitID,
			&event.Open, &event.OccurredAt, &event.Source, &event.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}

	return events, count, nil
}
