package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coldtrace/coldtrace-server/internal/models"
)

// ========== Sensor Methods ==========

const sensorColumns = `
        id, created_at, updated_at, tenant_id, dev_eui, network_device_id,
        serial_number, name, unit_id, type, status, catalog_id,
        decode_mode_override, last_seen_at, last_battery_pct,
        last_battery_voltage, last_signal_strength`

func scanSensor(row interface{ Scan(...interface{}) error }) (*models.Sensor, error) {
	sensor := &models.Sensor{}
	err := row.Scan(
		&sensor.ID, &sensor.CreatedAt, &sensor.UpdatedAt, &sensor.TenantID,
		&sensor.DevEUI, &sensor.NetworkDeviceID, &sensor.SerialNumber,
		&sensor.Name, &sensor.UnitID, &sensor.Type, &sensor.Status,
		&sensor.CatalogID, &sensor.DecodeModeOverride, &sensor.LastSeenAt,
		&sensor.LastBatteryPct, &sensor.LastBatteryVoltage, &sensor.LastSignalStrength,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sensor, nil
}

// CreateSensor creates a new sensor
func (s *PostgresStore) CreateSensor(ctx context.Context, sensor *models.Sensor) error {
	if sensor.ID == uuid.Nil {
		sensor.ID = uuid.New()
	}
	if sensor.Type == "" {
		sensor.Type = models.SensorTypeUnknown
	}
	if sensor.Status == "" {
		sensor.Status = models.SensorStatusPending
	}

	now := time.Now()
	sensor.CreatedAt = now
	sensor.UpdatedAt = now

	query := `
        INSERT INTO sensors (
            id, created_at, updated_at, tenant_id, dev_eui, network_device_id,
            serial_number, name, unit_id, type, status, catalog_id,
            decode_mode_override
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.getDB().ExecContext(ctx, query,
		sensor.ID, sensor.CreatedAt, sensor.UpdatedAt, sensor.TenantID,
		sensor.DevEUI, sensor.NetworkDeviceID, sensor.SerialNumber,
		sensor.Name, sensor.UnitID, sensor.Type, sensor.Status,
		sensor.CatalogID, sensor.DecodeModeOverride,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetSensor gets a sensor by ID
func (s *PostgresStore) GetSensor(ctx context.Context, id uuid.UUID) (*models.Sensor, error) {
	query := `SELECT` + sensorColumns + ` FROM sensors WHERE id = $1`
	return scanSensor(s.getDB().QueryRowContext(ctx, query, id))
}

// GetSensorByNetworkDeviceID gets a sensor by its network-assigned device id,
// scoped to the tenant
func (s *PostgresStore) GetSensorByNetworkDeviceID(ctx context.Context, tenantID uuid.UUID, networkDeviceID string) (*models.Sensor, error) {
	query := `SELECT` + sensorColumns + `
        FROM sensors
        WHERE tenant_id = $1 AND network_device_id = $2`
	return scanSensor(s.getDB().QueryRowContext(ctx, query, tenantID, networkDeviceID))
}

// GetSensorByDevEUI gets a sensor by device EUI, scoped to the tenant. The
// caller is responsible for trying EUI format variants.
func (s *PostgresStore) GetSensorByDevEUI(ctx context.Context, tenantID uuid.UUID, devEUI string) (*models.Sensor, error) {
	query := `SELECT` + sensorColumns + `
        FROM sensors
        WHERE tenant_id = $1 AND dev_eui = $2`
	return scanSensor(s.getDB().QueryRowContext(ctx, query, tenantID, devEUI))
}

// GetSensorBySerialNumber gets a sensor by serial number, scoped to the tenant
func (s *PostgresStore) GetSensorBySerialNumber(ctx context.Context, tenantID uuid.UUID, serial string) (*models.Sensor, error) {
	query := `SELECT` + sensorColumns + `
        FROM sensors
        WHERE tenant_id = $1 AND serial_number = $2`
	return scanSensor(s.getDB().QueryRowContext(ctx, query, tenantID, serial))
}

// UpdateSensor updates a sensor's configuration fields
func (s *PostgresStore) UpdateSensor(ctx context.Context, sensor *models.Sensor) error {
	sensor.UpdatedAt = time.Now()

	query := `
        UPDATE sensors SET
            updated_at = $2, dev_eui = $3, network_device_id = $4,
            serial_number = $5, name = $6, unit_id = $7, type = $8,
            status = $9, catalog_id = $10, decode_mode_override = $11
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		sensor.ID, sensor.UpdatedAt, sensor.DevEUI, sensor.NetworkDeviceID,
		sensor.SerialNumber, sensor.Name, sensor.UnitID, sensor.Type,
		sensor.Status, sensor.CatalogID, sensor.DecodeModeOverride,
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

// UpdateSensorTelemetry updates the rolling telemetry columns and lifecycle
// status. Concurrent uplinks for the same sensor are last-writer-wins.
func (s *PostgresStore) UpdateSensorTelemetry(ctx context.Context, sensor *models.Sensor) error {
	sensor.UpdatedAt = time.Now()

	query := `
        UPDATE sensors SET
            updated_at = $2, status = $3, last_seen_at = $4,
            last_battery_pct = $5, last_battery_voltage = $6,
            last_signal_strength = $7
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		sensor.ID, sensor.UpdatedAt, sensor.Status, sensor.LastSeenAt,
		sensor.LastBatteryPct, sensor.LastBatteryVoltage, sensor.LastSignalStrength,
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

// UpdateSensorType overwrites the sensor-type tag. Used by the self-healing
// pass; the caller gates on the current tag and binding status.
func (s *PostgresStore) UpdateSensorType(ctx context.Context, id uuid.UUID, sensorType models.SensorType) error {
	result, err := s.getDB().ExecContext(ctx,
		"UPDATE sensors SET type = $2, updated_at = $3 WHERE id = $1",
		id, sensorType, time.Now(),
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

// DeleteSensor deletes a sensor
func (s *PostgresStore) DeleteSensor(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM sensors WHERE id = $1", id)
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

// ListSensors lists sensors for a tenant
func (s *PostgresStore) ListSensors(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Sensor, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sensors WHERE tenant_id = $1", tenantID,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT` + sensorColumns + `
        FROM sensors
        WHERE tenant_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sensors []*models.Sensor
	for rows.Next() {
		sensor, err := scanSensor(rows)
		if err != nil {
			return nil, 0, err
		}
		sensors = append(sensors, sensor)
	}

	return sensors, count, nil
}
