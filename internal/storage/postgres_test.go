package storage

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldtrace/coldtrace-server/internal/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{db: db}, mock
}

func sensorRows(sensorID, tenantID uuid.UUID, devEUI string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "created_at", "updated_at", "tenant_id", "dev_eui",
		"network_device_id", "serial_number", "name", "unit_id", "type",
		"status", "catalog_id", "decode_mode_override", "last_seen_at",
		"last_battery_pct", "last_battery_voltage", "last_signal_strength",
	}).AddRow(
		sensorID, now, now, tenantID, devEUI,
		"", "", "fridge", nil, string(models.SensorTypeUnknown),
		string(models.SensorStatusPending), nil, nil, nil,
		nil, nil, nil,
	)
}

func TestGetSensorByDevEUIScopedToTenant(t *testing.T) {
	store, mock := newMockStore(t)
	tenantID := uuid.New()
	sensorID := uuid.New()

	mock.ExpectQuery(`WHERE tenant_id = \$1 AND dev_eui = \$2`).
		WithArgs(tenantID, "a84041ffff123456").
		WillReturnRows(sensorRows(sensorID, tenantID, "a84041ffff123456"))

	sensor, err := store.GetSensorByDevEUI(context.Background(), tenantID, "a84041ffff123456")
	require.NoError(t, err)
	assert.Equal(t, sensorID, sensor.ID)
	assert.Equal(t, tenantID, sensor.TenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSensorByDevEUINotFound(t *testing.T) {
	store, mock := newMockStore(t)
	tenantID := uuid.New()

	mock.ExpectQuery(`WHERE tenant_id = \$1 AND dev_eui = \$2`).
		WithArgs(tenantID, "ffffffffffffffff").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetSensorByDevEUI(context.Background(), tenantID, "ffffffffffffffff")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPayloadBinding(t *testing.T) {
	store, mock := newMockStore(t)
	sensorID := uuid.New()

	inferredModel := "LHT65"
	binding := &models.PayloadBinding{
		SensorID:      sensorID,
		PayloadType:   "temp_hum_v1",
		InferredModel: &inferredModel,
		Confidence:    0.8,
		Status:        models.BindingStatusActive,
		MatchCount:    3,
	}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (sensor_id) DO UPDATE SET")).
		WithArgs(
			sqlmock.AnyArg(), sensorID, "temp_hum_v1", "LHT65", 0.8,
			string(models.BindingStatusActive), 3, 0,
			sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpsertPayloadBinding(context.Background(), binding)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, binding.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPendingChangeAppliedGuardsOnSentStatus(t *testing.T) {
	store, mock := newMockStore(t)
	changeID := uuid.New()
	appliedAt := time.Now()

	mock.ExpectExec(`WHERE id = \$1 AND status = 'sent'`).
		WithArgs(changeID, appliedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkPendingChangeApplied(context.Background(), changeID, appliedAt)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPendingChangeApplied(t *testing.T) {
	store, mock := newMockStore(t)
	changeID := uuid.New()
	appliedAt := time.Now()

	mock.ExpectExec(`UPDATE pending_changes`).
		WithArgs(changeID, appliedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.MarkPendingChangeApplied(context.Background(), changeID, appliedAt)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
