package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/coldtrace/coldtrace-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface. Every sensor/device lookup is scoped
// by the authenticated tenant id, never by identifiers taken from payloads.
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// Tenant methods
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	UpdateTenant(ctx context.Context, tenant *models.Tenant) error
	DeleteTenant(ctx context.Context, id uuid.UUID) error
	ListTenants(ctx context.Context, limit, offset int) ([]*models.Tenant, int64, error)

	// ListTenantCredentials returns id, webhook secret and upstream
	// application id for every enabled tenant. The webhook authenticator
	// compares the caller's secret against each row in constant time.
	ListTenantCredentials(ctx context.Context) ([]*models.Tenant, error)

	// User methods (management API)
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// Sensor methods
	CreateSensor(ctx context.Context, sensor *models.Sensor) error
	GetSensor(ctx context.Context, id uuid.UUID) (*models.Sensor, error)
	GetSensorByNetworkDeviceID(ctx context.Context, tenantID uuid.UUID, networkDeviceID string) (*models.Sensor, error)
	GetSensorByDevEUI(ctx context.Context, tenantID uuid.UUID, devEUI string) (*models.Sensor, error)
	GetSensorBySerialNumber(ctx context.Context, tenantID uuid.UUID, serial string) (*models.Sensor, error)
	UpdateSensor(ctx context.Context, sensor *models.Sensor) error
	UpdateSensorTelemetry(ctx context.Context, sensor *models.Sensor) error
	UpdateSensorType(ctx context.Context, id uuid.UUID, sensorType models.SensorType) error
	DeleteSensor(ctx context.Context, id uuid.UUID) error
	ListSensors(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Sensor, int64, error)

	// Catalog methods
	CreateCatalogEntry(ctx context.Context, entry *models.CatalogEntry) error
	GetCatalogEntry(ctx context.Context, id uuid.UUID) (*models.CatalogEntry, error)
	UpdateCatalogEntry(ctx context.Context, entry *models.CatalogEntry) error
	DeleteCatalogEntry(ctx context.Context, id uuid.UUID) error
	ListCatalogEntries(ctx context.Context, limit, offset int) ([]*models.CatalogEntry, int64, error)

	// Payload binding methods
	GetPayloadBinding(ctx context.Context, sensorID uuid.UUID) (*models.PayloadBinding, error)
	UpsertPayloadBinding(ctx context.Context, binding *models.PayloadBinding) error

	// Pending change methods
	CreatePendingChange(ctx context.Context, change *models.PendingChange) error
	GetPendingChange(ctx context.Context, id uuid.UUID) (*models.PendingChange, error)
	// ListSentPendingChanges returns changes still in sent status for the
	// sensor, oldest first.
	ListSentPendingChanges(ctx context.Context, sensorID uuid.UUID) ([]*models.PendingChange, error)
	MarkPendingChangeApplied(ctx context.Context, id uuid.UUID, appliedAt time.Time) error
	TouchPendingChange(ctx context.Context, id uuid.UUID, checkedAt time.Time) error
	ListPendingChanges(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.PendingChange, int64, error)

	// Reading methods (append-only)
	CreateReading(ctx context.Context, reading *models.SensorReading) error
	// CreateReadingMinimal inserts the reduced column set, used as a
	// fallback when the full insert fails.
	CreateReadingMinimal(ctx context.Context, reading *models.SensorReading) error
	ListReadings(ctx context.Context, tenantID, sensorID uuid.UUID, limit, offset int) ([]*models.SensorReading, int64, error)

	// Door event methods (append-only)
	CreateDoorEvent(ctx context.Context, event *models.DoorEvent) error
	GetLastDoorEvent(ctx context.Context, sensorID uuid.UUID, unitID *uuid.UUID) (*models.DoorEvent, error)
	ListDoorEvents(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.DoorEvent, int64, error)

	// Close the store
	Close() error
}
