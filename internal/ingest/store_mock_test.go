package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/coldtrace/coldtrace-server/internal/models"
	"github.com/coldtrace/coldtrace-server/internal/storage"
)

// fakeStore is an in-memory Store for pipeline tests. Unimplemented methods
// panic through the embedded nil interface, which makes an unexpected call
// obvious.
type fakeStore struct {
	storage.Store

	tenants  []*models.Tenant
	sensors  []*models.Sensor
	catalog  map[uuid.UUID]*models.CatalogEntry
	bindings map[uuid.UUID]*models.PayloadBinding
	changes  []*models.PendingChange

	readings   []*models.SensorReading
	doorEvents []*models.DoorEvent

	typeUpdates map[uuid.UUID]models.SensorType

	failCreateReading bool
	minimalInserts    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		catalog:     make(map[uuid.UUID]*models.CatalogEntry),
		bindings:    make(map[uuid.UUID]*models.PayloadBinding),
		typeUpdates: make(map[uuid.UUID]models.SensorType),
	}
}

func (f *fakeStore) ListTenantCredentials(ctx context.Context) ([]*models.Tenant, error) {
	return f.tenants, nil
}

func (f *fakeStore) GetSensorByNetworkDeviceID(ctx context.Context, tenantID uuid.UUID, networkDeviceID string) (*models.Sensor, error) {
	for _, s := range f.sensors {
		if s.TenantID == tenantID && s.NetworkDeviceID == networkDeviceID && networkDeviceID != "" {
			return s, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) GetSensorByDevEUI(ctx context.Context, tenantID uuid.UUID, devEUI string) (*models.Sensor, error) {
	for _, s := range f.sensors {
		if s.TenantID == tenantID && s.DevEUI == devEUI {
			return s, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) GetSensorBySerialNumber(ctx context.Context, tenantID uuid.UUID, serial string) (*models.Sensor, error) {
	for _, s := range f.sensors {
		if s.TenantID == tenantID && s.SerialNumber == serial && serial != "" {
			return s, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) GetCatalogEntry(ctx context.Context, id uuid.UUID) (*models.CatalogEntry, error) {
	if entry, ok := f.catalog[id]; ok {
		return entry, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) GetPayloadBinding(ctx context.Context, sensorID uuid.UUID) (*models.PayloadBinding, error) {
	if b, ok := f.bindings[sensorID]; ok {
		return b, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) UpsertPayloadBinding(ctx context.Context, binding *models.PayloadBinding) error {
	f.bindings[binding.SensorID] = binding
	return nil
}

func (f *fakeStore) UpdateSensorType(ctx context.Context, id uuid.UUID, sensorType models.SensorType) error {
	f.typeUpdates[id] = sensorType
	return nil
}

func (f *fakeStore) UpdateSensorTelemetry(ctx context.Context, sensor *models.Sensor) error {
	return nil
}

func (f *fakeStore) CreateReading(ctx context.Context, reading *models.SensorReading) error {
	if f.failCreateReading {
		return storage.ErrInvalidData
	}
	f.readings = append(f.readings, reading)
	return nil
}

func (f *fakeStore) CreateReadingMinimal(ctx context.Context, reading *models.SensorReading) error {
	f.minimalInserts++
	f.readings = append(f.readings, reading)
	return nil
}

func (f *fakeStore) CreateDoorEvent(ctx context.Context, event *models.DoorEvent) error {
	f.doorEvents = append(f.doorEvents, event)
	return nil
}

func (f *fakeStore) GetLastDoorEvent(ctx context.Context, sensorID uuid.UUID, unitID *uuid.UUID) (*models.DoorEvent, error) {
	for i := len(f.doorEvents) - 1; i >= 0; i-- {
		e := f.doorEvents[i]
		if unitID != nil {
			if e.UnitID != nil && *e.UnitID == *unitID {
				return e, nil
			}
			continue
		}
		if e.SensorID == sensorID {
			return e, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ListSentPendingChanges(ctx context.Context, sensorID uuid.UUID) ([]*models.PendingChange, error) {
	var out []*models.PendingChange
	for _, c := range f.changes {
		if c.SensorID == sensorID && c.Status == models.ChangeStatusSent {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkPendingChangeApplied(ctx context.Context, id uuid.UUID, appliedAt time.Time) error {
	for _, c := range f.changes {
		if c.ID == id && c.Status == models.ChangeStatusSent {
			c.Status = models.ChangeStatusApplied
			c.AppliedAt = &appliedAt
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) TouchPendingChange(ctx context.Context, id uuid.UUID, checkedAt time.Time) error {
	for _, c := range f.changes {
		if c.ID == id {
			c.LastCheckedAt = &checkedAt
			return nil
		}
	}
	return storage.ErrNotFound
}
