package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/coldtrace/coldtrace-server/internal/models"
	"github.com/coldtrace/coldtrace-server/internal/storage"
)

// DeviceResolver maps an uplink's device identifiers to the owning sensor,
// always scoped to the authenticated tenant.
type DeviceResolver struct {
	store storage.Store
}

// NewDeviceResolver creates a device resolver
func NewDeviceResolver(store storage.Store) *DeviceResolver {
	return &DeviceResolver{store: store}
}

// Resolve tries, in priority order: the network-assigned device id, the
// device EUI in its four formatting variants, and a legacy serial-number
// fallback with the same variant matching. The first match wins; the list is
// a priority order, not a union.
func (r *DeviceResolver) Resolve(ctx context.Context, tenantID uuid.UUID, env *Envelope) (*models.Sensor, error) {
	if env.NetworkDeviceID != "" {
		sensor, err := r.store.GetSensorByNetworkDeviceID(ctx, tenantID, env.NetworkDeviceID)
		if err == nil {
			return sensor, nil
		}
		if err != storage.ErrNotFound {
			return nil, err
		}
	}

	if env.DevEUI != "" {
		normalized, err := NormalizeEUI(env.DevEUI)
		if err != nil {
			return nil, err
		}

		for _, variant := range EUIVariants(normalized) {
			sensor, err := r.store.GetSensorByDevEUI(ctx, tenantID, variant)
			if err == nil {
				return sensor, nil
			}
			if err != storage.ErrNotFound {
				return nil, err
			}
		}

		for _, variant := range EUIVariants(normalized) {
			sensor, err := r.store.GetSensorBySerialNumber(ctx, tenantID, variant)
			if err == nil {
				return sensor, nil
			}
			if err != storage.ErrNotFound {
				return nil, err
			}
		}
	}

	return nil, storage.ErrNotFound
}
