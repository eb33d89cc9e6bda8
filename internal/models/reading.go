package models

import (
	"time"

	"github.com/google/uuid"
)

// SensorReading is one accepted uplink, append-only, never updated.
type SensorReading struct {
	ID       uuid.UUID  `json:"id" db:"id"`
	TenantID uuid.UUID  `json:"tenantId" db:"tenant_id"`
	SensorID uuid.UUID  `json:"sensorId" db:"sensor_id"`
	UnitID   *uuid.UUID `json:"unitId,omitempty" db:"unit_id"`

	Temperature    *float64 `json:"temperature,omitempty" db:"temperature"`
	Humidity       *float64 `json:"humidity,omitempty" db:"humidity"`
	BatteryPct     *int     `json:"batteryPct,omitempty" db:"battery_pct"`
	BatteryVoltage *float64 `json:"batteryVoltage,omitempty" db:"battery_voltage"`
	SignalStrength *int     `json:"signalStrength,omitempty" db:"signal_strength"`

	// DoorOpen is only set for sensors with door capability.
	DoorOpen *bool `json:"doorOpen,omitempty" db:"door_open"`

	// Audit snapshots.
	RawPayload     string    `json:"rawPayload,omitempty" db:"raw_payload"`
	DecodedPayload Variables `json:"decodedPayload,omitempty" db:"decoded_payload"`

	// DecodeMatch is set when a decoder sandbox comparison ran.
	DecodeMatch *bool `json:"decodeMatch,omitempty" db:"decode_match"`

	FrameCounter uint32    `json:"frameCounter" db:"frame_counter"`
	ReceivedAt   time.Time `json:"receivedAt" db:"received_at"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// DoorEvent is emitted only on a door-state transition, or on the first-ever
// observation establishing a baseline for a unit.
type DoorEvent struct {
	ID       uuid.UUID  `json:"id" db:"id"`
	TenantID uuid.UUID  `json:"tenantId" db:"tenant_id"`
	SensorID uuid.UUID  `json:"sensorId" db:"sensor_id"`
	UnitID   *uuid.UUID `json:"unitId,omitempty" db:"unit_id"`

	Open       bool      `json:"open" db:"open"`
	OccurredAt time.Time `json:"occurredAt" db:"occurred_at"`

	// Source records provenance: which gateway relayed the observation.
	Source    string    `json:"source,omitempty" db:"source"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
