package models

import (
	"time"

	"github.com/google/uuid"
)

// SensorType is the operator-visible classification of a sensor.
type SensorType string

const (
	SensorTypeTemperature         SensorType = "temperature"
	SensorTypeTemperatureHumidity SensorType = "temperature_humidity"
	SensorTypeDoor                SensorType = "door"
	SensorTypeLeak                SensorType = "leak"
	SensorTypeMotion              SensorType = "motion"
	SensorTypeAirQuality          SensorType = "air_quality"
	SensorTypeGPS                 SensorType = "gps"
	SensorTypeMetering            SensorType = "metering"
	SensorTypeCombo               SensorType = "combo"
	SensorTypeUnknown             SensorType = "unknown"
)

// Valid reports whether t is a member of the closed sensor-type set.
func (t SensorType) Valid() bool {
	switch t {
	case SensorTypeTemperature, SensorTypeTemperatureHumidity, SensorTypeDoor,
		SensorTypeLeak, SensorTypeMotion, SensorTypeAirQuality,
		SensorTypeGPS, SensorTypeMetering, SensorTypeCombo, SensorTypeUnknown:
		return true
	}
	return false
}

// HasDoorCapability reports whether readings from this sensor type may carry
// door state. Door events are only ever emitted for these types.
func (t SensorType) HasDoorCapability() bool {
	return t == SensorTypeDoor || t == SensorTypeCombo
}

// SensorStatus is the provisioning lifecycle of a sensor.
type SensorStatus string

const (
	SensorStatusPending SensorStatus = "pending"
	SensorStatusJoining SensorStatus = "joining"
	SensorStatusActive  SensorStatus = "active"
)

// Sensor represents a field device owned by exactly one tenant
type Sensor struct {
	TenantModel

	// Identifiers. DevEUI is stored normalized: lowercase hex, no separators.
	DevEUI          string `json:"devEui" db:"dev_eui"`
	NetworkDeviceID string `json:"networkDeviceId" db:"network_device_id"`
	SerialNumber    string `json:"serialNumber" db:"serial_number"`

	Name   string       `json:"name" db:"name"`
	UnitID *uuid.UUID   `json:"unitId,omitempty" db:"unit_id"`
	Type   SensorType   `json:"type" db:"type"`
	Status SensorStatus `json:"status" db:"status"`

	// CatalogID links the sensor to a device-model catalog entry.
	CatalogID *uuid.UUID `json:"catalogId,omitempty" db:"catalog_id"`

	// DecodeModeOverride, when set, replaces the catalog entry's decode mode
	// for this sensor only.
	DecodeModeOverride *DecodeMode `json:"decodeModeOverride,omitempty" db:"decode_mode_override"`

	// Rolling telemetry, updated on every accepted uplink.
	LastSeenAt         *time.Time `json:"lastSeenAt,omitempty" db:"last_seen_at"`
	LastBatteryPct     *int       `json:"lastBatteryPct,omitempty" db:"last_battery_pct"`
	LastBatteryVoltage *float64   `json:"lastBatteryVoltage,omitempty" db:"last_battery_voltage"`
	LastSignalStrength *int       `json:"lastSignalStrength,omitempty" db:"last_signal_strength"`
}

// EffectiveDecodeMode resolves the decode mode for this sensor against its
// catalog entry. A nil entry means no decoding.
func (s *Sensor) EffectiveDecodeMode(entry *CatalogEntry) DecodeMode {
	if s.DecodeModeOverride != nil {
		return *s.DecodeModeOverride
	}
	if entry == nil {
		return DecodeModeOff
	}
	return entry.DecodeMode
}
