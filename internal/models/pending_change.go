package models

import (
	"time"

	"github.com/google/uuid"
)

// ChangeType identifies a device-configuration command kind.
type ChangeType string

const (
	ChangeTypeUplinkInterval  ChangeType = "uplink_interval"
	ChangeTypeAlarmThresholds ChangeType = "alarm_thresholds"
	ChangeTypeExternalSensor  ChangeType = "external_sensor"
	ChangeTypeTimeSync        ChangeType = "time_sync"
	ChangeTypeRawCommand      ChangeType = "raw_command"
	ChangeTypeDatalogClear    ChangeType = "datalog_clear"
)

// Valid reports whether t is a known change type.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeTypeUplinkInterval, ChangeTypeAlarmThresholds,
		ChangeTypeExternalSensor, ChangeTypeTimeSync,
		ChangeTypeRawCommand, ChangeTypeDatalogClear:
		return true
	}
	return false
}

// ReadableFromTelemetry reports whether the command's effect can be observed
// in decoded uplink fields. Types that cannot be read back are auto-confirmed
// on the first uplink after dispatch.
func (t ChangeType) ReadableFromTelemetry() bool {
	switch t {
	case ChangeTypeExternalSensor, ChangeTypeAlarmThresholds:
		return true
	}
	return false
}

// ChangeStatus is the lifecycle of a pending change. Applied is terminal.
type ChangeStatus string

const (
	ChangeStatusSent    ChangeStatus = "sent"
	ChangeStatusApplied ChangeStatus = "applied"
)

// PendingChange represents one in-flight device configuration command.
type PendingChange struct {
	BaseModel
	TenantID uuid.UUID `json:"tenantId" db:"tenant_id"`
	SensorID uuid.UUID `json:"sensorId" db:"sensor_id"`

	Type   ChangeType   `json:"type" db:"type"`
	Params Variables    `json:"params" db:"params"`
	Status ChangeStatus `json:"status" db:"status"`

	SentAt        time.Time  `json:"sentAt" db:"sent_at"`
	AppliedAt     *time.Time `json:"appliedAt,omitempty" db:"applied_at"`
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty" db:"last_checked_at"`
}
