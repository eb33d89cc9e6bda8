package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldtrace/coldtrace-server/internal/classify"
	"github.com/coldtrace/coldtrace-server/internal/decoder"
	"github.com/coldtrace/coldtrace-server/internal/models"
	"github.com/coldtrace/coldtrace-server/internal/pending"
)

func newTestOrchestrator(store *fakeStore) *Orchestrator {
	sandbox := decoder.NewSandbox(decoder.Limits{
		MaxScriptBytes: 50 * 1024,
		MaxOutputBytes: 50 * 1024,
		Timeout:        500 * time.Millisecond,
	}, time.Minute, 10)

	return NewOrchestrator(store, classify.New(0.5), sandbox, pending.NewEngine(store), nil, nil)
}

func uplinkRequest(deviceID, devEUI string, decoded map[string]interface{}) *WebhookRequest {
	return &WebhookRequest{
		EndDeviceIDs: EndDeviceIDs{DeviceID: deviceID, DevEUI: devEUI},
		ReceivedAt:   time.Now(),
		Uplink: &UplinkMessage{
			FPort:          2,
			FCnt:           42,
			DecodedPayload: decoded,
			RxMetadata: []RxMetadata{
				{GatewayIDs: GatewayIDs{GatewayID: "gw-01"}, RSSI: -87, SNR: 9.5},
			},
		},
	}
}

func TestProcessNonUplinkEvent(t *testing.T) {
	store := newFakeStore()
	tenant := newTenant("alpha", "secret")
	o := newTestOrchestrator(store)

	result := o.Process(context.Background(), tenant, &WebhookRequest{
		EndDeviceIDs: EndDeviceIDs{DeviceID: "dev-1"},
		DownlinkAck:  &DownlinkAck{FPort: 1},
	})

	assert.False(t, result.Processed)
	assert.Equal(t, ReasonNonUplinkEvent, result.Reason)
	assert.Empty(t, store.readings)
}

func TestProcessJoinEventMovesPendingToJoining(t *testing.T) {
	store := newFakeStore()
	tenant := newTenant("alpha", "secret")
	sensor := newSensor(tenant.ID)
	sensor.NetworkDeviceID = "dev-1"
	store.sensors = []*models.Sensor{sensor}

	o := newTestOrchestrator(store)

	result := o.Process(context.Background(), tenant, &WebhookRequest{
		EndDeviceIDs: EndDeviceIDs{DeviceID: "dev-1"},
		JoinAccept:   &JoinAccept{SessionKeyID: "sk-1"},
	})

	assert.False(t, result.Processed)
	assert.Equal(t, ReasonJoinEvent, result.Reason)
	assert.Equal(t, models.SensorStatusJoining, sensor.Status)
}

func TestProcessMissingIdentifier(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store)

	result := o.Process(context.Background(), newTenant("alpha", "secret"),
		uplinkRequest("", "", map[string]interface{}{"temperature": 20.0}))

	assert.False(t, result.Processed)
	assert.Equal(t, ReasonMissingIdentifier, result.Reason)
}

func TestProcessMalformedEUI(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store)

	result := o.Process(context.Background(), newTenant("alpha", "secret"),
		uplinkRequest("", "zz:zz", map[string]interface{}{"temperature": 20.0}))

	assert.False(t, result.Processed)
	assert.Equal(t, ReasonMalformedDevEUI, result.Reason)
}

func TestProcessUnknownDevice(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store)

	result := o.Process(context.Background(), newTenant("alpha", "secret"),
		uplinkRequest("ghost", "a84041ffff123456", map[string]interface{}{"temperature": 20.0}))

	assert.False(t, result.Processed)
	assert.Equal(t, ReasonUnknownDevice, result.Reason)
}

func TestProcessHappyPath(t *testing.T) {
	store := newFakeStore()
	tenant := newTenant("alpha", "secret")
	sensor := newSensor(tenant.ID)
	sensor.NetworkDeviceID = "fridge-1"
	store.sensors = []*models.Sensor{sensor}

	o := newTestOrchestrator(store)

	result := o.Process(context.Background(), tenant, uplinkRequest("fridge-1", "", map[string]interface{}{
		"temperature": 4.5,
		"humidity":    61.0,
		"BatV":        7.20,
	}))

	assert.True(t, result.Processed)
	assert.Empty(t, result.Reason)
	require.NotNil(t, result.ReadingID)

	require.Len(t, store.readings, 1)
	reading := store.readings[0]
	assert.Equal(t, tenant.ID, reading.TenantID)
	assert.Equal(t, sensor.ID, reading.SensorID)
	require.NotNil(t, reading.Temperature)
	assert.Equal(t, 4.5, *reading.Temperature)
	require.NotNil(t, reading.Humidity)
	assert.Equal(t, 61.0, *reading.Humidity)
	require.NotNil(t, reading.BatteryPct)
	assert.Equal(t, 100, *reading.BatteryPct)
	require.NotNil(t, reading.BatteryVoltage)
	assert.Equal(t, 7.20, *reading.BatteryVoltage)
	require.NotNil(t, reading.SignalStrength)
	assert.Equal(t, -87, *reading.SignalStrength)
	assert.EqualValues(t, 42, reading.FrameCounter)

	// Self-heal: the unknown sensor picked up the classified type.
	assert.Equal(t, models.SensorTypeTemperatureHumidity, store.typeUpdates[sensor.ID])
	assert.Equal(t, models.SensorStatusActive, sensor.Status)

	binding := store.bindings[sensor.ID]
	require.NotNil(t, binding)
	assert.Equal(t, classify.PayloadTempHumV1, binding.PayloadType)
	assert.Equal(t, models.BindingStatusActive, binding.Status)
}

func TestProcessDoorEvents(t *testing.T) {
	store := newFakeStore()
	tenant := newTenant("alpha", "secret")
	sensor := newSensor(tenant.ID)
	sensor.NetworkDeviceID = "door-1"
	sensor.Type = models.SensorTypeDoor
	store.sensors = []*models.Sensor{sensor}

	o := newTestOrchestrator(store)
	ctx := context.Background()

	// First observation establishes the baseline.
	o.Process(ctx, tenant, uplinkRequest("door-1", "", map[string]interface{}{"door_status": 1.0}))
	require.Len(t, store.doorEvents, 1)
	assert.True(t, store.doorEvents[0].Open)
	assert.Equal(t, "gw-01", store.doorEvents[0].Source)

	// Same state again: no event.
	o.Process(ctx, tenant, uplinkRequest("door-1", "", map[string]interface{}{"door_status": 1.0}))
	assert.Len(t, store.doorEvents, 1)

	// Transition to closed: one event.
	o.Process(ctx, tenant, uplinkRequest("door-1", "", map[string]interface{}{"door_status": 0.0}))
	require.Len(t, store.doorEvents, 2)
	assert.False(t, store.doorEvents[1].Open)

	// Payload without door information: state survives untouched.
	o.Process(ctx, tenant, uplinkRequest("door-1", "", map[string]interface{}{"battery_level": 80.0}))
	assert.Len(t, store.doorEvents, 2)
}

func TestProcessDoorFieldIgnoredWithoutDoorCapability(t *testing.T) {
	store := newFakeStore()
	tenant := newTenant("alpha", "secret")
	sensor := newSensor(tenant.ID)
	sensor.NetworkDeviceID = "temp-1"
	sensor.Type = models.SensorTypeTemperature
	store.sensors = []*models.Sensor{sensor}

	o := newTestOrchestrator(store)

	o.Process(context.Background(), tenant, uplinkRequest("temp-1", "", map[string]interface{}{
		"temperature": 20.0,
		"door_status": 1.0,
	}))

	require.Len(t, store.readings, 1)
	assert.Nil(t, store.readings[0].DoorOpen)
	assert.Empty(t, store.doorEvents)
}

func TestProcessReadingInsertFallback(t *testing.T) {
	store := newFakeStore()
	store.failCreateReading = true
	tenant := newTenant("alpha", "secret")
	sensor := newSensor(tenant.ID)
	sensor.NetworkDeviceID = "fridge-1"
	store.sensors = []*models.Sensor{sensor}

	o := newTestOrchestrator(store)

	result := o.Process(context.Background(), tenant,
		uplinkRequest("fridge-1", "", map[string]interface{}{"temperature": 5.0}))

	assert.True(t, result.Processed)
	assert.Equal(t, 1, store.minimalInserts)
	assert.Len(t, store.readings, 1)
}

func TestProcessAutoConfirmsNonReadableChange(t *testing.T) {
	store := newFakeStore()
	tenant := newTenant("alpha", "secret")
	sensor := newSensor(tenant.ID)
	sensor.NetworkDeviceID = "fridge-1"
	store.sensors = []*models.Sensor{sensor}

	change := &models.PendingChange{
		TenantID: tenant.ID,
		SensorID: sensor.ID,
		Type:     models.ChangeTypeTimeSync,
		Status:   models.ChangeStatusSent,
		SentAt:   time.Now().Add(-time.Hour),
	}
	change.ID = uuid.New()
	store.changes = []*models.PendingChange{change}

	o := newTestOrchestrator(store)

	o.Process(context.Background(), tenant,
		uplinkRequest("fridge-1", "", map[string]interface{}{"temperature": 5.0}))

	assert.Equal(t, models.ChangeStatusApplied, change.Status)
	require.NotNil(t, change.AppliedAt)
}

func TestProcessLeavesOverriddenBindingAlone(t *testing.T) {
	store := newFakeStore()
	tenant := newTenant("alpha", "secret")
	sensor := newSensor(tenant.ID)
	sensor.NetworkDeviceID = "door-1"
	store.sensors = []*models.Sensor{sensor}

	binding := &models.PayloadBinding{
		SensorID:    sensor.ID,
		PayloadType: classify.PayloadTempV1,
		Status:      models.BindingStatusOverridden,
	}
	store.bindings[sensor.ID] = binding

	o := newTestOrchestrator(store)

	o.Process(context.Background(), tenant,
		uplinkRequest("door-1", "", map[string]interface{}{"door_status": 1.0}))

	// Neither the binding nor the sensor type moved.
	assert.Equal(t, classify.PayloadTempV1, store.bindings[sensor.ID].PayloadType)
	assert.Equal(t, models.BindingStatusOverridden, store.bindings[sensor.ID].Status)
	_, healed := store.typeUpdates[sensor.ID]
	assert.False(t, healed)
}

func TestProcessAppDecodeMode(t *testing.T) {
	store := newFakeStore()
	tenant := newTenant("alpha", "secret")

	entry := &models.CatalogEntry{
		DecodeMode: models.DecodeModeApp,
		DecoderScript: `
function Decoder(bytes, port) {
	return { temperature: (bytes[0] << 8 | bytes[1]) / 100 };
}
`,
		Revision: 1,
	}
	entry.ID = uuid.New()
	store.catalog[entry.ID] = entry

	sensor := newSensor(tenant.ID)
	sensor.NetworkDeviceID = "fridge-1"
	sensor.CatalogID = &entry.ID
	store.sensors = []*models.Sensor{sensor}

	o := newTestOrchestrator(store)

	req := uplinkRequest("fridge-1", "", map[string]interface{}{"temperature": -99.0})
	req.Uplink.FrmPayload = []byte{0x08, 0x99}

	o.Process(context.Background(), tenant, req)

	require.Len(t, store.readings, 1)
	require.NotNil(t, store.readings[0].Temperature)
	assert.InDelta(t, 22.01, *store.readings[0].Temperature, 1e-9)
}

func TestProcessTrustDecodeModeRecordsMismatch(t *testing.T) {
	store := newFakeStore()
	tenant := newTenant("alpha", "secret")

	entry := &models.CatalogEntry{
		DecodeMode:    models.DecodeModeTrust,
		DecoderScript: `function Decoder(bytes, port) { return { temperature: 25.0 }; }`,
		Revision:      1,
	}
	entry.ID = uuid.New()
	store.catalog[entry.ID] = entry

	sensor := newSensor(tenant.ID)
	sensor.NetworkDeviceID = "fridge-1"
	sensor.CatalogID = &entry.ID
	store.sensors = []*models.Sensor{sensor}

	o := newTestOrchestrator(store)

	req := uplinkRequest("fridge-1", "", map[string]interface{}{"temperature": 20.0})
	req.Uplink.FrmPayload = []byte{0x01}

	o.Process(context.Background(), tenant, req)

	require.Len(t, store.readings, 1)
	reading := store.readings[0]

	// Network decode stays authoritative; the disagreement is recorded.
	require.NotNil(t, reading.Temperature)
	assert.Equal(t, 20.0, *reading.Temperature)
	require.NotNil(t, reading.DecodeMatch)
	assert.False(t, *reading.DecodeMatch)

	binding := store.bindings[sensor.ID]
	require.NotNil(t, binding)
	assert.Equal(t, 1, binding.MismatchCount)
}
