package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/coldtrace/coldtrace-server/internal/classify"
	"github.com/coldtrace/coldtrace-server/internal/decoder"
	"github.com/coldtrace/coldtrace-server/internal/models"
	"github.com/coldtrace/coldtrace-server/internal/notify"
	"github.com/coldtrace/coldtrace-server/internal/pending"
	"github.com/coldtrace/coldtrace-server/internal/storage"
	"github.com/coldtrace/coldtrace-server/internal/telemetry"
)

// Skip reasons reported back to the network server on accepted-but-skipped
// requests.
const (
	ReasonNonUplinkEvent    = "non_uplink_event"
	ReasonJoinEvent         = "join_event"
	ReasonMissingIdentifier = "missing_device_identifier"
	ReasonMalformedDevEUI   = "malformed_dev_eui"
	ReasonUnknownDevice     = "unknown_device"
	ReasonLookupFailed      = "lookup_failed"
)

// Result is the outcome of one webhook request after authentication. A
// false Processed with a Reason means the request was understood but
// intentionally skipped; it is never an error condition upstream should
// retry.
type Result struct {
	Processed bool       `json:"processed"`
	Reason    string     `json:"reason,omitempty"`
	ReadingID *uuid.UUID `json:"readingId,omitempty"`
}

// Orchestrator runs the full uplink pipeline: device resolution, decoding,
// normalization, classification, persistence, confirmation reconciliation
// and downstream fan-out. Every internal failure past device resolution is
// absorbed and logged so the upstream network server never sees a
// retry-triggering status for data we simply could not make sense of.
type Orchestrator struct {
	store      storage.Store
	resolver   *DeviceResolver
	classifier *classify.Classifier
	sandbox    *decoder.Sandbox
	confirm    *pending.Engine
	notifier   *notify.AlarmNotifier
	nc         *nats.Conn
}

// NewOrchestrator wires the pipeline. nc may be nil when NATS is not
// configured; fan-out is then skipped.
func NewOrchestrator(store storage.Store, classifier *classify.Classifier, sandbox *decoder.Sandbox, confirm *pending.Engine, notifier *notify.AlarmNotifier, nc *nats.Conn) *Orchestrator {
	return &Orchestrator{
		store:      store,
		resolver:   NewDeviceResolver(store),
		classifier: classifier,
		sandbox:    sandbox,
		confirm:    confirm,
		notifier:   notifier,
		nc:         nc,
	}
}

// Process handles one authenticated webhook request end to end.
func (o *Orchestrator) Process(ctx context.Context, tenant *models.Tenant, req *WebhookRequest) Result {
	if req.Uplink == nil {
		if req.JoinAccept != nil {
			o.handleJoin(ctx, tenant, req)
			return Result{Processed: false, Reason: ReasonJoinEvent}
		}
		return Result{Processed: false, Reason: ReasonNonUplinkEvent}
	}

	env := NewEnvelope(req)

	if env.NetworkDeviceID == "" && env.DevEUI == "" {
		return Result{Processed: false, Reason: ReasonMissingIdentifier}
	}

	sensor, err := o.resolver.Resolve(ctx, tenant.ID, env)
	if err != nil {
		switch {
		case errors.Is(err, ErrMalformedEUI):
			log.Warn().Str("tenant_id", tenant.ID.String()).Str("dev_eui", env.DevEUI).Msg("uplink carries malformed device EUI")
			return Result{Processed: false, Reason: ReasonMalformedDevEUI}
		case errors.Is(err, storage.ErrNotFound):
			log.Debug().Str("tenant_id", tenant.ID.String()).Str("device_id", env.NetworkDeviceID).Str("dev_eui", env.DevEUI).Msg("uplink from unknown device")
			return Result{Processed: false, Reason: ReasonUnknownDevice}
		default:
			log.Error().Err(err).Str("tenant_id", tenant.ID.String()).Msg("device lookup failed")
			return Result{Processed: false, Reason: ReasonLookupFailed}
		}
	}

	entry := o.loadCatalogEntry(ctx, sensor)

	fields, decodeMatch := o.decode(sensor, entry, env)

	opts := telemetry.Options{}
	if entry != nil {
		opts.TemperatureUnit = entry.TemperatureUnit
		opts.Chemistry = entry.BatteryChemistry
	}
	fields.values = telemetry.Normalize(fields.values, opts)

	cls := o.classifier.Classify(fields.values)

	o.reconcileBinding(ctx, sensor, cls, decodeMatch)

	reading := o.buildReading(tenant, sensor, env, fields, decodeMatch)
	persisted := o.persistReading(ctx, reading)

	o.recordDoorEvent(ctx, sensor, reading, env)
	o.updateSensorTelemetry(ctx, sensor, reading, env)

	o.confirm.Reconcile(ctx, sensor, fields.values, env.ReceivedAt)

	if persisted {
		o.publish(tenant, sensor, reading)
		if o.notifier != nil && o.notifier.Enabled() {
			go o.notifier.Notify(notify.AlarmRequest{
				TenantID:       tenant.ID,
				UnitID:         sensor.UnitID,
				SensorID:       sensor.ID,
				ReadingID:      reading.ID,
				Temperature:    reading.Temperature,
				Humidity:       reading.Humidity,
				BatteryPct:     reading.BatteryPct,
				BatteryVoltage: reading.BatteryVoltage,
				SignalStrength: reading.SignalStrength,
				DoorOpen:       reading.DoorOpen,
				ReceivedAt:     reading.ReceivedAt,
			})
		}
	}

	return Result{Processed: true, ReadingID: &reading.ID}
}

// handleJoin moves a pending sensor into the joining state when its first
// join event arrives. Resolution failures are ignored; the event itself is
// always acknowledged.
func (o *Orchestrator) handleJoin(ctx context.Context, tenant *models.Tenant, req *WebhookRequest) {
	env := &Envelope{
		NetworkDeviceID: req.EndDeviceIDs.DeviceID,
		DevEUI:          req.EndDeviceIDs.DevEUI,
	}
	if env.NetworkDeviceID == "" && env.DevEUI == "" {
		return
	}

	sensor, err := o.resolver.Resolve(ctx, tenant.ID, env)
	if err != nil {
		return
	}
	if sensor.Status != models.SensorStatusPending {
		return
	}

	now := time.Now()
	sensor.Status = models.SensorStatusJoining
	sensor.LastSeenAt = &now
	if err := o.store.UpdateSensorTelemetry(ctx, sensor); err != nil {
		log.Error().Err(err).Str("sensor_id", sensor.ID.String()).Msg("failed to record join event")
	}
}

func (o *Orchestrator) loadCatalogEntry(ctx context.Context, sensor *models.Sensor) *models.CatalogEntry {
	if sensor.CatalogID == nil {
		return nil
	}
	entry, err := o.store.GetCatalogEntry(ctx, *sensor.CatalogID)
	if err != nil {
		log.Warn().Err(err).Str("sensor_id", sensor.ID.String()).Str("catalog_id", sensor.CatalogID.String()).Msg("catalog entry lookup failed, falling back to network decode")
		return nil
	}
	return entry
}

// decodedFields is the working field map plus the truncation flag carried
// from the sandbox.
type decodedFields struct {
	values    map[string]interface{}
	truncated bool
}

// decode resolves which field map is authoritative for this uplink. In app
// mode the sandbox output replaces the network decode; in trust mode the
// sandbox runs for comparison only, unless the network decode is empty.
// Sandbox failures degrade to the network decode and are never fatal.
func (o *Orchestrator) decode(sensor *models.Sensor, entry *models.CatalogEntry, env *Envelope) (decodedFields, *bool) {
	fields := decodedFields{values: copyFields(env.Decoded)}

	mode := sensor.EffectiveDecodeMode(entry)
	if entry == nil || entry.DecoderScript == "" || len(env.RawFrame) == 0 {
		return fields, nil
	}
	if mode != models.DecodeModeApp && mode != models.DecodeModeTrust {
		return fields, nil
	}

	res, err := o.sandbox.Execute(entry.ID.String(), entry.Revision, entry.DecoderScript, env.RawFrame, env.Port)
	if err != nil {
		log.Warn().Err(err).Str("sensor_id", sensor.ID.String()).Str("catalog_id", entry.ID.String()).Int("revision", entry.Revision).Msg("decoder script failed")
		return fields, nil
	}

	if mode == models.DecodeModeApp || len(env.Decoded) == 0 {
		fields.values = res.Fields
		fields.truncated = res.Truncated
		return fields, nil
	}

	// Trust mode with a non-empty network decode: the network decode stays
	// authoritative and the sandbox output only feeds the comparison. Both
	// sides are normalized first so alias spelling differences do not count
	// as mismatches.
	opts := telemetry.Options{TemperatureUnit: entry.TemperatureUnit, Chemistry: entry.BatteryChemistry}
	local := telemetry.Normalize(copyFields(res.Fields), opts)
	network := telemetry.Normalize(copyFields(env.Decoded), opts)

	cmp := decoder.Compare(local, network)
	if !cmp.Match {
		log.Info().Str("sensor_id", sensor.ID.String()).Strs("fields", cmp.MismatchedFields).Msg("decoder output disagrees with network decode")
	}
	match := cmp.Match
	return fields, &match
}

// reconcileBinding self-heals the sensor type and keeps the per-sensor
// payload binding current. Operator-overridden bindings are left untouched,
// counters included.
func (o *Orchestrator) reconcileBinding(ctx context.Context, sensor *models.Sensor, cls classify.Classification, decodeMatch *bool) {
	binding, err := o.store.GetPayloadBinding(ctx, sensor.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Error().Err(err).Str("sensor_id", sensor.ID.String()).Msg("payload binding lookup failed")
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		binding = &models.PayloadBinding{SensorID: sensor.ID, Status: models.BindingStatusPending}
	}

	if binding.Status == models.BindingStatusOverridden {
		return
	}

	if sensor.Type == models.SensorTypeUnknown && cls.SensorType != models.SensorTypeUnknown && !cls.Ambiguous {
		if err := o.store.UpdateSensorType(ctx, sensor.ID, cls.SensorType); err != nil {
			log.Error().Err(err).Str("sensor_id", sensor.ID.String()).Msg("sensor type self-heal failed")
		} else {
			sensor.Type = cls.SensorType
		}
	}

	binding.PayloadType = cls.PayloadType
	binding.InferredModel = cls.InferredModel
	binding.Confidence = cls.Confidence

	if decodeMatch != nil {
		if *decodeMatch {
			binding.MatchCount++
		} else {
			binding.MismatchCount++
		}
	}

	switch {
	case binding.NeedsReview():
		binding.Status = models.BindingStatusReviewRequired
	case cls.PayloadType != classify.PayloadUnclassified:
		binding.Status = models.BindingStatusActive
	}

	if err := o.store.UpsertPayloadBinding(ctx, binding); err != nil {
		log.Error().Err(err).Str("sensor_id", sensor.ID.String()).Msg("payload binding upsert failed")
	}
}

func (o *Orchestrator) buildReading(tenant *models.Tenant, sensor *models.Sensor, env *Envelope, fields decodedFields, decodeMatch *bool) *models.SensorReading {
	reading := &models.SensorReading{
		ID:             uuid.New(),
		TenantID:       tenant.ID,
		SensorID:       sensor.ID,
		UnitID:         sensor.UnitID,
		SignalStrength: env.SignalStrength,
		DecodeMatch:    decodeMatch,
		FrameCounter:   env.FrameCounter,
		ReceivedAt:     env.ReceivedAt,
	}

	if v, ok := telemetry.NumericField(fields.values, telemetry.FieldTemperature); ok {
		reading.Temperature = &v
	}
	if v, ok := telemetry.NumericField(fields.values, telemetry.FieldHumidity); ok {
		reading.Humidity = &v
	}
	if v, ok := telemetry.NumericField(fields.values, telemetry.FieldBattery); ok {
		pct := int(v)
		reading.BatteryPct = &pct
	}
	if v, ok := telemetry.NumericField(fields.values, telemetry.FieldBatteryVoltage); ok {
		reading.BatteryVoltage = &v
	}

	if sensor.Type.HasDoorCapability() {
		if state := telemetry.NormalizeDoorState(fields.values); state.Present() {
			open := state.Open()
			reading.DoorOpen = &open
		}
	}

	if len(env.RawFrame) > 0 {
		reading.RawPayload = base64.StdEncoding.EncodeToString(env.RawFrame)
	}

	if fields.truncated {
		reading.DecodedPayload = models.Variables{"truncated": true}
	} else if len(fields.values) > 0 {
		reading.DecodedPayload = models.Variables(fields.values)
	}

	return reading
}

// persistReading inserts the reading, retrying once with the reduced column
// set when the full insert fails. Reports whether any row landed.
func (o *Orchestrator) persistReading(ctx context.Context, reading *models.SensorReading) bool {
	err := o.store.CreateReading(ctx, reading)
	if err == nil {
		return true
	}
	log.Error().Err(err).Str("sensor_id", reading.SensorID.String()).Msg("reading insert failed, retrying minimal column set")
	if err := o.store.CreateReadingMinimal(ctx, reading); err != nil {
		log.Error().Err(err).Str("sensor_id", reading.SensorID.String()).Msg("minimal reading insert failed, uplink dropped")
		return false
	}
	return true
}

// recordDoorEvent writes a door event when the observed state differs from
// the last recorded one, or when no prior event exists for the sensor's
// current unit assignment.
func (o *Orchestrator) recordDoorEvent(ctx context.Context, sensor *models.Sensor, reading *models.SensorReading, env *Envelope) {
	if reading.DoorOpen == nil {
		return
	}

	last, err := o.store.GetLastDoorEvent(ctx, sensor.ID, sensor.UnitID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// First observation, write the baseline.
	case err != nil:
		log.Error().Err(err).Str("sensor_id", sensor.ID.String()).Msg("door event lookup failed")
		return
	case last.Open == *reading.DoorOpen:
		return
	}

	event := &models.DoorEvent{
		ID:         uuid.New(),
		TenantID:   reading.TenantID,
		SensorID:   sensor.ID,
		UnitID:     sensor.UnitID,
		Open:       *reading.DoorOpen,
		OccurredAt: env.ReceivedAt,
		Source:     env.GatewayID,
	}
	if err := o.store.CreateDoorEvent(ctx, event); err != nil {
		log.Error().Err(err).Str("sensor_id", sensor.ID.String()).Msg("door event insert failed")
	}
}

func (o *Orchestrator) updateSensorTelemetry(ctx context.Context, sensor *models.Sensor, reading *models.SensorReading, env *Envelope) {
	sensor.Status = models.SensorStatusActive
	sensor.LastSeenAt = &env.ReceivedAt
	if reading.BatteryPct != nil {
		sensor.LastBatteryPct = reading.BatteryPct
	}
	if reading.BatteryVoltage != nil {
		sensor.LastBatteryVoltage = reading.BatteryVoltage
	}
	if env.SignalStrength != nil {
		sensor.LastSignalStrength = env.SignalStrength
	}
	if err := o.store.UpdateSensorTelemetry(ctx, sensor); err != nil {
		log.Error().Err(err).Str("sensor_id", sensor.ID.String()).Msg("sensor telemetry update failed")
	}
}

// UplinkEvent is the message fanned out on NATS after a reading is
// persisted.
type UplinkEvent struct {
	TenantID  uuid.UUID  `json:"tenantId"`
	SensorID  uuid.UUID  `json:"sensorId"`
	UnitID    *uuid.UUID `json:"unitId,omitempty"`
	ReadingID uuid.UUID  `json:"readingId"`

	Temperature    *float64 `json:"temperature,omitempty"`
	Humidity       *float64 `json:"humidity,omitempty"`
	BatteryPct     *int     `json:"batteryPct,omitempty"`
	BatteryVoltage *float64 `json:"batteryVoltage,omitempty"`
	SignalStrength *int     `json:"signalStrength,omitempty"`
	DoorOpen       *bool    `json:"doorOpen,omitempty"`

	ReceivedAt time.Time `json:"receivedAt"`
}

func (o *Orchestrator) publish(tenant *models.Tenant, sensor *models.Sensor, reading *models.SensorReading) {
	if o.nc == nil {
		return
	}

	event := UplinkEvent{
		TenantID:       tenant.ID,
		SensorID:       sensor.ID,
		UnitID:         sensor.UnitID,
		ReadingID:      reading.ID,
		Temperature:    reading.Temperature,
		Humidity:       reading.Humidity,
		BatteryPct:     reading.BatteryPct,
		BatteryVoltage: reading.BatteryVoltage,
		SignalStrength: reading.SignalStrength,
		DoorOpen:       reading.DoorOpen,
		ReceivedAt:     reading.ReceivedAt,
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("uplink event marshal failed")
		return
	}

	subject := fmt.Sprintf("tenant.%s.sensor.%s.up", tenant.ID, sensor.ID)
	if err := o.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("uplink event publish failed")
	}
}

func copyFields(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
