package pending

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coldtrace/coldtrace-server/internal/models"
	"github.com/coldtrace/coldtrace-server/internal/storage"
)

// Outcome classifies one uplink against one sent change.
type Outcome string

const (
	OutcomeConfirmed    Outcome = "confirmed"
	OutcomeMismatch     Outcome = "mismatch"
	OutcomeInconclusive Outcome = "inconclusive"
)

// Engine reconciles in-flight device configuration commands against observed
// telemetry. It runs for every sent change on every uplink until the change
// resolves or an external timeout escalates it.
type Engine struct {
	store storage.Store
}

// NewEngine creates a confirmation engine
func NewEngine(store storage.Store) *Engine {
	return &Engine{store: store}
}

// Reconcile loads all sent changes for the sensor, oldest first, and
// evaluates each against the uplink's decoded fields. Confirmed changes
// transition to applied; a single contradicting uplink leaves the change in
// sent, because queued frames may arrive out of order. Errors are logged and
// absorbed: confirmation must never fail the surrounding request.
func (e *Engine) Reconcile(ctx context.Context, sensor *models.Sensor, fields map[string]interface{}, receivedAt time.Time) {
	changes, err := e.store.ListSentPendingChanges(ctx, sensor.ID)
	if err != nil {
		log.Error().Err(err).
			Str("sensor_id", sensor.ID.String()).
			Msg("load sent pending changes")
		return
	}

	for _, change := range changes {
		outcome := Evaluate(change, fields)

		switch outcome {
		case OutcomeConfirmed:
			if err := e.store.MarkPendingChangeApplied(ctx, change.ID, receivedAt); err != nil {
				// Already applied by a concurrent uplink is fine.
				if err != storage.ErrNotFound {
					log.Error().Err(err).
						Str("change_id", change.ID.String()).
						Msg("mark pending change applied")
				}
				continue
			}
			log.Info().
				Str("change_id", change.ID.String()).
				Str("sensor_id", sensor.ID.String()).
				Str("type", string(change.Type)).
				Msg("pending change confirmed")

		case OutcomeMismatch:
			// Not proof of failure; escalation is an external timeout's job.
			if err := e.store.TouchPendingChange(ctx, change.ID, receivedAt); err != nil {
				log.Error().Err(err).
					Str("change_id", change.ID.String()).
					Msg("touch pending change")
			}
			log.Warn().
				Str("change_id", change.ID.String()).
				Str("sensor_id", sensor.ID.String()).
				Str("type", string(change.Type)).
				Msg("uplink contradicts pending change, leaving in sent")

		case OutcomeInconclusive:
			// No-op: this uplink carries no evidence either way.
		}
	}
}

// Evaluate classifies the uplink against one change using a command-type
// specific rule. Types with no telemetry readback (interval changes, time
// sync, raw commands, datalog clears) are confirmed by the uplink's mere
// arrival: receipt proves the device is alive and draining its command queue.
func Evaluate(change *models.PendingChange, fields map[string]interface{}) Outcome {
	if !change.Type.ReadableFromTelemetry() {
		return OutcomeConfirmed
	}

	switch change.Type {
	case models.ChangeTypeExternalSensor:
		expected, ok := numericParam(change.Params, "mode")
		if !ok {
			return OutcomeInconclusive
		}
		observed, ok := numericField(fields, "ext")
		if !ok {
			return OutcomeInconclusive
		}
		if observed == expected {
			return OutcomeConfirmed
		}
		return OutcomeMismatch

	case models.ChangeTypeAlarmThresholds:
		expected, ok := change.Params["enabled"].(bool)
		if !ok {
			return OutcomeInconclusive
		}
		observed, ok := boolField(fields, "alarm_enabled")
		if !ok {
			return OutcomeInconclusive
		}
		if observed == expected {
			return OutcomeConfirmed
		}
		return OutcomeMismatch
	}

	return OutcomeInconclusive
}

func numericParam(params models.Variables, key string) (float64, bool) {
	return coerceNumber(params[key])
}

func numericField(fields map[string]interface{}, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	return coerceNumber(v)
}

func boolField(fields map[string]interface{}, key string) (bool, bool) {
	switch v := fields[key].(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	}
	return false, false
}

func coerceNumber(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return math.NaN(), false
}
