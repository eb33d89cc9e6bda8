package pending

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldtrace/coldtrace-server/internal/models"
	"github.com/coldtrace/coldtrace-server/internal/storage"
)

func change(t models.ChangeType, params models.Variables) *models.PendingChange {
	c := &models.PendingChange{
		Type:   t,
		Params: params,
		Status: models.ChangeStatusSent,
		SentAt: time.Now().Add(-time.Hour),
	}
	c.ID = uuid.New()
	return c
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		change *models.PendingChange
		fields map[string]interface{}
		want   Outcome
	}{
		{
			name:   "interval change auto confirms on any uplink",
			change: change(models.ChangeTypeUplinkInterval, models.Variables{"seconds": 600}),
			fields: nil,
			want:   OutcomeConfirmed,
		},
		{
			name:   "time sync auto confirms",
			change: change(models.ChangeTypeTimeSync, nil),
			fields: map[string]interface{}{},
			want:   OutcomeConfirmed,
		},
		{
			name:   "external sensor mode matches",
			change: change(models.ChangeTypeExternalSensor, models.Variables{"mode": 1.0}),
			fields: map[string]interface{}{"ext": 1.0},
			want:   OutcomeConfirmed,
		},
		{
			name:   "external sensor mode matches across numeric types",
			change: change(models.ChangeTypeExternalSensor, models.Variables{"mode": 9}),
			fields: map[string]interface{}{"ext": 9.0},
			want:   OutcomeConfirmed,
		},
		{
			name:   "external sensor mode contradicts",
			change: change(models.ChangeTypeExternalSensor, models.Variables{"mode": 1.0}),
			fields: map[string]interface{}{"ext": 9.0},
			want:   OutcomeMismatch,
		},
		{
			name:   "external sensor without ext field is inconclusive",
			change: change(models.ChangeTypeExternalSensor, models.Variables{"mode": 1.0}),
			fields: map[string]interface{}{"temperature": 4.0},
			want:   OutcomeInconclusive,
		},
		{
			name:   "external sensor with non-numeric param is inconclusive",
			change: change(models.ChangeTypeExternalSensor, models.Variables{"mode": "one"}),
			fields: map[string]interface{}{"ext": 1.0},
			want:   OutcomeInconclusive,
		},
		{
			name:   "alarm thresholds enabled matches bool field",
			change: change(models.ChangeTypeAlarmThresholds, models.Variables{"enabled": true}),
			fields: map[string]interface{}{"alarm_enabled": true},
			want:   OutcomeConfirmed,
		},
		{
			name:   "alarm thresholds matches numeric truthiness",
			change: change(models.ChangeTypeAlarmThresholds, models.Variables{"enabled": true}),
			fields: map[string]interface{}{"alarm_enabled": 1.0},
			want:   OutcomeConfirmed,
		},
		{
			name:   "alarm thresholds disabled contradicted by enabled report",
			change: change(models.ChangeTypeAlarmThresholds, models.Variables{"enabled": false}),
			fields: map[string]interface{}{"alarm_enabled": true},
			want:   OutcomeMismatch,
		},
		{
			name:   "alarm thresholds without readback field is inconclusive",
			change: change(models.ChangeTypeAlarmThresholds, models.Variables{"enabled": true}),
			fields: map[string]interface{}{"temperature": 4.0},
			want:   OutcomeInconclusive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.change, tt.fields))
		})
	}
}

type recordingStore struct {
	storage.Store

	changes []*models.PendingChange
	applied []uuid.UUID
	touched []uuid.UUID
}

func (r *recordingStore) ListSentPendingChanges(_ context.Context, _ uuid.UUID) ([]*models.PendingChange, error) {
	return r.changes, nil
}

func (r *recordingStore) MarkPendingChangeApplied(_ context.Context, id uuid.UUID, _ time.Time) error {
	r.applied = append(r.applied, id)
	return nil
}

func (r *recordingStore) TouchPendingChange(_ context.Context, id uuid.UUID, _ time.Time) error {
	r.touched = append(r.touched, id)
	return nil
}

func TestReconcile(t *testing.T) {
	confirmable := change(models.ChangeTypeExternalSensor, models.Variables{"mode": 1.0})
	contradicted := change(models.ChangeTypeAlarmThresholds, models.Variables{"enabled": false})
	silent := change(models.ChangeTypeAlarmThresholds, models.Variables{})

	store := &recordingStore{changes: []*models.PendingChange{confirmable, contradicted, silent}}
	engine := NewEngine(store)

	sensor := &models.Sensor{}
	sensor.ID = uuid.New()

	engine.Reconcile(context.Background(), sensor, map[string]interface{}{
		"ext":           1.0,
		"alarm_enabled": true,
	}, time.Now())

	require.Len(t, store.applied, 1)
	assert.Equal(t, confirmable.ID, store.applied[0])
	require.Len(t, store.touched, 1)
	assert.Equal(t, contradicted.ID, store.touched[0])
}
