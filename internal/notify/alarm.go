package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AlarmRequest is the shape of the fire-and-forget call to the downstream
// alarm-evaluation service.
type AlarmRequest struct {
	TenantID  uuid.UUID  `json:"tenant_id"`
	UnitID    *uuid.UUID `json:"unit_id,omitempty"`
	SensorID  uuid.UUID  `json:"sensor_id"`
	ReadingID uuid.UUID  `json:"reading_id"`

	Temperature    *float64 `json:"temperature,omitempty"`
	Humidity       *float64 `json:"humidity,omitempty"`
	BatteryPct     *int     `json:"battery_pct,omitempty"`
	BatteryVoltage *float64 `json:"battery_voltage,omitempty"`
	SignalStrength *int     `json:"signal_strength,omitempty"`
	DoorOpen       *bool    `json:"door_open,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// AlarmNotifier dispatches readings to the alarm-evaluation service. Calls
// are fired from a goroutine and never awaited by the request path, so a
// slow or failing downstream cannot affect upstream-visible latency or
// retry behavior.
type AlarmNotifier struct {
	url    string
	client *http.Client
}

// NewAlarmNotifier creates an alarm notifier. An empty URL disables dispatch.
func NewAlarmNotifier(url string, timeout time.Duration) *AlarmNotifier {
	return &AlarmNotifier{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled reports whether a destination is configured.
func (n *AlarmNotifier) Enabled() bool {
	return n.url != ""
}

// Notify posts the reading for evaluation. Failures are logged only.
func (n *AlarmNotifier) Notify(req AlarmRequest) {
	if !n.Enabled() {
		return
	}

	body, err := json.Marshal(req)
	if err != nil {
		log.Error().Err(err).Msg("marshal alarm evaluation request")
		return
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).
			Str("url", n.url).
			Str("reading_id", req.ReadingID.String()).
			Msg("alarm evaluation dispatch failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("reading_id", req.ReadingID.String()).
			Msg("alarm evaluation rejected reading")
		return
	}

	log.Debug().
		Str("reading_id", req.ReadingID.String()).
		Msg("alarm evaluation dispatched")
}
