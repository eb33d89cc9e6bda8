package ingest

import (
	"time"
)

// Webhook request body, TTN v3 style. Only the subset the pipeline consumes
// is modeled; unknown fields are ignored.

// WebhookRequest is one inbound network-server event. Join events and
// downlink acknowledgements are recognized by the absence of the uplink
// sub-object.
type WebhookRequest struct {
	EndDeviceIDs EndDeviceIDs   `json:"end_device_ids"`
	ReceivedAt   time.Time      `json:"received_at"`
	Uplink       *UplinkMessage `json:"uplink_message,omitempty"`
	JoinAccept   *JoinAccept    `json:"join_accept,omitempty"`
	DownlinkAck  *DownlinkAck   `json:"downlink_ack,omitempty"`
}

// EndDeviceIDs carries the device identifiers
type EndDeviceIDs struct {
	DeviceID       string         `json:"device_id"`
	ApplicationIDs ApplicationIDs `json:"application_ids"`
	DevEUI         string         `json:"dev_eui"`
	JoinEUI        string         `json:"join_eui,omitempty"`
	DevAddr        string         `json:"dev_addr,omitempty"`
}

// ApplicationIDs carries the upstream application identifier
type ApplicationIDs struct {
	ApplicationID string `json:"application_id"`
}

// UplinkMessage is the uplink-specific sub-object
type UplinkMessage struct {
	FPort uint8  `json:"f_port"`
	FCnt  uint32 `json:"f_cnt"`

	// FrmPayload is the base64-encoded raw frame; encoding/json handles the
	// base64 transparently for []byte.
	FrmPayload []byte `json:"frm_payload,omitempty"`

	DecodedPayload map[string]interface{} `json:"decoded_payload,omitempty"`
	RxMetadata     []RxMetadata           `json:"rx_metadata,omitempty"`
	ReceivedAt     time.Time              `json:"received_at,omitempty"`
}

// RxMetadata is per-gateway radio metadata; the first entry is used
type RxMetadata struct {
	GatewayIDs GatewayIDs `json:"gateway_ids"`
	RSSI       float64    `json:"rssi"`
	SNR        float64    `json:"snr"`
}

// GatewayIDs identifies the relaying gateway
type GatewayIDs struct {
	GatewayID string `json:"gateway_id"`
	EUI       string `json:"eui,omitempty"`
}

// JoinAccept marks a join event
type JoinAccept struct {
	SessionKeyID string `json:"session_key_id,omitempty"`
}

// DownlinkAck marks a downlink acknowledgement
type DownlinkAck struct {
	FPort uint8  `json:"f_port,omitempty"`
	FCnt  uint32 `json:"f_cnt,omitempty"`
}

// Envelope is the ephemeral per-request uplink view the pipeline works on.
// It is never persisted verbatim; only derived fields are stored.
type Envelope struct {
	NetworkDeviceID string
	DevEUI          string
	ApplicationID   string

	RawFrame []byte
	Port     int

	Decoded map[string]interface{}

	SignalStrength *int
	GatewayID      string

	ReceivedAt   time.Time
	FrameCounter uint32
}

// NewEnvelope projects a webhook request into the pipeline's uplink view.
// The caller has already established the request carries an uplink.
func NewEnvelope(req *WebhookRequest) *Envelope {
	up := req.Uplink

	env := &Envelope{
		NetworkDeviceID: req.EndDeviceIDs.DeviceID,
		DevEUI:          req.EndDeviceIDs.DevEUI,
		ApplicationID:   req.EndDeviceIDs.ApplicationIDs.ApplicationID,
		RawFrame:        up.FrmPayload,
		Port:            int(up.FPort),
		Decoded:         up.DecodedPayload,
		ReceivedAt:      req.ReceivedAt,
		FrameCounter:    up.FCnt,
	}

	if env.ReceivedAt.IsZero() {
		env.ReceivedAt = up.ReceivedAt
	}
	if env.ReceivedAt.IsZero() {
		env.ReceivedAt = time.Now()
	}

	if len(up.RxMetadata) > 0 {
		rssi := int(up.RxMetadata[0].RSSI)
		env.SignalStrength = &rssi
		env.GatewayID = up.RxMetadata[0].GatewayIDs.GatewayID
	}

	return env
}
