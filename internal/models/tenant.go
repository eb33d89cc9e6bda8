package models

// Tenant represents an organization that owns sensors and units
type Tenant struct {
	BaseModel

	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`

	// WebhookSecret is the shared secret the network server presents on
	// every webhook call. It is the sole tenant boundary for ingestion.
	WebhookSecret string `json:"-" db:"webhook_secret"`

	// UpstreamApplicationID is the application identifier this tenant's
	// devices are registered under on the network server.
	UpstreamApplicationID string `json:"upstreamApplicationId" db:"upstream_application_id"`

	// Outbound forwarding configuration (consumed by the integration
	// forwarder, never by the ingestion path).
	HTTPIntegration *Variables `json:"httpIntegration,omitempty" db:"http_integration"`
	MQTTIntegration *Variables `json:"mqttIntegration,omitempty" db:"mqtt_integration"`

	IsDisabled bool `json:"isDisabled" db:"is_disabled"`
}
