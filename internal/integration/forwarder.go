package integration

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/coldtrace/coldtrace-server/internal/ingest"
	"github.com/coldtrace/coldtrace-server/internal/models"
	"github.com/coldtrace/coldtrace-server/internal/storage"
)

// ForwarderService relays persisted readings to each tenant's configured
// external integrations. It consumes the uplink events the ingest pipeline
// publishes on NATS, so forwarding failures can never back-pressure the
// webhook path.
type ForwarderService struct {
	nc    *nats.Conn
	store storage.Store

	mqttClients map[uuid.UUID]mqtt.Client
	clientsMu   sync.RWMutex

	httpClient *http.Client
}

// NewForwarderService creates the forwarder.
func NewForwarderService(nc *nats.Conn, store storage.Store) *ForwarderService {
	return &ForwarderService{
		nc:          nc,
		store:       store,
		mqttClients: make(map[uuid.UUID]mqtt.Client),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Start subscribes to uplink events and blocks until the context is
// cancelled.
func (s *ForwarderService) Start(ctx context.Context) error {
	sub, err := s.nc.Subscribe("tenant.*.sensor.*.up", s.handleUplinkEvent)
	if err != nil {
		return fmt.Errorf("subscribe to uplink events: %w", err)
	}

	log.Info().Msg("Integration forwarder service started")

	<-ctx.Done()

	sub.Unsubscribe()
	s.closeAllMQTTConnections()

	return nil
}

// handleUplinkEvent fans one persisted reading out to the owning tenant's
// integrations.
func (s *ForwarderService) handleUplinkEvent(msg *nats.Msg) {
	parts := strings.Split(msg.Subject, ".")
	if len(parts) != 5 {
		return
	}

	tenantID, err := uuid.Parse(parts[1])
	if err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Invalid tenant ID in subject")
		return
	}

	ctx := context.Background()
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("Failed to get tenant")
		return
	}

	var event ingest.UplinkEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.Error().Err(err).Msg("Failed to parse uplink event")
		return
	}

	if s.isHTTPEnabled(tenant) {
		go s.forwardToHTTP(tenant, event)
	}

	if s.isMQTTEnabled(tenant) {
		go s.forwardToMQTT(tenant, event)
	}
}

// forwardToHTTP posts one reading to the tenant's HTTP endpoint.
func (s *ForwarderService) forwardToHTTP(tenant *models.Tenant, event ingest.UplinkEvent) {
	config := s.getHTTPConfig(tenant)
	if config == nil || !config.Enabled {
		return
	}

	jsonData, err := json.Marshal(forwardBody(tenant, event))
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal forward data")
		return
	}

	req, err := http.NewRequest("POST", config.Endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP request")
		return
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Error().
			Err(err).
			Str("endpoint", config.Endpoint).
			Msg("Failed to forward reading to HTTP")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("endpoint", config.Endpoint).
			Msg("HTTP forward failed")
	} else {
		log.Debug().
			Str("sensor_id", event.SensorID.String()).
			Str("endpoint", config.Endpoint).
			Msg("Reading forwarded to HTTP successfully")
	}
}

// forwardToMQTT publishes one reading to the tenant's MQTT broker.
func (s *ForwarderService) forwardToMQTT(tenant *models.Tenant, event ingest.UplinkEvent) {
	config := s.getMQTTConfig(tenant)
	if config == nil || !config.Enabled {
		return
	}

	client := s.getMQTTClient(tenant.ID)
	if client == nil {
		client = s.createMQTTClient(tenant.ID, config)
		if client == nil {
			return
		}
	}

	topic := config.TopicPattern
	topic = strings.ReplaceAll(topic, "{tenant_id}", tenant.ID.String())
	topic = strings.ReplaceAll(topic, "{sensor_id}", event.SensorID.String())

	jsonData, err := json.Marshal(forwardBody(tenant, event))
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal MQTT data")
		return
	}

	token := client.Publish(topic, config.QoS, false, jsonData)
	if token.WaitTimeout(5 * time.Second) {
		if err := token.Error(); err != nil {
			log.Error().
				Err(err).
				Str("topic", topic).
				Msg("Failed to publish to MQTT")
		} else {
			log.Debug().
				Str("sensor_id", event.SensorID.String()).
				Str("topic", topic).
				Msg("Reading forwarded to MQTT successfully")
		}
	} else {
		log.Error().
			Str("topic", topic).
			Msg("MQTT publish timeout")
	}
}

func forwardBody(tenant *models.Tenant, event ingest.UplinkEvent) map[string]interface{} {
	return map[string]interface{}{
		"tenantID":       tenant.ID.String(),
		"tenantName":     tenant.Name,
		"sensorID":       event.SensorID.String(),
		"unitID":         event.UnitID,
		"readingID":      event.ReadingID.String(),
		"temperature":    event.Temperature,
		"humidity":       event.Humidity,
		"batteryPct":     event.BatteryPct,
		"batteryVoltage": event.BatteryVoltage,
		"signalStrength": event.SignalStrength,
		"doorOpen":       event.DoorOpen,
		"receivedAt":     event.ReceivedAt,
		"timestamp":      time.Now(),
	}
}

// getMQTTClient returns the pooled client if it is still connected.
func (s *ForwarderService) getMQTTClient(tenantID uuid.UUID) mqtt.Client {
	s.clientsMu.RLock()
	client, exists := s.mqttClients[tenantID]
	s.clientsMu.RUnlock()

	if exists && client.IsConnected() {
		return client
	}

	return nil
}

// createMQTTClient connects a new per-tenant client and pools it.
func (s *ForwarderService) createMQTTClient(tenantID uuid.UUID, config *MQTTConfig) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(fmt.Sprintf("coldtrace-tenant-%s", tenantID))

	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	if config.TLS {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: true, // TODO: load tenant-supplied CA certs
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().
			Str("tenant_id", tenantID.String()).
			Msg("MQTT client connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().
			Err(err).
			Str("tenant_id", tenantID.String()).
			Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()

	if token.WaitTimeout(10*time.Second) && token.Error() == nil {
		s.clientsMu.Lock()
		s.mqttClients[tenantID] = client
		s.clientsMu.Unlock()
		return client
	}

	log.Error().
		Err(token.Error()).
		Str("tenant_id", tenantID.String()).
		Msg("Failed to connect MQTT client")

	return nil
}

// closeAllMQTTConnections drains the client pool on shutdown.
func (s *ForwarderService) closeAllMQTTConnections() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for tenantID, client := range s.mqttClients {
		if client.IsConnected() {
			client.Disconnect(250)
		}
		delete(s.mqttClients, tenantID)

		log.Info().
			Str("tenant_id", tenantID.String()).
			Msg("MQTT client disconnected")
	}
}

// Helper functions

func (s *ForwarderService) isHTTPEnabled(tenant *models.Tenant) bool {
	config := s.getHTTPConfig(tenant)
	return config != nil && config.Enabled
}

func (s *ForwarderService) isMQTTEnabled(tenant *models.Tenant) bool {
	config := s.getMQTTConfig(tenant)
	return config != nil && config.Enabled
}

func (s *ForwarderService) getHTTPConfig(tenant *models.Tenant) *HTTPConfig {
	if tenant.HTTPIntegration == nil {
		return nil
	}

	var config HTTPConfig
	configBytes, _ := json.Marshal(*tenant.HTTPIntegration)
	if err := json.Unmarshal(configBytes, &config); err != nil {
		return nil
	}

	return &config
}

func (s *ForwarderService) getMQTTConfig(tenant *models.Tenant) *MQTTConfig {
	if tenant.MQTTIntegration == nil {
		return nil
	}

	var config MQTTConfig
	configBytes, _ := json.Marshal(*tenant.MQTTIntegration)
	if err := json.Unmarshal(configBytes, &config); err != nil {
		return nil
	}

	return &config
}

// Integration configuration shapes, stored per tenant as JSONB.

type HTTPConfig struct {
	Enabled  bool              `json:"enabled"`
	Endpoint string            `json:"endpoint"`
	Headers  map[string]string `json:"headers"`
	Timeout  int               `json:"timeout"`
}

type MQTTConfig struct {
	Enabled      bool   `json:"enabled"`
	BrokerURL    string `json:"brokerUrl"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	TopicPattern string `json:"topicPattern"`
	QoS          byte   `json:"qos"`
	TLS          bool   `json:"tls"`
}
