package telemetry

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mesh-gateway/meshgw/internal/config"
)

const mqttConnectTimeout = 10 * time.Second

// MQTTSink mirrors every telemetry event to an MQTT broker, one topic per
// event type under the configured prefix.
type MQTTSink struct {
	client mqtt.Client
	prefix string
	logger *slog.Logger
}

var _ Sink = (*MQTTSink)(nil)

// NewMQTTSink connects to the broker and returns the sink.
func NewMQTTSink(cfg config.MQTTConfig, logger *slog.Logger) (*MQTTSink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	clientID := cfg.ClientID
	if clientID == "" {
		randomID := make([]byte, 4)
		_, _ = rand.Read(randomID)
		clientID = fmt.Sprintf("meshgw-%x", randomID)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(clientID)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect MQTT: %w", err)
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "meshgw/events"
	}
	return &MQTTSink{client: client, prefix: prefix, logger: logger}, nil
}

// Publish sends one event as JSON. Broker failures are logged, never
// propagated: the mirror must not stall or fail the gateway.
func (s *MQTTSink) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to encode telemetry event", "event", event.ID, "error", err)
		return
	}

	topic := fmt.Sprintf("%s/%s", s.prefix, event.Type)
	token := s.client.Publish(topic, 0, false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			s.logger.Warn("failed to mirror telemetry event", "topic", topic, "error", err)
		}
	}()
}

// Close disconnects from the broker, allowing in-flight publishes to drain.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
