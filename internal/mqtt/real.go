package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/afroash/climate-node/internal/models"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker
type RealPublisher struct {
	client paho.Client
	topics Topics
	logger zerolog.Logger
}

// Compile-time interface check
var _ Publisher = (*RealPublisher)(nil)

// NewRealPublisher creates a publisher connected to broker
func NewRealPublisher(broker, clientID, topicPrefix string, logger zerolog.Logger) (*RealPublisher, error) {
	logger = logger.With().Str("component", "mqtt").Logger()

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn().Err(err).Msg("Broker connection lost")
		}).
		SetOnConnectHandler(func(paho.Client) {
			logger.Info().Str("broker", broker).Msg("Connected to broker")
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{
		client: client,
		topics: NewTopics(topicPrefix),
		logger: logger,
	}, nil
}

// PublishSensorData sends a record at QoS 0, not retained
func (p *RealPublisher) PublishSensorData(record *models.SensorRecord) error {
	payload, err := FormatSensorData(record)
	if err != nil {
		return fmt.Errorf("format sensor payload: %w", err)
	}
	return p.publish(p.topics.SensorData, 0, false, payload)
}

// PublishDeviceStatus sends the status at QoS 1, retained
func (p *RealPublisher) PublishDeviceStatus(record *models.DeviceStatusRecord) error {
	payload, err := FormatDeviceStatus(record)
	if err != nil {
		return fmt.Errorf("format status payload: %w", err)
	}
	return p.publish(p.topics.DeviceStatus, 1, true, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
