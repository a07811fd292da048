package monitoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"heartify/config"
)

// MQTTIngest subscribes to device topics and stores every valid reading.
type MQTTIngest struct {
	client  mqtt.Client
	service *HeartRateService
	topic   string
	qos     byte
	logger  *zap.Logger
}

func NewMQTTIngest(cfg config.MQTTConfig, service *HeartRateService, logger *zap.Logger) *MQTTIngest {
	m := &MQTTIngest{
		service: service,
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		logger:  logger,
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "heartify-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	// Subscriptions are lost on reconnect, so subscribe in the handler.
	opts.OnConnect = func(c mqtt.Client) {
		token := c.Subscribe(m.topic, m.qos, m.handle)
		token.Wait()
		if err := token.Error(); err != nil {
			m.logger.Error("mqtt subscribe failed", zap.String("topic", m.topic), zap.Error(err))
			return
		}
		m.logger.Info("mqtt subscribed", zap.String("topic", m.topic))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		m.logger.Warn("mqtt connection lost", zap.Error(err))
	}

	m.client = mqtt.NewClient(opts)
	return m
}

// Start connects to the broker, waiting at most timeout for the first
// attempt. Later attempts continue in the background.
func (m *MQTTIngest) Start(timeout time.Duration) error {
	token := m.client.Connect()
	if !token.WaitTimeout(timeout) {
		m.logger.Warn("mqtt broker not reachable yet, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (m *MQTTIngest) Stop() {
	m.client.Disconnect(250)
}

func (m *MQTTIngest) handle(_ mqtt.Client, msg mqtt.Message) {
	if _, err := m.ingest(msg.Topic(), msg.Payload()); err != nil {
		m.logger.Warn("mqtt reading rejected", zap.String("topic", msg.Topic()), zap.Error(err))
	}
}

func (m *MQTTIngest) ingest(topic string, payload []byte) (string, error) {
	var in ReadingInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return "", errors.Join(ErrInvalidReading, err)
	}
	if in.HeartifyID == "" {
		in.HeartifyID = DeviceFromTopic(m.topic, topic)
	}
	r, err := m.service.Ingest(in, SourceMQTT)
	if err != nil {
		return "", err
	}
	return r.HeartifyID, nil
}

// DeviceFromTopic returns the level of topic matched by the first "+"
// wildcard of filter, or "" when there is none.
func DeviceFromTopic(filter, topic string) string {
	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")
	for i, part := range filterParts {
		if i >= len(topicParts) {
			return ""
		}
		if part == "+" {
			return topicParts[i]
		}
		if part == "#" {
			return ""
		}
	}
	return ""
}
