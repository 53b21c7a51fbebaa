package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tjfontaine/scene-gateway/internal/domain"
)

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// mqttClient is the part of paho.Client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes directives as retained QoS 1 messages, so a renderer
// that subscribes late still receives the current scene.
type MQTTPublisher struct {
	prefix string
	client mqttClient
	logger *slog.Logger
	now    func() time.Time
}

// NewMQTT connects to the broker and returns a publisher.
func NewMQTT(cfg MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt: broker url is required")
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Error("mqtt connection lost", "error", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, token.Error()
	}

	return newMQTTPublisher(client, cfg.TopicPrefix, logger), nil
}

func newMQTTPublisher(client mqttClient, prefix string, logger *slog.Logger) *MQTTPublisher {
	return &MQTTPublisher{prefix: prefix, client: client, logger: logger, now: time.Now}
}

// Publish sends d on the conversation's directive topic and waits for the
// broker acknowledgement or ctx.
func (p *MQTTPublisher) Publish(ctx context.Context, conversationID string, d *domain.Directive) error {
	// paho does not check topics; a wildcard in a PUBLISH makes the broker
	// drop the shared session.
	if !domain.ValidConversationID(conversationID) {
		return fmt.Errorf("invalid conversation id %q for topic", conversationID)
	}
	body, err := json.Marshal(Message{ConversationID: conversationID, Directive: d, PublishedAt: p.now().UTC()})
	if err != nil {
		return err
	}

	topic := TopicDirective(p.prefix, conversationID)
	token := p.client.Publish(topic, 1, true, body)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		if err := token.Error(); err != nil {
			return err
		}
	}
	p.logger.Debug("directive published", "topic", topic, "bytes", len(body))
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
