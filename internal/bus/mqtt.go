package bus

import (
	"context"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// MQTTBus is the broker-backed transport. Publishes use QoS 1; the broker
// may redeliver, duplicate triggers are absorbed by job admission.
type MQTTBus struct {
	client         mqtt.Client
	publishTimeout time.Duration
	logger         *log.Logger
}

func NewMQTTBus(cfg MQTTConfig, logger *log.Logger) (*MQTTBus, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("mqtt broker url is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "reportpdf-1"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}

	options := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			if logger != nil {
				logger.Printf("mqtt connection lost: %v", err)
			}
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			if logger != nil {
				logger.Printf("mqtt connected broker=%s client_id=%s", cfg.BrokerURL, cfg.ClientID)
			}
		})
	if cfg.Username != "" {
		options.SetUsername(cfg.Username)
		options.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(options)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connect mqtt: timeout after %s", cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt: %w", err)
	}

	return &MQTTBus{
		client:         client,
		publishTimeout: cfg.PublishTimeout,
		logger:         logger,
	}, nil
}

func (b *MQTTBus) Publish(ctx context.Context, topic string, payload []byte) error {
	token := b.client.Publish(topic, 1, false, payload)

	completed := make(chan bool, 1)
	go func() {
		completed <- token.WaitTimeout(b.publishTimeout)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ok := <-completed:
		if !ok {
			return fmt.Errorf("publish %s: timeout after %s", topic, b.publishTimeout)
		}
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *MQTTBus) Subscribe(ctx context.Context, filter string, handler Handler) error {
	token := b.client.Subscribe(filter, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(ctx, Message{Topic: msg.Topic(), Payload: msg.Payload()})
	})
	if !token.WaitTimeout(b.publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout after %s", filter, b.publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	if b.logger != nil {
		b.logger.Printf("mqtt subscribed filter=%s", filter)
	}
	return nil
}

func (b *MQTTBus) Close() {
	b.client.Disconnect(250)
}
