// Package mqtt subscribes to power meter status messages and hands each one to
// the ingest path as a webhook-shaped payload.
package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"powermeter-server/internal/config"
)

// ErrUnrecognizedPayload is returned by ParsePayload for JSON objects that are
// neither a webhook payload nor a Shelly status.
var ErrUnrecognizedPayload = errors.New("unrecognized mqtt payload")

type Subscriber struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once

	// subscribed carries the outcome of the first subscribe after Connect.
	subscribed chan error

	handlerMu      sync.RWMutex
	messageHandler func(payload map[string]any) error
}

// SetMessageHandler sets the handler called for each parsed message.
func (s *Subscriber) SetMessageHandler(handler func(payload map[string]any) error) {
	s.handlerMu.Lock()
	s.messageHandler = handler
	s.handlerMu.Unlock()
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mqtt")

	s := &Subscriber{
		cfg:        cfg,
		logger:     logger,
		stopCh:     make(chan struct{}),
		subscribed: make(chan error, 1),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Clean sessions drop subscriptions, so every (re)connect subscribes again.
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect establishes the broker connection and subscribes to the configured
// topic. It gives up when ctx is done or Disconnect is called.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			break
		}

		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}

	select {
	case err := <-s.subscribed:
		if err != nil {
			s.client.Disconnect(0)
			return fmt.Errorf("subscribe: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.client.Disconnect(0)
		return ctx.Err()
	case <-s.stopCh:
		s.client.Disconnect(0)
		return fmt.Errorf("subscriber stopped")
	}
}

// onConnect runs on paho's goroutine after every successful connect.
func (s *Subscriber) onConnect(c mqtt.Client) {
	s.setConnected(true)
	s.logger.Info("mqtt connected", "broker", s.cfg.MQTTBroker, "port", s.cfg.MQTTPort)

	err := s.subscribe(c)
	if err != nil {
		s.logger.Error("mqtt subscribe failed", "topic", s.cfg.MQTTTopic, "error", err)
	}
	select {
	case s.subscribed <- err:
	default:
	}
}

func (s *Subscriber) subscribe(c mqtt.Client) error {
	topic := s.cfg.MQTTTopic
	qos := byte(1)

	token := c.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, raw []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(raw))

	payload, err := ParsePayload(raw)
	if err != nil {
		s.logger.Warn("failed to parse mqtt message",
			"topic", topic,
			"error", err,
			"payload", string(raw),
		)
		return
	}

	s.handlerMu.RLock()
	handler := s.messageHandler
	s.handlerMu.RUnlock()
	if handler == nil {
		return
	}
	if err := handler(payload); err != nil {
		s.logger.Error("message handler failed", "topic", topic, "error", err)
		return
	}
	s.logger.Debug("processed mqtt message", "topic", topic)
}

// ParsePayload decodes a message body into the webhook payload shape. A body
// carrying the webhook fields is used as is. A Shelly Gen2 switch status is
// mapped: apower to power, aenergy.total to energy.
func ParsePayload(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if obj == nil {
		return nil, ErrUnrecognizedPayload
	}

	if _, ok := obj["power"]; ok {
		return obj, nil
	}

	apower, ok := obj["apower"]
	if !ok {
		return nil, ErrUnrecognizedPayload
	}
	payload := map[string]any{"power": apower}
	for _, k := range []string{"voltage", "current"} {
		if v, ok := obj[k]; ok {
			payload[k] = v
		}
	}
	if aenergy, ok := obj["aenergy"].(map[string]any); ok {
		if total, ok := aenergy["total"]; ok {
			payload["energy"] = total
		}
	}
	return payload, nil
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection. Safe to call
// more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
