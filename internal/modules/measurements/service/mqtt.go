package service

import (
	"context"
	"log/slog"
)

// SourceMQTT labels measurements received from the MQTT subscriber.
const SourceMQTT = "mqtt"

// MQTTSubscriber interface for attaching message handlers
type MQTTSubscriber interface {
	SetMessageHandler(handler func(payload map[string]any) error)
}

// Register attaches the ingest path to subscriber. Call before Connect so the
// handler is in place when the broker delivers queued messages.
func (s *Service) Register(subscriber MQTTSubscriber) {
	registerMQTTHandler(subscriber, s, s.logger)
}

func registerMQTTHandler(subscriber MQTTSubscriber, s *Service, logger *slog.Logger) {
	subscriber.SetMessageHandler(func(payload map[string]any) error {
		m, err := s.Ingest(context.Background(), SourceMQTT, payload)
		if err != nil {
			if IsValidation(err) {
				logger.Warn("mqtt measurement rejected", "error", err)
			}
			return err
		}
		logger.Debug("stored mqtt measurement", "timestamp", m.Timestamp)
		return nil
	})
}
