// Package kafka republishes stored measurements to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"powermeter-server/internal/config"
	"powermeter-server/internal/metrics"
	"powermeter-server/internal/modules/measurements/types"
)

const flushTimeout = 5 * time.Second

// Publisher sends measurements without blocking and never reports failures to
// the caller. Close flushes whatever is still buffered.
type Publisher interface {
	Publish(m types.Measurement)
	Close()
}

// produceClient is the part of *kgo.Client the producer uses.
type produceClient interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

type producer struct {
	client produceClient
	topic  string
	logger *slog.Logger
}

// Connect creates the topic if needed and checks that a broker answers within
// cfg.KafkaConnectTimeout. When none does, it returns a publisher that drops
// messages together with an error wrapping ErrBrokerUnavailable; the caller
// may keep using that publisher.
func Connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "kafka", "topic", cfg.KafkaTopic)

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.DefaultProduceTopic(cfg.KafkaTopic),
		kgo.RecordDeliveryTimeout(30*time.Second),
	)
	if err != nil {
		return disabled{logger: logger}, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.KafkaConnectTimeout)
	defer cancel()

	ensureTopic(connectCtx, kadm.NewClient(client), cfg, logger)

	if err := client.Ping(connectCtx); err != nil {
		client.Close()
		return disabled{logger: logger}, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	logger.Info("kafka producer connected", "brokers", cfg.KafkaBrokers)
	return &producer{client: client, topic: cfg.KafkaTopic, logger: logger}, nil
}

// ensureTopic creates the topic. An existing topic is fine; other failures are
// logged because the producer may still work against an auto-creating cluster.
func ensureTopic(ctx context.Context, adm *kadm.Client, cfg config.Config, logger *slog.Logger) {
	resp, err := adm.CreateTopics(ctx, cfg.KafkaTopicPartitions, cfg.KafkaTopicReplication, nil, cfg.KafkaTopic)
	if err != nil {
		logger.Warn("kafka topic creation failed", "error", err)
		return
	}
	for _, t := range resp {
		switch {
		case t.Err == nil:
			logger.Info("kafka topic created",
				"partitions", cfg.KafkaTopicPartitions,
				"replication", cfg.KafkaTopicReplication,
			)
		case errors.Is(t.Err, kerr.TopicAlreadyExists):
			logger.Debug("kafka topic already exists")
		default:
			logger.Warn("kafka topic creation failed", "error", t.Err)
		}
	}
}

func (p *producer) Publish(m types.Measurement) {
	value, err := json.Marshal(m)
	if err != nil {
		metrics.PublishTotal.WithLabelValues(metrics.PublishFailed).Inc()
		p.logger.Error("kafka message encode failed", "error", err)
		return
	}
	p.client.TryProduce(context.Background(), &kgo.Record{Topic: p.topic, Value: value}, p.delivered)
}

func (p *producer) delivered(r *kgo.Record, err error) {
	if err != nil {
		metrics.PublishTotal.WithLabelValues(metrics.PublishFailed).Inc()
		p.logger.Error("kafka publish failed", "error", &PublishError{Topic: r.Topic, Err: err})
		return
	}
	metrics.PublishTotal.WithLabelValues(metrics.PublishDelivered).Inc()
	p.logger.Debug("kafka record delivered", "partition", r.Partition, "offset", r.Offset)
}

func (p *producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("kafka flush incomplete", "error", err)
	}
	p.client.Close()
	p.logger.Info("kafka producer closed")
}

// disabled stands in when the broker was unreachable at startup.
type disabled struct {
	logger *slog.Logger
}

func (d disabled) Publish(m types.Measurement) {
	metrics.PublishTotal.WithLabelValues(metrics.PublishDropped).Inc()
	d.logger.Warn("kafka unavailable, dropping measurement", "timestamp", m.Timestamp)
}

func (d disabled) Close() {}
