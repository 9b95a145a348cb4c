// Package dispatch publishes notification events to the message broker
package dispatch

import (
	"fmt"

	"medifin-backend/internal/config"

	"github.com/IBM/sarama"
)

// Producer wraps a synchronous Kafka producer
type Producer struct {
	producer sarama.SyncProducer
}

// NewProducer creates a Kafka producer for notification dispatch
func NewProducer(cfg *config.KafkaConfig) (*Producer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &Producer{producer: producer}, nil
}

// Send publishes one message keyed for per-booking ordering
func (p *Producer) Send(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

// Close shuts down the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
