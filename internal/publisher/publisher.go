// Package publisher streams finalized candles to Kafka for downstream
// consumers such as the pattern analysis service.
package publisher

import (
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"github.com/agentictrader/marketdata/internal/models"
)

// CandlePublisher produces JSON-encoded candles to a Kafka topic.
type CandlePublisher struct {
	producer *kafka.Producer
	topic    string
	logger   *logrus.Logger
}

// New creates a publisher connected to the given broker.
func New(broker, topic string, logger *logrus.Logger) (*CandlePublisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": broker,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	p := &CandlePublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
	p.startDeliveryReport()
	return p, nil
}

// startDeliveryReport drains the producer's event channel and logs
// failed deliveries.
func (p *CandlePublisher) startDeliveryReport() {
	go func() {
		for e := range p.producer.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					p.logger.Errorf("Candle delivery failed: %v", ev.TopicPartition.Error)
				}
			}
		}
	}()
}

// PublishCandle produces one candle, keyed by symbol so all candles for a
// symbol land on the same partition in order.
func (p *CandlePublisher) PublishCandle(candle models.Candle) error {
	value, err := json.Marshal(candle)
	if err != nil {
		return fmt.Errorf("failed to encode candle: %w", err)
	}

	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(candle.Symbol),
		Value:          value,
	}, nil)
}

// Close flushes outstanding messages and closes the producer.
func (p *CandlePublisher) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
	p.logger.Info("Candle publisher closed")
}
