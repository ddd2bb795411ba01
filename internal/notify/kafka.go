package notify

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"govwatch/discovery-service/internal/model"
)

// KafkaSink produces each notification to a topic, keyed by recipient so a
// user's notifications stay ordered within a partition.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProducer dials brokers with settings suitable for KafkaSink.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := ProducerConfig()
	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("sarama.NewSyncProducer: %w", err)
	}
	return p, nil
}

// ProducerConfig is the sarama configuration used by NewKafkaProducer.
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	return cfg
}

func NewKafkaSink(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Notify(ctx context.Context, n model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encode(n)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(n.RecipientID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(n.Type)},
		},
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka notify: %w", err)
	}
	return nil
}

// Close releases the underlying producer.
func (s *KafkaSink) Close() error { return s.producer.Close() }
