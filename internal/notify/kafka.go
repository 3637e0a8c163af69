package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
)

// envelope is the JSON document written to the Kafka topic.
type envelope struct {
	Event     string   `json:"event"`
	Payload   any      `json:"payload"`
	UserIDs   []string `json:"user_ids,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// KafkaPublisher writes events to a single topic using a synchronous
// producer, so a returned nil error means the broker acknowledged the write.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

func (k *KafkaPublisher) Publish(_ context.Context, event string, payload any, userIDs ...string) error {
	data, err := json.Marshal(envelope{
		Event:     event,
		Payload:   payload,
		UserIDs:   userIDs,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("failed to send kafka message: %w", err)
	}

	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
