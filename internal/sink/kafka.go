package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/npezzotti/go-callhub/internal/types"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes each persisted chat message to a topic, keyed by
// connection so a conversation stays on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

func encodeMessage(msg types.ChatMessage) (kafka.Message, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(msg.ConnectionId),
		Value: value,
		Time:  time.Now(),
	}, nil
}

func (k *KafkaPublisher) PublishMessage(ctx context.Context, msg types.ChatMessage) error {
	m, err := encodeMessage(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := k.writer.WriteMessages(ctx, m); err != nil {
		return fmt.Errorf("write message to kafka: %w", err)
	}

	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
