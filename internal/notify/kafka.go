package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

type kafkaNotifier struct {
	writer *kafka.Writer
}

type kafkaEvent struct {
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func NewKafka(brokers []string, topic string) Notifier {
	return &kafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (n *kafkaNotifier) Deliver(ctx context.Context, userID, message string) error {
	payload, err := json.Marshal(kafkaEvent{
		UserID:    userID,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(userID),
		Value: payload,
	})
}

func (n *kafkaNotifier) Close() error {
	return n.writer.Close()
}
