package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-client/internal/models"
)

// KafkaPublisher publishes effective ride transitions so the journal
// projector can persist them. It satisfies storage.Journal.
type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{writer: w, timeout: 2 * time.Second}
}

// Record keys messages by ride id so one ride's transitions stay ordered
// within a partition.
func (k *KafkaPublisher) Record(ctx context.Context, t models.Transition) error {
	b, err := EncodeTransition(t)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(t.RideID), Value: b, Time: t.At})
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

func EncodeTransition(t models.Transition) ([]byte, error) {
	if t.RideID == "" {
		return nil, fmt.Errorf("transition without ride id")
	}
	return json.Marshal(t)
}

// DecodeTransition parses a published transition and rejects records that
// could not have come from a tracker.
func DecodeTransition(b []byte) (models.Transition, error) {
	var t models.Transition
	if err := json.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("decode transition: %w", err)
	}
	if t.RideID == "" || t.To.Rank() == 0 {
		return t, fmt.Errorf("invalid transition for ride %q to %q", t.RideID, t.To)
	}
	return t, nil
}
