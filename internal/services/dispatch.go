package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Jarrydtb/scripter/internal/events"
)

const dispatchWriteTimeout = 10 * time.Second

// Dispatcher is the slice of *kafka.Writer the services need. Tests swap in
// a recording implementation.
type Dispatcher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// dispatch publishes one payload on the work queue, keyed so messages for the
// same resource land on the same partition.
func dispatch(ctx context.Context, producer Dispatcher, key string, payload events.DispatchPayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch payload: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, dispatchWriteTimeout)
	defer cancel()
	if err := producer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(key),
		Value: payloadBytes,
	}); err != nil {
		return fmt.Errorf("failed to dispatch %s message: %w", payload.Kind, err)
	}
	return nil
}
