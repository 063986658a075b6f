package kafka

import (
	"log"
	"os"
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	DefaultKafkaBrokers  = "localhost:9092"
	DefaultDispatchTopic = "script_orchestration_requests"
)

// NewDispatchProducer returns the Kafka writer the manager uses to dispatch
// build and run work to the script worker.
func NewDispatchProducer() *kafka.Writer {
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		kafkaBrokers = DefaultKafkaBrokers
	}
	dispatchTopic := os.Getenv("DISPATCH_TOPIC")
	if dispatchTopic == "" {
		dispatchTopic = DefaultDispatchTopic
	}
	brokerList := strings.Split(kafkaBrokers, ",")
	producer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokerList,
		Topic:        dispatchTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: int(kafka.RequireOne),
		Async:        false,
	})
	log.Printf("Script Manager Kafka producer configured for topic: %s", dispatchTopic)
	return producer
}
