package transitions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"tixgate/pkg/logger"
)

// Producer publishes lifecycle transitions for downstream consumers
type Producer interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// KafkaProducerConfig contains configuration for the Kafka transition producer
type KafkaProducerConfig struct {
	Brokers          []string
	Topic            string
	RetryMax         int
	TimeoutMs        int
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
}

// DefaultKafkaProducerConfig returns a default producer configuration
func DefaultKafkaProducerConfig() *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:          []string{"localhost:9092"},
		Topic:            "ticket-transitions",
		RetryMax:         3,
		TimeoutMs:        10000,             // 10 seconds
		RequiredAcks:     sarama.WaitForAll, // Wait for all in-sync replicas
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
	}
}

// KafkaProducer publishes transition events to Kafka
type KafkaProducer struct {
	producer sarama.SyncProducer
	config   *KafkaProducerConfig
	log      *logger.Logger
}

// NewKafkaProducer creates a new Kafka transition producer
func NewKafkaProducer(config *KafkaProducerConfig, log *logger.Logger) (Producer, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = config.RequiredAcks
	saramaConfig.Producer.Compression = config.CompressionType
	saramaConfig.Producer.Retry.Max = config.RetryMax
	saramaConfig.Producer.Timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	saramaConfig.Producer.Idempotent = config.IdempotentWrites

	// Idempotent writes require a single in-flight request
	if config.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Hash partitioner keeps all transitions of one event on one partition,
	// so consumers see them in order
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaProducer{
		producer: producer,
		config:   config,
		log:      log,
	}, nil
}

// Publish sends a single transition event to the transitions topic
func (kp *KafkaProducer) Publish(ctx context.Context, event *Event) error {
	messageBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transition event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     kp.config.Topic,
		Key:       sarama.StringEncoder(event.EventID.String()),
		Value:     sarama.ByteEncoder(messageBytes),
		Headers:   kp.createHeaders(event),
		Timestamp: event.OccurredAt,
	}

	partition, offset, err := kp.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send transition event to Kafka: %w", err)
	}

	kp.log.Debug("Transition event published",
		"topic", kp.config.Topic,
		"partition", partition,
		"offset", offset,
		"type", string(event.Type),
		"subject_id", event.SubjectID.String(),
	)

	return nil
}

func (kp *KafkaProducer) createHeaders(event *Event) []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte("transition_id"), Value: []byte(event.ID.String())},
		{Key: []byte("transition_type"), Value: []byte(event.Type)},
		{Key: []byte("event_id"), Value: []byte(event.EventID.String())},
		{Key: []byte("subject_id"), Value: []byte(event.SubjectID.String())},
		{Key: []byte("producer"), Value: []byte("tixgate-core")},
		{Key: []byte("occurred_at"), Value: []byte(event.OccurredAt.Format(time.RFC3339))},
	}
}

// Close closes the Kafka producer
func (kp *KafkaProducer) Close() error {
	if kp.producer != nil {
		if err := kp.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka producer: %w", err)
		}
	}
	return nil
}

// NopProducer drops all transition events. Used when Kafka is disabled.
type NopProducer struct{}

func NewNopProducer() Producer { return &NopProducer{} }

func (*NopProducer) Publish(ctx context.Context, event *Event) error { return nil }

func (*NopProducer) Close() error { return nil }
