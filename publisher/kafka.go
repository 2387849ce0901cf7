package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka status sink.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	// Async hands messages to the writer buffer without waiting for acks.
	Async bool
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes terminal statuses as JSON messages keyed by submission handle,
// so all updates for one handle land on the same partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
	log    *slog.Logger
}

func NewKafkaSink(cfg KafkaConfig, log *slog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka sink configuration incomplete: both brokers and topic are required")
	}
	if log == nil {
		log = slog.Default()
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 50 * time.Millisecond
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        cfg.Async,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error(fmt.Sprintf("kafka writer: "+msg, args...))
		}),
	}

	log.Info("kafka status sink created", "brokers", cfg.Brokers, slog.String("topic", cfg.Topic))
	return newKafkaSink(w, cfg.Topic, log), nil
}

func newKafkaSink(w messageWriter, topic string, log *slog.Logger) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic, log: log}
}

func (s *KafkaSink) Publish(ctx context.Context, status interfaces.ConfirmationStatus) error {
	value, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to serialize status: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(status.Handle.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "state", Value: []byte(status.State)},
		},
	})
	if err != nil {
		s.log.Warn("failed to publish status", slog.String("handle", status.Handle.String()), slog.String("topic", s.topic), "err", err)
		return fmt.Errorf("failed to write to kafka: %w", err)
	}
	return nil
}

// Close flushes buffered messages.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

var _ interfaces.StatusSink = (*KafkaSink)(nil)
