// Package sink exports finished analyses to downstream consumers.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/opensource-finance/leadaging/internal/domain"
)

// Sink receives every analysis batch after it has been persisted.
type Sink interface {
	Export(ctx context.Context, tenantID string, analyses []domain.AgingAnalysis) error
	Close() error
}

// New returns a Kafka sink when export is enabled, otherwise a no-op sink.
func New(cfg domain.ExportConfig) Sink {
	if !cfg.Kafka.Enabled {
		return NopSink{}
	}
	return NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
}

// NopSink discards analyses.
type NopSink struct{}

func (NopSink) Export(ctx context.Context, tenantID string, analyses []domain.AgingAnalysis) error {
	return nil
}

func (NopSink) Close() error { return nil }

// messageWriter is the part of kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes one message per analysis, keyed by lead id so every
// analysis of a lead lands on the same partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		topic: topic,
	}
}

// Export writes the batch in a single call.
func (s *KafkaSink) Export(ctx context.Context, tenantID string, analyses []domain.AgingAnalysis) error {
	if len(analyses) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(analyses))
	for i := range analyses {
		a := analyses[i]
		a.TenantID = tenantID

		data, err := json.Marshal(&a)
		if err != nil {
			return fmt.Errorf("marshal analysis %s: %w", a.LeadID, err)
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.LeadID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "tenant_id", Value: []byte(tenantID)},
				{Key: "category", Value: []byte(a.AgingCategory)},
			},
		})
	}

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d analyses to %s: %w", len(msgs), s.topic, err)
	}

	slog.Debug("exported analyses", "tenant_id", tenantID, "topic", s.topic, "count", len(msgs))
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
