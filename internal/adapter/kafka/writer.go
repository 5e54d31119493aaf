package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/stargazing-forecast/internal/config"
	"github.com/couchcryptid/stargazing-forecast/internal/domain"
)

// Writer produces forecast bundles to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured bundle topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger.With("component", "kafka_writer")}
}

// Publish writes one bundle keyed by its location, so successive bundles for
// the same observer land on the same partition.
func (w *Writer) Publish(ctx context.Context, b domain.ForecastBundle) error {
	msg, err := serializeToMessage(b)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write bundle %s: %w", b.ID, err)
	}
	w.logger.Debug("bundle published", "id", b.ID, "topic", w.writer.Topic, "bytes", len(msg.Value))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ForecastBundle into a Kafka message.
func serializeToMessage(b domain.ForecastBundle) (kafkago.Message, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize forecast bundle: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(locationKey(b.Location)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "bundle_id", Value: []byte(b.ID)},
			{Key: "generated_at", Value: []byte(b.GeneratedAt.Format(time.RFC3339))},
			{Key: "timezone", Value: []byte(b.TimeZone)},
		},
	}, nil
}

func locationKey(p domain.GeoPoint) string {
	return fmt.Sprintf("%.4f,%.4f", p.Latitude(), p.Longitude())
}
