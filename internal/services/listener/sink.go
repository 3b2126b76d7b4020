package listener

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/segmentio/kafka-go"

	"pgbridge/internal/bridge"
	"pgbridge/internal/domain/notify"
)

// WriterSink prints notifications in the classic listener format.
type WriterSink struct {
	w io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Handle(_ context.Context, n notify.Notification) error {
	_, err := fmt.Fprintf(s.w, "Received notification on channel '%s': %s\n", n.Channel, n.Payload)
	return err
}

func (s *WriterSink) Close() error { return nil }

// IgnoredPrinter returns a diagnostic hook that prints skipped protocol
// messages to w.
func IgnoredPrinter(w io.Writer) bridge.DiagnosticHook {
	return func(ev bridge.Event) {
		fmt.Fprintf(w, "Received non-notification message: %+v\n", ev.Raw)
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards every notification to a topic, keyed by channel.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (s *KafkaSink) Handle(ctx context.Context, n notify.Notification) error {
	err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.Channel),
		Value: []byte(n.Payload),
		Headers: []kafka.Header{
			{Key: "sender_id", Value: []byte(strconv.FormatUint(uint64(n.SenderID), 10))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send data in kafka: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
