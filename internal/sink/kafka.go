package sink

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"gleipnir/internal/common"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher forwards events to a Kafka topic for settlement. Messages are
// keyed by the taker id of an execution or the id of a cancelled order.
type Publisher struct {
	writer messageWriter
	topic  string
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		topic: topic,
	}
}

func key(id uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, id)
	return buf
}

// Message encodes an event as a Kafka message.
func Message(event *Event) (kafka.Message, error) {
	var (
		id    uint64
		value []byte
		err   error
	)
	switch event.Kind {
	case EventExecution:
		id = event.Execution.TakerID
		value, err = event.Execution.MarshalBinary()
	case EventCancellation:
		id = event.Cancellation.OrderID
		value, err = event.Cancellation.MarshalBinary()
	default:
		return kafka.Message{}, fmt.Errorf("event kind %d: %w", event.Kind, common.ErrBadEvent)
	}
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: key(id), Value: value}, nil
}

func (p *Publisher) Handle(ctx context.Context, events []Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for i := range events {
		msg, err := Message(&events[i])
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	log.Debug().Int("events", len(msgs)).Str("topic", p.topic).Msg("published")
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
