// Package fanout carries room events between processes over Kafka. Every
// API instance publishes; every gateway reads the whole topic with its own
// consumer group and forwards events to its local connections.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mahaj/chunkchat/pkg/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrUnknownCompression = errors.New("unknown compression codec")

// ParseCompression maps a config value to a kafka codec. "none" and ""
// disable compression.
func ParseCompression(name string) (kafka.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
}

// Encode turns ev into a kafka message keyed by room, so a room's events
// stay ordered within one partition.
func Encode(ev model.Event) (kafka.Message, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.RoomID),
		Value: raw,
		Time:  ev.Timestamp,
	}, nil
}

func Decode(m kafka.Message) (model.Event, error) {
	var ev model.Event
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return model.Event{}, err
	}
	if ev.RoomID == "" {
		ev.RoomID = string(m.Key)
	}
	return ev, nil
}

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic, compression string) (*Publisher, error) {
	codec, err := ParseCompression(compression)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			Compression:            codec,
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, ev model.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	m, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.writer.WriteMessages(ctx, m)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

type Subscriber struct {
	reader *kafka.Reader
	log    *zap.Logger
}

// NewSubscriber reads topic from the newest offset. Give every gateway its
// own groupID so each one sees every event.
func NewSubscriber(brokers []string, topic, groupID string, log *zap.Logger) *Subscriber {
	return &Subscriber{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     250 * time.Millisecond,
		}),
		log: log,
	}
}

// Run hands every event to handle until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context, handle func(model.Event)) error {
	for {
		m, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("read fan-out event, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		ev, err := Decode(m)
		if err != nil {
			s.log.Warn("drop malformed event", zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		handle(ev)
	}
}

func (s *Subscriber) Close() error {
	return s.reader.Close()
}
