// Package events publishes payment events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/payment"
)

const envelopeVersion = "1"

type (
	// Envelope is the schema of every published message.
	Envelope struct {
		EventType    string        `json:"eventType"`
		EventVersion string        `json:"eventVersion"`
		OccurredAt   time.Time     `json:"occurredAt"`
		AggregateID  string        `json:"aggregateId"`
		Data         payment.Event `json:"data"`
	}

	messageWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	KafkaPublisher struct {
		w     messageWriter
		topic string
	}

	NoopPublisher struct{}
)

var (
	_ payment.Publisher = (*KafkaPublisher)(nil)
	_ payment.Publisher = NoopPublisher{}
)

func NewKafkaPublisher(conf *core.Config) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(conf.Kafka.Brokers...),
			Balancer:     &kafka.Hash{}, // keeps one handshake's events on one partition
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		topic: conf.Kafka.Topic,
	}
}

// Publish writes evt keyed by its order, or by its handshake before an order exists.
func (p *KafkaPublisher) Publish(ctx context.Context, evt payment.Event) error {
	key := evt.OrderID
	if key == "" {
		key = evt.HandshakeID
	}
	val, err := json.Marshal(Envelope{
		EventType:    evt.Type,
		EventVersion: envelopeVersion,
		OccurredAt:   evt.OccurredAt,
		AggregateID:  evt.HandshakeID,
		Data:         evt,
	})
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: val,
	})
	return errors.Wrapf(err, "publishing %s", evt.Type)
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

func (NoopPublisher) Publish(context.Context, payment.Event) error { return nil }
