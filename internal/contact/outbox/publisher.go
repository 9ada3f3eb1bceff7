package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"

	"linkid/internal/contact/models"
)

// RecordProducer sends records and waits for their acknowledgement.
type RecordProducer interface {
	Produce(ctx context.Context, records ...*kgo.Record) error
}

// KafkaPublisher maps outbox entries onto Kafka records keyed by the
// cluster's primary id, so one identity's events stay in one partition.
type KafkaPublisher struct {
	producer RecordProducer
	topic    string
}

// NewKafkaPublisher constructs a publisher writing to topic.
func NewKafkaPublisher(producer RecordProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish sends entries in order.
func (p *KafkaPublisher) Publish(ctx context.Context, entries []models.OutboxEntry) error {
	records := make([]*kgo.Record, 0, len(entries))
	for _, e := range entries {
		rec, err := p.record(e)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	return p.producer.Produce(ctx, records...)
}

func (p *KafkaPublisher) record(e models.OutboxEntry) (*kgo.Record, error) {
	value, err := json.Marshal(e.Event)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox entry %d: %w", e.ID, err)
	}
	headers := []kgo.RecordHeader{
		{Key: "event_type", Value: []byte(e.Event.Type)},
		{Key: "outbox_id", Value: []byte(strconv.FormatInt(e.ID, 10))},
	}
	if e.Event.RequestID != "" {
		headers = append(headers, kgo.RecordHeader{Key: "request_id", Value: []byte(e.Event.RequestID)})
	}
	return &kgo.Record{
		Topic:     p.topic,
		Key:       []byte(strconv.FormatInt(e.Event.AggregateID, 10)),
		Value:     value,
		Headers:   headers,
		Timestamp: e.Event.OccurredAt,
	}, nil
}
