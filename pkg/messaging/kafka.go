package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventOrderSubmitted is published once an order is confirmed.
const EventOrderSubmitted = "order_submitted"

type KafkaProducer struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

func (kp *KafkaProducer) GetWriter(topic string) *kafka.Writer {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	if writer, exists := kp.writers[topic]; exists {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kp.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	kp.writers[topic] = writer
	return writer
}

// SendMessage JSON-encodes value and writes it keyed by key. Messages with
// the same key land on the same partition.
func (kp *KafkaProducer) SendMessage(ctx context.Context, topic, key string, value interface{}) error {
	writer := kp.GetWriter(topic)

	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}

	message := kafka.Message{
		Key:   []byte(key),
		Value: jsonData,
	}

	return writer.WriteMessages(ctx, message)
}

func (kp *KafkaProducer) Close() {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	for _, writer := range kp.writers {
		writer.Close()
	}
}

// CheckoutEvent is published to the checkout topic, keyed by buyer id.
type CheckoutEvent struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	BuyerID     string      `json:"buyer_id"`
	OrderNumber string      `json:"order_number,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Data        interface{} `json:"data,omitempty"`
}

func NewCheckoutEvent(eventType, buyerID, orderNumber string, data interface{}) CheckoutEvent {
	return CheckoutEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		BuyerID:     buyerID,
		OrderNumber: orderNumber,
		OccurredAt:  time.Now().UTC(),
		Data:        data,
	}
}

// TopicPublisher binds a producer to one topic.
type TopicPublisher struct {
	producer *KafkaProducer
	topic    string
}

func NewTopicPublisher(producer *KafkaProducer, topic string) *TopicPublisher {
	return &TopicPublisher{producer: producer, topic: topic}
}

func (p *TopicPublisher) Publish(ctx context.Context, event CheckoutEvent) error {
	return p.producer.SendMessage(ctx, p.topic, event.BuyerID, event)
}
