package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"marketplace/internal/domain/model"
)

const (
	TypeOrderPlaced       = "order.placed"
	TypeOrderStatus       = "order.status_changed"
	TypeInventoryMovement = "inventory.movement"
)

// Kafkaに流す1件分
type Event struct {
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// commit後に呼ぶ（失敗しても業務処理は戻さない）
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

func OrderPlaced(o model.Order, items []model.OrderItem) (Event, error) {
	return newEvent(TypeOrderPlaced, o.OrderNumber, struct {
		Order model.Order       `json:"order"`
		Items []model.OrderItem `json:"items"`
	}{o, items})
}

func OrderStatusChanged(o model.Order) (Event, error) {
	return newEvent(TypeOrderStatus, o.OrderNumber, o)
}

// キーは商品IDにして同じ商品の順序を保つ
func InventoryMoved(m model.InventoryMovement) (Event, error) {
	return newEvent(TypeInventoryMovement, strconv.FormatInt(m.ProductID, 10), m)
}

func newEvent(typ, key string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return Event{Type: typ, Key: key, OccurredAt: time.Now().UTC(), Payload: b}, nil
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer kafkaMessageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

// テストでfakeを差し込む用
func NewKafkaPublisherWith(w kafkaMessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(e.Key),
			Value:   b,
			Headers: []kafka.Header{{Key: "type", Value: []byte(e.Type)}},
		})
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KAFKA_BROKERS未設定のとき
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, events ...Event) error { return nil }
func (NoopPublisher) Close() error                                       { return nil }
