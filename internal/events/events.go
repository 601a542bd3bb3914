package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Ключи маршрутизации доменных событий.
const (
	KeyBookingCreated    = "booking.created"
	KeyBookingCancelled  = "booking.cancelled"
	KeyGroupCreated      = "recurring_group.created"
	KeyGroupCancelled    = "recurring_group.cancelled"
	KeyGroupPaymentAdded = "recurring_group.payment"
)

type BookingEvent struct {
	BookingID   string    `json:"booking_id"`
	Code        string    `json:"code"`
	CourtID     string    `json:"court_id"`
	Date        string    `json:"date"`
	TimeSlotID  string    `json:"time_slot_id"`
	StartMinute int       `json:"start_minute"`
	Hours       float64   `json:"duration_hours"`
	Status      string    `json:"status"`
	GroupID     string    `json:"recurring_group_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type GroupEvent struct {
	GroupID        string    `json:"group_id"`
	Code           string    `json:"code"`
	Status         string    `json:"status"`
	BookingCount   int       `json:"booking_count,omitempty"`
	CancelledCount int       `json:"cancelled_count,omitempty"`
	TotalAmount    int64     `json:"total_amount"`
	PaidAmount     int64     `json:"paid_amount"`
	PaymentStatus  string    `json:"payment_status,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher публикует доменные события после фиксации транзакции.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
	Close() error
}

// RabbitPublisher — публикация в topic exchange RabbitMQ.
type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex // канал amqp не потокобезопасен
}

func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &RabbitPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *RabbitPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         b,
	})
}

func (p *RabbitPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NopPublisher ничего не публикует.
type NopPublisher struct{}

func (NopPublisher) PublishJSON(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                                   { return nil }

type Message struct {
	Key  string
	Body []byte
}

// MemoryPublisher запоминает сообщения в памяти.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
}

func (p *MemoryPublisher) PublishJSON(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Key: key, Body: b})
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}
