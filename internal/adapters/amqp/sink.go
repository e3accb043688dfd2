// Package amqp publishes workflow notifications to a RabbitMQ exchange.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"satdigital/internal/ports"
)

// Publisher is the part of *amqp091.Channel the sink uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Sink publishes each notification as a persistent JSON message routed by
// its event type. Channels are not safe for concurrent publishing, so
// publishes are serialized.
type Sink struct {
	mu       sync.Mutex
	pub      Publisher
	exchange string
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	logger   *log.Logger
}

var _ ports.NotificationSink = (*Sink)(nil)

// Dial connects, opens a channel and declares exchange as a durable topic
// exchange.
func Dial(url, exchange string, logger *log.Logger) (*Sink, error) {
	if logger == nil {
		logger = log.Default()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		amqp091.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	logger.Printf("amqp notification sink ready (exchange=%s)", exchange)
	s := NewSink(ch, exchange, logger)
	s.conn, s.channel = conn, ch
	return s, nil
}

// NewSink wraps an existing publisher.
func NewSink(pub Publisher, exchange string, logger *log.Logger) *Sink {
	if logger == nil {
		logger = log.Default()
	}
	return &Sink{pub: pub, exchange: exchange, logger: logger}
}

func (s *Sink) Notify(ctx context.Context, n ports.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	at := n.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	msg := amqp091.Publishing{
		DeliveryMode: amqp091.Persistent,
		ContentType:  "application/json",
		Type:         n.EventType,
		Timestamp:    at,
		Body:         body,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pub.PublishWithContext(ctx, s.exchange, n.EventType, false, false, msg); err != nil {
		return fmt.Errorf("publish %s for audit %s: %w", n.EventType, n.AuditID, err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
