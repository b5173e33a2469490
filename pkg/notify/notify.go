// Package notify publishes order lifecycle events to RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/order"
)

// Routing keys.
const (
	KeyOrderCreated    = "order.created"
	KeyDeliveryCreated = "delivery.created"
)

// confirmBuffer holds late confirms until the next publish drains them.
const confirmBuffer = 16

// DefaultExchange is the topic exchange events are published to.
const DefaultExchange = "waiter_topic"

// ErrNack is returned when the broker rejects a publish.
var ErrNack = errors.New("notify: publish NACK from broker")

// Event is the message body.
type Event struct {
	Type        string          `json:"type"`
	PublishedAt time.Time       `json:"published_at"`
	Order       *order.Order    `json:"order,omitempty"`
	Delivery    *order.Delivery `json:"delivery,omitempty"`
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	GetNextPublishSeqNo() uint64
	Close() error
}

// Publisher publishes events with publisher confirms. Publishes are
// serialized and each waits for the confirm carrying its own delivery
// tag. Late confirms for publishes that already gave up are discarded.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	acks     <-chan amqp.Confirmation
	exchange string
	log      *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// Dial connects to url, declares the exchange and enables confirms.
func Dial(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = log.L()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify: confirm mode: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))

	p := newPublisher(ch, acks, exchange, logger)
	p.conn = conn
	p.log.Info("rabbitmq publisher ready", "exchange", exchange)
	return p, nil
}

func newPublisher(ch channel, acks <-chan amqp.Confirmation, exchange string, logger *slog.Logger) *Publisher {
	return &Publisher{
		ch:       ch,
		acks:     acks,
		exchange: exchange,
		log:      logger.With("component", "notify"),
		now:      time.Now,
	}
}

// OrderCreated publishes an order.created event.
func (p *Publisher) OrderCreated(ctx context.Context, o order.Order) error {
	return p.publish(ctx, KeyOrderCreated, Event{Type: KeyOrderCreated, Order: &o})
}

// DeliveryCreated publishes a delivery.created event.
func (p *Publisher) DeliveryCreated(ctx context.Context, d order.Delivery) error {
	return p.publish(ctx, KeyDeliveryCreated, Event{Type: KeyDeliveryCreated, Delivery: &d})
}

func (p *Publisher) publish(ctx context.Context, key string, ev Event) error {
	ev.PublishedAt = p.now().UTC()
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tag := p.ch.GetNextPublishSeqNo()
	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    ev.PublishedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("notify: publish %s: %w", key, err)
	}

	for {
		select {
		case conf, ok := <-p.acks:
			if !ok {
				return fmt.Errorf("notify: publish %s: %w", key, amqp.ErrClosed)
			}
			if conf.DeliveryTag < tag {
				p.log.Debug("stale confirm dropped", "delivery_tag", conf.DeliveryTag)
				continue
			}
			if !conf.Ack {
				return fmt.Errorf("%w: %s", ErrNack, key)
			}
			p.log.Debug("event published", "key", key, "delivery_tag", tag)
			return nil
		case <-ctx.Done():
			return fmt.Errorf("notify: confirm %s: %w", key, ctx.Err())
		}
	}
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

func (Nop) OrderCreated(context.Context, order.Order) error       { return nil }
func (Nop) DeliveryCreated(context.Context, order.Delivery) error { return nil }
func (Nop) Close() error                                          { return nil }
