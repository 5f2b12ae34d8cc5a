// Package amqp publishes asset lifecycle events to a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tendant/simple-image/pkg/simpleimage"
)

const (
	DefaultExchange = "images.events"

	RoutingIngested = "image.ingested"
	RoutingRemoved  = "image.removed"
)

// Event is the JSON body of every published message
type Event struct {
	Type       string    `json:"type"`
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher is the subset of *amqp.Channel the sink needs
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Sink implements simpleimage.EventSink on an AMQP exchange
type Sink struct {
	conn      *amqp.Connection
	channel   Publisher
	exchange  string
	publishMu sync.Mutex
	now       func() time.Time
}

// Dial connects to the broker and declares a durable topic exchange
func Dial(url, exchange string) (*Sink, error) {
	if url == "" {
		return nil, errors.New("amqp url is required")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	sink := NewWithPublisher(ch, exchange)
	sink.conn = conn
	return sink, nil
}

// NewWithPublisher builds a sink on an already open channel
func NewWithPublisher(p Publisher, exchange string) *Sink {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Sink{
		channel:  p,
		exchange: exchange,
		now:      time.Now,
	}
}

// Close closes the channel and connection opened by Dial
func (s *Sink) Close() {
	if s == nil {
		return
	}
	if ch, ok := s.channel.(*amqp.Channel); ok && ch != nil {
		_ = ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *Sink) AssetIngested(ctx context.Context, asset *simpleimage.Asset) error {
	return s.publish(ctx, RoutingIngested, asset)
}

func (s *Sink) AssetRemoved(ctx context.Context, asset *simpleimage.Asset) error {
	return s.publish(ctx, RoutingRemoved, asset)
}

func (s *Sink) message(routingKey string, asset *simpleimage.Asset) (amqp.Publishing, error) {
	now := s.now().UTC()
	body, err := json.Marshal(Event{
		Type:       routingKey,
		ID:         asset.ID,
		Name:       asset.Name,
		Key:        asset.Key.String(),
		OccurredAt: now,
	})
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now,
		Type:         routingKey,
	}, nil
}

func (s *Sink) publish(ctx context.Context, routingKey string, asset *simpleimage.Asset) error {
	msg, err := s.message(routingKey, asset)
	if err != nil {
		return err
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	return s.channel.PublishWithContext(
		ctx,
		s.exchange,
		routingKey,
		false,
		false,
		msg,
	)
}
