// Package events publishes reconciliation outcomes to a RabbitMQ topic
// exchange so downstream services can react without polling the order store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/payment-reconciliation/models"
)

const (
	ExchangeName = "payments"
	ExchangeType = "topic"
)

// RoutingKey is payment.reconciled.<action>
func RoutingKey(outcome models.Outcome) string {
	action := outcome.Action
	if action == "" {
		action = models.ActionIgnored
	}
	return fmt.Sprintf("payment.reconciled.%s", action)
}

// Channel is the slice of *amqp.Channel the publisher uses
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends outcomes to the payments exchange
type Publisher struct {
	ch Channel
}

// NewPublisher creates a publisher on an open channel
func NewPublisher(ch Channel) *Publisher {
	return &Publisher{ch: ch}
}

// Publish sends one outcome as JSON
func (p *Publisher) Publish(ctx context.Context, outcome models.Outcome) error {
	body, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	return p.ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey(outcome),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    outcome.DeliveryID,
			Timestamp:    outcome.ProcessedAt,
			Type:         outcome.EventName,
			Body:         body,
		},
	)
}

// SetupConn dials the broker and declares the payments exchange. It retries
// the dial a few times so the server can start alongside the broker.
func SetupConn(url string, logger log.Logger) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to RabbitMQ", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return conn, ch, nil
}
