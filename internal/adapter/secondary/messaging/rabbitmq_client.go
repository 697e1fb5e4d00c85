package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/orderflow/payment-core/internal/core"
	"github.com/orderflow/payment-core/internal/port/output"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName       = "payments"
	ReconcileQueueName = "payment_reconcile"
	ReconcileKey       = "payment.reconcile"
	PrefetchCount      = 1 // Process one message at a time per worker
)

// PaymentEventMessage is the lifecycle notification published for downstream
// consumers (fulfillment, notifications, analytics).
type PaymentEventMessage struct {
	EventID       uuid.UUID `json:"event_id"`
	Event         string    `json:"event"`
	TransactionID uuid.UUID `json:"transaction_id"`
	OrderID       uuid.UUID `json:"order_id"`
	Provider      string    `json:"provider"`
	Status        string    `json:"status"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReconcileRequest asks the worker to reconcile one transaction against the
// provider's source of truth.
type ReconcileRequest struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	RequestedBy   string    `json:"requested_by"`
	Timestamp     time.Time `json:"timestamp"`
}

// RabbitMQClient is a secondary adapter that implements the EventPublisher
// output port and carries the reconcile request queue.
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQClient creates a new RabbitMQ client (returns interface for ports)
func NewRabbitMQClient(amqpURL string) (output.EventPublisher, error) {
	return NewRabbitMQClientConcrete(amqpURL)
}

// NewRabbitMQClientConcrete creates a new RabbitMQ client (returns concrete type for workers)
func NewRabbitMQClientConcrete(amqpURL string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange
	err = channel.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Declare reconcile queue
	_, err = channel.QueueDeclare(
		ReconcileQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// Bind reconcile queue to exchange
	err = channel.QueueBind(
		ReconcileQueueName,
		ReconcileKey,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: channel,
	}, nil
}

// PublishPaymentEvent publishes a payment lifecycle event with the event
// name as routing key.
func (c *RabbitMQClient) PublishPaymentEvent(ctx context.Context, event string, txn *core.PaymentTransaction) error {
	message := PaymentEventMessage{
		EventID:       uuid.New(),
		Event:         event,
		TransactionID: txn.ID,
		OrderID:       txn.OrderID,
		Provider:      txn.Provider,
		Status:        string(txn.Status),
		AmountMinor:   txn.AmountMinor,
		Currency:      txn.Currency,
		Timestamp:     time.Now(),
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = c.channel.PublishWithContext(ctx,
		ExchangeName,
		event, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // Make message persistent
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// RequestReconcile enqueues a reconcile request for the worker.
func (c *RabbitMQClient) RequestReconcile(ctx context.Context, transactionID uuid.UUID, requestedBy string) error {
	message := ReconcileRequest{
		TransactionID: transactionID,
		RequestedBy:   requestedBy,
		Timestamp:     time.Now(),
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = c.channel.PublishWithContext(ctx,
		ExchangeName,
		ReconcileKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// ErrPermanent marks a handler failure that redelivery cannot fix, such as a
// reconcile request for a transaction that does not exist. Wrap the cause so
// the message is dropped instead of requeued.
var ErrPermanent = errors.New("permanent failure")

// handleReconcileDelivery decides the fate of one delivery. Malformed
// payloads and permanent failures are dropped; a transient failure is
// requeued once, then dropped on its redelivery so a poison message cannot
// stall the queue at prefetch 1.
func handleReconcileDelivery(msg amqp.Delivery, handler func(ReconcileRequest) error) {
	var req ReconcileRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		log.Printf("Error unmarshaling reconcile request: %v", err)
		msg.Ack(false) // Malformed, never going to succeed
		return
	}

	err := handler(req)
	if err == nil {
		msg.Ack(false)
		return
	}
	if errors.Is(err, ErrPermanent) {
		log.Printf("Dropping reconcile request for %s: %v", req.TransactionID, err)
		msg.Nack(false, false)
		return
	}
	if msg.Redelivered {
		log.Printf("Dropping reconcile request for %s after retry: %v", req.TransactionID, err)
		msg.Nack(false, false)
		return
	}
	log.Printf("Error reconciling transaction %s, requeueing: %v", req.TransactionID, err)
	msg.Nack(false, true)
}

// ConsumeReconcileRequests starts consuming reconcile requests. Transient
// handler errors requeue the message once; malformed payloads and permanent
// failures are dropped.
func (c *RabbitMQClient) ConsumeReconcileRequests(handler func(ReconcileRequest) error) error {
	// Set QoS to process one message at a time
	err := c.channel.Qos(
		PrefetchCount,
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.Consume(
		ReconcileQueueName,
		"",    // consumer tag
		false, // auto-ack (we'll manually ack after processing)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for msg := range msgs {
			handleReconcileDelivery(msg, handler)
		}
	}()

	return nil
}

// Close closes the RabbitMQ connection
func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
