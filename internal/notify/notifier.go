// Package notify dispatches follow-up notifications over RabbitMQ. Delivery
// is fire-and-forget: errors are logged and returned, but callers are
// expected to ignore them rather than fail the originating request.
package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type Notifier interface {
	SendRegistrationEmail(ctx context.Context, msg RegistrationEmail) error
}

// RegistrationEmail asks the mailer to invite a customer whose car was
// detected but whose account was never activated.
type RegistrationEmail struct {
	OrgID      int64     `json:"org_id"`
	CustomerID int64     `json:"customer_id"`
	Email      string    `json:"email"`
	Plate      string    `json:"plate"`
	DetectedAt time.Time `json:"detected_at"`
}

type AMQPNotifier struct {
	url   string
	queue string
	log   zerolog.Logger
}

func NewAMQPNotifier(url, queue string, log zerolog.Logger) *AMQPNotifier {
	return &AMQPNotifier{url: url, queue: queue, log: log}
}

func (n *AMQPNotifier) SendRegistrationEmail(ctx context.Context, msg RegistrationEmail) error {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		n.log.Warn().Err(err).Msg("rabbitmq dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		n.log.Warn().Err(err).Msg("rabbitmq channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// durable so invitations survive broker restarts
	if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		n.log.Warn().Err(err).Str("queue", n.queue).Msg("rabbitmq queue declare failed")
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx, "", n.queue, false, false, pub); err != nil {
		n.log.Warn().Err(err).Str("queue", n.queue).Msg("rabbitmq publish failed")
		return err
	}

	n.log.Info().
		Int64("customer_id", msg.CustomerID).
		Str("plate", msg.Plate).
		Msg("queued registration email")
	return nil
}

// NoOpNotifier is used when no broker is configured.
type NoOpNotifier struct{}

func (NoOpNotifier) SendRegistrationEmail(context.Context, RegistrationEmail) error { return nil }
