package topology

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConventionalTopology routes with one fan-out exchange per message
// type. Every endpoint address owns a same-named fan-out exchange bound
// to a same-named queue; subscriptions are exchange-to-exchange
// bindings from the type exchange into the subscriber's address
// exchange.
type ConventionalTopology struct {
	durable bool
}

// ConventionalOption configures a ConventionalTopology.
type ConventionalOption func(*ConventionalTopology)

// WithNonDurableEntities declares exchanges and queues as non-durable.
func WithNonDurableEntities() ConventionalOption {
	return func(t *ConventionalTopology) {
		t.durable = false
	}
}

// NewConventionalTopology creates the default routing topology.
func NewConventionalTopology(opts ...ConventionalOption) *ConventionalTopology {
	t := &ConventionalTopology{durable: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Initialize declares the queue, fan-out exchange, and binding for
// every receiving and sending address.
func (t *ConventionalTopology) Initialize(ctx context.Context, ch Channel, receivingAddresses, sendingAddresses []string) error {
	for _, address := range append(append([]string{}, receivingAddresses...), sendingAddresses...) {
		if err := t.declareAddress(ch, address); err != nil {
			return err
		}
	}
	return nil
}

// Publish declares the message type's fan-out exchange and publishes
// into it. Declaring on every publish keeps the topology stateless.
func (t *ConventionalTopology) Publish(ctx context.Context, ch Channel, messageType string, msg amqp.Publishing) error {
	if err := t.declareTypeExchange(ch, messageType); err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, messageType, "", false, false, msg)
}

// Send publishes into the destination's address exchange, which the
// destination queue is bound to.
func (t *ConventionalTopology) Send(ctx context.Context, ch Channel, address string, msg amqp.Publishing) error {
	return ch.PublishWithContext(ctx, address, "", false, false, msg)
}

// RawSendInCaseOfFailure bypasses the address exchange and publishes
// through the default exchange directly to the queue.
func (t *ConventionalTopology) RawSendInCaseOfFailure(ctx context.Context, ch Channel, address string, body []byte, props amqp.Publishing) error {
	return rawSend(ctx, ch, address, body, props)
}

// SetupSubscription binds the subscriber's address exchange to the
// message type's exchange so publish traffic fans out into the
// subscriber's queue.
func (t *ConventionalTopology) SetupSubscription(ctx context.Context, ch Channel, messageType, subscriberName string) error {
	if err := t.declareAddress(ch, subscriberName); err != nil {
		return err
	}
	if err := t.declareTypeExchange(ch, messageType); err != nil {
		return err
	}
	return ch.ExchangeBind(subscriberName, "", messageType, false, nil)
}

// TeardownSubscription removes the exchange-to-exchange binding.
// Unbinding an absent binding succeeds on the broker, so the call is
// idempotent.
func (t *ConventionalTopology) TeardownSubscription(ctx context.Context, ch Channel, messageType, subscriberName string) error {
	return ch.ExchangeUnbind(subscriberName, "", messageType, false, nil)
}

// BindToDelayInfrastructure binds the address exchange to the delay
// delivery exchange so delayed messages re-enter the normal routing
// graph at the address exchange.
func (t *ConventionalTopology) BindToDelayInfrastructure(ctx context.Context, ch Channel, address, deliveryExchange, routingKey string) error {
	return ch.ExchangeBind(address, routingKey, deliveryExchange, false, nil)
}

// declareAddress sets up the queue/exchange pair for one endpoint
// address.
func (t *ConventionalTopology) declareAddress(ch Channel, address string) error {
	if _, err := ch.QueueDeclare(address, t.durable, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", address, err)
	}
	if err := ch.ExchangeDeclare(address, "fanout", t.durable, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", address, err)
	}
	if err := ch.QueueBind(address, "", address, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", address, err)
	}
	return nil
}

func (t *ConventionalTopology) declareTypeExchange(ch Channel, messageType string) error {
	if err := ch.ExchangeDeclare(messageType, "fanout", t.durable, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange for message type %s: %w", messageType, err)
	}
	return nil
}
