package topology

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchangeNameConvention returns the shared exchange all
// publish traffic flows through under the direct topology.
func DefaultExchangeNameConvention() string {
	return "amq.topic"
}

// DefaultRoutingKeyConvention derives a routing key from the message
// type identity.
func DefaultRoutingKeyConvention(messageType string) string {
	return messageType
}

// DirectTopology routes all publish traffic through one shared
// exchange, with a routing key derived per message type. It trades the
// conventional topology's many exchanges for many bindings on a single
// exchange. Point-to-point sends address destination queues through the
// default exchange, so Send reaches the same queue under either
// variant.
type DirectTopology struct {
	durable      bool
	exchangeName func() string
	routingKey   func(messageType string) string
}

// DirectOption configures a DirectTopology.
type DirectOption func(*DirectTopology)

// WithExchangeNameConvention overrides the shared exchange name.
func WithExchangeNameConvention(fn func() string) DirectOption {
	return func(t *DirectTopology) {
		t.exchangeName = fn
	}
}

// WithRoutingKeyConvention overrides how routing keys are derived from
// message types.
func WithRoutingKeyConvention(fn func(messageType string) string) DirectOption {
	return func(t *DirectTopology) {
		t.routingKey = fn
	}
}

// WithNonDurableQueues declares queues as non-durable.
func WithNonDurableQueues() DirectOption {
	return func(t *DirectTopology) {
		t.durable = false
	}
}

// NewDirectTopology creates a direct routing topology with the default
// conventions.
func NewDirectTopology(opts ...DirectOption) *DirectTopology {
	t := &DirectTopology{
		durable:      true,
		exchangeName: DefaultExchangeNameConvention,
		routingKey:   DefaultRoutingKeyConvention,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Initialize declares a queue per logical address. The shared exchange
// is declared lazily by Publish and SetupSubscription.
func (t *DirectTopology) Initialize(ctx context.Context, ch Channel, receivingAddresses, sendingAddresses []string) error {
	for _, address := range append(append([]string{}, receivingAddresses...), sendingAddresses...) {
		if _, err := ch.QueueDeclare(address, t.durable, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", address, err)
		}
	}
	return nil
}

// Publish routes through the shared exchange with the type's routing
// key.
func (t *DirectTopology) Publish(ctx context.Context, ch Channel, messageType string, msg amqp.Publishing) error {
	exchange := t.exchangeName()
	if err := t.declareSharedExchange(ch, exchange); err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, exchange, t.routingKey(messageType), false, false, msg)
}

// Send addresses the destination queue directly through the default
// exchange.
func (t *DirectTopology) Send(ctx context.Context, ch Channel, address string, msg amqp.Publishing) error {
	return ch.PublishWithContext(ctx, "", address, false, false, msg)
}

// RawSendInCaseOfFailure is identical to Send for this variant but
// kept independent of any convention state.
func (t *DirectTopology) RawSendInCaseOfFailure(ctx context.Context, ch Channel, address string, body []byte, props amqp.Publishing) error {
	return rawSend(ctx, ch, address, body, props)
}

// SetupSubscription binds the subscriber's queue to the shared
// exchange under the type's routing key.
func (t *DirectTopology) SetupSubscription(ctx context.Context, ch Channel, messageType, subscriberName string) error {
	exchange := t.exchangeName()
	if err := t.declareSharedExchange(ch, exchange); err != nil {
		return err
	}
	return ch.QueueBind(subscriberName, t.routingKey(messageType), exchange, false, nil)
}

// TeardownSubscription removes the queue binding.
func (t *DirectTopology) TeardownSubscription(ctx context.Context, ch Channel, messageType, subscriberName string) error {
	return ch.QueueUnbind(subscriberName, t.routingKey(messageType), t.exchangeName(), nil)
}

// BindToDelayInfrastructure binds the destination queue straight to
// the delivery exchange; this variant has no per-address exchange to
// route through.
func (t *DirectTopology) BindToDelayInfrastructure(ctx context.Context, ch Channel, address, deliveryExchange, routingKey string) error {
	return ch.QueueBind(address, routingKey, deliveryExchange, false, nil)
}

// declareSharedExchange declares the shared topic exchange unless the
// convention points at a broker built-in, which already exists and may
// not be redeclared.
func (t *DirectTopology) declareSharedExchange(ch Channel, name string) error {
	if strings.HasPrefix(name, "amq.") {
		return nil
	}
	if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	return nil
}
