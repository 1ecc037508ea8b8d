package topology

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of broker channel operations a routing topology
// needs. *amqp091.Channel satisfies it; tests substitute a recorder.
// Channel lifetime, pooling, and reconnection are the caller's
// responsibility: every topology call operates against one open channel
// supplied by the caller.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	ExchangeBind(destination, key, source string, noWait bool, args amqp.Table) error
	ExchangeUnbind(destination, key, source string, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueUnbind(name, key, exchange string, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RoutingTopology decides how logical message types and destination
// addresses map onto broker exchanges, queues, and bindings. Exactly
// one variant is chosen at configuration time and used for the
// endpoint's full lifetime.
//
// Implementations hold no mutable state and are safe to share across
// concurrent callers provided each call supplies its own channel. All
// declaration operations are idempotent: repeating them against an
// already initialized broker yields the same binding graph.
type RoutingTopology interface {
	// Initialize declares all exchanges, queues, and bindings needed
	// for the given logical addresses. It runs once at endpoint
	// startup and is safe against already initialized broker state.
	Initialize(ctx context.Context, ch Channel, receivingAddresses, sendingAddresses []string) error

	// Publish routes a message to all current subscribers of
	// messageType. It does not address a specific destination.
	Publish(ctx context.Context, ch Channel, messageType string, msg amqp.Publishing) error

	// Send routes a message point-to-point to exactly one named
	// destination.
	Send(ctx context.Context, ch Channel, address string, msg amqp.Publishing) error

	// RawSendInCaseOfFailure is the degraded send path used when
	// normal dispatch cannot complete. It depends on no topology
	// state and does not fail when the destination does not exist;
	// failure here is terminal for the message, not the endpoint.
	RawSendInCaseOfFailure(ctx context.Context, ch Channel, address string, body []byte, props amqp.Publishing) error

	// SetupSubscription establishes the binding that lets
	// subscriberName's queue receive Publish traffic for messageType.
	SetupSubscription(ctx context.Context, ch Channel, messageType, subscriberName string) error

	// TeardownSubscription removes the subscription binding. Safe to
	// call when the subscription does not exist.
	TeardownSubscription(ctx context.Context, ch Channel, messageType, subscriberName string) error

	// BindToDelayInfrastructure wires address into the delay path so
	// messages routed through deliveryExchange are redelivered to
	// address via routingKey once their delay elapses. Variants may
	// decline the capability by no-op; it never corrupts the primary
	// binding graph.
	BindToDelayInfrastructure(ctx context.Context, ch Channel, address, deliveryExchange, routingKey string) error
}

// rawSend publishes through the default exchange, which always exists
// and routes by queue name. Publishing is non-mandatory so a missing
// destination drops the message instead of raising a new failure that
// would mask the one that triggered the degraded path.
func rawSend(ctx context.Context, ch Channel, address string, body []byte, props amqp.Publishing) error {
	props.Body = body
	return ch.PublishWithContext(ctx, "", address, false, false, props)
}
