// Package nservicebus is a RabbitMQ transport adapter: it resolves a
// broker connection string into a validated configuration, selects a
// routing topology, and exposes the publish, send, and subscription
// operations the messaging pipeline issues against the broker.
package nservicebus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jasonkenneth/NServiceBus.RabbitMQ/configuration"
	"github.com/jasonkenneth/NServiceBus.RabbitMQ/internal/rabbitmq"
	"github.com/jasonkenneth/NServiceBus.RabbitMQ/topology"
)

// ErrNotStarted is returned by broker operations issued before Start.
var ErrNotStarted = errors.New("transport: not started")

// Transport owns the endpoint's broker-facing lifecycle: one resolved
// configuration, one routing topology variant, one managed connection
// with a channel pool. The topology is chosen at construction time and
// used unchanged for the transport's full lifetime.
type Transport struct {
	cfg      *configuration.ConnectionConfiguration
	topology topology.RoutingTopology
	manager  *rabbitmq.ConnectionManager
	pool     *rabbitmq.ChannelPool
	logger   *slog.Logger
	metrics  *rabbitmq.Metrics

	receivingAddresses []string
	sendingAddresses   []string
	delayedDelivery    bool
}

type transportConfig struct {
	logger             *slog.Logger
	topology           topology.RoutingTopology
	receivingAddresses []string
	sendingAddresses   []string
	delayedDelivery    bool
	registerer         prometheus.Registerer
	maxReconnects      int
}

// TransportOption configures the transport.
type TransportOption func(*transportConfig)

// WithTransportLogger sets the logger for the transport and its
// connection manager.
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(cfg *transportConfig) {
		cfg.logger = logger
	}
}

// WithRoutingTopology selects the routing topology variant. The
// default is the conventional topology.
func WithRoutingTopology(t topology.RoutingTopology) TransportOption {
	return func(cfg *transportConfig) {
		cfg.topology = t
	}
}

// WithDirectRoutingTopology selects the direct routing topology with
// the given options.
func WithDirectRoutingTopology(opts ...topology.DirectOption) TransportOption {
	return func(cfg *transportConfig) {
		cfg.topology = topology.NewDirectTopology(opts...)
	}
}

// WithReceivingAddresses sets the endpoint's receiving addresses,
// declared by Initialize at startup.
func WithReceivingAddresses(addresses ...string) TransportOption {
	return func(cfg *transportConfig) {
		cfg.receivingAddresses = addresses
	}
}

// WithSendingAddresses sets the known sending destinations, declared
// by Initialize at startup.
func WithSendingAddresses(addresses ...string) TransportOption {
	return func(cfg *transportConfig) {
		cfg.sendingAddresses = addresses
	}
}

// WithDelayedDelivery declares the delay exchange chain at startup and
// binds every receiving address into it.
func WithDelayedDelivery() TransportOption {
	return func(cfg *transportConfig) {
		cfg.delayedDelivery = true
	}
}

// WithMetricsRegisterer enables transport metrics on the given
// registerer.
func WithMetricsRegisterer(reg prometheus.Registerer) TransportOption {
	return func(cfg *transportConfig) {
		cfg.registerer = reg
	}
}

// WithMaxReconnectAttempts caps reconnection attempts after a lost
// connection. The default is unlimited.
func WithMaxReconnectAttempts(n int) TransportOption {
	return func(cfg *transportConfig) {
		cfg.maxReconnects = n
	}
}

// NewTransport resolves the connection string and builds an
// unconnected transport. A connection string that fails validation is
// rejected here, before anything touches the network; the returned
// error carries the full batch of validation messages.
func NewTransport(connectionString, endpointName string, opts ...TransportOption) (*Transport, error) {
	cfg := &transportConfig{
		logger:        slog.Default(),
		maxReconnects: -1,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.topology == nil {
		cfg.topology = topology.NewConventionalTopology()
	}

	connCfg, err := configuration.Resolve(connectionString, endpointName, configuration.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}

	var metrics *rabbitmq.Metrics
	if cfg.registerer != nil {
		metrics = rabbitmq.NewMetrics(cfg.registerer)
	}

	manager := rabbitmq.NewConnectionManager(connCfg,
		rabbitmq.WithLogger(cfg.logger),
		rabbitmq.WithMaxRetries(cfg.maxReconnects),
		rabbitmq.WithMetrics(metrics),
	)

	return &Transport{
		cfg:                connCfg,
		topology:           cfg.topology,
		manager:            manager,
		logger:             cfg.logger,
		metrics:            metrics,
		receivingAddresses: cfg.receivingAddresses,
		sendingAddresses:   cfg.sendingAddresses,
		delayedDelivery:    cfg.delayedDelivery,
	}, nil
}

// Start connects to the broker, creates the channel pool, and runs the
// topology's startup declarations for the configured addresses.
func (t *Transport) Start(ctx context.Context) error {
	if err := t.manager.Connect(ctx); err != nil {
		return err
	}

	pool, err := rabbitmq.NewChannelPool(t.manager,
		rabbitmq.WithPoolLogger(t.logger),
		rabbitmq.WithPoolMetrics(t.metrics),
	)
	if err != nil {
		t.manager.Close()
		return fmt.Errorf("failed to create channel pool: %w", err)
	}
	t.pool = pool

	err = pool.Execute(ctx, func(ch *amqp.Channel) error {
		if err := t.topology.Initialize(ctx, ch, t.receivingAddresses, t.sendingAddresses); err != nil {
			return err
		}
		if !t.delayedDelivery {
			return nil
		}
		if err := topology.DeclareDelayInfrastructure(ctx, ch); err != nil {
			return err
		}
		for _, address := range t.receivingAddresses {
			err := t.topology.BindToDelayInfrastructure(ctx, ch, address,
				topology.DeliveryExchange, topology.DeliveryBindingKey(address))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Close()
		return fmt.Errorf("failed to initialize topology: %w", err)
	}

	t.logger.Info("transport started",
		"receivingAddresses", t.receivingAddresses,
		"delayedDelivery", t.delayedDelivery)
	return nil
}

// Publish routes a message to all subscribers of messageType.
func (t *Transport) Publish(ctx context.Context, messageType string, msg amqp.Publishing) error {
	return t.execute(ctx, "publish", func(ch *amqp.Channel) error {
		return t.topology.Publish(ctx, ch, messageType, msg)
	})
}

// Send routes a message point-to-point to the named destination.
func (t *Transport) Send(ctx context.Context, address string, msg amqp.Publishing) error {
	return t.execute(ctx, "send", func(ch *amqp.Channel) error {
		return t.topology.Send(ctx, ch, address, msg)
	})
}

// RawSendInCaseOfFailure is the degraded send path for messages whose
// normal dispatch failed.
func (t *Transport) RawSendInCaseOfFailure(ctx context.Context, address string, body []byte, props amqp.Publishing) error {
	return t.execute(ctx, "raw_send", func(ch *amqp.Channel) error {
		return t.topology.RawSendInCaseOfFailure(ctx, ch, address, body, props)
	})
}

// SendWithDelay routes a message to address through the delay exchange
// chain, arriving after the given delay. Requires WithDelayedDelivery.
func (t *Transport) SendWithDelay(ctx context.Context, address string, delay time.Duration, msg amqp.Publishing) error {
	return t.execute(ctx, "send_delayed", func(ch *amqp.Channel) error {
		// Destinations outside the receiving set get bound on first use.
		err := t.topology.BindToDelayInfrastructure(ctx, ch, address,
			topology.DeliveryExchange, topology.DeliveryBindingKey(address))
		if err != nil {
			return err
		}
		key, level := topology.DelayRoutingKey(delay, address)
		return ch.PublishWithContext(ctx, topology.DelayEntryExchange(level), key, false, false, msg)
	})
}

// SetupSubscription lets subscriberName receive publish traffic for
// messageType.
func (t *Transport) SetupSubscription(ctx context.Context, messageType, subscriberName string) error {
	return t.execute(ctx, "setup_subscription", func(ch *amqp.Channel) error {
		return t.topology.SetupSubscription(ctx, ch, messageType, subscriberName)
	})
}

// TeardownSubscription removes the subscription binding.
func (t *Transport) TeardownSubscription(ctx context.Context, messageType, subscriberName string) error {
	return t.execute(ctx, "teardown_subscription", func(ch *amqp.Channel) error {
		return t.topology.TeardownSubscription(ctx, ch, messageType, subscriberName)
	})
}

func (t *Transport) execute(ctx context.Context, operation string, fn func(*amqp.Channel) error) error {
	if t.pool == nil {
		return ErrNotStarted
	}
	start := time.Now()
	err := t.pool.Execute(ctx, fn)
	t.metrics.ObserveOperation(operation, time.Since(start), err)
	return err
}

// ConnectionConfiguration returns the resolved configuration.
func (t *Transport) ConnectionConfiguration() *configuration.ConnectionConfiguration {
	return t.cfg
}

// RoutingTopology returns the selected topology variant.
func (t *Transport) RoutingTopology() topology.RoutingTopology {
	return t.topology
}

// IsConnected reports the connection status.
func (t *Transport) IsConnected() bool {
	return t.manager.IsConnected()
}

// Close tears down the channel pool and the connection.
func (t *Transport) Close() error {
	if t.pool != nil {
		t.pool.Close()
		t.pool = nil
	}
	return t.manager.Close()
}
