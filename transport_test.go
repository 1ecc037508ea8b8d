package nservicebus

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonkenneth/NServiceBus.RabbitMQ/configuration"
	"github.com/jasonkenneth/NServiceBus.RabbitMQ/topology"
)

func TestNewTransport(t *testing.T) {
	t.Run("resolves the configuration at construction", func(t *testing.T) {
		transport, err := NewTransport("host=broker1;virtualHost=/app;useTls=true", "Orders")
		require.NoError(t, err)

		cfg := transport.ConnectionConfiguration()
		assert.Equal(t, "broker1", cfg.Host)
		assert.Equal(t, 5671, cfg.Port)
		assert.Equal(t, "/app", cfg.VirtualHost)
		assert.Equal(t, "Orders", cfg.ClientProperties["endpoint_name"])
	})

	t.Run("rejects invalid connection strings with the full batch", func(t *testing.T) {
		_, err := NewTransport("host=a,b;prefetchCount=10", "Orders")
		require.Error(t, err)

		var verr *configuration.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Messages, 2)
	})

	t.Run("defaults to the conventional topology", func(t *testing.T) {
		transport, err := NewTransport("host=broker1", "Orders")
		require.NoError(t, err)
		assert.IsType(t, &topology.ConventionalTopology{}, transport.RoutingTopology())
	})

	t.Run("honors an explicit topology", func(t *testing.T) {
		direct := topology.NewDirectTopology()
		transport, err := NewTransport("host=broker1", "Orders", WithRoutingTopology(direct))
		require.NoError(t, err)
		assert.Same(t, direct, transport.RoutingTopology())
	})

	t.Run("WithDirectRoutingTopology selects the direct variant", func(t *testing.T) {
		transport, err := NewTransport("host=broker1", "Orders", WithDirectRoutingTopology())
		require.NoError(t, err)
		assert.IsType(t, &topology.DirectTopology{}, transport.RoutingTopology())
	})

	t.Run("metrics registration is optional", func(t *testing.T) {
		_, err := NewTransport("host=broker1", "Orders", WithMetricsRegisterer(prometheus.NewRegistry()))
		require.NoError(t, err)
	})
}

func TestTransportBeforeStart(t *testing.T) {
	transport, err := NewTransport("host=broker1", "Orders")
	require.NoError(t, err)

	ctx := context.Background()
	msg := amqp.Publishing{Body: []byte("hi")}

	t.Run("operations fail until started", func(t *testing.T) {
		assert.ErrorIs(t, transport.Publish(ctx, "OrderPlaced", msg), ErrNotStarted)
		assert.ErrorIs(t, transport.Send(ctx, "billing", msg), ErrNotStarted)
		assert.ErrorIs(t, transport.RawSendInCaseOfFailure(ctx, "billing", []byte("x"), msg), ErrNotStarted)
		assert.ErrorIs(t, transport.SetupSubscription(ctx, "OrderPlaced", "billing"), ErrNotStarted)
		assert.ErrorIs(t, transport.TeardownSubscription(ctx, "OrderPlaced", "billing"), ErrNotStarted)
		assert.ErrorIs(t, transport.SendWithDelay(ctx, "billing", 0, msg), ErrNotStarted)
	})

	t.Run("not connected before start", func(t *testing.T) {
		assert.False(t, transport.IsConnected())
	})

	t.Run("close before start is safe", func(t *testing.T) {
		assert.NoError(t, transport.Close())
	})
}
