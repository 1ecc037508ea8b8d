package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Run("minimal connection string applies defaults", func(t *testing.T) {
		cfg, err := Resolve("host=broker1", "Orders")
		require.NoError(t, err)

		assert.Equal(t, "broker1", cfg.Host)
		assert.Equal(t, 5672, cfg.Port)
		assert.Equal(t, "/", cfg.VirtualHost)
		assert.Equal(t, "guest", cfg.UserName)
		assert.Equal(t, "guest", cfg.Password)
		assert.Equal(t, uint16(5), cfg.RequestedHeartbeat)
		assert.Equal(t, 10*time.Second, cfg.RetryDelay)
		assert.False(t, cfg.UseTLS)
	})

	t.Run("tls changes the default port", func(t *testing.T) {
		cfg, err := Resolve("host=broker1;virtualHost=/app;useTls=true", "Orders")
		require.NoError(t, err)

		assert.Equal(t, "broker1", cfg.Host)
		assert.Equal(t, 5671, cfg.Port)
		assert.Equal(t, "/app", cfg.VirtualHost)
		assert.True(t, cfg.UseTLS)
		assert.Equal(t, "guest", cfg.UserName)
		assert.Equal(t, uint16(5), cfg.RequestedHeartbeat)
		assert.Equal(t, 10*time.Second, cfg.RetryDelay)
		assert.Equal(t, "Orders", cfg.ClientProperties["endpoint_name"])
	})

	t.Run("explicit port overrides the tls default", func(t *testing.T) {
		cfg, err := Resolve("host=broker1;useTls=true;port=5673", "Orders")
		require.NoError(t, err)
		assert.Equal(t, 5673, cfg.Port)
	})

	t.Run("port embedded in host wins over the port key", func(t *testing.T) {
		cfg, err := Resolve("host=broker1:5680;port=5673", "Orders")
		require.NoError(t, err)
		assert.Equal(t, "broker1", cfg.Host)
		assert.Equal(t, 5680, cfg.Port)
	})

	t.Run("keys are case insensitive", func(t *testing.T) {
		cfg, err := Resolve("HOST=broker1;VirtualHost=vh;UserName=svc;PassWord=secret", "Orders")
		require.NoError(t, err)
		assert.Equal(t, "broker1", cfg.Host)
		assert.Equal(t, "vh", cfg.VirtualHost)
		assert.Equal(t, "svc", cfg.UserName)
		assert.Equal(t, "secret", cfg.Password)
	})

	t.Run("unknown keys are ignored", func(t *testing.T) {
		cfg, err := Resolve("host=broker1;someBrokerLibraryOption=42", "Orders")
		require.NoError(t, err)
		assert.Equal(t, "broker1", cfg.Host)
	})

	t.Run("missing host is a single validation message", func(t *testing.T) {
		_, err := Resolve("userName=svc", "Orders")
		require.Error(t, err)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Len(t, verr.Messages, 1)
		assert.Contains(t, verr.Messages[0], "'host' is required")
	})

	t.Run("multiple hosts are rejected", func(t *testing.T) {
		_, err := Resolve("host=a,b", "Orders")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "multiple hosts")
		assert.Contains(t, err.Error(), "load balancer")
	})

	t.Run("errors are batched not fail fast", func(t *testing.T) {
		_, err := Resolve("host=a,b;prefetchCount=10", "Orders")
		require.Error(t, err)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Messages, 2)
		assert.Contains(t, err.Error(), "multiple hosts are not supported")
		assert.Contains(t, err.Error(), "'prefetchCount' connection string option has been removed")
	})

	t.Run("missing host participates in the batch", func(t *testing.T) {
		_, err := Resolve("port=notaport;useTls=maybe", "Orders")
		require.Error(t, err)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Messages, 3)
	})

	t.Run("removed options are rejected even with valid values", func(t *testing.T) {
		for _, key := range []string{"dequeueTimeout=10s", "maxWaitTimeForConfirms=5s", "prefetchCount=100", "usePublisherConfirms=true"} {
			_, err := Resolve("host=broker1;"+key, "Orders")
			require.Error(t, err, key)
			assert.Contains(t, err.Error(), "has been removed", key)
		}
	})

	t.Run("malformed entry without equals sign is recorded", func(t *testing.T) {
		_, err := Resolve("host=broker1;banana", "Orders")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected key=value")
	})

	t.Run("invalid boolean for useTls is recorded", func(t *testing.T) {
		_, err := Resolve("host=broker1;useTls=yesplease", "Orders")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "'useTls'")
	})

	t.Run("invalid heartbeat is recorded", func(t *testing.T) {
		_, err := Resolve("host=broker1;requestedHeartbeat=-1", "Orders")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "'requestedHeartbeat'")

		_, err = Resolve("host=broker1;requestedHeartbeat=70000", "Orders")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "'requestedHeartbeat'")
	})

	t.Run("heartbeat accepts bare seconds and duration syntax", func(t *testing.T) {
		cfg, err := Resolve("host=broker1;requestedHeartbeat=30", "Orders")
		require.NoError(t, err)
		assert.Equal(t, uint16(30), cfg.RequestedHeartbeat)
		assert.Equal(t, 30*time.Second, cfg.Heartbeat())

		cfg, err = Resolve("host=broker1;requestedHeartbeat=1m", "Orders")
		require.NoError(t, err)
		assert.Equal(t, uint16(60), cfg.RequestedHeartbeat)
	})

	t.Run("retryDelay accepts duration syntax and bare seconds", func(t *testing.T) {
		cfg, err := Resolve("host=broker1;retryDelay=30s", "Orders")
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, cfg.RetryDelay)

		cfg, err = Resolve("host=broker1;retryDelay=5", "Orders")
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	})

	t.Run("invalid embedded port is recorded", func(t *testing.T) {
		_, err := Resolve("host=broker1:xyz", "Orders")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedded in host")
	})

	t.Run("round trip through ConnectionString", func(t *testing.T) {
		original, err := Resolve("host=broker1;port=5680;virtualHost=/app;userName=svc;password=secret;requestedHeartbeat=30;retryDelay=20s;useTls=true;certPath=/etc/ssl/client.pem", "Orders")
		require.NoError(t, err)

		resolved, err := Resolve(original.ConnectionString(), "Orders")
		require.NoError(t, err)
		assert.Equal(t, original, resolved)
	})
}

func TestValidationError(t *testing.T) {
	t.Run("joins messages with newlines", func(t *testing.T) {
		err := &ValidationError{Messages: []string{"first", "second"}}
		assert.Equal(t, "first\nsecond", err.Error())
	})
}
