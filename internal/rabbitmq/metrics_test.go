package rabbitmq

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Run("nil collector is a no-op", func(t *testing.T) {
		var m *Metrics
		m.ObserveOperation("publish", time.Millisecond, nil)
		m.IncReconnect()
		m.IncChannelOpened()
		m.IncChannelClosed()
	})

	t.Run("records operations by outcome", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := NewMetrics(reg)

		m.ObserveOperation("publish", time.Millisecond, nil)
		m.ObserveOperation("publish", time.Millisecond, errors.New("boom"))
		m.ObserveOperation("send", time.Millisecond, nil)

		assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("publish", "success")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("publish", "error")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("send", "success")))
	})

	t.Run("counts reconnect attempts", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := NewMetrics(reg)

		m.IncReconnect()
		m.IncReconnect()

		assert.Equal(t, float64(2), testutil.ToFloat64(m.reconnects))
	})

	t.Run("counts channel pool churn", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := NewMetrics(reg)

		m.IncChannelOpened()
		m.IncChannelOpened()
		m.IncChannelClosed()

		assert.Equal(t, float64(2), testutil.ToFloat64(m.channels.WithLabelValues("opened")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.channels.WithLabelValues("closed")))
	})
}
