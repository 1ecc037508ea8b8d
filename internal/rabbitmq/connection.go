package rabbitmq

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jasonkenneth/NServiceBus.RabbitMQ/configuration"
)

// ConnectionStateListener receives connection state change notifications
type ConnectionStateListener interface {
	OnConnected()
	OnDisconnected(err error)
	OnReconnecting(attempt int)
}

// ConnectionManager manages the broker connection with automatic
// reconnection. It is constructed from a resolved connection
// configuration; the configured retry delay seeds the backoff between
// reconnection attempts.
type ConnectionManager struct {
	cfg            *configuration.ConnectionConfiguration
	conn           *amqp.Connection
	mu             sync.RWMutex
	maxRetries     int
	logger         *slog.Logger
	metrics        *Metrics
	notifyClose    chan *amqp.Error
	isConnected    bool
	done           chan bool
	stateListeners []ConnectionStateListener
	listenersMu    sync.RWMutex
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithMaxRetries sets the maximum number of reconnection attempts
func WithMaxRetries(retries int) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.maxRetries = retries
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *Metrics) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.metrics = metrics
	}
}

// NewConnectionManager creates a connection manager for the given
// resolved configuration.
func NewConnectionManager(cfg *configuration.ConnectionConfiguration, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		cfg:        cfg,
		maxRetries: -1, // infinite retries by default
		logger:     slog.Default(),
		done:       make(chan bool),
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

// dialConfig translates the resolved configuration into amqp dial
// parameters. Virtual host, heartbeat, and client properties come from
// the configuration rather than the URI.
func (cm *ConnectionManager) dialConfig() (amqp.Config, error) {
	config := amqp.Config{
		Vhost:      cm.cfg.VirtualHost,
		Heartbeat:  cm.cfg.Heartbeat(),
		Properties: cm.cfg.ClientProperties,
	}

	if cm.cfg.UseTLS {
		tlsConfig := &tls.Config{ServerName: cm.cfg.Host}
		if cm.cfg.CertPath != "" {
			cert, err := tls.LoadX509KeyPair(cm.cfg.CertPath, cm.cfg.CertPath)
			if err != nil {
				return amqp.Config{}, &ConnectionError{
					Op:        "load certificate",
					Addr:      cm.addr(),
					Err:       err,
					Timestamp: time.Now(),
				}
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		config.TLSClientConfig = tlsConfig
	}

	return config, nil
}

func (cm *ConnectionManager) addr() string {
	return net.JoinHostPort(cm.cfg.Host, strconv.Itoa(cm.cfg.Port))
}

// Connect establishes the initial connection
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.isConnected {
		return nil
	}

	config, err := cm.dialConfig()
	if err != nil {
		return err
	}

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	connChan := make(chan *amqp.Connection, 1)
	errChan := make(chan error, 1)

	go func() {
		conn, err := amqp.DialConfig(cm.cfg.URI(), config)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- conn
	}()

	select {
	case conn := <-connChan:
		cm.conn = conn
		cm.isConnected = true
		cm.notifyClose = make(chan *amqp.Error)
		cm.conn.NotifyClose(cm.notifyClose)

		cm.logger.Info("connected to broker",
			"addr", cm.addr(),
			"vhost", cm.cfg.VirtualHost)

		cm.notifyConnected()

		go cm.handleReconnect()

		return nil

	case err := <-errChan:
		return &ConnectionError{
			Op:        "connect",
			Addr:      cm.addr(),
			Err:       err,
			Timestamp: time.Now(),
			Attempts:  1,
		}

	case <-connCtx.Done():
		return &ConnectionError{
			Op:        "connect",
			Addr:      cm.addr(),
			Err:       ErrConnectionTimeout,
			Timestamp: time.Now(),
			Attempts:  1,
		}
	}
}

// GetConnection returns the current connection
func (cm *ConnectionManager) GetConnection() (*amqp.Connection, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.isConnected || cm.conn == nil {
		return nil, ErrConnectionNotReady
	}

	if cm.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}

	return cm.conn, nil
}

// IsConnected returns the connection status
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.isConnected
}

// Close closes the connection
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.isConnected {
		return nil
	}

	close(cm.done)
	cm.isConnected = false

	if cm.conn != nil {
		err := cm.conn.Close()
		cm.conn = nil
		return err
	}

	return nil
}

// handleReconnect monitors the connection and reconnects if necessary
func (cm *ConnectionManager) handleReconnect() {
	for {
		select {
		case err := <-cm.notifyClose:
			if err != nil {
				cm.logger.Error("connection closed", "error", err)
			}

			cm.mu.Lock()
			cm.isConnected = false
			cm.conn = nil
			cm.mu.Unlock()

			cm.notifyDisconnected(err)

			cm.reconnect()

		case <-cm.done:
			cm.logger.Info("connection manager shutting down")
			return
		}
	}
}

// reconnect attempts to reconnect to the broker
func (cm *ConnectionManager) reconnect() {
	retries := 0
	startTime := time.Now()

	for {
		select {
		case <-cm.done:
			return
		default:
		}

		if cm.maxRetries > 0 && retries >= cm.maxRetries {
			cm.logger.Error("max reconnection attempts reached",
				"attempts", retries,
				"duration", time.Since(startTime))

			err := &ConnectionError{
				Op:        "reconnect",
				Addr:      cm.addr(),
				Err:       ErrMaxRetriesExceeded,
				Timestamp: time.Now(),
				Attempts:  retries,
			}
			cm.notifyDisconnected(err)
			return
		}

		cm.logger.Info("attempting to reconnect",
			"attempt", retries+1,
			"maxRetries", cm.maxRetries)

		cm.notifyReconnecting(retries + 1)
		cm.metrics.IncReconnect()

		delay := cm.calculateBackoff(retries)

		if retries > 0 {
			select {
			case <-time.After(delay):
			case <-cm.done:
				return
			}
		}

		config, cfgErr := cm.dialConfig()
		if cfgErr != nil {
			cm.logger.Error("reconnection aborted", "error", cfgErr)
			return
		}

		connCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		connChan := make(chan *amqp.Connection, 1)
		errChan := make(chan error, 1)

		go func() {
			conn, err := amqp.DialConfig(cm.cfg.URI(), config)
			if err != nil {
				errChan <- err
				return
			}
			connChan <- conn
		}()

		select {
		case conn := <-connChan:
			cancel()

			cm.mu.Lock()
			cm.conn = conn
			cm.isConnected = true
			cm.notifyClose = make(chan *amqp.Error)
			cm.conn.NotifyClose(cm.notifyClose)
			cm.mu.Unlock()

			cm.logger.Info("successfully reconnected to broker",
				"attempts", retries+1,
				"duration", time.Since(startTime))

			cm.notifyConnected()

			return

		case err := <-errChan:
			cancel()
			cm.logger.Error("reconnection failed",
				"error", err,
				"attempt", retries+1,
				"nextRetryIn", delay)
			retries++

		case <-connCtx.Done():
			cancel()
			cm.logger.Error("reconnection timeout",
				"attempt", retries+1)
			retries++

		case <-cm.done:
			cancel()
			return
		}
	}
}

// AddStateListener adds a connection state listener
func (cm *ConnectionManager) AddStateListener(listener ConnectionStateListener) {
	cm.listenersMu.Lock()
	defer cm.listenersMu.Unlock()
	cm.stateListeners = append(cm.stateListeners, listener)
}

// RemoveStateListener removes a connection state listener
func (cm *ConnectionManager) RemoveStateListener(listener ConnectionStateListener) {
	cm.listenersMu.Lock()
	defer cm.listenersMu.Unlock()

	for i, l := range cm.stateListeners {
		if l == listener {
			cm.stateListeners = append(cm.stateListeners[:i], cm.stateListeners[i+1:]...)
			break
		}
	}
}

func (cm *ConnectionManager) notifyConnected() {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()

	for _, listener := range cm.stateListeners {
		go listener.OnConnected()
	}
}

func (cm *ConnectionManager) notifyDisconnected(err error) {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()

	for _, listener := range cm.stateListeners {
		go listener.OnDisconnected(err)
	}
}

func (cm *ConnectionManager) notifyReconnecting(attempt int) {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()

	for _, listener := range cm.stateListeners {
		go listener.OnReconnecting(attempt)
	}
}

// calculateBackoff calculates the backoff duration with jitter,
// seeded by the configured retry delay.
func (cm *ConnectionManager) calculateBackoff(attempt int) time.Duration {
	base := cm.cfg.RetryDelay
	if base == 0 {
		base = configuration.DefaultRetryDelay
	}

	// Cap at 5 minutes
	maxDelay := 5 * time.Minute

	delay := base * time.Duration(1<<uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}

	// Add jitter (±25%). The window can round to zero for very small
	// configured delays; modulo by zero is not an option.
	if jitter := time.Duration(float64(delay) * 0.25); jitter > 0 {
		delay = delay - jitter/2 + time.Duration(time.Now().UnixNano()%int64(jitter))
	}

	return delay
}
