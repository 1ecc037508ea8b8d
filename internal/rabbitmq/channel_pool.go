package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ChannelPool hands out AMQP channels for broker operations. Callers
// borrow a channel per operation through Execute; the pool discards
// channels the broker closed, reaps idle ones down to the minimum, and
// reports churn through the optional metrics collector.
type ChannelPool struct {
	manager     *ConnectionManager
	logger      *slog.Logger
	metrics     *Metrics
	maxSize     int
	minSize     int
	idleTimeout time.Duration
	acquireWait time.Duration

	mu          sync.Mutex
	idle        chan *pooledChannel
	activeCount int
	closed      bool
}

// pooledChannel tags a broker channel with its pool identity and the
// time it was last borrowed.
type pooledChannel struct {
	*amqp.Channel
	id       string
	lastUsed time.Time
}

// ChannelPoolOption configures the channel pool
type ChannelPoolOption func(*ChannelPool)

// WithMaxSize sets the maximum pool size
func WithMaxSize(size int) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.maxSize = size
	}
}

// WithMinSize sets the minimum pool size
func WithMinSize(size int) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.minSize = size
	}
}

// WithIdleTimeout sets the idle timeout for channels
func WithIdleTimeout(timeout time.Duration) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.idleTimeout = timeout
	}
}

// WithAcquireWait caps how long Execute waits for a free channel when
// the pool is at capacity.
func WithAcquireWait(d time.Duration) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.acquireWait = d
	}
}

// WithPoolLogger sets the logger
func WithPoolLogger(logger *slog.Logger) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.logger = logger
	}
}

// WithPoolMetrics sets the metrics collector
func WithPoolMetrics(metrics *Metrics) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.metrics = metrics
	}
}

// NewChannelPool creates a channel pool over an established connection
// and pre-warms it to the minimum size.
func NewChannelPool(manager *ConnectionManager, options ...ChannelPoolOption) (*ChannelPool, error) {
	if manager == nil {
		return nil, ErrInvalidConfiguration
	}

	pool := &ChannelPool{
		manager:     manager,
		logger:      slog.Default(),
		maxSize:     10,
		minSize:     2,
		idleTimeout: 5 * time.Minute,
		acquireWait: 5 * time.Second,
	}

	for _, opt := range options {
		opt(pool)
	}

	if pool.maxSize < 1 {
		return nil, fmt.Errorf("%w: max size must be at least 1", ErrInvalidConfiguration)
	}
	if pool.minSize < 0 || pool.minSize > pool.maxSize {
		return nil, fmt.Errorf("%w: min size must be between 0 and max size", ErrInvalidConfiguration)
	}

	pool.idle = make(chan *pooledChannel, pool.maxSize)

	warmed := make([]*pooledChannel, 0, pool.minSize)
	for i := 0; i < pool.minSize; i++ {
		ch, err := pool.create()
		if err != nil {
			for _, w := range warmed {
				w.Channel.Close()
			}
			return nil, &ChannelError{
				Op:        "pool initialization",
				ChannelID: fmt.Sprintf("warm-%d", i),
				Err:       err,
				Timestamp: time.Now(),
			}
		}
		warmed = append(warmed, ch)
	}
	for _, ch := range warmed {
		pool.idle <- ch
	}

	go pool.reapIdle()

	return pool, nil
}

// Execute borrows a channel, runs fn against it, and returns the
// channel to the pool. A panic inside fn is converted into a
// ChannelError naming the channel it happened on.
func (cp *ChannelPool) Execute(ctx context.Context, fn func(*amqp.Channel) error) error {
	ch, err := cp.get(ctx)
	if err != nil {
		return err
	}
	defer cp.put(ch)

	var execErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				execErr = &ChannelError{
					Op:        "execute",
					ChannelID: ch.id,
					Err:       fmt.Errorf("panic: %v", r),
					Timestamp: time.Now(),
				}
			}
		}()
		execErr = fn(ch.Channel)
	}()

	return execErr
}

// get acquires a usable channel: an idle one if available, a fresh one
// while under the size cap, otherwise it waits up to acquireWait.
func (cp *ChannelPool) get(ctx context.Context) (*pooledChannel, error) {
	for {
		cp.mu.Lock()
		if cp.closed {
			cp.mu.Unlock()
			return nil, ErrChannelPoolClosed
		}
		underMax := cp.activeCount < cp.maxSize
		cp.mu.Unlock()

		select {
		case ch := <-cp.idle:
			if cp.stillOpen(ch) {
				return ch, nil
			}
			continue
		default:
		}

		if underMax {
			return cp.create()
		}

		select {
		case ch := <-cp.idle:
			if cp.stillOpen(ch) {
				return ch, nil
			}

		case <-ctx.Done():
			return nil, &ChannelError{
				Op:        "acquire channel",
				ChannelID: "pool",
				Err:       ctx.Err(),
				Timestamp: time.Now(),
			}

		case <-time.After(cp.acquireWait):
			return nil, &ChannelError{
				Op:        "acquire channel",
				ChannelID: "pool",
				Err:       ErrChannelPoolExhausted,
				Timestamp: time.Now(),
			}
		}
	}
}

// put returns a borrowed channel; channels the broker closed in the
// meantime are discarded instead.
func (cp *ChannelPool) put(ch *pooledChannel) {
	if ch == nil {
		return
	}

	cp.mu.Lock()
	poolClosed := cp.closed
	cp.mu.Unlock()

	if poolClosed || ch.Channel.IsClosed() {
		cp.discard(ch)
		return
	}

	ch.lastUsed = time.Now()
	select {
	case cp.idle <- ch:
	default:
		cp.discard(ch)
	}
}

// stillOpen reports whether an idle channel survived its time in the
// pool; dead ones are discarded.
func (cp *ChannelPool) stillOpen(ch *pooledChannel) bool {
	if !ch.Channel.IsClosed() {
		ch.lastUsed = time.Now()
		return true
	}
	cp.discard(ch)
	return false
}

func (cp *ChannelPool) create() (*pooledChannel, error) {
	conn, err := cp.manager.GetConnection()
	if err != nil {
		return nil, &ChannelError{
			Op:        "open channel",
			ChannelID: "new",
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	raw, err := conn.Channel()
	if err != nil {
		return nil, &ChannelError{
			Op:        "open channel",
			ChannelID: "new",
			Err:       fmt.Errorf("%w: %v", ErrChannelCreationFailed, err),
			Timestamp: time.Now(),
		}
	}

	ch := &pooledChannel{
		Channel:  raw,
		id:       uuid.New().String(),
		lastUsed: time.Now(),
	}

	cp.mu.Lock()
	cp.activeCount++
	cp.mu.Unlock()

	cp.metrics.IncChannelOpened()
	cp.logger.Debug("opened pooled channel", "channelId", ch.id)

	return ch, nil
}

// discard drops a channel from the pool's accounting, closing it if
// the broker hasn't already.
func (cp *ChannelPool) discard(ch *pooledChannel) {
	if !ch.Channel.IsClosed() {
		ch.Channel.Close()
	}

	cp.mu.Lock()
	cp.activeCount--
	cp.mu.Unlock()

	cp.metrics.IncChannelClosed()
	cp.logger.Debug("discarded pooled channel", "channelId", ch.id)
}

// reapIdle periodically closes channels idle past the timeout, keeping
// at least minSize alive.
func (cp *ChannelPool) reapIdle() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cp.mu.Lock()
		if cp.closed {
			cp.mu.Unlock()
			return
		}
		cp.mu.Unlock()

		cutoff := time.Now().Add(-cp.idleTimeout)
		var keep []*pooledChannel
		reaped := 0

	drain:
		for {
			select {
			case ch, ok := <-cp.idle:
				if !ok {
					return
				}
				if ch.lastUsed.Before(cutoff) && cp.Size() > cp.minSize {
					cp.discard(ch)
					reaped++
				} else {
					keep = append(keep, ch)
				}
			default:
				break drain
			}
		}

		for _, ch := range keep {
			select {
			case cp.idle <- ch:
			default:
				cp.discard(ch)
			}
		}

		if reaped > 0 {
			cp.logger.Debug("reaped idle channels", "count", reaped)
		}
	}
}

// Size returns the number of channels the pool currently owns.
func (cp *ChannelPool) Size() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.activeCount
}

// Close closes every pooled channel and rejects further use.
func (cp *ChannelPool) Close() error {
	cp.mu.Lock()
	if cp.closed {
		cp.mu.Unlock()
		return nil
	}
	cp.closed = true
	cp.mu.Unlock()

	close(cp.idle)
	for ch := range cp.idle {
		cp.discard(ch)
	}

	cp.logger.Debug("channel pool closed")
	return nil
}
