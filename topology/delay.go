package topology

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Delayed delivery is implemented as a chain of leveled topic
// exchanges. A delay in seconds is encoded as a 28-bit binary routing
// key; each level owns a queue whose per-message TTL is 2^level
// seconds. A message whose bit is set at a level parks in that level's
// queue and dead-letters to the next level when the TTL expires; a
// clear bit passes straight through via an exchange-to-exchange
// binding. After level 0 the message reaches the delivery exchange,
// where BindToDelayInfrastructure bindings return it to its real
// destination.

const (
	delayBits = 28
	maxLevel  = delayBits - 1

	// DeliveryExchange is the terminal exchange of the delay chain.
	DeliveryExchange = "delay-delivery"
)

// MaxDelay is the longest supported delay. Longer delays saturate to
// this value.
const MaxDelay = time.Duration(1<<delayBits-1) * time.Second

// LevelName returns the exchange and queue name for one delay level.
func LevelName(level int) string {
	return fmt.Sprintf("delay-level-%02d", level)
}

// DeliveryBindingKey returns the routing key pattern that routes
// delayed messages for address out of the delivery exchange.
func DeliveryBindingKey(address string) string {
	return "#." + address
}

// DelayRoutingKey encodes delay as a binary routing key suffixed with
// the destination address, and returns the level at which the message
// should enter the chain. Negative delays clamp to zero, delays beyond
// MaxDelay saturate.
func DelayRoutingKey(delay time.Duration, address string) (key string, startingLevel int) {
	seconds := int64(delay / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	if max := int64(MaxDelay / time.Second); seconds > max {
		seconds = max
	}

	var b strings.Builder
	for level := maxLevel; level >= 0; level-- {
		if seconds&(1<<level) != 0 {
			if startingLevel == 0 {
				startingLevel = level
			}
			b.WriteString("1.")
		} else {
			b.WriteString("0.")
		}
	}
	b.WriteString(address)
	return b.String(), startingLevel
}

// DelayEntryExchange returns the exchange a delayed message with the
// given starting level is published to.
func DelayEntryExchange(startingLevel int) string {
	return LevelName(startingLevel)
}

// DeclareDelayInfrastructure declares the complete delay exchange
// chain. All declarations are idempotent; running it against an
// already declared broker is a no-op.
func DeclareDelayInfrastructure(ctx context.Context, ch Channel) error {
	if err := ch.ExchangeDeclare(DeliveryExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare delay delivery exchange: %w", err)
	}

	for level := 0; level <= maxLevel; level++ {
		levelName := LevelName(level)
		next := DeliveryExchange
		if level > 0 {
			next = LevelName(level - 1)
		}

		if err := ch.ExchangeDeclare(levelName, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare delay exchange %s: %w", levelName, err)
		}

		_, err := ch.QueueDeclare(levelName, true, false, false, false, amqp.Table{
			"x-queue-mode":           "lazy",
			"x-message-ttl":          int64(1<<level) * 1000,
			"x-dead-letter-exchange": next,
		})
		if err != nil {
			return fmt.Errorf("failed to declare delay queue %s: %w", levelName, err)
		}

		// Set bit at this level: park in the level queue.
		if err := ch.QueueBind(levelName, waitBindingKey(level), levelName, false, nil); err != nil {
			return fmt.Errorf("failed to bind delay queue %s: %w", levelName, err)
		}

		// Clear bit: pass straight through to the next level.
		if err := ch.ExchangeBind(next, passBindingKey(level), levelName, false, nil); err != nil {
			return fmt.Errorf("failed to bind delay exchange %s: %w", levelName, err)
		}
	}
	return nil
}

// waitBindingKey matches routing keys whose bit at level is set.
func waitBindingKey(level int) string {
	return bitBindingKey(level, '1')
}

// passBindingKey matches routing keys whose bit at level is clear.
func passBindingKey(level int) string {
	return bitBindingKey(level, '0')
}

func bitBindingKey(level int, bit byte) string {
	var b strings.Builder
	for i := maxLevel; i > level; i-- {
		b.WriteString("*.")
	}
	b.WriteByte(bit)
	b.WriteString(".#")
	return b.String()
}
