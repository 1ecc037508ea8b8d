package topology

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// recorderChannel records every declaration and publish so tests can
// assert on the binding graph a topology produces.
type recorderChannel struct {
	exchanges     []exchangeDecl
	queues        []queueDecl
	queueBinds    []bindDecl
	queueUnbinds  []bindDecl
	exchangeBinds []exchangeBindDecl
	unbinds       []exchangeBindDecl
	publishes     []publishDecl

	failOn string // operation name that should return an error
}

type exchangeDecl struct {
	name, kind string
	durable    bool
	args       amqp.Table
}

type queueDecl struct {
	name    string
	durable bool
	args    amqp.Table
}

type bindDecl struct {
	queue, key, exchange string
}

type exchangeBindDecl struct {
	destination, key, source string
}

type publishDecl struct {
	exchange, key string
	mandatory     bool
	msg           amqp.Publishing
}

func (r *recorderChannel) err(op string) error {
	if r.failOn == op {
		return fmt.Errorf("broker rejected %s", op)
	}
	return nil
}

func (r *recorderChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if err := r.err("ExchangeDeclare"); err != nil {
		return err
	}
	r.exchanges = append(r.exchanges, exchangeDecl{name: name, kind: kind, durable: durable, args: args})
	return nil
}

func (r *recorderChannel) ExchangeBind(destination, key, source string, noWait bool, args amqp.Table) error {
	if err := r.err("ExchangeBind"); err != nil {
		return err
	}
	r.exchangeBinds = append(r.exchangeBinds, exchangeBindDecl{destination: destination, key: key, source: source})
	return nil
}

func (r *recorderChannel) ExchangeUnbind(destination, key, source string, noWait bool, args amqp.Table) error {
	if err := r.err("ExchangeUnbind"); err != nil {
		return err
	}
	r.unbinds = append(r.unbinds, exchangeBindDecl{destination: destination, key: key, source: source})
	return nil
}

func (r *recorderChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if err := r.err("QueueDeclare"); err != nil {
		return amqp.Queue{}, err
	}
	r.queues = append(r.queues, queueDecl{name: name, durable: durable, args: args})
	return amqp.Queue{Name: name}, nil
}

func (r *recorderChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	if err := r.err("QueueBind"); err != nil {
		return err
	}
	r.queueBinds = append(r.queueBinds, bindDecl{queue: name, key: key, exchange: exchange})
	return nil
}

func (r *recorderChannel) QueueUnbind(name, key, exchange string, args amqp.Table) error {
	if err := r.err("QueueUnbind"); err != nil {
		return err
	}
	r.queueUnbinds = append(r.queueUnbinds, bindDecl{queue: name, key: key, exchange: exchange})
	return nil
}

func (r *recorderChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if err := r.err("Publish"); err != nil {
		return err
	}
	r.publishes = append(r.publishes, publishDecl{exchange: exchange, key: key, mandatory: mandatory, msg: msg})
	return nil
}

// destinationQueue resolves where a recorded publish lands given the
// recorded binding graph: default-exchange publishes address a queue by
// name, anything else lands in the queue bound to that exchange.
func (r *recorderChannel) destinationQueue(p publishDecl) string {
	if p.exchange == "" {
		return p.key
	}
	for _, b := range r.queueBinds {
		if b.exchange == p.exchange {
			return b.queue
		}
	}
	return ""
}
