// Package brokertest provides in-memory fakes of the broker connection and
// channel interfaces for tests.
package brokertest

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/accounts/internal/broker"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Published is a message captured by a fake channel.
type Published struct {
	Queue string
	Msg   amqp.Publishing
}

// Channel is a fake broker.Channel.
type Channel struct {
	mu         sync.Mutex
	conn       *Connection
	closed     bool
	declared   []string
	published  []Published
	deliveries chan amqp.Delivery
	notify     []chan *amqp.Error
	qos        int
	consumer   string

	// PublishErrs are returned, in order, by successive publishes.
	PublishErrs []error
	// DeclareErr is returned by QueueDeclare when set.
	DeclareErr error
	// ConsumeErr is returned by Consume when set.
	ConsumeErr error
}

func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.Queue{}, amqp.ErrClosed
	}
	if c.DeclareErr != nil {
		return amqp.Queue{}, c.DeclareErr
	}
	if !durable {
		return amqp.Queue{}, errors.New("brokertest: queue must be durable")
	}
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qos = prefetchCount
	return nil
}

func (c *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	if c.ConsumeErr != nil {
		return nil, c.ConsumeErr
	}
	if autoAck {
		return nil, errors.New("brokertest: manual ack expected")
	}
	c.consumer = consumer
	return c.deliveries, nil
}

func (c *Channel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	if len(c.PublishErrs) > 0 {
		err := c.PublishErrs[0]
		c.PublishErrs = c.PublishErrs[1:]
		if err != nil {
			return err
		}
	}
	c.published = append(c.published, Published{Queue: key, Msg: msg})
	if c.conn != nil && c.conn.broker != nil {
		c.conn.broker.record(key, msg)
	}
	return nil
}

func (c *Channel) NotifyClose(ch chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, ch)
	return ch
}

func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) Close() error {
	c.shutdown(nil)
	return nil
}

// Deliver pushes d to the consumer, filling in the acknowledger.
func (c *Channel) Deliver(d amqp.Delivery) {
	c.deliveries <- d
}

// Declared returns the queues declared on the channel.
func (c *Channel) Declared() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.declared...)
}

// Published returns the messages published on the channel.
func (c *Channel) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// Prefetch returns the QoS prefetch count last set.
func (c *Channel) Prefetch() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.qos
}

// ConsumerTag returns the tag passed to Consume.
func (c *Channel) ConsumerTag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumer
}

func (c *Channel) shutdown(reason *amqp.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.deliveries)
	for _, n := range c.notify {
		if reason != nil {
			n <- reason
		}
		close(n)
	}
	c.notify = nil
}

// Connection is a fake broker.Connection.
type Connection struct {
	mu       sync.Mutex
	broker   *Broker
	closed   bool
	channels []*Channel
	notify   []chan *amqp.Error

	// ChannelErr is returned by Channel when set.
	ChannelErr error
	// Configure, if set, is applied to each new channel.
	Configure func(*Channel)
}

func (c *Connection) Channel() (broker.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	if c.ChannelErr != nil {
		return nil, c.ChannelErr
	}
	ch := &Channel{conn: c, deliveries: make(chan amqp.Delivery, 16)}
	if c.Configure != nil {
		c.Configure(ch)
	}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *Connection) NotifyClose(ch chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, ch)
	return ch
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) Close() error {
	c.Drop(nil)
	return nil
}

// Drop closes the connection and all its channels as if the broker went
// away, reporting reason to close listeners.
func (c *Connection) Drop(reason *amqp.Error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	channels := c.channels
	notify := c.notify
	c.notify = nil
	c.mu.Unlock()

	for _, ch := range channels {
		ch.shutdown(reason)
	}
	for _, n := range notify {
		if reason != nil {
			n <- reason
		}
		close(n)
	}
}

// MarkClosed flips the closed flag without notifying anyone, like a
// half-open connection noticed only at the next check.
func (c *Connection) MarkClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Channels returns the channels opened so far.
func (c *Connection) Channels() []*Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Channel(nil), c.channels...)
}

// Broker is a fake broker.Dialer. It hands out a new Connection per Dial and
// records every message published through any of them.
type Broker struct {
	mu        sync.Mutex
	conns     []*Connection
	failures  int
	dials     int
	messages  map[string][]amqp.Publishing
	dialed    chan *Connection
	configure func(*Connection)
}

// NewBroker returns a Broker whose first failures dials fail.
func NewBroker(failures int) *Broker {
	return &Broker{
		failures: failures,
		messages: make(map[string][]amqp.Publishing),
		dialed:   make(chan *Connection, 64),
	}
}

// OnConnect registers fn to configure every subsequent connection.
func (b *Broker) OnConnect(fn func(*Connection)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configure = fn
}

// FailNext makes the next n dials fail.
func (b *Broker) FailNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = n
}

func (b *Broker) Dial(ctx context.Context) (broker.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if b.failures > 0 {
		b.failures--
		return nil, errors.New("brokertest: connection refused")
	}
	c := &Connection{broker: b}
	if b.configure != nil {
		b.configure(c)
	}
	b.conns = append(b.conns, c)
	b.dialed <- c
	return c, nil
}

// Dialed yields each connection as it is handed out.
func (b *Broker) Dialed() <-chan *Connection { return b.dialed }

// Dials returns the number of dial attempts.
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// Connections returns the successful connections in dial order.
func (b *Broker) Connections() []*Connection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Connection(nil), b.conns...)
}

// Messages returns everything published to queue.
func (b *Broker) Messages(queue string) []amqp.Publishing {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]amqp.Publishing(nil), b.messages[queue]...)
}

func (b *Broker) record(queue string, msg amqp.Publishing) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[queue] = append(b.messages[queue], msg)
}

// Acknowledger records ack decisions for deliveries.
type Acknowledger struct {
	mu       sync.Mutex
	Acked    []uint64
	Nacked   []uint64
	Rejected []uint64
	Requeued []bool
	done     chan struct{}
}

// NewAcknowledger returns an Acknowledger whose Done channel receives one
// value per decision.
func NewAcknowledger() *Acknowledger {
	return &Acknowledger{done: make(chan struct{}, 64)}
}

func (a *Acknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	a.Acked = append(a.Acked, tag)
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *Acknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	a.Nacked = append(a.Nacked, tag)
	a.Requeued = append(a.Requeued, requeue)
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	a.Rejected = append(a.Rejected, tag)
	a.Requeued = append(a.Requeued, requeue)
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

// Done receives once per ack, nack or reject.
func (a *Acknowledger) Done() <-chan struct{} { return a.done }

// Snapshot returns copies of the recorded decisions.
func (a *Acknowledger) Snapshot() (acked, nacked, rejected []uint64, requeued []bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.Acked...),
		append([]uint64(nil), a.Nacked...),
		append([]uint64(nil), a.Rejected...),
		append([]bool(nil), a.Requeued...)
}
