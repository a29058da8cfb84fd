package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends messages to one durable queue over a channel it opens
// lazily and re-opens whenever the channel is closed.
type Publisher struct {
	queue string
	conn  Connection
	ch    Channel
}

func newPublisher(queue string, conn Connection) *Publisher {
	return &Publisher{queue: queue, conn: conn}
}

// refresh rebinds the publisher to conn. The old channel died with the old
// connection.
func (p *Publisher) refresh(conn Connection) {
	p.conn = conn
	p.ch = nil
}

func (p *Publisher) ensureChannel() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare queue %q: %w", p.queue, err)
	}
	p.ch = ch
	return nil
}

func (p *Publisher) publish(ctx context.Context, msg amqp.Publishing) error {
	if err := p.ensureChannel(); err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg)
}

func (p *Publisher) close() {
	if p.ch != nil && !p.ch.IsClosed() {
		_ = p.ch.Close()
	}
	p.ch = nil
}
