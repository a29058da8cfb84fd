package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/accounts/internal/clock"
	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type publisherKey struct {
	action string
	queue  string
}

// Handler owns the connection shared by every publisher in the process.
// The mutex is held across the whole check, reconnect and publish sequence,
// so concurrent callers never observe a half-refreshed set of publishers.
type Handler struct {
	mu         sync.Mutex
	dialer     Dialer
	policy     RetryPolicy
	clock      clock.Clock
	log        logging.Logger
	conn       Connection
	publishers map[publisherKey]*Publisher
	closed     bool
	newID      func() string
}

// NewHandler returns a Handler that is not yet connected.
func NewHandler(d Dialer, p RetryPolicy, c clock.Clock, log logging.Logger) *Handler {
	return &Handler{
		dialer:     d,
		policy:     p,
		clock:      c,
		log:        log.With("module", "broker"),
		publishers: make(map[publisherKey]*Publisher),
		newID:      uuid.NewString,
	}
}

// Connect establishes the shared connection.
func (h *Handler) Connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn != nil && !h.conn.IsClosed() {
		return nil
	}
	return h.reconnectLocked(ctx)
}

// Publish sends message as persistent JSON to queue on the default exchange.
// A connection found closed is re-established first; a connection lost while
// writing is re-established and the publish retried once.
func (h *Handler) Publish(ctx context.Context, queue string, message any, action string) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedMessage, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    h.newID(),
		Timestamp:    h.clock.Now(),
		Body:         body,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("%w: handler closed", common.ErrConnection)
	}

	if h.conn == nil || h.conn.IsClosed() {
		h.log.Warn(ctx, "broker connection closed, reconnecting", "queue", queue)
		if err := h.reconnectLocked(ctx); err != nil {
			return err
		}
	}

	p := h.publisherLocked(queue, action)
	err = p.publish(ctx, msg)
	if err != nil && IsConnectionLost(err) {
		h.log.Warn(ctx, "broker connection lost during publish, retrying", "queue", queue, "error", err)
		if err := h.reconnectLocked(ctx); err != nil {
			return err
		}
		err = p.publish(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("publish to %q: %w", queue, err)
	}

	h.log.Info(ctx, "message published", "queue", queue, "action", action, "message_id", msg.MessageId)
	return nil
}

// Close releases every channel and the connection. Later calls are no-ops.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for _, p := range h.publishers {
		p.close()
	}
	if h.conn == nil || h.conn.IsClosed() {
		return nil
	}
	h.log.Info(context.Background(), "closing broker connection")
	return h.conn.Close()
}

func (h *Handler) publisherLocked(queue, action string) *Publisher {
	key := publisherKey{action: action, queue: queue}
	p, ok := h.publishers[key]
	if !ok {
		p = newPublisher(queue, h.conn)
		h.publishers[key] = p
	}
	return p
}

func (h *Handler) reconnectLocked(ctx context.Context) error {
	if h.conn != nil && !h.conn.IsClosed() {
		_ = h.conn.Close()
	}

	conn, err := Connect(ctx, h.dialer, h.policy, h.clock, h.log)
	if err != nil {
		return err
	}
	h.conn = conn
	for _, p := range h.publishers {
		p.refresh(conn)
	}
	return nil
}
