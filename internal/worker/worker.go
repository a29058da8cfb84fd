// Package worker drains the inbound "start action X for email Y" queues.
// Each Worker mints a token for the address it receives and hands a
// confirmation link to the mailer through the shared broker handler.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/accounts/internal/broker"
	"github.com/dmitrijs2005/accounts/internal/clock"
	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"
)

// State is the lifecycle position of a Worker.
type State int32

const (
	Connecting State = iota
	Consuming
	Reconnecting
	Terminated
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Consuming:
		return "consuming"
	case Reconnecting:
		return "reconnecting"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// queueActions maps inbound queues to the action recorded on their tokens
// where the two names differ.
var queueActions = map[string]string{
	"pre_register": common.ActionRegister,
}

// ActionForQueue returns the token action for an inbound queue.
func ActionForQueue(queue string) string {
	if action, ok := queueActions[queue]; ok {
		return action
	}
	return queue
}

// DefaultReconnectDelay is the pause before rebuilding a dropped connection.
const DefaultReconnectDelay = 10 * time.Second

var errStreamClosed = errors.New("delivery stream closed")

// TokenIssuer mints action tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, email, action string) (string, error)
}

// Publisher enqueues notifications.
type Publisher interface {
	Publish(ctx context.Context, queue string, message any, action string) error
}

// Notification is what the mailer receives on <queue>_email.
type Notification struct {
	Email string `json:"email"`
	URL   string `json:"URL"`
}

// Config describes one watched queue.
type Config struct {
	Queue              string
	BaseURL            string
	Policy             broker.RetryPolicy
	ReconnectDelay     time.Duration
	DeadLetterExchange string
}

// Worker consumes one inbound queue over its own broker connection.
type Worker struct {
	cfg       Config
	action    string
	dialer    broker.Dialer
	tokens    TokenIssuer
	publisher Publisher
	clock     clock.Clock
	log       logging.Logger
	validate  *validator.Validate

	state    atomic.Int32
	stopped  atomic.Bool
	consumed atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New returns a Worker for cfg.Queue.
func New(cfg Config, d broker.Dialer, tokens TokenIssuer, publisher Publisher, c clock.Clock, log logging.Logger) *Worker {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	action := ActionForQueue(cfg.Queue)
	return &Worker{
		cfg:       cfg,
		action:    action,
		dialer:    d,
		tokens:    tokens,
		publisher: publisher,
		clock:     c,
		log:       log.With("module", "worker", "queue", cfg.Queue, "action", action),
		validate:  validator.New(),
	}
}

func (w *Worker) Queue() string  { return w.cfg.Queue }
func (w *Worker) Action() string { return w.action }
func (w *Worker) State() State   { return State(w.state.Load()) }

// HasConsumed reports whether the worker ever reached Consuming.
func (w *Worker) HasConsumed() bool { return w.consumed.Load() }

// Stopped reports whether Stop was called.
func (w *Worker) Stopped() bool { return w.stopped.Load() }

// Stop asks Run to return. A message being handled is not drained.
func (w *Worker) Stop() {
	w.stopped.Store(true)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Worker) setState(s State) {
	if old := State(w.state.Swap(int32(s))); old != s {
		w.log.Debug(context.Background(), "worker state changed", "from", old.String(), "to", s.String())
	}
}

func (w *Worker) done(ctx context.Context) bool {
	return w.stopped.Load() || ctx.Err() != nil
}

// Run connects, consumes and reconnects until ctx is cancelled or Stop is
// called, returning nil in both cases. It returns an error when a connection
// cannot be established within the retry policy or the queue cannot be set
// up.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	defer w.setState(Terminated)
	if w.stopped.Load() {
		return nil
	}

	w.setState(Connecting)
	for {
		conn, err := broker.Connect(ctx, w.dialer, w.cfg.Policy, w.clock, w.log)
		if err != nil {
			if w.done(ctx) {
				return nil
			}
			return err
		}

		err = w.consume(ctx, conn)
		if !conn.IsClosed() {
			_ = conn.Close()
		}
		if w.done(ctx) {
			return nil
		}
		if !errors.Is(err, errStreamClosed) && !broker.IsConnectionLost(err) {
			return err
		}

		w.setState(Reconnecting)
		w.log.Warn(ctx, "lost broker connection, reconnecting", "error", err, "delay", w.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-w.clock.After(w.cfg.ReconnectDelay):
		}
	}
}

func (w *Worker) consume(ctx context.Context, conn broker.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: open channel: %v", errStreamClosed, err)
	}
	defer func() {
		if !ch.IsClosed() {
			_ = ch.Close()
		}
	}()

	var args amqp.Table
	if w.cfg.DeadLetterExchange != "" {
		args = amqp.Table{"x-dead-letter-exchange": w.cfg.DeadLetterExchange}
	}
	if _, err := ch.QueueDeclare(w.cfg.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %q: %w", w.cfg.Queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(w.cfg.Queue, w.action, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %q: %w", w.cfg.Queue, err)
	}
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))

	w.consumed.Store(true)
	w.setState(Consuming)
	w.log.Info(ctx, "waiting for messages")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason, ok := <-connClosed:
			if ok && reason != nil {
				return fmt.Errorf("%w: %v", errStreamClosed, reason)
			}
			return errStreamClosed
		case d, ok := <-deliveries:
			if !ok {
				return errStreamClosed
			}
			w.handle(ctx, d)
		}
	}
}

// handle acks d only once the token is stored and the notification is
// published. Bodies that can never succeed are rejected without requeue;
// anything else is returned to the queue.
func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	email := strings.TrimSpace(string(d.Body))
	log := w.log.With("email", email, "delivery_tag", d.DeliveryTag)
	log.Info(ctx, "received message")

	if err := w.validate.Var(email, "required,email"); err != nil {
		log.Warn(ctx, "rejecting malformed message", "error", err)
		if err := d.Reject(false); err != nil {
			log.Error(ctx, "reject failed", "error", err)
		}
		return
	}

	token, err := w.tokens.Issue(ctx, email, w.action)
	if err != nil {
		if errors.Is(err, common.ErrUnknownAction) {
			log.Error(ctx, "rejecting message for unknown action", "error", err)
			_ = d.Reject(false)
			return
		}
		log.Error(ctx, "token issue failed, requeueing", "error", err)
		_ = d.Nack(false, true)
		return
	}

	n := Notification{Email: email, URL: w.link(email, token)}
	if err := w.publisher.Publish(ctx, w.cfg.Queue+"_email", n, w.action); err != nil {
		log.Error(ctx, "notification publish failed, requeueing", "error", err)
		_ = d.Nack(false, true)
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error(ctx, "ack failed", "error", err)
		return
	}
	log.Info(ctx, "message handled")
}

func (w *Worker) link(email, token string) string {
	return fmt.Sprintf("%s/?email=%s&email_token=%s", w.cfg.BaseURL, email, token)
}
