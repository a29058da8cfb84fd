package broker

import (
	"errors"
	"io"
	"net"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
)

// IsConnectionLost reports whether err means the underlying connection is
// gone even if it was not yet reported closed: a closed channel or
// connection, a forced close, EOF, broken pipe or connection reset.
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var aerr *amqp.Error
	if errors.As(err, &aerr) && (aerr.Code == amqp.ConnectionForced || aerr.Code == amqp.ChannelError) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
