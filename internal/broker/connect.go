package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accounts/internal/clock"
	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/logging"
)

// RetryPolicy bounds how hard Connect tries before giving up.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy makes 10 attempts 5 seconds apart.
var DefaultRetryPolicy = RetryPolicy{Attempts: 10, Backoff: 5 * time.Second}

// Connect dials until it succeeds or the policy is exhausted, in which case
// the returned error wraps common.ErrConnection.
func Connect(ctx context.Context, d Dialer, p RetryPolicy, c clock.Clock, log logging.Logger) (Connection, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := d.Dial(ctx)
		if err == nil {
			log.Info(ctx, "connected to broker", "attempt", i)
			return conn, nil
		}
		lastErr = err
		log.Error(ctx, "failed to connect to broker", "attempt", i, "error", err)

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.After(p.Backoff):
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", common.ErrConnection, attempts, lastErr)
}
