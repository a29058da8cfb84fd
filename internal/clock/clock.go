// Package clock provides an injectable time source so token expiry, broker
// backoff and reconnect delays can be driven deterministically in tests.
//
// Production code holds a Clock field initialised with Real(); tests use
// Fake() and call Advance to fire pending waits.
package clock

import "time"

// Clock abstracts the time operations used by the service.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
