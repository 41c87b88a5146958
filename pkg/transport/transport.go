// Package transport defines the byte-stream collaborator the wire engine
// talks through, plus a stream implementation over any net.Conn dialer.
//
// A Transport is externally owned and stateful: the engine issues Connect and
// Close calls but never assumes the connection outlives a single exchange.
package transport

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the transport package.
var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrNoData       = errors.New("transport: no data available")
)

// Transport is a bidirectional byte stream to a single remote host.
// Implementations are not required to be safe for concurrent use; callers
// serialise exchanges.
type Transport interface {
	// Connect opens a connection to host:port. A non-nil error means the
	// transport refused or failed to connect.
	Connect(ctx context.Context, host string, port int) error

	// Connected reports whether the stream is open or still holds unread bytes.
	Connected() bool

	// Available returns the number of bytes that can be read without blocking.
	Available() int

	// ReadByte returns the next byte. It returns ErrNoData when nothing is
	// buffered.
	ReadByte() (byte, error)

	// Write sends p in full or returns an error.
	Write(p []byte) (int, error)

	// Close releases the connection. Closing a closed transport is a no-op.
	Close() error
}

// Clock is the timer primitive used to bound reads and retry budgets.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep implements Clock.
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
