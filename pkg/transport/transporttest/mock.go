// Package transporttest provides an in-memory scripted Transport and a
// manually advanced Clock for tests.
package transporttest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flemzord/wirebot/pkg/transport"
)

// ErrRefused is returned by Connect while the transport refuses connections.
var ErrRefused = errors.New("transporttest: connection refused")

// Compile-time interface guards.
var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Clock     = (*Clock)(nil)
)

// Transport replays queued raw responses. A response is released into the
// read buffer on the first read attempt after a write, so each request sees
// exactly one scripted answer. Every written byte is recorded.
// All methods are safe for concurrent use.
type Transport struct {
	mu sync.Mutex

	// RefuseConnects makes the next N Connect calls fail.
	RefuseConnects int

	// CloseAfterResponse drops the connection once a response is drained.
	CloseAfterResponse bool

	queue     []string
	buf       []byte
	connected bool
	pending   bool
	written   bytes.Buffer
	requests  []string

	Connects int
	Closes   int
	Hosts    []string
}

// New returns a transport that answers requests with responses, in order.
func New(responses ...string) *Transport {
	return &Transport{queue: responses}
}

// Queue appends raw responses to the script.
func (t *Transport) Queue(responses ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, responses...)
}

// Connect implements transport.Transport.
func (t *Transport) Connect(_ context.Context, host string, port int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Hosts = append(t.Hosts, fmt.Sprintf("%s:%d", host, port))
	if t.RefuseConnects > 0 {
		t.RefuseConnects--
		return ErrRefused
	}
	t.Connects++
	t.connected = true
	t.pending = false
	t.buf = nil
	return nil
}

// Connected implements transport.Transport.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Available implements transport.Transport.
func (t *Transport) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.release()
	return len(t.buf)
}

// ReadByte implements transport.Transport.
func (t *Transport) ReadByte() (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return 0, transport.ErrNotConnected
	}
	t.release()
	if len(t.buf) == 0 {
		return 0, transport.ErrNoData
	}
	b := t.buf[0]
	t.buf = t.buf[1:]
	if len(t.buf) == 0 && t.CloseAfterResponse {
		t.connected = false
	}
	return b, nil
}

// Write implements transport.Transport.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return 0, transport.ErrNotConnected
	}
	if !t.pending {
		t.requests = append(t.requests, "")
	}
	t.requests[len(t.requests)-1] += string(p)
	t.written.Write(p)
	t.pending = true
	return len(p), nil
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		t.Closes++
	}
	t.connected = false
	t.pending = false
	t.buf = nil
	return nil
}

// Written returns every byte written so far.
func (t *Transport) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written.String()
}

// Requests returns the written bytes split per request.
func (t *Transport) Requests() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.requests))
	copy(out, t.requests)
	return out
}

// Remaining reports how many scripted responses have not been served.
func (t *Transport) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// release moves the next scripted response into the read buffer once a
// request has been written. Caller holds t.mu.
func (t *Transport) release() {
	if !t.connected || !t.pending || len(t.buf) > 0 || len(t.queue) == 0 {
		return
	}
	t.buf = []byte(t.queue[0])
	t.queue = t.queue[1:]
	t.pending = false
}

// Response builds a raw HTTP/1.1 200 response carrying body with a
// Content-Length header.
func Response(body string) string {
	return fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: %d\r\nConnection: keep-alive\r\n\r\n%s", len(body), body)
}

// ResponseWithoutLength builds a raw HTTP/1.1 200 response with no
// Content-Length header.
func ResponseWithoutLength(body string) string {
	return "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n" + body
}

// Body extracts the request body from a raw written request.
func Body(request string) string {
	_, body, _ := strings.Cut(request, "\r\n\r\n")
	return body
}

// Clock is a transport.Clock whose time only moves on Sleep or Advance.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock set to a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now implements transport.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep implements transport.Clock by advancing the clock.
func (c *Clock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
