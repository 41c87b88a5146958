package wsrelay

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// conn is a net.Conn over a websocket. A background goroutine pumps frames
// into a buffer, so read deadlines only bound the wait on that buffer and
// never cancel the websocket read itself.
type conn struct {
	ws     *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	remote addr

	mu            sync.Mutex
	buf           []byte
	err           error
	ready         chan struct{} // closed and replaced whenever buf or err changes
	readDeadline  time.Time
	writeDeadline time.Time

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, target string) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		ws:     ws,
		ctx:    ctx,
		cancel: cancel,
		remote: addr(target),
		ready:  make(chan struct{}),
	}
	go c.pump()
	return c
}

func (c *conn) pump() {
	for {
		_, data, err := c.ws.Read(c.ctx)

		c.mu.Lock()
		if err != nil {
			c.err = readError(err)
		} else {
			c.buf = append(c.buf, data...)
		}
		close(c.ready)
		c.ready = make(chan struct{})
		c.mu.Unlock()

		if err != nil {
			return
		}
	}
}

// readError maps a websocket read failure to what net.Conn callers expect.
func readError(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return io.EOF
	}
	if errors.Is(err, context.Canceled) {
		return net.ErrClosed
	}
	return err
}

// Read implements net.Conn. Buffered bytes are returned before the pump's
// terminal error.
func (c *conn) Read(p []byte) (int, error) {
	for {
		c.mu.Lock()
		if len(c.buf) > 0 {
			n := copy(p, c.buf)
			c.buf = c.buf[n:]
			c.mu.Unlock()
			return n, nil
		}
		if c.err != nil {
			err := c.err
			c.mu.Unlock()
			return 0, err
		}
		ready, deadline := c.ready, c.readDeadline
		c.mu.Unlock()

		if deadline.IsZero() {
			<-ready
			continue
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(wait)
		select {
		case <-ready:
			timer.Stop()
		case <-timer.C:
			return 0, os.ErrDeadlineExceeded
		}
	}
}

// Write implements net.Conn. Each call is sent as one binary frame.
func (c *conn) Write(p []byte) (int, error) {
	ctx := c.ctx
	c.mu.Lock()
	deadline := c.writeDeadline
	c.mu.Unlock()
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	if err := c.ws.Write(ctx, websocket.MessageBinary, p); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, os.ErrDeadlineExceeded
		}
		return 0, err
	}
	return len(p), nil
}

// Close implements net.Conn. It is idempotent.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close(websocket.StatusNormalClosure, "")
		c.cancel()
	})
	return err
}

func (c *conn) LocalAddr() net.Addr  { return addr("wsrelay") }
func (c *conn) RemoteAddr() net.Addr { return c.remote }

func (c *conn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline, c.writeDeadline = t, t
	return nil
}

func (c *conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	return nil
}

func (c *conn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeDeadline = t
	return nil
}

// addr names the relayed target.
type addr string

func (a addr) Network() string { return "websocket" }
func (a addr) String() string  { return string(a) }
