package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultPeekWait    = 5 * time.Millisecond
	readBufferSize     = 1024
)

// DialFunc opens a raw connection to host:port.
type DialFunc func(ctx context.Context, host string, port int) (net.Conn, error)

// TCPDialer returns a DialFunc for plain TCP connections.
func TCPDialer(timeout time.Duration) DialFunc {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return func(ctx context.Context, host string, port int) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		return d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	}
}

// TLSDialer returns a DialFunc that wraps TCP connections in TLS. A nil cfg
// uses the system roots with TLS 1.2 as the floor.
func TLSDialer(cfg *tls.Config, timeout time.Duration) DialFunc {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return func(ctx context.Context, host string, port int) (net.Conn, error) {
		d := tls.Dialer{
			NetDialer: &net.Dialer{Timeout: timeout},
			Config:    cfg,
		}
		return d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	}
}

// Stream adapts a net.Conn into a Transport. Reads go through a small buffer
// so Available can report pending bytes without blocking the caller.
type Stream struct {
	dial     DialFunc
	peekWait time.Duration

	conn net.Conn
	r    *bufio.Reader
	eof  bool
}

// Compile-time interface guard.
var _ Transport = (*Stream)(nil)

// NewStream creates a Stream that opens connections with dial.
func NewStream(dial DialFunc) *Stream {
	return &Stream{dial: dial, peekWait: defaultPeekWait}
}

// Connect implements Transport. An existing connection is closed first.
func (s *Stream) Connect(ctx context.Context, host string, port int) error {
	_ = s.Close()

	conn, err := s.dial(ctx, host, port)
	if err != nil {
		return fmt.Errorf("transport: connect %s:%d: %w", host, port, err)
	}
	s.conn = conn
	s.r = bufio.NewReaderSize(conn, readBufferSize)
	s.eof = false
	return nil
}

// Connected implements Transport. A peer-closed stream counts as connected
// until its buffered bytes are drained.
func (s *Stream) Connected() bool {
	if s.conn == nil {
		return false
	}
	return !s.eof || s.r.Buffered() > 0
}

// Available implements Transport.
func (s *Stream) Available() int {
	if s.conn == nil {
		return 0
	}
	if n := s.r.Buffered(); n > 0 || s.eof {
		return n
	}

	_ = s.conn.SetReadDeadline(time.Now().Add(s.peekWait))
	_, err := s.r.Peek(1)
	_ = s.conn.SetReadDeadline(time.Time{})
	if err != nil && !isTimeout(err) {
		// io.EOF or a broken connection: nothing more will arrive.
		s.eof = true
	}
	return s.r.Buffered()
}

// ReadByte implements Transport.
func (s *Stream) ReadByte() (byte, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}
	if s.r.Buffered() == 0 {
		return 0, ErrNoData
	}
	return s.r.ReadByte()
}

// Write implements Transport.
func (s *Stream) Write(p []byte) (int, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}
	n, err := s.conn.Write(p)
	if err != nil {
		return n, fmt.Errorf("transport: write: %w", err)
	}
	return n, nil
}

// Close implements Transport.
func (s *Stream) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.r = nil
	s.eof = false
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
