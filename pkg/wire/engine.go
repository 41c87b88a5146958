package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/wirebot/pkg/transport"
)

const (
	// DefaultHost is the Bot API virtual host.
	DefaultHost = "api.telegram.org"
	// DefaultPort is the HTTPS port.
	DefaultPort = 443
	// DefaultMaxBody caps the number of body bytes kept per response.
	DefaultMaxBody = 10000
	// DefaultWaitForResponse is the read allowance added on top of the long-poll duration.
	DefaultWaitForResponse = 1500 * time.Millisecond

	// Boundary is the fixed multipart boundary. It is not randomised.
	Boundary = "------------------------b8f610217e83e29b"

	userAgent   = "wirebot/1.0"
	tracerName  = "github.com/flemzord/wirebot/pkg/wire"
	spanName    = "wire.exchange"
	exchangeLen = 8
)

// Engine performs single HTTP/1.1 exchanges against the Bot API host over a
// shared Transport. It is not safe for concurrent use: one logical request
// may be in flight at a time.
//
// Get and PostJSON leave the connection open so the caller can reuse it;
// PostMultipart always closes it. Callers release the connection with Close
// once they are done.
type Engine struct {
	conn     transport.Transport
	clock    transport.Clock
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
	breaker  *gobreaker.CircuitBreaker[struct{}]

	host     string
	port     int
	maxBody  int
	longPoll time.Duration
	wait     time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithHost overrides the API host and port.
func WithHost(host string, port int) Option {
	return func(e *Engine) {
		e.host = host
		e.port = port
	}
}

// WithMaxBody sets the maximum number of body bytes kept per response.
func WithMaxBody(n int) Option {
	return func(e *Engine) { e.maxBody = n }
}

// WithLongPoll sets the long-poll duration added to every read timeout.
func WithLongPoll(d time.Duration) Option {
	return func(e *Engine) { e.longPoll = d }
}

// WithWaitForResponse sets the fixed read allowance.
func WithWaitForResponse(d time.Duration) Option {
	return func(e *Engine) { e.wait = d }
}

// WithClock sets the clock used to bound reads.
func WithClock(c transport.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers an exchange observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// New creates an Engine bound to conn.
func New(conn transport.Transport, opts ...Option) *Engine {
	e := &Engine{
		conn:    conn,
		host:    DefaultHost,
		port:    DefaultPort,
		maxBody: DefaultMaxBody,
		wait:    DefaultWaitForResponse,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = transport.SystemClock{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e
}

// Host returns the API host the engine connects to.
func (e *Engine) Host() string { return e.host }

// MaxBody returns the configured body cap.
func (e *Engine) MaxBody() int { return e.maxBody }

// SetLongPoll changes the long-poll duration used for subsequent reads.
func (e *Engine) SetLongPoll(d time.Duration) { e.longPoll = d }

// ReadTimeout is the overall bound applied to each response read.
func (e *Engine) ReadTimeout() time.Duration { return e.longPoll + e.wait }

// Clock returns the engine clock.
func (e *Engine) Clock() transport.Clock { return e.clock }

// Get performs a GET request for path and returns the response body, or an
// empty string when the transport could not connect.
func (e *Engine) Get(ctx context.Context, path string) string {
	return e.exchange(ctx, "GET", path, false, func() error {
		var req bytes.Buffer
		fmt.Fprintf(&req, "GET /%s HTTP/1.1\r\n", path)
		fmt.Fprintf(&req, "Host: %s\r\n", e.host)
		req.WriteString("Accept: application/json\r\n")
		req.WriteString("Cache-Control: no-cache\r\n")
		req.WriteString("\r\n")
		return e.write(req.Bytes())
	})
}

// PostJSON serialises payload and POSTs it to path.
func (e *Engine) PostJSON(ctx context.Context, path string, payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("wire: marshal payload", "method", MethodName(path), "error", err)
		return ""
	}

	return e.exchange(ctx, "POST", path, false, func() error {
		var req bytes.Buffer
		fmt.Fprintf(&req, "POST /%s HTTP/1.1\r\n", path)
		fmt.Fprintf(&req, "Host: %s\r\n", e.host)
		req.WriteString("Content-Type: application/json\r\n")
		fmt.Fprintf(&req, "Content-Length: %d\r\n", len(data))
		req.WriteString("\r\n")
		req.Write(data)
		return e.write(req.Bytes())
	})
}

// Upload describes a multipart/form-data file upload.
type Upload struct {
	// Field is the form field carrying the file (e.g. "photo").
	Field string
	// FileName is the filename announced in the part header.
	FileName string
	// ContentType is the MIME type of the file part.
	ContentType string
	// ChatID is sent as the chat_id form field.
	ChatID string
	// Size is the exact number of bytes Payload yields.
	Size int
	// Payload streams the file content.
	Payload Payload
}

// PostMultipart uploads a file to path as multipart/form-data with the fixed
// Boundary. The transport is closed afterwards regardless of the outcome.
func (e *Engine) PostMultipart(ctx context.Context, path string, up Upload) string {
	start, end := multipartSections(up)
	contentLength := up.Size + len(start) + len(end)

	return e.exchange(ctx, "POST", path, true, func() error {
		var req bytes.Buffer
		fmt.Fprintf(&req, "POST /%s HTTP/1.1\r\n", path)
		fmt.Fprintf(&req, "Host: %s\r\n", e.host)
		fmt.Fprintf(&req, "User-Agent: %s\r\n", userAgent)
		req.WriteString("Accept: */*\r\n")
		fmt.Fprintf(&req, "Content-Length: %d\r\n", contentLength)
		fmt.Fprintf(&req, "Content-Type: multipart/form-data; boundary=%s\r\n", Boundary)
		req.WriteString("\r\n")
		req.WriteString(start)
		if err := e.write(req.Bytes()); err != nil {
			return err
		}

		n, err := up.Payload.writeTo(writerFunc(e.conn.Write))
		if err != nil {
			return fmt.Errorf("wire: stream payload: %w", err)
		}
		if n != up.Size {
			e.logger.Warn("wire: payload size mismatch", "declared", up.Size, "written", n)
		}
		return e.write([]byte(end))
	})
}

// multipartSections builds the part preceding the file bytes and the closing
// boundary.
func multipartSections(up Upload) (start, end string) {
	var b strings.Builder
	b.WriteString("--" + Boundary + "\r\n")
	b.WriteString("content-disposition: form-data; name=\"chat_id\"\r\n\r\n")
	b.WriteString(up.ChatID)
	b.WriteString("\r\n--" + Boundary + "\r\n")
	fmt.Fprintf(&b, "content-disposition: form-data; name=\"%s\"; filename=\"%s\"\r\n", up.Field, up.FileName)
	fmt.Fprintf(&b, "Content-Type: %s\r\n\r\n", up.ContentType)
	return b.String(), "\r\n--" + Boundary + "--\r\n"
}

// Close releases the transport. It is idempotent. The transport is closed
// even when it reports disconnected: a peer-closed stream still holds its
// socket until Close.
func (e *Engine) Close() {
	if e.conn.Connected() {
		e.logger.Debug("wire: closing connection")
	}
	if err := e.conn.Close(); err != nil {
		e.logger.Debug("wire: close failed", "error", err)
	}
}

// exchange runs one request/response cycle. send writes the request.
func (e *Engine) exchange(ctx context.Context, verb, path string, closeAfter bool, send func() error) string {
	method := MethodName(path)
	ctx, span := e.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", verb),
			attribute.String("telegram.method", method),
			attribute.String("server.address", e.host),
		),
	)
	defer span.End()

	logger := e.logger.With("exchange", uuid.NewString()[:exchangeLen], "method", method)
	started := e.clock.Now()

	if closeAfter {
		defer e.Close()
	}

	if !e.connect(ctx, logger) {
		span.SetStatus(codes.Error, "connect failed")
		e.observer.ObserveExchange(method, OutcomeConnectError, 0, e.clock.Now().Sub(started))
		return ""
	}

	logger.Debug("wire: sending request", "verb", verb)
	if err := send(); err != nil {
		logger.Warn("wire: request write failed", "error", err)
		span.SetStatus(codes.Error, "write failed")
		e.Close()
		e.observer.ObserveExchange(method, OutcomeConnectError, 0, e.clock.Now().Sub(started))
		return ""
	}

	body, complete := ReadResponse(ctx, e.conn, e.clock, e.maxBody, e.ReadTimeout())
	elapsed := e.clock.Now().Sub(started)

	outcome := OutcomeOK
	if !complete {
		outcome = OutcomePartial
		span.SetStatus(codes.Error, "read timeout")
		logger.Debug("wire: response incomplete", "body_bytes", len(body), "timeout", e.ReadTimeout())
	}
	span.SetAttributes(
		attribute.Int("wire.body_bytes", len(body)),
		attribute.Bool("wire.complete", complete),
	)
	e.observer.ObserveExchange(method, outcome, len(body), elapsed)
	logger.Debug("wire: response received", "body_bytes", len(body), "elapsed", elapsed)
	return body
}

// connect dials the host when the transport is not already connected.
func (e *Engine) connect(ctx context.Context, logger *slog.Logger) bool {
	if e.conn.Connected() {
		return true
	}

	logger.Debug("wire: connecting", "host", e.host, "port", e.port)
	dial := func() (struct{}, error) {
		return struct{}{}, e.conn.Connect(ctx, e.host, e.port)
	}

	var err error
	if e.breaker != nil {
		_, err = e.breaker.Execute(dial)
	} else {
		_, err = dial()
	}
	if err != nil {
		logger.Warn("wire: connection error", "host", e.host, "error", err)
		return false
	}
	return e.conn.Connected()
}

func (e *Engine) write(p []byte) error {
	_, err := e.conn.Write(p)
	return err
}

// MethodName extracts the Bot API method from a request path such as
// "bot<token>/getUpdates?offset=1". The token is never part of the result.
func MethodName(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	return path
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
