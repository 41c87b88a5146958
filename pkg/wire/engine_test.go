package wire

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/wirebot/pkg/transport"
	"github.com/flemzord/wirebot/pkg/transport/transporttest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type exchangeRecord struct {
	method  string
	outcome Outcome
	bytes   int
}

type recordingObserver struct {
	mu      sync.Mutex
	records []exchangeRecord
}

func (o *recordingObserver) ObserveExchange(method string, outcome Outcome, bodyBytes int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, exchangeRecord{method, outcome, bodyBytes})
}

func (o *recordingObserver) last(t *testing.T) exchangeRecord {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.records) == 0 {
		t.Fatal("no exchange observed")
	}
	return o.records[len(o.records)-1]
}

func newTestEngine(conn *transporttest.Transport, opts ...Option) *Engine {
	base := []Option{
		WithClock(transporttest.NewClock()),
		WithLogger(discardLogger()),
	}
	return New(conn, append(base, opts...)...)
}

func TestGetWritesRequestAndKeepsConnection(t *testing.T) {
	conn := transporttest.New(transporttest.Response(`{"ok":true}`))
	obs := &recordingObserver{}
	e := newTestEngine(conn, WithObserver(obs))

	body := e.Get(context.Background(), "botTOKEN/getMe")
	if body != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}

	want := "GET /botTOKEN/getMe HTTP/1.1\r\n" +
		"Host: api.telegram.org\r\n" +
		"Accept: application/json\r\n" +
		"Cache-Control: no-cache\r\n" +
		"\r\n"
	if got := conn.Written(); got != want {
		t.Errorf("request =\n%q\nwant\n%q", got, want)
	}
	if conn.Hosts[0] != "api.telegram.org:443" {
		t.Errorf("dialled %q, want api.telegram.org:443", conn.Hosts[0])
	}
	if !conn.Connected() {
		t.Error("connection closed after GET, want kept open")
	}
	if rec := obs.last(t); rec.method != "getMe" || rec.outcome != OutcomeOK || rec.bytes != len(body) {
		t.Errorf("observed %+v", rec)
	}
}

func TestGetReusesConnection(t *testing.T) {
	conn := transporttest.New(
		transporttest.Response(`{"ok":true,"result":1}`),
		transporttest.Response(`{"ok":true,"result":2}`),
	)
	e := newTestEngine(conn)

	first := e.Get(context.Background(), "botTOKEN/getUpdates?offset=1")
	second := e.Get(context.Background(), "botTOKEN/getUpdates?offset=2")
	if first != `{"ok":true,"result":1}` || second != `{"ok":true,"result":2}` {
		t.Errorf("bodies = %q, %q", first, second)
	}
	if conn.Connects != 1 {
		t.Errorf("Connects = %d, want 1", conn.Connects)
	}
}

func TestGetReconnectsAfterServerClose(t *testing.T) {
	conn := transporttest.New(
		transporttest.Response(`{"ok":true}`),
		transporttest.Response(`{"ok":true}`),
	)
	conn.CloseAfterResponse = true
	e := newTestEngine(conn)

	e.Get(context.Background(), "botTOKEN/getMe")
	e.Get(context.Background(), "botTOKEN/getMe")
	if conn.Connects != 2 {
		t.Errorf("Connects = %d, want 2", conn.Connects)
	}
}

func TestPostJSON(t *testing.T) {
	conn := transporttest.New(transporttest.Response(`{"ok":true}`))
	e := newTestEngine(conn, WithHost("api.example.test", 8443))

	payload := map[string]any{"chat_id": "42", "text": "héllo"}
	body := e.PostJSON(context.Background(), "botTOKEN/sendMessage", payload)
	if body != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}

	req := conn.Requests()[0]
	head, reqBody, _ := strings.Cut(req, "\r\n\r\n")
	lines := strings.Split(head, "\r\n")
	if lines[0] != "POST /botTOKEN/sendMessage HTTP/1.1" {
		t.Errorf("request line = %q", lines[0])
	}
	if lines[1] != "Host: api.example.test" {
		t.Errorf("host line = %q", lines[1])
	}
	if lines[2] != "Content-Type: application/json" {
		t.Errorf("content type line = %q", lines[2])
	}
	if lines[3] != "Content-Length: "+strconv.Itoa(len(reqBody)) {
		t.Errorf("content length line = %q, body is %d bytes", lines[3], len(reqBody))
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(reqBody), &got); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if got["text"] != "héllo" {
		t.Errorf("text = %v", got["text"])
	}
	if conn.Hosts[0] != "api.example.test:8443" {
		t.Errorf("dialled %q", conn.Hosts[0])
	}
}

func TestPostMultipart(t *testing.T) {
	conn := transporttest.New(transporttest.Response(`{"ok":true,"result":{"message_id":9}}`))
	e := newTestEngine(conn)

	file := []byte(strings.Repeat("\x89PNG", 400))
	body := e.PostMultipart(context.Background(), "botTOKEN/sendPhoto", Upload{
		Field:       "photo",
		FileName:    "img.png",
		ContentType: "image/png",
		ChatID:      "123",
		Size:        len(file),
		Payload:     FromBytes(file),
	})
	if body != `{"ok":true,"result":{"message_id":9}}` {
		t.Errorf("body = %q", body)
	}

	req := conn.Requests()[0]
	head, reqBody, _ := strings.Cut(req, "\r\n\r\n")
	if !strings.Contains(head, "Content-Length: "+strconv.Itoa(len(reqBody))+"\r\n") {
		t.Errorf("Content-Length does not match %d body bytes:\n%s", len(reqBody), head)
	}
	if !strings.Contains(head, "Content-Type: multipart/form-data; boundary="+Boundary) {
		t.Errorf("missing multipart content type:\n%s", head)
	}
	if !strings.Contains(head, "Accept: */*") {
		t.Errorf("missing Accept header:\n%s", head)
	}

	wantStart := "--" + Boundary + "\r\n" +
		"content-disposition: form-data; name=\"chat_id\"\r\n\r\n123\r\n" +
		"--" + Boundary + "\r\n" +
		"content-disposition: form-data; name=\"photo\"; filename=\"img.png\"\r\n" +
		"Content-Type: image/png\r\n\r\n"
	if !strings.HasPrefix(reqBody, wantStart) {
		t.Errorf("body starts with %q", reqBody[:min(len(reqBody), len(wantStart))])
	}
	if !strings.HasSuffix(reqBody, "\r\n--"+Boundary+"--\r\n") {
		t.Error("body does not end with the closing boundary")
	}
	if !strings.Contains(reqBody, string(file)) {
		t.Error("file bytes missing from body")
	}
	if conn.Connected() {
		t.Error("connection left open after multipart upload")
	}
}

func TestConnectFailureYieldsEmptyBody(t *testing.T) {
	conn := transporttest.New(transporttest.Response(`{"ok":true}`))
	conn.RefuseConnects = 1
	obs := &recordingObserver{}
	e := newTestEngine(conn, WithObserver(obs))

	if body := e.Get(context.Background(), "botTOKEN/getMe"); body != "" {
		t.Errorf("body = %q, want empty", body)
	}
	if conn.Written() != "" {
		t.Errorf("wrote %q without a connection", conn.Written())
	}
	if rec := obs.last(t); rec.outcome != OutcomeConnectError {
		t.Errorf("outcome = %q, want %q", rec.outcome, OutcomeConnectError)
	}

	// The next attempt connects normally.
	if body := e.Get(context.Background(), "botTOKEN/getMe"); body != `{"ok":true}` {
		t.Errorf("body after recovery = %q", body)
	}
}

func TestPartialResponseObserved(t *testing.T) {
	conn := transporttest.New("HTTP/1.1 200 OK\r\nContent-Length: 500\r\n\r\n{\"ok\":")
	obs := &recordingObserver{}
	e := newTestEngine(conn, WithObserver(obs), WithWaitForResponse(100*time.Millisecond))

	body := e.Get(context.Background(), "botTOKEN/getUpdates")
	if body != `{"ok":` {
		t.Errorf("body = %q", body)
	}
	if rec := obs.last(t); rec.outcome != OutcomePartial {
		t.Errorf("outcome = %q, want %q", rec.outcome, OutcomePartial)
	}
}

func TestReadTimeoutIncludesLongPoll(t *testing.T) {
	e := newTestEngine(transporttest.New(), WithLongPoll(30*time.Second))
	if got, want := e.ReadTimeout(), 30*time.Second+DefaultWaitForResponse; got != want {
		t.Errorf("ReadTimeout() = %v, want %v", got, want)
	}
	e.SetLongPoll(0)
	if got := e.ReadTimeout(); got != DefaultWaitForResponse {
		t.Errorf("ReadTimeout() after reset = %v", got)
	}
}

func TestBreakerFailsFast(t *testing.T) {
	conn := transporttest.New()
	conn.RefuseConnects = 10
	e := newTestEngine(conn, WithBreaker(BreakerSettings{Failures: 2, Cooldown: time.Minute}))

	for range 4 {
		if body := e.Get(context.Background(), "botTOKEN/getMe"); body != "" {
			t.Fatalf("body = %q, want empty", body)
		}
	}
	if len(conn.Hosts) != 2 {
		t.Errorf("dial attempts = %d, want 2 before the breaker opens", len(conn.Hosts))
	}
	if e.BreakerState() != "open" {
		t.Errorf("BreakerState() = %q, want open", e.BreakerState())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	conn := transporttest.New(transporttest.Response(`{}`))
	e := newTestEngine(conn)
	e.Get(context.Background(), "botTOKEN/getMe")

	e.Close()
	e.Close()
	if conn.Closes != 1 {
		t.Errorf("Closes = %d, want 1", conn.Closes)
	}
}

type closeRecorder struct {
	net.Conn
	closed atomic.Bool
}

func (c *closeRecorder) Close() error {
	c.closed.Store(true)
	return c.Conn.Close()
}

func TestCloseReleasesPeerClosedStream(t *testing.T) {
	client, server := net.Pipe()
	rec := &closeRecorder{Conn: client}
	stream := transport.NewStream(func(context.Context, string, int) (net.Conn, error) { return rec, nil })
	if err := stream.Connect(context.Background(), "pipe", 0); err != nil {
		t.Fatal(err)
	}
	e := New(stream, WithLogger(discardLogger()))

	_ = server.Close()
	deadline := time.Now().Add(2 * time.Second)
	for stream.Connected() && time.Now().Before(deadline) {
		stream.Available()
	}
	if stream.Connected() {
		t.Fatal("stream still connected after the peer closed")
	}

	e.Close()
	if !rec.closed.Load() {
		t.Error("Close() left the peer-closed socket open")
	}
}

func TestMethodName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"bot123:ABC/getUpdates?offset=5&limit=1", "getUpdates"},
		{"bot123:ABC/sendPhoto", "sendPhoto"},
		{"getMe", "getMe"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MethodName(tt.path); got != tt.want {
			t.Errorf("MethodName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
