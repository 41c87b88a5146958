package bot

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/flemzord/wirebot/pkg/transport/transporttest"
)

const testToken = "123456:TEST-token_abc"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sendRecord struct {
	method   string
	attempts int
	err      error
}

type recordingObserver struct {
	mu       sync.Mutex
	polls    []int
	failures []error
	sends    []sendRecord
}

func (o *recordingObserver) ObservePoll(delivered int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.polls = append(o.polls, delivered)
}

func (o *recordingObserver) ObserveFailure(kind error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, kind)
}

func (o *recordingObserver) ObserveSend(method string, attempts int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sends = append(o.sends, sendRecord{method, attempts, err})
}

type fixture struct {
	bot   *Bot
	conn  *transporttest.Transport
	clock *transporttest.Clock
	obs   *recordingObserver
}

// newFixture builds a bot over a scripted transport. mutate may adjust the
// config before the bot is created.
func newFixture(t *testing.T, mutate func(*Config), responses ...string) *fixture {
	t.Helper()
	cfg := Config{Token: testToken}
	if mutate != nil {
		mutate(&cfg)
	}
	f := &fixture{
		conn:  transporttest.New(responses...),
		clock: transporttest.NewClock(),
		obs:   &recordingObserver{},
	}
	f.bot = New(f.conn, cfg,
		WithLogger(discardLogger()),
		WithClock(f.clock),
		WithObserver(f.obs),
	)
	return f
}

func ok(body string) string { return transporttest.Response(body) }
