package bot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync/atomic"

	"github.com/buger/jsonparser"
	"golang.org/x/time/rate"

	"github.com/flemzord/wirebot/pkg/transport"
	"github.com/flemzord/wirebot/pkg/wire"
)

// Bot is one bot session: the engine, the update watermark, the records of
// the last poll and the id of the last message sent. Bot methods must be
// called from one goroutine at a time; LastUpdateID, LastSentMessageID and
// Identity are safe to read concurrently.
type Bot struct {
	cfg      Config
	engine   *wire.Engine
	clock    transport.Clock
	logger   *slog.Logger
	observer Observer
	limiter  *rate.Limiter
	wireOpts []wire.Option

	token    string
	messages []Message

	lastUpdate atomic.Int64
	lastSent   atomic.Int64
	identity   atomic.Pointer[User]
}

// Option configures a Bot.
type Option func(*Bot)

// WithLogger sets the logger shared with the engine.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) { b.logger = l }
}

// WithClock sets the clock shared with the engine.
func WithClock(c transport.Clock) Option {
	return func(b *Bot) { b.clock = c }
}

// WithObserver registers a poll and send observer.
func WithObserver(o Observer) Option {
	return func(b *Bot) { b.observer = o }
}

// WithEngineOptions passes extra options to the underlying engine, such as
// an exchange observer, a breaker or a tracer provider.
func WithEngineOptions(opts ...wire.Option) Option {
	return func(b *Bot) { b.wireOpts = append(b.wireOpts, opts...) }
}

// New creates a session talking through conn. Unset Config fields take
// their defaults; call Config.Validate beforehand to reject bad settings.
func New(conn transport.Transport, cfg Config, opts ...Option) *Bot {
	cfg.defaults()
	b := &Bot{
		cfg:   cfg,
		token: cfg.Token,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.clock == nil {
		b.clock = transport.SystemClock{}
	}
	if b.observer == nil {
		b.observer = nopObserver{}
	}
	b.limiter = rate.NewLimiter(rate.Every(cfg.RetryInterval), cfg.RetryBurst)

	engineOpts := []wire.Option{
		wire.WithHost(cfg.Host, cfg.Port),
		wire.WithMaxBody(cfg.MaxBodyBytes),
		wire.WithLongPoll(cfg.LongPoll),
		wire.WithWaitForResponse(cfg.WaitForResponse),
		wire.WithClock(b.clock),
		wire.WithLogger(b.logger),
	}
	b.engine = wire.New(conn, append(engineOpts, b.wireOpts...)...)
	return b
}

// Engine exposes the underlying request engine.
func (b *Bot) Engine() *wire.Engine { return b.engine }

// Config returns the effective configuration.
func (b *Bot) Config() Config { return b.cfg }

// Token returns the current bot token.
func (b *Bot) Token() string { return b.token }

// UpdateToken replaces the bot token used for subsequent requests.
func (b *Bot) UpdateToken(token string) {
	b.token = token
	b.cfg.Token = token
}

// LastUpdateID returns the update watermark.
func (b *Bot) LastUpdateID() int64 { return b.lastUpdate.Load() }

// LastSentMessageID returns the id of the last message the bot sent or
// edited, or 0 when none was recorded.
func (b *Bot) LastSentMessageID() int { return int(b.lastSent.Load()) }

// Identity returns the user returned by the last successful GetMe.
func (b *Bot) Identity() (User, bool) {
	u := b.identity.Load()
	if u == nil {
		return User{}, false
	}
	return *u, true
}

// Messages returns the records decoded by the last GetUpdates call.
func (b *Bot) Messages() []Message { return slices.Clone(b.messages) }

// Close releases the transport. It is idempotent.
func (b *Bot) Close() { b.engine.Close() }

// path builds "bot<token>/<method>" with an optional query.
func (b *Bot) path(method string, query url.Values) string {
	p := "bot" + b.token + "/" + method
	if len(query) > 0 {
		p += "?" + query.Encode()
	}
	return p
}

// checkOK decodes the ok flag of a send response and records
// result.message_id as the last sent id when it is positive.
func (b *Bot) checkOK(body string) error {
	if body == "" {
		return ErrConnect
	}
	data := []byte(body)

	var resp APIResponse[json.RawMessage]
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	if id, err := jsonparser.GetInt(data, "result", "message_id"); err == nil && id > 0 {
		b.lastSent.Store(id)
	}
	if !resp.OK {
		return resp.apiError()
	}
	return nil
}
