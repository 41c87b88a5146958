// Package runner drives a bot session: a serialised poll loop that filters
// records, forwards them to sinks and hands them to a Handler.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/wirebot/internal/config"
	"github.com/flemzord/wirebot/pkg/bot"
)

const pruneEvery = 64

// Publisher receives every accepted record before it is handled.
type Publisher interface {
	Publish(ctx context.Context, msg bot.Message) error
}

// Stats counts loop activity.
type Stats struct {
	Polls   int64 `json:"polls"`
	Handled int64 `json:"handled"`
	Dropped int64 `json:"dropped"`
}

// Runner owns a bot session. The session API is not reentrant, so every
// call into the bot goes through the runner lock: the poll loop, Do and the
// handler all hold it.
type Runner struct {
	mu  sync.Mutex
	bot *bot.Bot

	handler   Handler
	publisher Publisher
	allow     *AllowList
	limiter   *senderLimiter
	commands  []bot.Command
	idle      time.Duration
	logger    *slog.Logger

	polls   atomic.Int64
	handled atomic.Int64
	dropped atomic.Int64

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Runner.
type Option func(*Runner)

// WithHandler replaces the DefaultHandler built from the runner config.
func WithHandler(h Handler) Option {
	return func(r *Runner) { r.handler = h }
}

// WithPublisher forwards accepted records, typically to a sink.Fanout.
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithCommands registers a command menu with setMyCommands when the loop starts.
func WithCommands(commands []bot.Command) Option {
	return func(r *Runner) { r.commands = commands }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a Runner for b.
func New(b *bot.Bot, cfg config.RunnerConfig, opts ...Option) *Runner {
	r := &Runner{
		bot:   b,
		allow: NewAllowList(cfg.AllowUsers, cfg.AllowChats),
		idle:  cfg.IdleInterval,
	}
	if cfg.RatePerMinute > 0 {
		r.limiter = newSenderLimiter(cfg.RatePerMinute, time.Minute, time.Now)
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.handler == nil {
		r.handler = DefaultHandler{Echo: cfg.Echo, ChunkLength: cfg.ChunkLength}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "runner")
	return r
}

// Bot returns the session. Only its concurrency-safe accessors may be used
// outside Do.
func (r *Runner) Bot() *bot.Bot { return r.bot }

// Stats returns the loop counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Polls:   r.polls.Load(),
		Handled: r.handled.Load(),
		Dropped: r.dropped.Load(),
	}
}

// Do runs fn with exclusive access to the session.
func (r *Runner) Do(fn func(b *bot.Bot) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.bot)
}

// Start launches the poll loop. It implements app.Component.
func (r *Runner) Start(ctx context.Context) error {
	if r.done != nil {
		return errors.New("runner: already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(loopCtx)
	return nil
}

// Stop ends the loop, waits for it and releases the transport. It is
// idempotent.
func (r *Runner) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})
	if r.done == nil {
		return nil
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.mu.Lock()
	r.bot.Close()
	r.mu.Unlock()
	return nil
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	r.prepare(ctx)
	r.logger.Info("poll loop started", "long_poll", r.bot.Config().LongPoll, "allow_list", !r.allow.Empty())

	longPoll := r.bot.Config().LongPoll > 0
	for ctx.Err() == nil {
		started := time.Now()
		n := r.PollOnce(ctx)

		if r.polls.Load()%pruneEvery == 0 {
			r.limiter.prune()
		}

		// Without long polling, or when a poll failed fast, wait before
		// asking again.
		if n == 0 && (!longPoll || time.Since(started) < r.idle) {
			t := time.NewTimer(r.idle)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}
	r.logger.Info("poll loop stopped", "polls", r.polls.Load(), "handled", r.handled.Load())
}

// prepare fetches the bot identity and registers the command menu.
func (r *Runner) prepare(ctx context.Context) {
	_ = r.Do(func(b *bot.Bot) error {
		me, err := b.GetMe(ctx)
		if err != nil {
			r.logger.Warn("getMe failed", "error", err)
		} else {
			r.logger.Info("bot identity", "username", me.Username, "id", me.ID)
		}
		if len(r.commands) > 0 {
			if err := b.SetMyCommands(ctx, r.commands); err != nil {
				r.logger.Warn("setMyCommands failed", "error", err)
			}
		}
		return nil
	})
}

// PollOnce polls from the watermark, dispatches every record and releases
// the transport. It returns the number of records received.
func (r *Runner) PollOnce(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.bot.GetUpdates(ctx, r.bot.LastUpdateID()+1)
	r.polls.Add(1)
	for _, msg := range r.bot.Messages() {
		r.dispatch(ctx, msg)
	}
	if n > 0 {
		r.bot.Close()
	}
	return n
}

// dispatch runs with r.mu held.
func (r *Runner) dispatch(ctx context.Context, msg bot.Message) {
	logger := r.logger.With("update_id", msg.UpdateID, "type", string(msg.Type))

	if !r.allow.IsAllowed(msg) {
		r.dropped.Add(1)
		logger.Debug("update from unlisted sender dropped", "from_id", msg.FromID, "chat_id", msg.ChatID)
		return
	}
	if !r.limiter.allow(senderKey(msg)) {
		r.dropped.Add(1)
		logger.Warn("sender rate limited", "from_id", msg.FromID, "chat_id", msg.ChatID)
		return
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, msg); err != nil {
			logger.Debug("publish incomplete", "error", err)
		}
	}
	if err := r.handler.Handle(ctx, r.bot, msg); err != nil {
		logger.Warn("handler failed", "error", err)
	}
	r.handled.Add(1)
}

func senderKey(msg bot.Message) string {
	if msg.FromID != 0 {
		return "u" + strconv.FormatInt(msg.FromID, 10)
	}
	return "c" + strconv.FormatInt(msg.ChatID, 10)
}
