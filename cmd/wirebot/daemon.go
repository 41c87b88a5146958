package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/flemzord/wirebot/internal/app"
	"github.com/flemzord/wirebot/internal/config"
	"github.com/flemzord/wirebot/internal/cron"
	"github.com/flemzord/wirebot/internal/gateway"
	"github.com/flemzord/wirebot/internal/metrics"
	"github.com/flemzord/wirebot/internal/redact"
	"github.com/flemzord/wirebot/internal/reload"
	"github.com/flemzord/wirebot/internal/runner"
	"github.com/flemzord/wirebot/internal/sink"
	"github.com/flemzord/wirebot/internal/tracing"
	"github.com/flemzord/wirebot/pkg/bot"
	"github.com/flemzord/wirebot/pkg/transport"
	"github.com/flemzord/wirebot/pkg/transport/wsrelay"
	"github.com/flemzord/wirebot/pkg/wire"
)

// newLogger builds the process logger. Every record passes through the
// redacting handler, which also knows the configured secrets verbatim.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Log.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if cfg.Log.Format == "json" {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}

	r := redact.New()
	for _, secret := range []string{cfg.Bot.Token, cfg.Transport.RelayToken, cfg.Gateway.BearerToken} {
		r.AddLiteral(secret)
	}
	return slog.New(redact.NewHandler(inner, r))
}

// newTransport returns the byte stream selected by transport.kind.
func newTransport(cfg config.TransportConfig) (transport.Transport, error) {
	switch cfg.Kind {
	case config.TransportTLS, "":
		return transport.NewStream(transport.TLSDialer(&tls.Config{MinVersion: tls.VersionTLS12}, cfg.DialTimeout)), nil
	case config.TransportTCP:
		return transport.NewStream(transport.TCPDialer(cfg.DialTimeout)), nil
	case config.TransportRelay:
		header := http.Header{}
		if cfg.RelayToken != "" {
			header.Set("Authorization", "Bearer "+cfg.RelayToken)
		}
		return transport.NewStream(wsrelay.Dialer(cfg.RelayURL, header)), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

// newBot builds a session over the configured transport. observer and
// engineOpts may be nil.
func newBot(cfg *config.Config, logger *slog.Logger, observer bot.Observer, engineOpts ...wire.Option) (*bot.Bot, error) {
	conn, err := newTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}
	if cfg.Breaker.Enabled {
		engineOpts = append(engineOpts, wire.WithBreaker(wire.BreakerSettings{
			Failures: cfg.Breaker.Failures,
			Cooldown: cfg.Breaker.Cooldown,
		}))
	}

	opts := []bot.Option{bot.WithLogger(logger), bot.WithEngineOptions(engineOpts...)}
	if observer != nil {
		opts = append(opts, bot.WithObserver(observer))
	}
	return bot.New(conn, cfg.Bot.Session(), opts...), nil
}

// buildDaemon wires every component of `wirebot run` into an App. Start
// order is tracing, sinks, runner, reload, scheduler, gateway; Stop runs in
// reverse.
func buildDaemon(ctx context.Context, cfg *config.Config, path string, logger *slog.Logger) (*app.App, error) {
	a := app.New(logger)

	tp, err := tracing.New(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	tp.Install()
	a.Add("tracing", tp)

	collector := metrics.New()
	tracker := runner.NewTracker(collector)

	b, err := newBot(cfg, logger, tracker,
		wire.WithObserver(collector),
		wire.WithTracerProvider(tp.TracerProvider()),
	)
	if err != nil {
		return nil, err
	}
	collector.WatchBreaker(b.Engine())

	sinks, err := sink.NewFanout(cfg.Sinks, logger)
	if err != nil {
		return nil, err
	}
	a.Add("sinks", app.Hooks{OnStop: func(context.Context) error { return sinks.Close() }})

	runOpts := []runner.Option{runner.WithLogger(logger)}
	if sinks.Len() > 0 {
		runOpts = append(runOpts, runner.WithPublisher(sinks))
	}
	r := runner.New(b, cfg.Runner, runOpts...)
	a.Add("runner", r)

	if cfg.Runner.TokenReload > 0 && path != "" {
		rotator := reload.NewTokenRotator(path, r, logger)
		a.Add("reload", reload.NewWatcher(path, cfg.Runner.TokenReload, rotator.OnChange))
	}

	if len(cfg.Schedules) > 0 {
		sched := cron.NewScheduler(logger)
		for _, job := range cron.JobsFromConfig(cfg.Schedules, r, logger) {
			if err := sched.RegisterJob(job); err != nil {
				return nil, err
			}
		}
		a.Add("scheduler", sched)
	}

	if cfg.Gateway.Bind != "" {
		gw := gateway.New(cfg.Gateway,
			gateway.WithRunner(r),
			gateway.WithHealth(tracker, staleAfter(cfg)),
			gateway.WithMetrics(collector.Handler()),
			gateway.WithLogger(logger),
		)
		a.Add("gateway", gw)
	}

	return a, nil
}

// staleAfter is three times the longest gap expected between two
// successful polls.
func staleAfter(cfg *config.Config) time.Duration {
	wait := cfg.Bot.WaitForResponse
	if wait == 0 {
		wait = wire.DefaultWaitForResponse
	}
	return 3 * max(cfg.Bot.LongPoll+wait, cfg.Runner.IdleInterval)
}
