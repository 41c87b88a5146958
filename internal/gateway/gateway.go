// Package gateway serves the daemon's admin HTTP endpoints: health, status
// and Prometheus metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/wirebot/internal/config"
	"github.com/flemzord/wirebot/internal/runner"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// HealthSource reports when the last successful poll happened.
// *runner.Tracker implements it.
type HealthSource interface {
	LastSuccess() time.Time
}

// Gateway is the admin HTTP server. It is an app.Component.
type Gateway struct {
	cfg        config.GatewayConfig
	logger     *slog.Logger
	server     *http.Server
	addr       net.Addr
	runner     *runner.Runner
	health     HealthSource
	metrics    http.Handler
	staleAfter time.Duration
	startedAt  time.Time
	now        func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRunner exposes the runner's session in /status.
func WithRunner(r *runner.Runner) Option {
	return func(g *Gateway) { g.runner = r }
}

// WithHealth makes /health report stale when no poll succeeded within
// staleAfter.
func WithHealth(h HealthSource, staleAfter time.Duration) Option {
	return func(g *Gateway) {
		g.health = h
		g.staleAfter = staleAfter
	}
}

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(g *Gateway) { g.metrics = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Gateway listening on cfg.Bind once started.
func New(cfg config.GatewayConfig, opts ...Option) *Gateway {
	g := &Gateway{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "gateway")
	g.startedAt = g.now()
	return g
}

// Addr returns the bound address once started.
func (g *Gateway) Addr() net.Addr { return g.addr }

// Start listens and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = g.now()
	g.server = &http.Server{
		Addr:         g.cfg.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.cfg.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}
	g.addr = ln.Addr()

	go func() {
		g.logger.Info("gateway listening", "addr", g.addr.String(), "auth", g.cfg.BearerToken != "")
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
