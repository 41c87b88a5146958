// Package app runs the daemon's components: ordered start, reverse stop.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 30 * time.Second

// Component is a long-running part of the daemon.
type Component interface {
	// Start must not block; background work belongs in goroutines.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Hooks adapts a pair of functions to Component. Nil hooks are no-ops.
type Hooks struct {
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// Start implements Component.
func (h Hooks) Start(ctx context.Context) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx)
}

// Stop implements Component.
func (h Hooks) Stop(ctx context.Context) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(ctx)
}

type instance struct {
	name      string
	component Component
	started   bool
}

// App manages the lifecycle of a set of components.
type App struct {
	logger     *slog.Logger
	components []instance
	timeout    time.Duration
}

// New creates an empty App.
func New(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		logger:  logger.With("component", "app"),
		timeout: shutdownTimeout,
	}
}

// Add appends a component. Components start in the order they are added.
func (a *App) Add(name string, c Component) {
	a.components = append(a.components, instance{name: name, component: c})
}

// Start starts all components in order. If one fails, the components
// already started are stopped in reverse order.
func (a *App) Start(ctx context.Context) error {
	for i := range a.components {
		ci := &a.components[i]
		a.logger.Info("starting component", "name", ci.name)
		if err := ci.component.Start(ctx); err != nil {
			a.logger.Error("component start failed", "name", ci.name, "error", err)
			a.stopFrom(i - 1)
			return fmt.Errorf("starting %s: %w", ci.name, err)
		}
		ci.started = true
	}
	a.logger.Info("all components started")
	return nil
}

// Stop stops every started component in reverse order.
func (a *App) Stop() {
	a.stopFrom(len(a.components) - 1)
}

func (a *App) stopFrom(index int) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	for i := index; i >= 0; i-- {
		ci := &a.components[i]
		if !ci.started {
			continue
		}
		a.logger.Info("stopping component", "name", ci.name)
		if err := ci.component.Stop(ctx); err != nil {
			a.logger.Error("component stop error", "name", ci.name, "error", err)
		}
		ci.started = false
	}
}

// Run starts all components and blocks until ctx is done or SIGINT/SIGTERM
// arrives, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	}

	a.Stop()
	a.logger.Info("shutdown complete")
	return nil
}
