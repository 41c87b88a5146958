// Package reload watches the configuration file and rotates the bot token
// of a running session when the file changes.
package reload

import (
	"context"
	"os"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// Watcher polls a file's modification time and calls onChange after each
// change. It is an app.Component.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(ctx context.Context)

	lastMod  time.Time
	cancel   context.CancelFunc
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for path. A zero interval polls every 5 seconds.
func NewWatcher(path string, interval time.Duration, onChange func(ctx context.Context)) *Watcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Watcher{path: path, interval: interval, onChange: onChange}
}

// Start records the current modification time and begins polling.
func (w *Watcher) Start(ctx context.Context) error {
	w.lastMod = w.statModTime()
	ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))
	w.stopped = make(chan struct{})
	go w.poll(ctx)
	return nil
}

// Stop ends polling. Safe to call multiple times and before Start.
func (w *Watcher) Stop(context.Context) error {
	w.stopOnce.Do(func() {
		if w.cancel == nil {
			return
		}
		w.cancel()
		<-w.stopped
	})
	return nil
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.changed() {
				w.onChange(ctx)
			}
		}
	}
}

// changed reports whether the file is newer than the last observed version.
// A missing file is not a change.
func (w *Watcher) changed() bool {
	current := w.statModTime()
	if current.IsZero() || !current.After(w.lastMod) {
		return false
	}
	w.lastMod = current
	return true
}

func (w *Watcher) statModTime() time.Time {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
