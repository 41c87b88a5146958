package reload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/wirebot/pkg/bot"
	"github.com/flemzord/wirebot/pkg/transport/transporttest"
)

const (
	oldToken = "123456:OLD-token_abc"
	newToken = "123456:NEW-token_xyz"
)

type lockedSession struct {
	mu  sync.Mutex
	bot *bot.Bot
}

func (s *lockedSession) Do(fn func(b *bot.Bot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.bot)
}

func newRotator(t *testing.T) (*TokenRotator, *lockedSession, string) {
	t.Helper()
	b := bot.New(transporttest.New(), bot.Config{Token: oldToken},
		bot.WithClock(transporttest.NewClock()),
		bot.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	session := &lockedSession{bot: b}
	path := filepath.Join(t.TempDir(), "wirebot.yaml")
	return NewTokenRotator(path, session, slog.New(slog.NewTextHandler(io.Discard, nil))), session, path
}

func TestTokenRotator_Rotate(t *testing.T) {
	t.Parallel()

	r, session, path := newRotator(t)
	writeConfig(t, path, "version: \"1\"\nbot:\n  token: \""+newToken+"\"\n", time.Now())

	rotated, err := r.Rotate(t.Context())
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if !rotated {
		t.Error("rotated = false, want true")
	}
	if got := session.bot.Token(); got != newToken {
		t.Errorf("Token() = %q, want %q", got, newToken)
	}

	rotated, err = r.Rotate(t.Context())
	if err != nil || rotated {
		t.Errorf("second Rotate = %v, %v, want false, nil", rotated, err)
	}
}

func TestTokenRotator_InvalidFileKeepsToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "bot: [\n"},
		{"bad token", "version: \"1\"\nbot:\n  token: \"not a token\"\n"},
		{"no token", "version: \"1\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, session, path := newRotator(t)
			writeConfig(t, path, tt.content, time.Now())

			if _, err := r.Rotate(t.Context()); err == nil {
				t.Error("Rotate() error = nil, want an error")
			}
			r.OnChange(t.Context())
			if got := session.bot.Token(); got != oldToken {
				t.Errorf("Token() = %q, want %q", got, oldToken)
			}
		})
	}
}

func TestTokenRotator_CancelledContext(t *testing.T) {
	t.Parallel()

	r, _, _ := newRotator(t)
	r.load = func(string) (string, error) {
		t.Error("load called with a cancelled context")
		return newToken, nil
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := r.Rotate(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Rotate() error = %v, want context.Canceled", err)
	}
}
