package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/wirebot/internal/config"
	"github.com/flemzord/wirebot/pkg/bot"
)

// Session serialises access to the bot. *runner.Runner implements it.
type Session interface {
	Do(fn func(b *bot.Bot) error) error
}

// TokenRotator applies the token of a reloaded configuration to a running
// session. Other settings need a restart.
type TokenRotator struct {
	path    string
	session Session
	logger  *slog.Logger
	load    func(path string) (string, error)
}

// NewTokenRotator creates a rotator reading the configuration at path.
func NewTokenRotator(path string, session Session, logger *slog.Logger) *TokenRotator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenRotator{
		path:    path,
		session: session,
		logger:  logger.With("component", "reload"),
		load:    loadToken,
	}
}

// Rotate reloads the file and swaps the token when it differs. A file that
// fails to load or validate leaves the session untouched.
func (r *TokenRotator) Rotate(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("reload: %w", err)
	}
	token, err := r.load(r.path)
	if err != nil {
		return false, fmt.Errorf("reload: %w", err)
	}

	var rotated bool
	err = r.session.Do(func(b *bot.Bot) error {
		if b.Token() == token {
			return nil
		}
		b.UpdateToken(token)
		rotated = true
		return nil
	})
	return rotated, err
}

// OnChange is the Watcher callback. Failures are logged.
func (r *TokenRotator) OnChange(ctx context.Context) {
	rotated, err := r.Rotate(ctx)
	switch {
	case err != nil:
		r.logger.Warn("configuration reload failed, keeping current token", "path", r.path, "error", err)
	case rotated:
		r.logger.Info("bot token rotated", "path", r.path)
	default:
		r.logger.Debug("configuration changed, token unchanged", "path", r.path)
	}
}

func loadToken(path string) (string, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return "", err
	}
	if err := config.ResolveToken(cfg); err != nil {
		return "", err
	}
	if err := config.Validate(cfg); err != nil {
		return "", err
	}
	return cfg.Bot.Token, nil
}
