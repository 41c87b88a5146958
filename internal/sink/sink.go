// Package sink forwards decoded message records to external systems.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/wirebot/internal/config"
	"github.com/flemzord/wirebot/pkg/bot"
)

// Sink receives every record the runner accepts.
type Sink interface {
	Name() string
	Publish(ctx context.Context, msg bot.Message) error
	Close() error
}

// Encode renders a record as the JSON document all sinks publish.
func Encode(msg bot.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("sink: encoding update %d: %w", msg.UpdateID, err)
	}
	return data, nil
}

// New builds the sink described by cfg.
func New(cfg config.SinkConfig, logger *slog.Logger) (Sink, error) {
	switch cfg.Type {
	case config.SinkLog:
		return NewLog(logger), nil
	case config.SinkAMQP:
		return DialAMQP(cfg.URL, cfg.Queue)
	case config.SinkRedis:
		return NewRedis(cfg.URL, cfg.Channel)
	default:
		return nil, fmt.Errorf("sink: unknown type %q", cfg.Type)
	}
}

// Fanout publishes to several sinks. A failing sink is logged and does not
// stop the others.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewFanout builds every configured sink. On error the sinks built so far
// are closed.
func NewFanout(cfgs []config.SinkConfig, logger *slog.Logger) (*Fanout, error) {
	f := &Fanout{logger: logger.With("component", "sink")}
	for i, cfg := range cfgs {
		s, err := New(cfg, f.logger)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("sink: sinks[%d]: %w", i, err)
		}
		f.sinks = append(f.sinks, s)
	}
	return f, nil
}

// Add appends a sink.
func (f *Fanout) Add(s Sink) { f.sinks = append(f.sinks, s) }

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Publish sends msg to every sink and returns the joined failures.
func (f *Fanout) Publish(ctx context.Context, msg bot.Message) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, msg); err != nil {
			f.logger.Warn("sink publish failed", "sink", s.Name(), "update_id", msg.UpdateID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink: closing %s: %w", s.Name(), err))
		}
	}
	f.sinks = nil
	return errors.Join(errs...)
}

// Log writes each record to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log sink.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Name implements Sink.
func (l *Log) Name() string { return "log" }

// Publish implements Sink.
func (l *Log) Publish(ctx context.Context, msg bot.Message) error {
	l.logger.InfoContext(ctx, "update received",
		"update_id", msg.UpdateID,
		"type", string(msg.Type),
		"chat_id", msg.ChatID,
		"from", msg.FromName,
		"text", msg.Text,
	)
	return nil
}

// Close implements Sink.
func (l *Log) Close() error { return nil }
