package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultIdleInterval = time.Second
	defaultChunkLength  = 4096
	defaultFailures     = 5
	defaultCooldown     = 30 * time.Second
	defaultServiceName  = "wirebot"
)

// ApplyDefaults fills unset fields. The bot section keeps zero values; the
// bot package applies its own defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = "1"
	}
	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = TransportTLS
	}
	if cfg.Transport.DialTimeout == 0 {
		cfg.Transport.DialTimeout = defaultDialTimeout
	}
	if cfg.Breaker.Enabled {
		if cfg.Breaker.Failures == 0 {
			cfg.Breaker.Failures = defaultFailures
		}
		if cfg.Breaker.Cooldown == 0 {
			cfg.Breaker.Cooldown = defaultCooldown
		}
	}
	if cfg.Runner.IdleInterval == 0 {
		cfg.Runner.IdleInterval = defaultIdleInterval
	}
	if cfg.Runner.ChunkLength == 0 {
		cfg.Runner.ChunkLength = defaultChunkLength
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = defaultServiceName
	}
	for i := range cfg.Sinks {
		s := &cfg.Sinks[i]
		if s.Type == SinkAMQP && s.Queue == "" {
			s.Queue = "wirebot.updates"
		}
		if s.Type == SinkRedis && s.Channel == "" {
			s.Channel = "wirebot:updates"
		}
	}
}

// Validate applies defaults and checks the whole configuration. The token
// must already be resolved (see ResolveToken).
func Validate(cfg *Config) error {
	ApplyDefaults(cfg)

	var errs []error
	if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	session := cfg.Bot.Session()
	if err := session.Validate(); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, validateTransport(cfg.Transport)...)
	errs = append(errs, validateRunner(cfg.Runner)...)
	errs = append(errs, validateLog(cfg.Log)...)
	errs = append(errs, validateSinks(cfg.Sinks)...)
	errs = append(errs, validateSchedules(cfg.Schedules)...)

	if cfg.Breaker.Enabled && cfg.Breaker.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("config: breaker.cooldown must not be negative, got %s", cfg.Breaker.Cooldown))
	}
	if cfg.Gateway.BearerToken != "" && cfg.Gateway.Bind == "" {
		errs = append(errs, errors.New("config: gateway.bearer_token is set but gateway.bind is empty"))
	}

	return errors.Join(errs...)
}

func validateTransport(t TransportConfig) []error {
	var errs []error
	switch t.Kind {
	case TransportTLS, TransportTCP:
	case TransportRelay:
		u, err := url.Parse(t.RelayURL)
		if t.RelayURL == "" || err != nil || !slices.Contains([]string{"ws", "wss", "http", "https"}, u.Scheme) {
			errs = append(errs, fmt.Errorf("config: transport.relay_url must be a ws/wss URL, got %q", t.RelayURL))
		}
	default:
		errs = append(errs, fmt.Errorf("config: transport.kind must be tls, tcp or relay, got %q", t.Kind))
	}
	if t.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: transport.dial_timeout must not be negative, got %s", t.DialTimeout))
	}
	return errs
}

func validateRunner(r RunnerConfig) []error {
	var errs []error
	if r.IdleInterval < 0 {
		errs = append(errs, fmt.Errorf("config: runner.idle_interval must not be negative, got %s", r.IdleInterval))
	}
	if r.ChunkLength < 1 || r.ChunkLength > 4096 {
		errs = append(errs, fmt.Errorf("config: runner.chunk_length must be 1-4096, got %d", r.ChunkLength))
	}
	if r.RatePerMinute < 0 {
		errs = append(errs, fmt.Errorf("config: runner.rate_per_minute must not be negative, got %d", r.RatePerMinute))
	}
	if r.TokenReload < 0 {
		errs = append(errs, fmt.Errorf("config: runner.token_reload must not be negative, got %s", r.TokenReload))
	}
	return errs
}

func validateLog(l LogConfig) []error {
	var errs []error
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(l.Level)) {
		errs = append(errs, fmt.Errorf("config: log.level must be debug, info, warn or error, got %q", l.Level))
	}
	if l.Format != "text" && l.Format != "json" {
		errs = append(errs, fmt.Errorf("config: log.format must be text or json, got %q", l.Format))
	}
	return errs
}

func validateSinks(sinks []SinkConfig) []error {
	var errs []error
	for i, s := range sinks {
		switch s.Type {
		case SinkLog:
		case SinkAMQP:
			if !strings.HasPrefix(s.URL, "amqp://") && !strings.HasPrefix(s.URL, "amqps://") {
				errs = append(errs, fmt.Errorf("config: sinks[%d]: amqp url must start with amqp:// or amqps://", i))
			}
		case SinkRedis:
			if !strings.HasPrefix(s.URL, "redis://") && !strings.HasPrefix(s.URL, "rediss://") {
				errs = append(errs, fmt.Errorf("config: sinks[%d]: redis url must start with redis:// or rediss://", i))
			}
		default:
			errs = append(errs, fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type))
		}
	}
	return errs
}

func validateSchedules(schedules []ScheduleConfig) []error {
	var errs []error
	seen := make(map[string]bool, len(schedules))
	for i, s := range schedules {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("config: schedules[%d]: name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("config: schedules[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true

		if _, err := cron.ParseStandard(s.Cron); err != nil {
			errs = append(errs, fmt.Errorf("config: schedules[%d]: invalid cron %q: %w", i, s.Cron, err))
		}
		if s.ChatID == "" || s.Text == "" {
			errs = append(errs, fmt.Errorf("config: schedules[%d]: chat_id and text are required", i))
		}
	}
	return errs
}
