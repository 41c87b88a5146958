// Package config handles YAML configuration loading, environment variable
// expansion, token resolution and validation for wirebot.
package config

import (
	"time"

	"github.com/flemzord/wirebot/pkg/bot"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Bot       BotConfig        `yaml:"bot"`
	Transport TransportConfig  `yaml:"transport"`
	Breaker   BreakerConfig    `yaml:"breaker"`
	Runner    RunnerConfig     `yaml:"runner"`
	Log       LogConfig        `yaml:"log"`
	Gateway   GatewayConfig    `yaml:"gateway"`
	Tracing   TracingConfig    `yaml:"tracing"`
	Sinks     []SinkConfig     `yaml:"sinks,omitempty"`
	Schedules []ScheduleConfig `yaml:"schedules,omitempty"`
}

// BotConfig holds the bot session settings.
type BotConfig struct {
	// Token is the bot credential. When empty, TokenKeyring names the OS
	// keychain account holding it.
	Token        string `yaml:"token"`
	TokenKeyring string `yaml:"token_keyring,omitempty"`

	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	MaxBodyBytes    int           `yaml:"max_body_bytes"`
	MaxMessages     int           `yaml:"max_messages"`
	LongPoll        time.Duration `yaml:"long_poll"`
	WaitForResponse time.Duration `yaml:"wait_for_response"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
	RetryBurst      int           `yaml:"retry_burst"`
}

// Session converts the section into the library configuration.
func (b BotConfig) Session() bot.Config {
	return bot.Config{
		Token:           b.Token,
		Host:            b.Host,
		Port:            b.Port,
		MaxBodyBytes:    b.MaxBodyBytes,
		MaxMessages:     b.MaxMessages,
		LongPoll:        b.LongPoll,
		WaitForResponse: b.WaitForResponse,
		SendTimeout:     b.SendTimeout,
		RetryInterval:   b.RetryInterval,
		RetryBurst:      b.RetryBurst,
	}
}

// Transport kinds.
const (
	TransportTLS   = "tls"
	TransportTCP   = "tcp"
	TransportRelay = "relay"
)

// TransportConfig selects how the byte stream reaches the API host.
type TransportConfig struct {
	Kind        string        `yaml:"kind"`
	RelayURL    string        `yaml:"relay_url,omitempty"`
	RelayToken  string        `yaml:"relay_token,omitempty"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// BreakerConfig guards connection attempts with a circuit breaker.
type BreakerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Failures uint32        `yaml:"failures"`
	Cooldown time.Duration `yaml:"cooldown"`
}

// RunnerConfig controls the poll loop.
type RunnerConfig struct {
	// IdleInterval is the pause between polls when long polling is off.
	IdleInterval time.Duration `yaml:"idle_interval"`
	// AllowUsers and AllowChats restrict who the bot answers. Empty lists
	// allow everyone.
	AllowUsers  []string `yaml:"allow_users,omitempty"`
	AllowChats  []string `yaml:"allow_chats,omitempty"`
	Echo        bool     `yaml:"echo"`
	ChunkLength int      `yaml:"chunk_length"`
	// RatePerMinute caps the records handled per sender per minute.
	// Zero disables the limit.
	RatePerMinute int `yaml:"rate_per_minute,omitempty"`

	// TokenReload is how often the configuration file is checked for a new
	// bot token. Zero disables watching.
	TokenReload time.Duration `yaml:"token_reload,omitempty"`
}

// LogConfig sets the daemon log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatewayConfig configures the admin HTTP server. An empty Bind disables it.
type GatewayConfig struct {
	Bind        string `yaml:"bind"`
	BearerToken string `yaml:"bearer_token,omitempty"`
}

// TracingConfig configures OTLP trace export. An empty Endpoint disables it.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Sink types.
const (
	SinkLog   = "log"
	SinkAMQP  = "amqp"
	SinkRedis = "redis"
)

// SinkConfig forwards decoded updates to an external system.
type SinkConfig struct {
	Type    string `yaml:"type"`
	URL     string `yaml:"url,omitempty"`
	Queue   string `yaml:"queue,omitempty"`
	Channel string `yaml:"channel,omitempty"`
}

// ScheduleConfig sends a fixed message on a cron schedule.
type ScheduleConfig struct {
	Name   string `yaml:"name"`
	Cron   string `yaml:"cron"`
	ChatID string `yaml:"chat_id"`
	Text   string `yaml:"text"`
}
