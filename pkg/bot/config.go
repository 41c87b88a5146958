package bot

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/flemzord/wirebot/pkg/wire"
)

// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

const (
	defaultMaxMessages   = 1
	defaultSendTimeout   = 8 * time.Second
	defaultRetryInterval = 250 * time.Millisecond
	defaultRetryBurst    = 4
	maxLongPoll          = 50 * time.Second
)

// Config holds the session settings.
type Config struct {
	// Token is the bot credential used in every request path.
	Token string
	// Host and Port locate the Bot API.
	Host string
	Port int
	// MaxBodyBytes caps each response body. A body that fills it and does
	// not parse is treated as an oversized update and skipped.
	MaxBodyBytes int
	// MaxMessages is the getUpdates limit and the number of records decoded per poll.
	MaxMessages int
	// LongPoll is the getUpdates timeout. Zero disables long polling.
	LongPoll time.Duration
	// WaitForResponse is added to LongPoll to bound every response read.
	WaitForResponse time.Duration
	// SendTimeout is the wall-clock budget of the send retry loops.
	SendTimeout time.Duration
	// RetryInterval and RetryBurst pace retry attempts.
	RetryInterval time.Duration
	RetryBurst    int
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	if c.Host == "" {
		c.Host = wire.DefaultHost
	}
	if c.Port == 0 {
		c.Port = wire.DefaultPort
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = wire.DefaultMaxBody
	}
	if c.MaxMessages == 0 {
		c.MaxMessages = defaultMaxMessages
	}
	if c.WaitForResponse == 0 {
		c.WaitForResponse = wire.DefaultWaitForResponse
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = defaultSendTimeout
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.RetryBurst == 0 {
		c.RetryBurst = defaultRetryBurst
	}
}

// Validate applies defaults and checks field constraints.
func (c *Config) Validate() error {
	c.defaults()

	var errs []error
	if c.Token == "" {
		errs = append(errs, errors.New("bot: token is required"))
	} else if !tokenPattern.MatchString(c.Token) {
		errs = append(errs, errors.New("bot: token format invalid (expected <bot_id>:<hash>)"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("bot: port must be 1-65535, got %d", c.Port))
	}
	if c.MaxBodyBytes < 64 {
		errs = append(errs, fmt.Errorf("bot: max_body_bytes must be at least 64, got %d", c.MaxBodyBytes))
	}
	if c.MaxMessages < 1 || c.MaxMessages > 100 {
		errs = append(errs, fmt.Errorf("bot: max_messages must be 1-100, got %d", c.MaxMessages))
	}
	if c.LongPoll < 0 || c.LongPoll > maxLongPoll {
		errs = append(errs, fmt.Errorf("bot: long_poll must be 0-50s, got %s", c.LongPoll))
	}
	if c.LongPoll%time.Second != 0 {
		errs = append(errs, fmt.Errorf("bot: long_poll must be whole seconds, got %s", c.LongPoll))
	}
	if c.WaitForResponse < 0 {
		errs = append(errs, fmt.Errorf("bot: wait_for_response must not be negative, got %s", c.WaitForResponse))
	}
	if c.SendTimeout < 0 {
		errs = append(errs, fmt.Errorf("bot: send_timeout must not be negative, got %s", c.SendTimeout))
	}
	if c.RetryInterval < 0 || c.RetryBurst < 1 {
		errs = append(errs, fmt.Errorf("bot: retry pacing invalid (interval %s, burst %d)", c.RetryInterval, c.RetryBurst))
	}
	return errors.Join(errs...)
}
