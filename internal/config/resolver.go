package config

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keychain service wirebot stores tokens under.
const KeyringService = "wirebot"

// ErrNoToken is returned when neither a token nor a keychain account is set.
var ErrNoToken = errors.New("config: bot.token or bot.token_keyring is required")

// ResolveToken fills cfg.Bot.Token from the OS keychain when it is empty.
func ResolveToken(cfg *Config) error {
	if cfg.Bot.Token != "" {
		return nil
	}
	if cfg.Bot.TokenKeyring == "" {
		return ErrNoToken
	}

	token, err := keyring.Get(KeyringService, cfg.Bot.TokenKeyring)
	if err != nil {
		return fmt.Errorf("config: reading token %q from keychain: %w", cfg.Bot.TokenKeyring, err)
	}
	cfg.Bot.Token = token
	return nil
}

// StoreToken saves token in the OS keychain under account.
func StoreToken(account, token string) error {
	if err := keyring.Set(KeyringService, account, token); err != nil {
		return fmt.Errorf("config: storing token %q in keychain: %w", account, err)
	}
	return nil
}
