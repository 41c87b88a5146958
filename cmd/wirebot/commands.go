package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/wirebot/internal/config"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll for updates and serve the configured components",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := configFromFlags(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg)
			logger.Info("configuration loaded", "path", path, "transport", cfg.Transport.Kind)

			a, err := buildDaemon(cmd.Context(), cfg, path, logger)
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), a, logger)
		},
	}
}

func getMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "getme",
		Short: "Print the bot identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := configFromFlags(cmd)
			if err != nil {
				return err
			}
			b, err := newBot(cfg, newLogger(os.Stderr, cfg), nil)
			if err != nil {
				return err
			}
			defer b.Close()

			me, err := b.GetMe(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id: %d\nusername: %s\nname: %s\n",
				me.ID, me.Username, strings.TrimSpace(me.FirstName+" "+me.LastName))
			return nil
		},
	}
}

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <chat_id> <text>",
		Short: "Send one text message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := configFromFlags(cmd)
			if err != nil {
				return err
			}
			parseMode, _ := cmd.Flags().GetString("parse-mode")

			b, err := newBot(cfg, newLogger(os.Stderr, cfg), nil)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.SendSimpleMessage(cmd.Context(), args[0], args[1], parseMode); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent message %d\n", b.LastSentMessageID())
			return nil
		},
	}
	cmd.Flags().String("parse-mode", "", "Telegram parse mode (Markdown, MarkdownV2 or HTML)")
	return cmd
}

// initOptions are the answers of the init form.
type initOptions struct {
	Token      string
	UseKeyring bool
	Account    string
	Transport  string
	RelayURL   string
	LongPoll   string
	Echo       bool
	Bind       string
}

func initCmd() *cobra.Command {
	var (
		opts  initOptions
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if opts.Token == "" {
				if err := askInit(&opts); err != nil {
					return err
				}
			}

			cfg, err := starterConfig(opts)
			if err != nil {
				return err
			}
			if opts.UseKeyring {
				if err := config.StoreToken(opts.Account, opts.Token); err != nil {
					return err
				}
			}
			if err := writeConfig(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Token, "token", "", "Bot token; skips the interactive form")
	f.BoolVar(&opts.UseKeyring, "keyring", false, "Store the token in the OS keychain")
	f.StringVar(&opts.Account, "keyring-account", "default", "Keychain account for the token")
	f.StringVar(&opts.Transport, "transport", config.TransportTLS, "Transport kind (tls, tcp or relay)")
	f.StringVar(&opts.RelayURL, "relay-url", "", "Relay URL for the relay transport")
	f.StringVar(&opts.LongPoll, "long-poll", "30s", "getUpdates long-poll duration")
	f.BoolVar(&opts.Echo, "echo", true, "Echo received text back")
	f.StringVar(&opts.Bind, "bind", "", "Admin gateway address, empty to disable")
	f.BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

// askInit fills opts through an interactive form.
func askInit(opts *initOptions) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot token").
				Description("From @BotFather, e.g. 123456:ABC-DEF...").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if !strings.Contains(s, ":") {
						return errors.New("a bot token looks like <id>:<secret>")
					}
					return nil
				}).
				Value(&opts.Token),
			huh.NewConfirm().
				Title("Store the token in the OS keychain?").
				Value(&opts.UseKeyring),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Transport").
				Options(huh.NewOptions(config.TransportTLS, config.TransportTCP, config.TransportRelay)...).
				Value(&opts.Transport),
			huh.NewInput().
				Title("Relay URL").
				Description("Only used by the relay transport").
				Value(&opts.RelayURL),
			huh.NewInput().
				Title("Long poll").
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}).
				Value(&opts.LongPoll),
			huh.NewConfirm().
				Title("Echo received text?").
				Value(&opts.Echo),
			huh.NewInput().
				Title("Admin gateway address").
				Description("Serves /health, /status and /metrics. Leave empty to disable.").
				Value(&opts.Bind),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("init form: %w", err)
	}
	return nil
}

// starterConfig turns init answers into a validated configuration.
func starterConfig(opts initOptions) (*config.Config, error) {
	longPoll, err := time.ParseDuration(opts.LongPoll)
	if err != nil {
		return nil, fmt.Errorf("invalid long poll %q: %w", opts.LongPoll, err)
	}

	cfg := &config.Config{
		Version:   "1",
		Bot:       config.BotConfig{Token: opts.Token, LongPoll: longPoll},
		Transport: config.TransportConfig{Kind: opts.Transport, RelayURL: opts.RelayURL},
		Runner:    config.RunnerConfig{Echo: opts.Echo},
		Gateway:   config.GatewayConfig{Bind: opts.Bind},
		Sinks:     []config.SinkConfig{{Type: config.SinkLog}},
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if opts.UseKeyring {
		cfg.Bot.Token = ""
		cfg.Bot.TokenKeyring = opts.Account
	}
	return cfg, nil
}

// writeConfig encodes cfg to path with owner-only permissions, since the
// file may hold the token.
func writeConfig(path string, cfg *config.Config) error {
	out, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
