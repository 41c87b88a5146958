package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/wirebot/internal/app"
)

// program adapts an App to the OS service manager, which calls Start and
// Stop from its own goroutine.
type program struct {
	app    *app.App
	ctx    context.Context
	logger *slog.Logger
}

func (p *program) Start(service.Service) error {
	return p.app.Start(p.ctx)
}

func (p *program) Stop(service.Service) error {
	p.app.Stop()
	p.logger.Info("shutdown complete")
	return nil
}

// runDaemon runs a in the foreground, or under the service manager when
// the process was started by one.
func runDaemon(ctx context.Context, a *app.App, logger *slog.Logger) error {
	if service.Interactive() {
		return a.Run(ctx)
	}

	s, err := service.New(&program{app: a, ctx: ctx, logger: logger}, serviceConfig(""))
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}
	return s.Run()
}

func serviceConfig(configPath string) *service.Config {
	args := []string{"run"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return &service.Config{
		Name:        "wirebot",
		DisplayName: "wirebot",
		Description: "Telegram bot client polling the Bot API over a raw byte stream.",
		Arguments:   args,
	}
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage wirebot as a system service",
	}
	for _, action := range []string{"install", "uninstall", "start", "stop"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: action + " the wirebot service",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return controlService(cmd, action)
			},
		})
	}
	return cmd
}

// controlService applies action to the system service. install records the
// absolute config path so the service finds it without a login environment.
func controlService(cmd *cobra.Command, action string) error {
	var configPath string
	if action == "install" {
		_, path, err := configFromFlags(cmd)
		if err != nil {
			return err
		}
		if configPath, err = filepath.Abs(path); err != nil {
			return err
		}
	}

	s, err := service.New(&program{}, serviceConfig(configPath))
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}
	if err := service.Control(s, action); err != nil {
		return fmt.Errorf("service %s: %w", action, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "service %s: done\n", action)
	return nil
}
