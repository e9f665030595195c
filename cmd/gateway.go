package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/omegagate/internal/config"
	"github.com/nextlevelbuilder/omegagate/internal/gateway"
)

func gatewayCmd() *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the gateway: receive channel messages, run the pipeline, serve replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(logLevel)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override gateway.log_level from config (debug, info, warn, error)")
	return cmd
}

func runGateway(logLevelFlag string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}

	level := cfg.Gateway.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)})))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gw, err := gateway.New(ctx, cfg)
	if err != nil {
		return err
	}

	slog.Info("gateway starting", "name", cfg.Gateway.Name, "data_dir", cfg.Gateway.DataDir)
	return gw.Run(ctx)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
