package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/chatrelay/internal/admin"
	"github.com/danmuck/chatrelay/internal/logging"
	"github.com/danmuck/chatrelay/internal/observability"
	"github.com/danmuck/chatrelay/internal/relay"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		adminAddr  string
		nodeID     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay",
		Long: `Run the chat relay until interrupted.

With --admin (or [admin] enabled in the config file) an HTTP listener serves
/health, /ready, /sessions, /metrics and the /ws WebSocket gateway.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultServeConfig()
			if configPath != "" {
				loaded, err := loadServeConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("listen") {
				cfg.Relay.ListenAddr = strings.TrimSpace(listen)
			}
			if cmd.Flags().Changed("admin") {
				cfg.AdminAddr = strings.TrimSpace(adminAddr)
			}
			if cmd.Flags().Changed("node") {
				cfg.Relay.NodeID = strings.TrimSpace(nodeID)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Relay config file (TOML)")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "TCP listen address (host:port)")
	cmd.Flags().StringVar(&adminAddr, "admin", "", "Admin HTTP listen address; empty disables it")
	cmd.Flags().StringVar(&nodeID, "node", "", "Node id used in logs and metrics")

	return cmd
}

func runServe(ctx context.Context, cfg serveConfig) error {
	logging.ConfigureRuntime()
	logger := observability.InitLogger("relayctl")
	observability.RegisterMetrics()

	ctrl := relay.NewController(cfg.Relay)
	if err := ctrl.Start(cfg.Relay.ListenAddr, relay.LogSink(observability.LineSink(logger))); err != nil {
		return err
	}
	defer ctrl.Stop()

	adminErr := make(chan error, 1)
	if cfg.AdminAddr != "" {
		srv := admin.New(cfg.Relay.NodeID, cfg.AdminAddr, ctrl, cfg.CorsOrigins)
		go func() {
			adminErr <- srv.Serve(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("relayctl: shutdown requested")
		if cfg.AdminAddr != "" {
			if err := <-adminErr; err != nil {
				logger.Error().Err(err).Msg("relayctl: admin shutdown failed")
				return err
			}
		}
		return nil
	case err := <-adminErr:
		if err != nil {
			logger.Error().Err(err).Msg("relayctl: admin listener failed")
		}
		return err
	}
}
