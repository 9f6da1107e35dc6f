package main

import (
	"context"
	"os/signal"
	"syscall"

	"vowpact/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Opens the data store, seeds the demo vendor when enabled and serves the
API until SIGINT or SIGTERM. In-flight requests get the configured shutdown
timeout to finish.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if serveAddr != "" {
		a.cfg.Server.Addr = serveAddr
	}

	if demo, err := a.auth.EnsureDemoUser(ctx, a.cfg.Auth.DemoUser); err != nil {
		logger.Warn("demo user not seeded", zap.Error(err))
	} else if demo != nil {
		logger.Info("demo vendor available", zap.String("email", demo.Email))
	}
	if n, err := a.auth.PurgeExpired(ctx); err == nil && n > 0 {
		logger.Info("purged expired sessions", zap.Int("count", n))
	}

	logger.Info("starting vowpact",
		zap.String("version", version),
		zap.String("addr", a.cfg.Server.Addr),
		zap.String("storage", a.cfg.Storage.Driver),
		zap.String("llm", a.cfg.LLM.Provider))

	return server.New(a.cfg, a.contracts, a.auth, logger).Run(ctx)
}
