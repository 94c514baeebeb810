package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/canterm/internal/config"
	"github.com/danmuck/canterm/internal/gateway"
	"github.com/danmuck/canterm/internal/logging"
	"github.com/danmuck/canterm/internal/observability"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to canbusd TOML config")
	flag.Parse()

	logging.ConfigureRuntime()
	logger := observability.InitLogger("canbusd")

	cfg := config.DefaultDaemonConfig()
	if configPath != "" {
		loaded, err := config.LoadDaemonConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "canbusd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := gateway.NewServer(cfg, logger)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, gateway.ErrServerClosed) {
		logger.Error().Err(err).Msg("canbusd_exit")
		os.Exit(1)
	}
	logger.Info().Msg("canbusd_down")
}
