// Command roomrelay serves chat rooms over WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/orchestra-mcp/roomchat/config"
	"github.com/orchestra-mcp/roomchat/providers"
	"github.com/orchestra-mcp/roomchat/src/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "roomrelay:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadRelayConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	server := providers.NewRelayServer(cfg, logger)
	if err := server.Activate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			_ = server.Deactivate()
			return fmt.Errorf("serve: %w", err)
		}
	}
	return server.Deactivate()
}
