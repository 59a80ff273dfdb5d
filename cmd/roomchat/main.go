// Command roomchat is a terminal client for one chat room.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/orchestra-mcp/roomchat/config"
	"github.com/orchestra-mcp/roomchat/src/conn"
	"github.com/orchestra-mcp/roomchat/src/logging"
	"github.com/orchestra-mcp/roomchat/src/session"
	"github.com/orchestra-mcp/roomchat/src/tui"
	"github.com/orchestra-mcp/roomchat/src/types"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "roomchat:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		return err
	}

	// The terminal belongs to the UI, so logs go to a file.
	var out io.Writer = io.Discard
	if cfg.Logging && cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		out = f
	}
	logger, err := logging.New(out, cfg.LogLevel, "json")
	if err != nil {
		return err
	}
	logger = logger.With().Str("username", cfg.Username).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	client, err := conn.Dial(ctx, cfg.RoomURL(), conn.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	ui, err := tui.NewChatUI(tui.Options{
		Username: cfg.Username,
		UserID:   cfg.UserID,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer ui.Close()

	manager := session.New(client, logger, session.Options{
		RoomID:        cfg.RoomID,
		Logging:       cfg.Logging,
		TypingTimeout: cfg.TypingTimeout,
		OnChange:      ui.Refresh,
	})
	defer manager.Close()

	client.OnStateChange(func(state types.ReadyState) {
		logger.Info().Str("state", state.String()).Msg("connection state changed")
		ui.Refresh()
	})
	ui.Attach(manager)

	logger.Info().Str("url", cfg.RoomURL()).Str("session_id", manager.ID()).Msg("joined room")
	if err := ui.Run(); err != nil {
		return err
	}
	logSnapshot(logger, manager.Snapshot())
	return nil
}

func logSnapshot(logger zerolog.Logger, snap session.Snapshot) {
	logger.Info().
		Int("messages", len(snap.Messages)).
		Strs("active_users", snap.ActiveUsernames).
		Msg("left room")
}
