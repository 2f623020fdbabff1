package main

import (
	"chat-relay/client"
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/internal"
	"chat-relay/transport/ws"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func runClient(config internal.Config, clientConfig internal.ClientConfig, logger *slog.Logger) (int, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// History is read straight from the store, a relay keeps none of it.
	var history contract.Gateway
	if st, err := openStore(ctx, config, logger, true); err != nil {
		logger.Warn("History unavailable", "error", err)
	} else {
		defer st.close()
		history = st
	}

	conn, err := ws.Dial(ctx, clientConfig.RelayURL, clientConfig.WriteTimeout)
	if err != nil {
		return exitRuntime, err
	}

	c := client.New(logger, conn, history, clientConfig.User, chat.RoomID(clientConfig.RoomID), os.Stdout)
	if err := c.RenderHistory(ctx); err != nil {
		logger.Warn("History unavailable", "error", err)
	}
	if err := c.Join(ctx); err != nil {
		_ = conn.Close()
		return exitRuntime, fmt.Errorf("join room %d: %w", clientConfig.RoomID, err)
	}
	fmt.Printf("Joined room %d as %s, an empty line leaves.\n", clientConfig.RoomID, clientConfig.User)

	if err := c.Run(ctx, os.Stdin); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}
