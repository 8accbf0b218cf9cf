package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/nugget/animalia/internal/connwatch"
	"github.com/nugget/animalia/internal/conversation"
	"github.com/nugget/animalia/internal/httpkit"
	"github.com/nugget/animalia/internal/slack"
)

// runSlack handles the "animalia slack" subcommand. It serves assistant
// threads over Socket Mode until SIGINT or SIGTERM.
//
// The shutdown sequence is:
//  1. The signal cancels ctx, which closes the websocket
//  2. The bridge waits for in-flight answers to be posted
//  3. The model monitor and the conversation sweep are stopped
func runSlack(ctx context.Context, stderr io.Writer, configPath string) error {
	a, err := setup(stderr, configPath, true)
	if err != nil {
		return err
	}
	cfg, logger := a.cfg, a.logger

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	web := slack.NewWebClient(cfg.Slack.BotToken, cfg.Slack.APIURL, logger,
		httpkit.WithRetry(cfg.Model.MaxRetries, cfg.Model.RetryDelay))
	if _, err := web.AuthTest(ctx); err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}

	store := conversation.New(conversation.Config{
		TTL:        cfg.Conversations.TTL,
		MaxThreads: cfg.Conversations.MaxThreads,
		Sweep:      cfg.Conversations.Sweep,
		Logger:     logger,
	})
	if err := store.Start(); err != nil {
		return err
	}
	defer store.Stop()

	health := connwatch.Start(ctx, connwatch.Config{
		Name:   "model",
		Probe:  a.client.Ping,
		Logger: logger,
	})
	defer health.Stop()

	socket := slack.NewSocketClient(slack.SocketConfig{
		AppToken: cfg.Slack.AppToken,
		APIURL:   cfg.Slack.APIURL,
		Logger:   logger,
	})
	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socket.Run(ctx)
	}()

	bridge := slack.NewBridge(slack.BridgeConfig{
		Poster:     web,
		Runner:     a.loop,
		Store:      store,
		Logger:     logger,
		RunTimeout: cfg.Agent.RunTimeout,
		Health:     health,
	})
	bridge.Start(ctx, socket.Events())

	cancel()
	if err := <-socketDone; err != nil {
		return fmt.Errorf("slack socket: %w", err)
	}
	model := health.Status()
	logger.Info("slack assistant stopped",
		"threads", store.Len(),
		"model_ready", model.Ready,
		"model_last_check", model.LastCheck,
		"model_last_error", model.LastError,
	)
	return nil
}
