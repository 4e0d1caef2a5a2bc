package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pharmtask/agent/internal/backend"
	"github.com/pharmtask/agent/internal/config"
	"github.com/pharmtask/agent/internal/credential"
	"github.com/pharmtask/agent/internal/desktop"
	"github.com/pharmtask/agent/internal/maintenance"
	"github.com/pharmtask/agent/internal/model"
	"github.com/pharmtask/agent/internal/monitor"
	"github.com/pharmtask/agent/internal/realtime"
	"github.com/pharmtask/agent/internal/session"
	"github.com/pharmtask/agent/internal/store"
	"github.com/pharmtask/agent/pkg/logging"
)

func main() {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting pharmtask agent",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("realtime", cfg.Backend.RealtimeURL))

	sess, err := credential.LoadSession()
	if err != nil {
		logger.Fatal("No stored session; sign in from the dashboard first",
			zap.Error(err))
	}
	if !sess.Valid() {
		logger.Fatal("Stored session is incomplete; sign in again")
	}

	notifications, err := store.NewNotificationStore(
		cfg.DBPath, cfg.Notifications.MaxRetained, logger,
	)
	if err != nil {
		logger.Fatal("Failed to open notification store", zap.Error(err))
	}
	defer notifications.Close()

	client := backend.NewClient(cfg.Backend.BaseURL, sess.Token, logger)

	channel := realtime.NewChannel(
		cfg.Backend.RealtimeURL,
		cfg.Realtime.ReconnectAttempts,
		cfg.Realtime.ReconnectDelay(),
		logger,
	)

	bridge := desktop.NewBridge(desktop.Options{
		StateDir: config.DefaultConfigDir(),
		Logger:   logger,
	})

	var coordinator *session.Coordinator

	watcher := monitor.New(monitor.Options{
		Backend:       client,
		Session:       func() (model.Session, bool) { return coordinator.Session() },
		Notifier:      bridge,
		Emitter:       channel,
		Recorder:      notifications,
		SweepInterval: cfg.Monitor.SweepInterval(),
		SubmitBuffer:  cfg.Monitor.SubmitBuffer(),
		Logger:        logger,
	})

	coordinator = session.NewCoordinator(
		channel, client, notifications, bridge, watcher, logger,
	)

	if err := coordinator.Start(sess); err != nil {
		logger.Error("Realtime wiring failed; continuing with polling only",
			zap.Error(err))
	}

	watcher.Start()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := watcher.LoadUserTasks(ctx, sess.UserID); err != nil {
			logger.Warn("Failed to load open tasks", zap.Error(err))
		}
	}()

	janitor := maintenance.NewJanitor(notifications, false, logger)
	if err := janitor.Start(); err != nil {
		logger.Warn("Failed to start hygiene job", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	janitor.Stop()
	watcher.Stop()
	coordinator.Stop()
}
