package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tg_roster_bot/internal/config"
	"tg_roster_bot/internal/feature/command"
	"tg_roster_bot/internal/feature/owner"
	"tg_roster_bot/internal/httpserver"
	"tg_roster_bot/internal/importer"
	"tg_roster_bot/internal/logging"
	"tg_roster_bot/internal/mailer"
	"tg_roster_bot/internal/metrics"
	"tg_roster_bot/internal/store"
	"tg_roster_bot/internal/telegram"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and its HTTP server",
		RunE: func(*cobra.Command, []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			return runServe(cfg, logger)
		},
	}
}

func runServe(cfg config.Config, logger *logrus.Entry) error {
	logger.WithFields(logging.Fields{
		"event":     "startup",
		"backend":   cfg.StoreBackend,
		"transport": cfg.Transport,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
	backend, err := store.Open(connectCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.WithError(err).Error("store connection error")
		fmt.Fprintf(os.Stderr, "store connection error: %v\n", err)
		return err
	}
	defer closeStore(backend, logger)

	ownerCtx, cancelOwner := context.WithTimeout(context.Background(), ownerBootstrapTimeout)
	_, err = owner.NewRegistrar(backend.Members, logger).EnsureOwner(ownerCtx, cfg.BotOwner)
	cancelOwner()
	if err != nil {
		logger.WithError(err).Error("owner bootstrap error")
		fmt.Fprintf(os.Stderr, "owner bootstrap error: %v\n", err)
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	botMetrics := metrics.New(registry)

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		return err
	}

	opts := []command.Option{
		command.WithMetrics(botMetrics),
		command.WithBotUsername(cfg.BotUsername),
		command.WithOrgName(cfg.OrgName),
		command.WithBackendName(backend.Name),
		command.WithProcessStart(processStart),
		command.WithStats(backend.Stats()),
	}
	if cfg.Mail.Enabled() {
		m, err := mailer.New(cfg.Mail, logger)
		if err != nil {
			logger.WithError(err).Error("mailer setup error")
			return err
		}
		opts = append(opts, command.WithMailer(m))
	}
	if cfg.Import.Enabled() {
		source, err := importer.NewSource(cfg.Import, logger)
		if err != nil {
			logger.WithError(err).Error("import source setup error")
			return err
		}
		opts = append(opts, command.WithImporter(importer.New(source, backend.Members, botMetrics, logger)))
	}

	notifier := telegram.NewNotifier(tgClient, botMetrics, logger)
	dispatcher, err := command.NewDispatcher(backend.Members, backend.Audit, notifier, logger, opts...)
	if err != nil {
		logger.WithError(err).Error("dispatcher setup error")
		return err
	}
	tgClient.SetHandler(dispatcher.Handle)

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	httpCfg := httpserver.Config{
		Port:     cfg.HTTPPort,
		Store:    backend,
		Gatherer: registry,
	}
	if cfg.UsesWebhook() {
		httpCfg.WebhookPath = cfg.WebhookPath
		httpCfg.WebhookSecret = cfg.WebhookSecret
		httpCfg.Updates = tgClient

		hookCtx, cancelHook := context.WithTimeout(context.Background(), webhookRegisterTimeout)
		err := tgClient.RegisterWebhook(hookCtx, cfg.WebhookURL+cfg.WebhookPath, cfg.WebhookSecret)
		cancelHook()
		if err != nil {
			logger.WithError(err).Error("webhook registration error")
			return err
		}
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := httpserver.NewServer(httpCfg, logger)
	httpDone := make(chan error, 1)
	go func() {
		httpDone <- httpServer.ListenAndServe()
	}()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})
	if cfg.UsesWebhook() {
		close(tgDone)
	} else {
		go func() {
			tgClient.Start(telegramCtx)
			close(tgDone)
		}()
	}

	var runErr error
	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, shutting down")
	case err := <-httpDone:
		runErr = err
		logger.WithField("event", "http_stopped_early").WithError(err).Warn("http server stopped before shutdown signal")
	case <-pollingStopped(cfg, tgDone):
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown error")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
	return runErr
}

// pollingStopped returns tgDone in polling mode and a channel that never
// fires in webhook mode.
func pollingStopped(cfg config.Config, tgDone <-chan struct{}) <-chan struct{} {
	if cfg.UsesWebhook() {
		return nil
	}
	return tgDone
}

func closeStore(backend *store.Backend, logger *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), storeCloseTimeout)
	defer cancel()

	if err := backend.Close(ctx); err != nil {
		logger.WithError(err).Error("store close error")
		return
	}
	logger.WithField("event", "store_closed").Info("store closed")
}
