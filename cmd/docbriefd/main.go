package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docbrief/internal/api"
	"docbrief/internal/cache"
	"docbrief/internal/config"
	"docbrief/internal/dedup"
	"docbrief/internal/history"
	"docbrief/internal/logging"
	"docbrief/internal/model"
	"docbrief/internal/notify"
	"docbrief/internal/quota"
	"docbrief/internal/storage"
	"docbrief/internal/summarize"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (yaml or json)")
	flag.Parse()

	var mgr *config.Manager
	if *configPath != "" {
		m, err := config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		mgr = m
	} else {
		mgr = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("docbrief starting", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			logger.Error("storage schema init failed", "err", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	quotaCache := cache.New[model.QuotaRecord](
		storage.NamedBlob(store, "quota"), cfg.Quota.FlushInterval, logger)
	historyCache := cache.New[[]model.HistoryRecord](
		storage.NamedBlob(store, "history"), cfg.History.FlushInterval, logger)
	quotaCache.Start(ctx)
	historyCache.Start(ctx)
	defer func() {
		if err := quotaCache.Close(); err != nil {
			logger.Warn("quota cache final flush failed", "err", err)
		}
		if err := historyCache.Close(); err != nil {
			logger.Warn("history cache final flush failed", "err", err)
		}
	}()

	tracker := quota.NewTracker(quotaCache, cfg.Quota.DailyLimit, cfg.Quota.Window)
	hist := history.NewStore(historyCache, cfg.History.MaxPerUser)

	dd := dedup.NewCache(cfg.Dedup.TTL, cfg.Dedup.SweepInterval, logger)
	dd.Start(ctx)

	var notifier notify.Notifier
	var notifiers []notify.Notifier
	if cfg.Notify.Kafka.Enabled {
		notifiers = append(notifiers, notify.NewKafka(cfg.Notify.Kafka.Brokers, cfg.Notify.Kafka.Topic))
		logger.Info("kafka notifier enabled", "brokers", cfg.Notify.Kafka.Brokers, "topic", cfg.Notify.Kafka.Topic)
	}
	if cfg.Notify.Webhook.Enabled {
		notifiers = append(notifiers, notify.NewWebhook(cfg.Notify.Webhook.URL))
		logger.Info("webhook notifier enabled", "url", cfg.Notify.Webhook.URL)
	}
	if len(notifiers) > 0 {
		notifier = notify.Multi(notifiers...)
		defer notifier.Close()
	}

	processor := summarize.NewOpenAIProcessor(cfg.LLM)
	service := summarize.NewService(tracker, dd, hist, processor, notifier, cfg.Extract.MaxInputBytes, logger)

	api.Start(ctx, mgr, service, tracker, hist, logger, version)

	stop := make(chan struct{})
	go mgr.Watch(3*time.Second, func(next *config.Config) {
		logger.Info("config reloaded", "path", mgr.Path())
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, stop)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	close(stop)
	cancel()
}
