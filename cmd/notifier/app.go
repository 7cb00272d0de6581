package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/williampepple1/listing-notifier/internal/config"
	"github.com/williampepple1/listing-notifier/internal/dedup"
	"github.com/williampepple1/listing-notifier/internal/extraction"
	"github.com/williampepple1/listing-notifier/internal/io"
	"github.com/williampepple1/listing-notifier/internal/logger"
	"github.com/williampepple1/listing-notifier/internal/metrics"
	"github.com/williampepple1/listing-notifier/internal/notifier"
	"github.com/williampepple1/listing-notifier/internal/scraper"
	"github.com/williampepple1/listing-notifier/internal/tracker"
)

// app holds the wired components shared by the run and once commands
type app struct {
	cfg     *config.AppConfig
	log     logger.Logger
	store   dedup.Store
	webhook *notifier.WebhookNotifier
	metrics *metrics.Metrics
	tracker *tracker.Tracker
}

func newApp(ctx context.Context, configFile string) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	store, err := dedup.Open(ctx, &cfg.Dedup)
	if err != nil {
		return nil, fmt.Errorf("open dedup store: %w", err)
	}

	webhook := notifier.NewWebhookNotifier(&cfg.Notifier)
	var sink notifier.Notifier = webhook
	if cfg.TelegramEnabled() {
		tg, err := notifier.NewTelegramNotifier(
			cfg.Notifier.TelegramToken,
			cfg.Notifier.TelegramChatID,
			"",
			&http.Client{Timeout: cfg.Notifier.Timeout},
		)
		if err != nil {
			store.Close()
			return nil, err
		}
		sink = notifier.Multi{webhook, tg}
	}

	m := metrics.New()
	t := tracker.New(tracker.Options{
		ListingURL:  cfg.Scraper.ListingURL,
		Fetcher:     scraper.New(cfg),
		Extractor:   extraction.NewExtractor(&cfg.Extraction, cfg.Scraper.BaseURL, cfg.Keywords),
		Notifier:    sink,
		Store:       store,
		Logger:      log,
		MaxPerCycle: cfg.Notifier.MaxPerCycle,
		Metrics:     m,
		Writer:      io.NewResultWriter(&cfg.IO),
		Announcer:   webhook,
	})

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		webhook: webhook,
		metrics: m,
		tracker: t,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("Failed to close dedup store", logger.Error(err))
	}
	_ = a.log.Sync()
}
