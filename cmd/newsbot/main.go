package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/deusflow/newsbot/internal/app"
	"github.com/deusflow/newsbot/internal/config"
	"github.com/deusflow/newsbot/internal/gemini"
	"github.com/deusflow/newsbot/internal/logger"
	"github.com/deusflow/newsbot/internal/metrics"
	"github.com/deusflow/newsbot/internal/monitor"
	"github.com/deusflow/newsbot/internal/rss"
	"github.com/deusflow/newsbot/internal/scheduler"
	"github.com/deusflow/newsbot/internal/telegram"
)

const (
	shutdownTimeout  = 2 * time.Minute
	headlinesPerFeed = 5
)

func main() {
	switch err := godotenv.Load(); {
	case err == nil:
		logger.Info("loaded .env")
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("no .env file, using process environment")
	default:
		logger.Warn(".env could not be read: " + err.Error())
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gc, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Error().Err(err).Msg("failed to init Gemini client")
		os.Exit(1)
	}
	defer gc.Close()

	var headlines gemini.HeadlineSource
	if cfg.FeedsConfigPath != "" {
		urls, err := rss.LoadFeeds(cfg.FeedsConfigPath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.FeedsConfigPath).Msg("failed to load feeds config")
			os.Exit(1)
		}
		if len(urls) > 0 {
			headlines = rss.NewGrounder(urls, headlinesPerFeed, cfg.AITimeout/2, log)
		}
	}

	fetcher := gemini.NewFetcher(gc.Model(), headlines, gemini.Options{
		Topic:    cfg.NewsTopic,
		Language: cfg.NewsLanguage,
		Timeout:  cfg.AITimeout,
	}, log)

	tg, err := telegram.NewClient(telegram.Config{
		Token:        cfg.TelegramToken,
		ChatID:       cfg.TargetChatID,
		Timeout:      cfg.TelegramTimeout,
		SendInterval: cfg.SendInterval,
	}, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to init Telegram client")
		os.Exit(1)
	}

	updater := app.New(fetcher, tg, app.Options{
		NewsCount:       cfg.NewsCount,
		MaxSendAttempts: cfg.MaxSendAttempts,
		RateLimitMargin: cfg.RateLimitMargin,
		NotifyOnFailure: cfg.NotifyOnFailure,
	}, metrics.Global, log)

	var mon *monitor.Server
	if cfg.EnableMonitoring {
		mon = monitor.NewServer(cfg.MonitoringPort, metrics.Global, log)
		mon.Start()
	}

	logBanner(log, cfg, headlines != nil)

	// A tick in flight is allowed to finish after a shutdown signal.
	runCtx := context.WithoutCancel(ctx)
	job := func() { updater.Run(runCtx) }

	loc := scheduler.LoadLocation(cfg.Timezone, log)
	sched, err := scheduler.Start(cfg.CronSchedule, loc, job, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to start scheduler")
		os.Exit(1)
	}

	var startup sync.WaitGroup
	if cfg.RunOnStart {
		startup.Add(1)
		go func() {
			defer startup.Done()
			job()
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping scheduler")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("scheduler did not stop cleanly")
	}
	waitStartupRun(shutdownCtx, &startup, log)
	if mon != nil {
		if err := mon.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("monitoring server shutdown")
		}
	}
	log.Info().Msg("bye")
}

// waitStartupRun waits for the run-on-start tick, bounded by ctx.
func waitStartupRun(ctx context.Context, wg *sync.WaitGroup, log zerolog.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("startup run still in progress at shutdown deadline, exiting anyway")
	}
}

func logBanner(log zerolog.Logger, cfg *config.Config, grounded bool) {
	log.Info().
		Str("schedule", cfg.CronSchedule).
		Str("tz", cfg.Timezone).
		Int64("chat_id", cfg.TargetChatID).
		Int("news_count", cfg.NewsCount).
		Str("model", cfg.GeminiModel).
		Bool("rss_grounding", grounded).
		Bool("run_on_start", cfg.RunOnStart).
		Msg("news bot started")
	log.Warn().Msg("every tick makes one Gemini request; frequent schedules can raise AI costs")
}
