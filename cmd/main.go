package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ainewsletter/internal/bot"
	"ainewsletter/internal/config"
	"ainewsletter/internal/database"
	"ainewsletter/internal/feed"
	"ainewsletter/internal/generator"
	"ainewsletter/internal/newsletter"
	"ainewsletter/internal/prompt"
	"ainewsletter/internal/scheduler"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	start := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(".env")
	if err != nil {
		log.ErrorContext(ctx, "Failed to load config",
			"error", err)

		return
	}

	db, err := database.New(ctx, cfg.DBPath, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize db",
			"error", err,
			"dbPath", cfg.DBPath)

		return
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", cfg.DBPath)
		}
	}()
	log.InfoContext(ctx, "DB is initialized",
		"dbPath", cfg.DBPath)

	fitter, err := prompt.NewFitter(cfg.PromptConfig(), prompt.BuildNewsletterPrompt)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create prompt fitter",
			"error", err)

		return
	}

	fetcher := feed.NewFetcher(db, log)
	svc := newsletter.NewService(db, fetcher, fitter, initGenerator(ctx, cfg, log), cfg.ProUsers, log)

	botInst, err := bot.New(cfg.Token, db, fetcher, svc, cfg.AllowedUsers, cfg.DefaultDays, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize bot",
			"error", err,
			"allowedUsersCount", len(cfg.AllowedUsers))

		return
	}
	defer botInst.Stop()
	log.InfoContext(ctx, "Bot is initialized",
		"allowedUsersCount", len(cfg.AllowedUsers),
		"proUsersCount", len(cfg.ProUsers))

	sched := scheduler.New(ctx, db, svc, botInst, cfg.DefaultDays, log)
	if err = sched.Start(); err != nil {
		log.ErrorContext(ctx, "Failed to start scheduler",
			"error", err,
			"spec", scheduler.HourlySpec,
			"timezone", scheduler.Timezone)

		return
	}
	defer sched.Stop()
	log.InfoContext(ctx, "Scheduler is started",
		"spec", scheduler.HourlySpec,
		"timezone", scheduler.Timezone)

	log.InfoContext(ctx, "Bot is started")
	botInst.Start(ctx)

	log.InfoContext(ctx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())
}

// initGenerator returns nil when no API key is configured, then newsletter
// generation reports that it is unavailable.
func initGenerator(ctx context.Context, cfg config.Config, log *slog.Logger) generator.Generator {
	if cfg.OpenAIAPIKey == "" {
		log.WarnContext(ctx, "OPENAI_API_KEY is missing so newsletters cannot be generated",
			"envVar", "OPENAI_API_KEY")

		return nil
	}

	g, err := generator.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create OpenAI generator",
			"error", err,
			"envVar", "OPENAI_API_KEY")

		return nil
	}

	log.InfoContext(ctx, "OpenAI generator is initialized",
		"provider", "openai",
		"model", cfg.OpenAIModel)

	return g
}
