package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"timeline-planner/internal/bot"
	"timeline-planner/internal/config"
	"timeline-planner/internal/logger"
	"timeline-planner/internal/repository"
	"timeline-planner/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, logCloser, err := logger.New(logger.Options{
		Env:        cfg.Env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("planner stopped with error")
		logCloser.Close()
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	db, err := repository.NewDB(cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	store := repository.NewStore(db)
	catalog := service.NewTaskService(store, log)
	occurrences := service.NewOccurrenceService(store, log)
	materializer := service.NewMaterializer(cfg.Planner.HorizonDays, log)
	reconciler := service.NewReconciler(store, catalog, occurrences, materializer, log)

	telegramBot, err := bot.New(cfg, bot.Services{
		Reconciler:  reconciler,
		Catalog:     catalog,
		Occurrences: occurrences,
		Reminders:   service.NewReminderService(catalog, occurrences),
	}, log)
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}

	scheduler := service.NewSchedulerService(time.Local, log)
	if cfg.Planner.ReportTime != config.Disabled {
		if _, err := scheduler.ScheduleDaily("daily report", cfg.Planner.ReportTime, func() {
			jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := telegramBot.SendDailyReport(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("daily report")
			}
		}); err != nil {
			return err
		}
	}
	if cfg.Planner.HorizonTopUp {
		topUp := func() {
			jobCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			n, err := reconciler.TopUpHorizon(jobCtx)
			if err != nil {
				log.Error().Err(err).Msg("horizon top-up")
				return
			}
			log.Info().Int("created", n).Msg("horizon topped up")
		}
		if _, err := scheduler.ScheduleDaily("horizon top-up", cfg.Planner.TopUpTime, topUp); err != nil {
			return err
		}
		topUp()
	}
	if scheduler.Entries() > 0 {
		scheduler.Start()
		defer scheduler.Stop()
	}

	log.Info().Str("env", cfg.Env).Int("horizon_days", materializer.HorizonDays()).Msg("planner bot started")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
