package main

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/example/wordforge/internal/catchup"
	"github.com/example/wordforge/internal/clock"
	"github.com/example/wordforge/internal/config"
	"github.com/example/wordforge/internal/database"
	"github.com/example/wordforge/internal/logging"
	"github.com/example/wordforge/internal/notify"
	"github.com/example/wordforge/internal/scheduler"
	"github.com/example/wordforge/internal/trainer"
)

// app holds the components shared by all subcommands
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sqlx.DB
	scheduler *scheduler.Scheduler
	catchUp   *catchup.Aggregator
	trainer   *trainer.Service
}

// newApp opens the database and wires the scheduling core
func newApp(cfg config.Config) (*app, error) {
	logger := logging.New(cfg.Logging.Level)

	db, err := database.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	notifier, err := newNotifier(cfg, database.NewMessageRepository(db), logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	clk := clock.System{}
	words := database.NewWordRepository(db)
	sched := scheduler.New(database.NewJobRepository(db), notifier, clk, scheduler.Options{
		PollInterval: cfg.Scheduler.Poll(),
		Logger:       logger,
	})

	hour, minute := cfg.Scheduler.CatchUpAt()
	agg := catchup.New(words, sched, notifier, clk, catchup.Options{
		At:       catchup.TimeOfDay{Hour: hour, Minute: minute},
		Location: cfg.Scheduler.Location(),
		Logger:   logger,
	})
	agg.Register()

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		scheduler: sched,
		catchUp:   agg,
		trainer:   trainer.New(words, sched, agg, clk, logger),
	}, nil
}

// newNotifier picks Telegram when a bot token is configured, the log otherwise
func newNotifier(cfg config.Config, messages notify.MessageLog, logger *slog.Logger) (notify.Notifier, error) {
	tg := cfg.Notifications.Telegram
	if tg.BotToken == "" {
		logger.Info("telegram not configured, notifications go to the log")
		return notify.NewLog(logger), nil
	}
	n, err := notify.NewTelegram(tg.BotToken, tg.ChatID, !cfg.Notifications.Disabled, messages, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram notifier: %w", err)
	}
	return n, nil
}

// Close releases the database connection
func (a *app) Close() {
	a.scheduler.Stop()
	if err := a.db.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}
