package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"guildwarden/internal/analytics"
	"guildwarden/internal/automod"
	"guildwarden/internal/bot"
	"guildwarden/internal/config"
	"guildwarden/internal/dashboard"
	"guildwarden/internal/guildconfig"
	"guildwarden/internal/kv"
	"guildwarden/internal/moderation"
	"guildwarden/internal/scheduler"
	"guildwarden/internal/storage"
)

func main() {
	app := &cli.Command{
		Name:  "guildwarden",
		Usage: "Discord community moderation and automation bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file (overrides CONFIG_PATH)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Connect to Discord and serve the scheduler and dashboard",
				Action: runBot,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit",
				Action: runMigrate,
			},
		},
		Action: runBot,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func useConfigFlag(c *cli.Command) {
	if path := c.String("config"); path != "" {
		_ = os.Setenv("CONFIG_PATH", path)
	}
}

func runMigrate(ctx context.Context, c *cli.Command) error {
	useConfigFlag(c)
	cfg, err := config.Read()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := storage.New(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("Migrations applied")
	return nil
}

func runBot(ctx context.Context, c *cli.Command) error {
	useConfigFlag(c)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Error("Storage init failed", zap.Error(err))
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logger.Error("Migrations failed", zap.Error(err))
		return err
	}

	cache, closeCache, err := openKV(cfg.Redis, logger)
	if err != nil {
		logger.Error("KV store init failed", zap.Error(err))
		return err
	}
	defer closeCache()

	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	discord := bot.NewDiscord(session, logger)

	colors := moderation.EmbedColors{
		Action:  cfg.Notifications.EmbedColors.Action,
		Warning: cfg.Notifications.EmbedColors.Warning,
		Error:   cfg.Notifications.EmbedColors.Error,
	}
	configs := guildconfig.NewService(store, cache, time.Duration(cfg.ConfigCache.TTLSeconds)*time.Second, logger)
	mod := moderation.NewService(store, discord, configs, colors, logger)
	engine := automod.NewEngine(configs, cache, mod, discord, logger)
	sched := scheduler.New(store, discord, discord, scheduler.Options{
		PollInterval: time.Duration(cfg.Scheduler.PollSeconds) * time.Second,
		MaxFailures:  cfg.Scheduler.MaxFailures,
		Workers:      cfg.Scheduler.Workers,
		DefaultColor: colors.Action,
	}, logger)
	stats := analytics.New(store)

	router := bot.NewRouter(cache, time.Duration(cfg.Commands.CooldownSeconds)*time.Second, logger)
	router.UseModules(configs)
	bot.NewCommands(mod, sched, configs, stats, colors).RegisterAll(router)
	greeter := bot.NewGreeter(configs, discord, discord, logger)

	b := bot.New(session, router, engine, greeter, configs, sched, logger)
	if err := b.Start(ctx); err != nil {
		logger.Error("Bot start failed", zap.Error(err))
		return err
	}
	defer b.Close()
	logger.Info("Bot started")

	if cfg.Scheduler.Enabled {
		sched.Start(ctx)
		defer sched.Stop()
	}

	errCh := make(chan error, 1)
	if cfg.Dashboard.Enabled {
		server := dashboard.NewServer(configs, sched, stats, cache, dashboard.Options{
			Addr:         cfg.Dashboard.Addr,
			BaseURL:      cfg.Dashboard.BaseURL,
			ClientID:     cfg.Dashboard.ClientID,
			ClientSecret: cfg.Dashboard.ClientSecret,
			SessionTTL:   time.Duration(cfg.Dashboard.SessionHours) * time.Hour,

			RequestsPerMinute: cfg.Dashboard.RequestsPerMinute,
		}, logger)
		go func() {
			errCh <- server.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown requested")
		return nil
	case err := <-errCh:
		if err != nil {
			logger.Error("Dashboard stopped", zap.Error(err))
		}
		return err
	}
}

// openKV dials Redis when enabled and otherwise falls back to a
// process-local store.
func openKV(cfg config.RedisConfig, logger *zap.Logger) (kv.Store, func(), error) {
	if !cfg.Enabled {
		logger.Info("Redis disabled, using in-memory kv store")
		return kv.NewMemory(), func() {}, nil
	}
	client, err := kv.DialRedis(kv.RedisOptions{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}
