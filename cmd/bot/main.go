package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/store"
	"algo-trading-bot/internal/trace"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	_ = godotenv.Load()
	must(logger.Init())
	must(trace.Init())

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := store.LoadConfig(configPath)
	must(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap(ctx, cfg)
	must(err)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	go app.bot.Run(ctx)
	if app.monitor != nil {
		go func() {
			if err := app.monitor.Start(ctx); err != nil {
				logger.ErrorWithErr(ctx, "Monitoring API stopped", err)
			}
		}()
	}

	logger.Info(ctx, "Bot started",
		"mode", cfg.Mode,
		"universe", len(cfg.Universe),
		"poll_seconds", cfg.PollSeconds,
	)

	<-sigc
	logger.Info(ctx, "Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	app.shutdown(shutdownCtx)
	cancel()
}
