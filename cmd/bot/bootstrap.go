package main

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"algo-trading-bot/internal/broker"
	"algo-trading-bot/internal/database"
	"algo-trading-bot/internal/execution"
	"algo-trading-bot/internal/instrument"
	"algo-trading-bot/internal/interfaces"
	"algo-trading-bot/internal/ledger"
	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/marketdata"
	"algo-trading-bot/internal/monitor"
	"algo-trading-bot/internal/news"
	"algo-trading-bot/internal/scheduler"
	"algo-trading-bot/internal/signals"
	"algo-trading-bot/internal/store"
	"algo-trading-bot/internal/strategy"
	"algo-trading-bot/internal/summary"
	"algo-trading-bot/internal/trace"
)

// app holds the wired components that need an orderly shutdown.
type app struct {
	db      *database.DB
	bot     *scheduler.Bot
	monitor *monitor.Server
	cron    *cron.Cron
}

func bootstrap(ctx context.Context, cfg *store.Config) (*app, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	conn := db.Conn()

	led := ledger.New(conn)
	portfolio, err := led.EnsurePortfolio(ctx, cfg.Portfolio.Name,
		decimal.NewFromFloat(cfg.Portfolio.InitialBalance))
	if err != nil {
		db.Close()
		return nil, err
	}

	brk := broker.New(ctx, cfg)
	instruments := instrument.NewRegistry(conn)
	market := marketdata.NewService(marketdata.NewStore(conn), instruments, brk, cfg.Exchange)
	sigRepo := signals.NewRepository(conn)
	execs := execution.NewRecorder(conn)

	var adapter execution.Adapter
	if cfg.Mode == "PAPER" {
		adapter = execution.NewPaperAdapter(brk)
	} else {
		adapter = execution.NewRealAdapter(brk, cfg.Exchange)
	}

	var decider interfaces.Decider
	if cfg.LLM.Provider == "" || cfg.LLM.Provider == "NONE" {
		decider = strategy.NewNoopDecider()
	} else {
		decider = strategy.NewLLMDecider(cfg)
	}

	var feed strategy.NewsProvider
	if cfg.News.Enabled {
		feed = news.NewService(cfg)
	}

	generator := strategy.NewSignalGenerator(cfg, market, feed, decider, sigRepo, instruments)

	bot, err := scheduler.NewBot(cfg, portfolio.ID, scheduler.Deps{
		Ledger:    led,
		Signals:   sigRepo,
		Execs:     execs,
		Adapter:   adapter,
		Market:    market,
		Generator: generator,
		DB:        conn,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &app{db: db, bot: bot}

	if cfg.Monitor.Enabled {
		a.monitor = monitor.NewServer(cfg.Monitor.Addr, portfolio.ID, led, sigRepo, bot)
	}

	summaries, err := summary.NewService(conn, portfolio.ID)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.cron = summaries.StartCron(ctx)

	return a, nil
}

// shutdown drains the bot loop first so no half-finished cycle is cut off,
// then closes the outer surfaces.
func (a *app) shutdown(ctx context.Context) {
	if err := a.bot.Stop(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Bot did not drain cleanly", err)
	}
	if a.monitor != nil {
		if err := a.monitor.Shutdown(ctx); err != nil {
			logger.ErrorWithErr(ctx, "Monitoring API shutdown failed", err)
		}
	}
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if err := trace.Shutdown(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Trace shutdown failed", err)
	}
	if err := a.db.Close(); err != nil {
		logger.ErrorWithErr(ctx, "Database close failed", err)
	}
}
