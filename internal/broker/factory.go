package broker

import (
	"context"

	"algo-trading-bot/internal/broker/angel"
	"algo-trading-bot/internal/broker/brokerobs"
	"algo-trading-bot/internal/broker/sim"
	"algo-trading-bot/internal/interfaces"
	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/store"
)

// New builds the broker for the configured mode, wrapped with observability.
// PAPER mode never needs credentials; LIVE resolves them from the provider
// chain.
func New(ctx context.Context, cfg *store.Config) interfaces.Broker {
	if cfg.Mode == "PAPER" {
		logger.Info(ctx, "Using simulated broker", "mode", cfg.Mode)
		return brokerobs.Wrap(sim.New())
	}

	creds, err := store.ResolveCredentials(store.EnvCredentials, store.FileCredentials("credentials.json"))
	if err != nil {
		logger.Warn(ctx, "No broker credentials found, live orders will be rejected")
	}
	logger.Info(ctx, "Using Angel One broker", "mode", cfg.Mode, "client_id", creds.ClientID)
	return brokerobs.Wrap(angel.New(creds))
}
