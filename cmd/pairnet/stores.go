package main

import (
	"context"
	"fmt"

	"pairnet/internal/config"
	"pairnet/internal/network"
	"pairnet/internal/storage/memory"
	pgstore "pairnet/internal/storage/postgres"
	redisstore "pairnet/internal/storage/redis"
)

// createStores builds the stores for cfg. The returned cleanup closes any
// connections that were opened.
func createStores(ctx context.Context, cfg config.Config) (network.Stores, func(), error) {
	var (
		stores  network.Stores
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage {
	case config.StoragePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return network.Stores{}, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		stores = network.Stores{
			Tree:        pgstore.NewTreeStore(pool),
			Ledger:      pgstore.NewLedgerStore(pool),
			Events:      pgstore.NewPairEventStore(pool),
			Checkpoints: pgstore.NewCheckpointStore(pool),
		}
	default:
		stores = network.Stores{
			Tree:        memory.NewTreeStore(),
			Ledger:      memory.NewLedgerStore(),
			Events:      memory.NewPairEventStore(),
			Checkpoints: memory.NewCheckpointStore(),
		}
	}

	if cfg.Checkpoints == config.CheckpointsRedis {
		client, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			cleanup()
			return network.Stores{}, nil, fmt.Errorf("connect to redis: %w", err)
		}
		closers = append(closers, func() { client.Close() })
		stores.Checkpoints = redisstore.NewCheckpointStore(client, "")
	}

	return stores, cleanup, nil
}

// newNetwork builds the network on the configured stores.
func (a *app) newNetwork(ctx context.Context) (*network.Network, func(), error) {
	schedule, err := a.cfg.Schedule()
	if err != nil {
		return nil, nil, err
	}
	stores, cleanup, err := createStores(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}

	return network.New(stores, network.Options{
		Schedule:   schedule,
		Logger:     &a.logger,
		MaxCatchUp: a.cfg.MaxCatchUp,
	}), cleanup, nil
}
