// Command candlestore is a minimal wiring demonstration of the core
// pipeline — adapter registry, backfill engine, order-book maintainer, and
// columnar store — for a single exchange and product. It is not a general
// CLI front-end: argument parsing and configuration-file loading are out of
// scope, so every value here is hardcoded or read from the environment
// directly.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/yitech/candlestore/adapter"
	"github.com/yitech/candlestore/adapter/binance"
	"github.com/yitech/candlestore/adapter/bybit"
	"github.com/yitech/candlestore/adapter/coinbase"
	"github.com/yitech/candlestore/adapter/okx"
	"github.com/yitech/candlestore/backfill"
	"github.com/yitech/candlestore/config"
	"github.com/yitech/candlestore/orderbook"
	"github.com/yitech/candlestore/store"
)

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cfg, err := config.New(config.Config{
		Version:   "0.1.0",
		RepoLink:  "https://github.com/yitech/candlestore",
		UserAgent: "candlestore/0.1",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	registry := adapter.NewRegistry()
	registry.Register("coinbase", func() adapter.CandleAdapter { return coinbase.New(cfg) })
	registry.Register("binance", func() adapter.CandleAdapter { return binance.New() })
	registry.Register("okx", func() adapter.CandleAdapter { return okx.New() })
	registry.Register("bybit", func() adapter.CandleAdapter { return bybit.New() })

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dataStore, err := store.New("./data", store.DefaultCompactThresholdBytes, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot open columnar store")
	}

	runBackfill(ctx, logger, registry, dataStore)
	runOrderBook(ctx, logger, cfg)
}

func runBackfill(ctx context.Context, logger zerolog.Logger, registry *adapter.Registry, dataStore *store.Store) {
	ad, err := registry.New("coinbase")
	if err != nil {
		logger.Error().Err(err).Msg("no coinbase adapter registered")
		return
	}

	engine := backfill.New(logger)
	requests := []backfill.Request{
		{Product: "BTC-USD", Granularity: time.Minute},
	}

	batches, errs := engine.Fetch(ctx, ad, requests)
	for batches != nil || errs != nil {
		select {
		case b, ok := <-batches:
			if !ok {
				batches = nil
				continue
			}
			if err := dataStore.Write(b); err != nil {
				logger.Error().Err(err).Str("product", b.Product).Msg("store write failed")
			}
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Error().Err(e).Msg("backfill error")
		}
	}

	if err := dataStore.Compact("BTC-USD"); err != nil {
		logger.Error().Err(err).Msg("final compaction failed")
	}
}

func runOrderBook(ctx context.Context, logger zerolog.Logger, cfg config.Config) {
	cb := coinbase.New(cfg)
	maintainer := orderbook.New(logger)

	handle, err := maintainer.Start(ctx, cb, []string{"BTC-USD"}, 50, 5*time.Second)
	if err != nil {
		logger.Error().Err(err).Msg("cannot start order book maintainer")
		return
	}
	defer handle.Close()

	for snap := range handle.Snapshots() {
		logger.Info().Time("ts", snap.Timestamp).Int("products", len(snap.Products)).Msg("order book snapshot")
	}
}
