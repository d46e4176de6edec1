package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/playmixer/walletledger/internal/adapters/api/rest"
	"github.com/playmixer/walletledger/internal/adapters/catalog"
	"github.com/playmixer/walletledger/internal/adapters/events"
	"github.com/playmixer/walletledger/internal/adapters/logger"
	"github.com/playmixer/walletledger/internal/adapters/store"
	"github.com/playmixer/walletledger/internal/core/config"
	"github.com/playmixer/walletledger/internal/core/ledger"
	"github.com/playmixer/walletledger/internal/core/mining"
	"github.com/playmixer/walletledger/internal/core/payment"
	"github.com/playmixer/walletledger/internal/core/wallet"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Init()
	if err != nil {
		return fmt.Errorf("failed initilize config: %w", err)
	}

	lgr, err := logger.New(cfg.LogLevel, logger.OutputPath(cfg.LogPath))
	if err != nil {
		return fmt.Errorf("failed initialize logger: %w", err)
	}
	defer func() { _ = lgr.Sync() }()

	storage, err := store.New(ctx, cfg.Store, lgr)
	if err != nil {
		return fmt.Errorf("failed initilize storage: %w", err)
	}
	defer func() {
		if db, ok := storage.(interface{ CloseDB() error }); ok {
			if err := db.CloseDB(); err != nil {
				lgr.Error("failed close database", zap.Error(err))
			}
		}
	}()

	var rdb redis.UniversalClient
	if cfg.RedisAddress != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer func() { _ = rdb.Close() }()
	}

	products, err := catalog.New(cfg.Catalog, rdb, lgr)
	if err != nil {
		return fmt.Errorf("failed initialize catalog: %w", err)
	}

	publisher, err := events.NewPublisher(cfg.Events, rdb, lgr)
	if err != nil {
		return fmt.Errorf("failed initialize events: %w", err)
	}
	if closer, ok := publisher.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				lgr.Error("failed close events publisher", zap.Error(err))
			}
		}()
	}
	dispatcher := events.NewDispatcher(publisher, cfg.Events.Buffer, events.DispatcherLogger(lgr))

	l := ledger.New(cfg.Ledger, storage, ledger.Logger(lgr))
	payments := payment.New(cfg.Payment, l, storage, products,
		payment.Logger(lgr),
		payment.Events(dispatcher),
	)
	miner := mining.New(cfg.Mining, l, mining.Logger(lgr), mining.Events(dispatcher))
	service := wallet.New(storage, payments, miner, wallet.Logger(lgr))

	if _, err := service.Open(ctx, cfg.Payment.TreasuryAccountID); err != nil {
		return fmt.Errorf("failed open treasury wallet: %w", err)
	}

	server, err := rest.New(
		service,
		rest.Logger(lgr),
		rest.Configure(cfg.Rest),
	)
	if err != nil {
		return fmt.Errorf("failed initialize rest server: %w", err)
	}

	if err := dispatcher.Serve(ctx, server.Run); err != nil {
		return fmt.Errorf("stop server, %w", err)
	}
	if dropped := dispatcher.Dropped(); dropped > 0 {
		lgr.Warn("events dropped", zap.Uint64("count", dropped))
	}
	return nil
}
