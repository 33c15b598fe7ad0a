package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/capbridge/capbridge/internal/broker"
	"github.com/capbridge/capbridge/internal/config"
	"github.com/capbridge/capbridge/internal/database"
	"github.com/capbridge/capbridge/internal/exchange"
	"github.com/capbridge/capbridge/internal/feed"
	"github.com/capbridge/capbridge/internal/journal"
	"github.com/capbridge/capbridge/internal/ledger"
	"github.com/capbridge/capbridge/internal/model"
	"github.com/capbridge/capbridge/internal/queue"
	"github.com/capbridge/capbridge/internal/supervisor"
	"github.com/capbridge/capbridge/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/bridge.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting bridge",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"rest_url", cfg.Exchange.RestURL,
		"epic", cfg.Feed.Epic,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("bridge failed", "error", err)
		os.Exit(1)
	}

	logger.Info("bridge stopped")
}

func run(cfg *config.BridgeConfig, logger *slog.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// REST session
	client := exchange.NewClient(
		cfg.Exchange.RestURL,
		cfg.Exchange.APIKey,
		cfg.Exchange.Identifier,
		cfg.Exchange.Password,
		exchange.WithLogger(logger),
		exchange.WithTimeout(cfg.Exchange.Timeout),
		exchange.WithRetries(cfg.Exchange.MaxRetries, cfg.Exchange.RetryBackoff),
	)

	logger.Info("logging in")
	if err := client.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer client.Logout(context.Background())

	if cfg.Exchange.AccountID != "" {
		if err := client.SwitchAccount(ctx, cfg.Exchange.AccountID); err != nil {
			return fmt.Errorf("switch account: %w", err)
		}
		logger.Info("account selected", "account_id", cfg.Exchange.AccountID)
	}

	// Streaming connection supervisor
	super := supervisor.New(cfg.Stream, client, cfg.Feed.Epic, cfg.Exchange.AccountID, logger)
	if err := super.Start(ctx); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}
	defer stopWithTimeout(super.Stop, logger, "supervisor")

	// Data feed
	history := func(resolution string, granSeconds int, from, to time.Time) feed.Pager {
		return exchange.NewCandlesPager(client, cfg.Feed.Epic, resolution, granSeconds, cfg.Feed.PageSize, from, to)
	}
	dataFeed := feed.New(cfg.Feed, super, history, client, logger)
	if err := dataFeed.Start(ctx); err != nil {
		return fmt.Errorf("start feed: %w", err)
	}
	defer stopWithTimeout(dataFeed.Stop, logger, "feed")

	// Order ledger and worker pool
	book := ledger.NewBook()
	pool := ledger.NewPool(cfg.Broker, cfg.Account, cfg.Exchange.AccountID, client, book, nil, logger)
	facade := broker.New(cfg.Broker, cfg.Feed.Epic, book, pool, logger)
	pool.SetNotifier(facade)
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	defer stopWithTimeout(pool.Stop, logger, "worker pool")

	if err := pool.AwaitAccount(ctx); err != nil {
		return fmt.Errorf("initial account refresh: %w", err)
	}
	snap := pool.Snapshot()
	logger.Info("account ready", "cash", snap.Cash, "available", snap.Available)

	// Optional journal
	var (
		barJournal   *queue.Queue[model.Bar]
		tradeJournal *queue.Queue[model.TradeNotification]
	)
	if cfg.Journal.Enabled {
		db, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer db.Close()

		res, err := feed.Resolve(cfg.Feed.Timeframe)
		if err != nil {
			return fmt.Errorf("resolve timeframe: %w", err)
		}

		barJournal = queue.New[model.Bar](cfg.Journal.BufferSize)
		bars := journal.NewBarWriter(cfg.Journal, cfg.Feed.Epic, res.Label, barJournal, db, logger)
		if err := bars.Start(ctx); err != nil {
			return fmt.Errorf("start bar writer: %w", err)
		}
		defer stopWithTimeout(bars.Stop, logger, "bar writer")

		events := journal.NewNotificationWriter(cfg.Journal, facade.Notifications(), db, logger)
		if err := events.Start(ctx); err != nil {
			return fmt.Errorf("start notification writer: %w", err)
		}
		defer stopWithTimeout(events.Stop, logger, "notification writer")

		tradeJournal = queue.New[model.TradeNotification](cfg.Journal.BufferSize)
		trades := journal.NewTradeWriter(cfg.Journal, tradeJournal, db, logger)
		if err := trades.Start(ctx); err != nil {
			return fmt.Errorf("start trade writer: %w", err)
		}
		defer stopWithTimeout(trades.Stop, logger, "trade writer")
	}

	logger.Info("bridge running", "instance_id", cfg.Instance.ID)

	// Pump feed output until shutdown or end of data.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case bar, ok := <-dataFeed.Bars():
				if !ok {
					logger.Info("feed finished")
					cancel()
					return nil
				}
				logger.Debug("bar",
					"time", bar.Time,
					"open", bar.Open,
					"high", bar.High,
					"low", bar.Low,
					"close", bar.Close,
					"volume", bar.Volume,
				)
				if barJournal != nil {
					barJournal.Send(bar)
				}
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-dataFeed.Events():
				if !ok {
					return nil
				}
				logger.Info("feed status", "event", ev)
			}
		}
	})

	g.Go(func() error {
		for {
			tn, ok := facade.Trades().Receive()
			if !ok {
				return nil
			}
			logger.Info("trade closed", "ref", tn.Ref, "pnl", tn.PnL)
			if tradeJournal != nil {
				tradeJournal.Send(tn)
			}
		}
	})

	<-ctx.Done()
	facade.Trades().Close()
	return g.Wait()
}

// stopWithTimeout shuts a component down with a bounded grace period.
func stopWithTimeout(stop func(context.Context) error, logger *slog.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("component stop failed", "component", name, "error", err)
	}
}
