package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kowloon-quant/tradeengine/internal/broker"
	"github.com/kowloon-quant/tradeengine/internal/config"
	"github.com/kowloon-quant/tradeengine/internal/executor"
	"github.com/kowloon-quant/tradeengine/internal/notify"
	"github.com/kowloon-quant/tradeengine/internal/quote"
	"github.com/kowloon-quant/tradeengine/internal/signalgen"
	"github.com/kowloon-quant/tradeengine/internal/store"
)

var (
	runMode         string
	runWorkers      int
	runScanInterval int
	runAccountID    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the signal generator and/or order executor",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "both", "which component to run: generator | executor | both")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "executor worker count (0 = use config's worker_count)")
	runCmd.Flags().IntVar(&runScanInterval, "scan-interval", 0, "generator scan interval in seconds (0 = use config's scan_interval)")
	runCmd.Flags().StringVar(&runAccountID, "account-id", "", "override the configured account id")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	loader, cfg, err := config.New(configPath, newLogger(true, "info"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runAccountID != "" {
		cfg.AccountID = runAccountID
	}
	if runWorkers > 0 {
		cfg.WorkerCount = runWorkers
	}
	if runScanInterval > 0 {
		cfg.ScanIntervalSec = runScanInterval
	}

	log := newLogger(cfg.Log.JSON, cfg.Log.Level)
	loader.OnChange(func(old, updated config.Config) {
		log.Info().Float64("old_min_buy_score", old.MinBuyScore).Float64("new_min_buy_score", updated.MinBuyScore).Msg("config change detected; takes effect on restart")
	})
	loader.WatchConfig(cfg)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, store.Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	q := store.NewQueue(pool, cfg.Database.URL, log)
	defer q.Close()
	stops := store.NewStopStore(pool)
	orders := store.NewOrderStore(pool)

	b := buildBroker(cfg, log)

	sink := notify.NewSink(cfg.NotificationURL, log)
	notifyCtx, notifyCancel := context.WithCancel(context.Background())
	defer notifyCancel()
	go sink.Run(notifyCtx)

	g, gctx := errgroup.WithContext(ctx)

	if runMode == "generator" || runMode == "both" {
		g.Go(func() error {
			return runGenerator(gctx, cfg, b, stops, orders, q, log)
		})
	}
	if runMode == "executor" || runMode == "both" {
		g.Go(func() error {
			return runExecutor(gctx, cfg, b, stops, orders, q, sink, log)
		})
	}
	if runMode != "generator" && runMode != "executor" && runMode != "both" {
		return fmt.Errorf("unknown --mode %q: want generator, executor, or both", runMode)
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func runGenerator(ctx context.Context, cfg config.Config, b broker.Broker, stops *store.StopStore, orders *store.OrderStore, q *store.Queue, log zerolog.Logger) error {
	genCfg := signalgen.DefaultConfig(cfg.AccountID)
	genCfg.ScanInterval = cfg.ScanInterval()
	genCfg.MinBuyScore = cfg.MinBuyScore
	genCfg.WeakBuyEnabled = cfg.WeakBuyEnabled
	genCfg.CooldownWindow = cfg.CooldownWindow()
	genCfg.KSL = cfg.ATRKStop
	genCfg.KTP = cfg.ATRKProfit

	qc := quote.NewClient(quote.Adapt(b), time.Second, 5*time.Second, int64(cfg.WorkerCount))
	gen := signalgen.NewGenerator(genCfg, cfg.Watchlist, qc, b, stops, orders, q, log)

	log.Info().Int("watchlist_size", len(cfg.Watchlist)).Dur("scan_interval", genCfg.ScanInterval).Msg("starting signal generator")
	return gen.Run(ctx)
}

func runExecutor(ctx context.Context, cfg config.Config, b broker.Broker, stops *store.StopStore, orders *store.OrderStore, q *store.Queue, sink *notify.Sink, log zerolog.Logger) error {
	execCfg := executor.DefaultConfig(cfg.AccountID)
	execCfg.MaxSlippagePct = cfg.MaxPriceSlippagePct
	execCfg.FXHKDPerUSD = cfg.FXHKDPerUSD

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.WorkerCount; i++ {
		w := executor.NewWorker(i, execCfg, q, stops, orders, b, sink, log)
		g.Go(func() error { return w.Run(gctx) })
	}
	log.Info().Int("workers", cfg.WorkerCount).Msg("starting order executor")
	return g.Wait()
}

func buildBroker(cfg config.Config, log zerolog.Logger) broker.Broker {
	var b broker.Broker
	switch cfg.Broker.Active {
	case "paper", "":
		b = broker.NewPaperBroker(map[string]broker.CurrencyBalance{
			"USD": {Cash: 100000, BuyPower: 100000},
			"HKD": {Cash: 780000, BuyPower: 780000},
		})
	default:
		b = broker.NewLongportBroker(broker.LongportConfig{
			AppKey:      cfg.Broker.AppKey,
			AppSecret:   cfg.Broker.AppSecret,
			AccessToken: cfg.Broker.AccessToken,
			BaseURL:     cfg.Broker.Endpoint,
		}, log)
	}
	return broker.WrapCircuitBreaker(b, 5, 30*time.Second)
}
